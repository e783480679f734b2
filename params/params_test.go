package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequiredMissing(t *testing.T) {
	specs := []Spec{{Key: "n", Type: TypeInteger, Required: true}}

	err := Validate(map[string]any{}, specs)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "n", verr.Key)
}

func TestValidateRequiredMissingDespiteDefault(t *testing.T) {
	// defaults are declarative metadata; they are not injected before
	// validation
	specs := []Spec{{Key: "n", Type: TypeInteger, Required: true, Default: "3"}}
	err := Validate(map[string]any{}, specs)
	require.Error(t, err)
}

func TestValidateOptionalMissing(t *testing.T) {
	specs := []Spec{{Key: "n", Type: TypeInteger, Required: false}}
	assert.NoError(t, Validate(map[string]any{}, specs))
}

func TestValidateUnknownKeysIgnored(t *testing.T) {
	specs := []Spec{{Key: "n", Type: TypeInteger, Required: true}}
	err := Validate(map[string]any{"n": 5, "extra": "whatever", "more": false}, specs)
	assert.NoError(t, err)
}

func TestValidateBoolean(t *testing.T) {
	specs := []Spec{{Key: "flag", Type: TypeBoolean, Required: true}}

	for _, ok := range []any{"true", "false", true, false} {
		assert.NoError(t, Validate(map[string]any{"flag": ok}, specs), "%v", ok)
	}
	for _, bad := range []any{"1", "yes", "True", "FALSE", 0, ""} {
		assert.Error(t, Validate(map[string]any{"flag": bad}, specs), "%v", bad)
	}
}

func TestValidateDate(t *testing.T) {
	specs := []Spec{{Key: "day", Type: TypeDate, Required: true}}

	assert.NoError(t, Validate(map[string]any{"day": "2024-01-05"}, specs))

	for _, bad := range []string{"2024-1-5", "05-01-2024", "2024-02-30", "not-a-date", "2024-01-05T00:00:00"} {
		assert.Error(t, Validate(map[string]any{"day": bad}, specs), bad)
	}
}

func TestValidateDatetime(t *testing.T) {
	specs := []Spec{{Key: "at", Type: TypeDatetime, Required: true}}

	assert.NoError(t, Validate(map[string]any{"at": "2024-01-05T13:45:00"}, specs))

	for _, bad := range []string{"2024-01-05", "2024-01-05 13:45:00", "2024-01-05T13:45"} {
		assert.Error(t, Validate(map[string]any{"at": bad}, specs), bad)
	}
}

func TestValidateInteger(t *testing.T) {
	specs := []Spec{{Key: "n", Type: TypeInteger, Required: true}}

	for _, ok := range []any{"5", "007", 5, int64(12), float64(42)} {
		assert.NoError(t, Validate(map[string]any{"n": ok}, specs), "%v", ok)
	}
	for _, bad := range []any{"5.5", "-3", "abc", "", 4.2, true} {
		assert.Error(t, Validate(map[string]any{"n": bad}, specs), "%v", bad)
	}
}

func TestValidateFloat(t *testing.T) {
	specs := []Spec{{Key: "x", Type: TypeFloat, Required: true}}

	for _, ok := range []any{"5.5", "-3.2", "5", 1.25, 3} {
		assert.NoError(t, Validate(map[string]any{"x": ok}, specs), "%v", ok)
	}
	for _, bad := range []any{"abc", "", "1.2.3"} {
		assert.Error(t, Validate(map[string]any{"x": bad}, specs), "%v", bad)
	}
}

func TestValidateStringsAcceptAnything(t *testing.T) {
	specs := []Spec{
		{Key: "s", Type: TypeString, Required: true},
		{Key: "b", Type: TypeBigString, Required: true},
	}
	err := Validate(map[string]any{"s": 42, "b": true}, specs)
	assert.NoError(t, err)
}

func TestValidateFirstOffendingKey(t *testing.T) {
	specs := []Spec{
		{Key: "a", Type: TypeString, Required: true},
		{Key: "b", Type: TypeInteger, Required: true},
		{Key: "c", Type: TypeInteger, Required: true},
	}
	err := Validate(map[string]any{"a": "ok", "b": "oops", "c": "also-bad"}, specs)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "b", verr.Key)
}
