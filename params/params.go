// Package params validates run-time argument maps against the parameter
// schema frozen into a build.
package params

import (
	"fmt"
	"strconv"
	"time"
)

// Type enumerates the declarable parameter types.
type Type string

const (
	TypeString    Type = "string"
	TypeBigString Type = "bigstring"
	TypeDate      Type = "date"
	TypeDatetime  Type = "datetime"
	TypeInteger   Type = "integer"
	TypeFloat     Type = "float"
	TypeBoolean   Type = "boolean"
)

func (t Type) Valid() bool {
	switch t {
	case TypeString, TypeBigString, TypeDate, TypeDatetime, TypeInteger, TypeFloat, TypeBoolean:
		return true
	}
	return false
}

// Option is one allowed value for a parameter, with a display label.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// Spec is a single declared parameter. A build freezes an ordered list of
// these at creation time.
type Spec struct {
	Key         string   `json:"key"`
	Type        Type     `json:"type"`
	Default     string   `json:"default"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Options     []Option `json:"options"`
}

// ValidationError names the first parameter that failed validation.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Reason)
}

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02T15:04:05"
)

// Validate checks a flat map of submitted values against the spec list.
// Keys present in values but absent from the spec are ignored. Declared
// defaults are not injected; a missing required key fails even when the
// spec carries a default.
func Validate(values map[string]any, specs []Spec) error {
	for _, spec := range specs {
		raw, ok := values[spec.Key]
		if !ok {
			if spec.Required {
				return &ValidationError{Key: spec.Key, Reason: "is required"}
			}
			continue
		}

		value := stringify(raw)

		switch spec.Type {
		case TypeString, TypeBigString:
			// any value accepted

		case TypeDate:
			if _, err := time.Parse(dateLayout, value); err != nil {
				return &ValidationError{Key: spec.Key, Reason: "invalid date, expected YYYY-MM-DD"}
			}

		case TypeDatetime:
			if _, err := time.Parse(datetimeLayout, value); err != nil {
				return &ValidationError{Key: spec.Key, Reason: "invalid datetime, expected YYYY-MM-DDTHH:MM:SS"}
			}

		case TypeInteger:
			if !allDigits(value) {
				return &ValidationError{Key: spec.Key, Reason: "invalid integer"}
			}

		case TypeFloat:
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return &ValidationError{Key: spec.Key, Reason: "invalid float"}
			}

		case TypeBoolean:
			if value != "true" && value != "false" {
				return &ValidationError{Key: spec.Key, Reason: `invalid boolean, expected "true" or "false"`}
			}

		default:
			return &ValidationError{Key: spec.Key, Reason: fmt.Sprintf("unknown parameter type %q", spec.Type)}
		}
	}
	return nil
}

// stringify normalizes submitted scalar values before format checks.
// JSON-decoded numbers arrive as float64; integral ones must not pick up
// an exponent or trailing zeros.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(v)
	}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
