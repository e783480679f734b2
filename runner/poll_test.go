package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedQuerier replays one batch of entries per poll, repeating the
// last batch once exhausted.
type scriptedQuerier struct {
	batches [][]Entry
	errs    []error
	calls   int
}

func (q *scriptedQuerier) LatestEntries(ctx context.Context, destination string) ([]Entry, error) {
	i := q.calls
	q.calls++
	if i < len(q.errs) && q.errs[i] != nil {
		return nil, q.errs[i]
	}
	if len(q.batches) == 0 {
		return nil, nil
	}
	if i >= len(q.batches) {
		i = len(q.batches) - 1
	}
	return q.batches[i], nil
}

func TestPollForResultImmediateMatch(t *testing.T) {
	q := &scriptedQuerier{batches: [][]Entry{{
		{Message: `{"result": 7, "uuid": "tok-1"}`},
	}}}

	out, err := PollForResult(context.Background(), q, "dest", "tok-1", time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, `{"result": 7, "uuid": "tok-1"}`, out)
}

func TestPollForResultSkipsForeignEntries(t *testing.T) {
	// shared destination: other executions' entries and non-JSON noise
	// must not satisfy the poll
	q := &scriptedQuerier{batches: [][]Entry{
		{
			{Message: "plain text progress line"},
			{Message: `{"result": 1, "uuid": "someone-else"}`},
			{Message: `{"no_uuid": true}`},
		},
		{
			{Message: `{"result": 2, "uuid": "mine"}`},
		},
	}}

	out, err := PollForResult(context.Background(), q, "dest", "mine", time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, `{"result": 2, "uuid": "mine"}`, out)
	assert.GreaterOrEqual(t, q.calls, 2)
}

func TestPollForResultTimeout(t *testing.T) {
	q := &scriptedQuerier{}

	_, err := PollForResult(context.Background(), q, "dest", "tok", 50*time.Millisecond, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrPollTimeout)
}

func TestPollForResultToleratesQueryErrors(t *testing.T) {
	q := &scriptedQuerier{
		errs: []error{errors.New("throttled"), errors.New("throttled")},
		batches: [][]Entry{
			nil, nil,
			{{Message: `{"result": 3, "uuid": "tok"}`}},
		},
	}

	out, err := PollForResult(context.Background(), q, "dest", "tok", time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, `{"result": 3, "uuid": "tok"}`, out)
}

func TestPollForResultContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := &scriptedQuerier{}

	_, err := PollForResult(ctx, q, "dest", "tok", time.Minute, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}
