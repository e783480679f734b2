package runner

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrPollTimeout = errors.New("no matching log entry within budget")

const (
	DefaultPollBudget   = 120 * time.Second
	DefaultPollInterval = 1 * time.Second
)

// PollForResult repeatedly queries the log destination for an entry whose
// embedded uuid matches the execution's correlation token and returns its
// message. Concurrent executions share a destination, so entries that
// carry a different uuid, no uuid at all, or that are not JSON are
// skipped. Query errors are tolerated; the clock keeps running. Returns
// ErrPollTimeout once the budget is spent and the context's error if the
// caller gives up first.
func PollForResult(ctx context.Context, q LogQuerier, destination, token string, budget, interval time.Duration) (string, error) {
	if budget <= 0 {
		budget = DefaultPollBudget
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	deadline := time.Now().Add(budget)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		entries, err := q.LatestEntries(ctx, destination)
		if err == nil {
			for _, e := range entries {
				var msg struct {
					UUID string `json:"uuid"`
				}
				if json.Unmarshal([]byte(e.Message), &msg) != nil {
					continue
				}
				if msg.UUID == token {
					return e.Message, nil
				}
			}
		} else if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if time.Now().After(deadline) {
			return "", ErrPollTimeout
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
