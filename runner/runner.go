// Package runner contains the execution backends a build can be run on:
// a synchronous local Docker runner and asynchronous remote launchers
// paired with a log-query capability for result retrieval.
package runner

import (
	"context"
	"time"
)

// Runner executes an image synchronously and returns its captured output.
type Runner interface {
	Run(ctx context.Context, image string, command []string) (string, error)
}

// Launch is the handle returned by an asynchronous backend: an opaque job
// identity plus the log destination the poller should watch.
type Launch struct {
	Handle         string
	LogDestination string
}

// Launcher starts an ephemeral remote execution out-of-band. command is
// the full in-container command, correlation token included; provisioning
// is fire-and-forget relative to the run record.
type Launcher interface {
	Launch(ctx context.Context, image string, command []string) (Launch, error)
}

// Entry is one log line from a remote execution's log destination.
type Entry struct {
	Message   string
	Timestamp time.Time
}

// LogQuerier returns the latest entries of the most recent stream at a
// destination. Zero entries is not an error.
type LogQuerier interface {
	LatestEntries(ctx context.Context, destination string) ([]Entry, error)
}
