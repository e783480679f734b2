// Package executor resolves the latest successful build for a script,
// validates run parameters and drives the Run state machine across
// synchronous and asynchronous execution backends.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/villagehq/village/params"
	"github.com/villagehq/village/runner"
	"github.com/villagehq/village/store"
)

var (
	// ErrNoEligibleBuild means the script has no build in success
	// status; surfaced to the caller, never retried here.
	ErrNoEligibleBuild = errors.New("no eligible build")

	// ErrExecutionFailed wraps hard backend errors (launch or run
	// failure, as opposed to a poll timeout).
	ErrExecutionFailed = errors.New("execution failed")
)

// Executor dispatches runs to a synchronous Runner or, when Launcher is
// set, to an asynchronous remote backend with bounded log polling.
type Executor struct {
	Store    *store.Store
	Runner   runner.Runner
	Launcher runner.Launcher
	Logs     runner.LogQuerier

	// Poll budget/interval for asynchronous backends. Zero values mean
	// the package defaults (120s / 1s).
	PollBudget   time.Duration
	PollInterval time.Duration
}

// Options carries the provenance of a run: a schedule id when triggered
// by the scheduler, a creator id when triggered interactively. The two
// are mutually exclusive by convention, not enforced.
type Options struct {
	ScheduleID string
	CreatorID  string
}

// Execute runs the latest successful build of a script with the submitted
// parameter values. Validation failures abort before any run record or
// container exists. Once the record is created it always reaches a
// terminal state, and the first terminal write wins: a poll match landing
// after a timeout already failed the run does not resurrect it.
func (e *Executor) Execute(ctx context.Context, scriptID string, values map[string]any, opts Options) (*store.Run, error) {
	script, err := e.Store.GetScript(ctx, scriptID)
	if err != nil {
		return nil, err
	}

	build, err := e.Store.LatestSuccessfulBuild(ctx, scriptID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("script %q: %w", scriptID, ErrNoEligibleBuild)
	}
	if err != nil {
		return nil, err
	}

	if values == nil {
		values = map[string]any{}
	}
	if err := params.Validate(values, build.Params); err != nil {
		return nil, err
	}

	paramsJSON, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}

	run := &store.Run{
		ScriptID:   scriptID,
		BuildID:    build.ID,
		Status:     store.RunRunning,
		ScheduleID: opts.ScheduleID,
		CreatorID:  opts.CreatorID,
	}
	if err := e.Store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	// scoped cleanup: a panic or missed code path below must not leave
	// the record in `running`.
	settled := false
	defer func() {
		if settled {
			return
		}
		if _, err := e.Store.CompleteRun(context.Background(), run.ID, store.RunFailure, ""); err != nil {
			log.Printf("executor: failed to fail dangling run %s: %v", run.ID, err)
		}
	}()

	image := build.ImageURI
	if image == "" {
		image = build.ID
	}
	command := []string{script.Engine.Runtime(), script.Engine.ShimFile(), string(paramsJSON)}

	var runErr error
	if e.Launcher != nil {
		runErr = e.executeRemote(ctx, run, image, command)
	} else {
		runErr = e.executeLocal(ctx, run, image, command)
	}
	settled = true
	if runErr != nil {
		return e.reload(run), runErr
	}
	return e.reload(run), nil
}

func (e *Executor) executeLocal(ctx context.Context, run *store.Run, image string, command []string) error {
	out, err := e.Runner.Run(ctx, image, command)
	if err != nil {
		e.complete(run, store.RunFailure, "")
		return fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	e.complete(run, store.RunSuccess, out)
	return nil
}

func (e *Executor) executeRemote(ctx context.Context, run *store.Run, image string, command []string) error {
	// correlation token: run-scoped, distinct from the run id, exists
	// only to pick this execution's entry out of a shared log
	// destination
	token := uuid.NewString()
	command = append(command, token)

	launch, err := e.Launcher.Launch(ctx, image, command)
	if err != nil {
		e.complete(run, store.RunFailure, "")
		return fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	out, err := runner.PollForResult(ctx, e.Logs, launch.LogDestination, token, e.PollBudget, e.PollInterval)
	switch {
	case err == nil:
		e.complete(run, store.RunSuccess, out)
		return nil
	case errors.Is(err, runner.ErrPollTimeout):
		// timeout is a run failure, not a backend error
		e.complete(run, store.RunFailure, "")
		return nil
	default:
		e.complete(run, store.RunFailure, "")
		return err
	}
}

// complete writes a terminal state unless another writer got there first.
func (e *Executor) complete(run *store.Run, status store.RunStatus, output string) {
	wrote, err := e.Store.CompleteRun(context.Background(), run.ID, status, output)
	if err != nil {
		log.Printf("executor: failed to complete run %s: %v", run.ID, err)
		return
	}
	if !wrote {
		log.Printf("executor: run %s already terminal, dropping %s result", run.ID, status)
	}
}

func (e *Executor) reload(run *store.Run) *store.Run {
	fresh, err := e.Store.GetRun(context.Background(), run.ID)
	if err != nil {
		return run
	}
	return fresh
}
