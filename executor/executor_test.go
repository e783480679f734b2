package executor

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villagehq/village/engine"
	"github.com/villagehq/village/params"
	"github.com/villagehq/village/runner"
	"github.com/villagehq/village/store"
)

type fakeRunner struct {
	out string
	err error

	gotImage   string
	gotCommand []string
}

func (f *fakeRunner) Run(ctx context.Context, image string, command []string) (string, error) {
	f.gotImage = image
	f.gotCommand = command
	return f.out, f.err
}

// fakeRemote plays both the launcher and the log querier: it remembers
// the correlation token from the launched command and, when answering,
// echoes an entry carrying that token among unrelated noise.
type fakeRemote struct {
	launchErr error
	silent    bool

	gotImage   string
	gotCommand []string
	token      string
}

func (f *fakeRemote) Launch(ctx context.Context, image string, command []string) (runner.Launch, error) {
	if f.launchErr != nil {
		return runner.Launch{}, f.launchErr
	}
	f.gotImage = image
	f.gotCommand = command
	f.token = command[len(command)-1]
	return runner.Launch{Handle: "op-1", LogDestination: "dest-1"}, nil
}

func (f *fakeRemote) LatestEntries(ctx context.Context, destination string) ([]runner.Entry, error) {
	if f.silent {
		return nil, nil
	}
	return []runner.Entry{
		{Message: "starting up"},
		{Message: `{"result": 9, "uuid": "other-run"}`},
		{Message: `{"result": 42, "uuid": "` + f.token + `"}`},
	}, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenStore("sqlite", filepath.Join(t.TempDir(), "village.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedScript(t *testing.T, s *store.Store) *store.Script {
	t.Helper()
	sc := &store.Script{
		ID:            "report",
		Name:          "Report",
		Engine:        engine.Python,
		EngineVersion: "3.12",
		WorkspaceID:   "ws1",
	}
	require.NoError(t, s.CreateScript(context.Background(), sc))
	return sc
}

func seedBuild(t *testing.T, s *store.Store, scriptID, imageURI string, specs []params.Spec) *store.Build {
	t.Helper()
	ctx := context.Background()
	b := &store.Build{ScriptID: scriptID, Params: specs}
	require.NoError(t, s.CreateBuild(ctx, b))
	if imageURI != "" {
		require.NoError(t, s.SetBuildImage(ctx, b.ID, imageURI))
	}
	require.NoError(t, s.FinishBuild(ctx, b.ID, store.BuildSuccess, ""))
	return b
}

var intSpec = []params.Spec{{Key: "n", Type: params.TypeInteger, Required: true}}

func TestExecuteLocalSuccess(t *testing.T) {
	s := newTestStore(t)
	sc := seedScript(t, s)
	seedBuild(t, s, sc.ID, "registry/report:v1", intSpec)

	fr := &fakeRunner{out: `{"result": 10}`}
	ex := &Executor{Store: s, Runner: fr}

	run, err := ex.Execute(context.Background(), sc.ID, map[string]any{"n": 5}, Options{CreatorID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, store.RunSuccess, run.Status)
	assert.Equal(t, `{"result": 10}`, run.Output)
	assert.Equal(t, "u1", run.CreatorID)
	require.NotNil(t, run.CompletedAt)

	assert.Equal(t, "registry/report:v1", fr.gotImage)
	require.Len(t, fr.gotCommand, 3)
	assert.Equal(t, "python3", fr.gotCommand[0])
	assert.Equal(t, "shim.py", fr.gotCommand[1])

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(fr.gotCommand[2]), &sent))
	assert.Equal(t, map[string]any{"n": float64(5)}, sent)
}

func TestExecuteImageFallsBackToBuildID(t *testing.T) {
	s := newTestStore(t)
	sc := seedScript(t, s)
	b := seedBuild(t, s, sc.ID, "", nil)

	fr := &fakeRunner{out: "{}"}
	ex := &Executor{Store: s, Runner: fr}

	_, err := ex.Execute(context.Background(), sc.ID, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, b.ID, fr.gotImage)
}

func TestExecutePicksLatestSuccessfulBuild(t *testing.T) {
	s := newTestStore(t)
	sc := seedScript(t, s)
	seedBuild(t, s, sc.ID, "registry/report:v1", nil)
	time.Sleep(time.Millisecond)
	seedBuild(t, s, sc.ID, "registry/report:v2", nil)
	time.Sleep(time.Millisecond)
	// latest build failed; v2 remains the eligible one
	bad := &store.Build{ScriptID: sc.ID}
	require.NoError(t, s.CreateBuild(context.Background(), bad))
	require.NoError(t, s.FinishBuild(context.Background(), bad.ID, store.BuildFailure, ""))

	fr := &fakeRunner{out: "{}"}
	ex := &Executor{Store: s, Runner: fr}

	_, err := ex.Execute(context.Background(), sc.ID, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "registry/report:v2", fr.gotImage)
}

func TestExecuteValidationFailureCreatesNoRun(t *testing.T) {
	s := newTestStore(t)
	sc := seedScript(t, s)
	seedBuild(t, s, sc.ID, "img", intSpec)

	ex := &Executor{Store: s, Runner: &fakeRunner{}}

	var verr *params.ValidationError
	_, err := ex.Execute(context.Background(), sc.ID, map[string]any{"n": "not-a-number"}, Options{})
	require.ErrorAs(t, err, &verr)

	_, err = ex.Execute(context.Background(), sc.ID, map[string]any{}, Options{})
	require.ErrorAs(t, err, &verr)

	runs, err := s.ListRuns(context.Background(), sc.ID)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestExecuteNoEligibleBuild(t *testing.T) {
	s := newTestStore(t)
	sc := seedScript(t, s)

	ex := &Executor{Store: s, Runner: &fakeRunner{}}
	_, err := ex.Execute(context.Background(), sc.ID, nil, Options{})
	assert.ErrorIs(t, err, ErrNoEligibleBuild)

	// a failed build is not eligible either
	b := &store.Build{ScriptID: sc.ID}
	require.NoError(t, s.CreateBuild(context.Background(), b))
	require.NoError(t, s.FinishBuild(context.Background(), b.ID, store.BuildFailure, ""))
	_, err = ex.Execute(context.Background(), sc.ID, nil, Options{})
	assert.ErrorIs(t, err, ErrNoEligibleBuild)
}

func TestExecuteUnknownScript(t *testing.T) {
	s := newTestStore(t)
	ex := &Executor{Store: s, Runner: &fakeRunner{}}
	_, err := ex.Execute(context.Background(), "ghost", nil, Options{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestExecuteLocalFailure(t *testing.T) {
	s := newTestStore(t)
	sc := seedScript(t, s)
	seedBuild(t, s, sc.ID, "img", nil)

	ex := &Executor{Store: s, Runner: &fakeRunner{err: errors.New("exit status 1")}}
	run, err := ex.Execute(context.Background(), sc.ID, nil, Options{})
	require.ErrorIs(t, err, ErrExecutionFailed)
	require.NotNil(t, run)
	assert.Equal(t, store.RunFailure, run.Status)
	assert.Nil(t, run.CompletedAt)
}

func TestExecuteRemoteSuccess(t *testing.T) {
	s := newTestStore(t)
	sc := seedScript(t, s)
	seedBuild(t, s, sc.ID, "img", intSpec)

	remote := &fakeRemote{}
	ex := &Executor{
		Store: s, Launcher: remote, Logs: remote,
		PollBudget: 2 * time.Second, PollInterval: 10 * time.Millisecond,
	}

	run, err := ex.Execute(context.Background(), sc.ID, map[string]any{"n": 1}, Options{ScheduleID: "sch1"})
	require.NoError(t, err)
	assert.Equal(t, store.RunSuccess, run.Status)
	assert.JSONEq(t, `{"result": 42, "uuid": "`+remote.token+`"}`, run.Output)
	assert.Equal(t, "sch1", run.ScheduleID)

	// command is runtime, shim, params JSON, correlation token
	require.Len(t, remote.gotCommand, 4)
	assert.Equal(t, "python3", remote.gotCommand[0])
	assert.Equal(t, "shim.py", remote.gotCommand[1])
	assert.NotEmpty(t, remote.token)
	assert.NotEqual(t, run.ID, remote.token)
}

func TestExecuteRemotePollTimeoutFailsRun(t *testing.T) {
	s := newTestStore(t)
	sc := seedScript(t, s)
	seedBuild(t, s, sc.ID, "img", nil)

	remote := &fakeRemote{silent: true}
	ex := &Executor{
		Store: s, Launcher: remote, Logs: remote,
		PollBudget: 50 * time.Millisecond, PollInterval: 10 * time.Millisecond,
	}

	// a timeout is a failed run with empty output, not a transport error
	run, err := ex.Execute(context.Background(), sc.ID, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, store.RunFailure, run.Status)
	assert.Empty(t, run.Output)
}

func TestExecuteRemoteLaunchFailure(t *testing.T) {
	s := newTestStore(t)
	sc := seedScript(t, s)
	seedBuild(t, s, sc.ID, "img", nil)

	remote := &fakeRemote{launchErr: errors.New("no capacity")}
	ex := &Executor{Store: s, Launcher: remote, Logs: remote}

	run, err := ex.Execute(context.Background(), sc.ID, nil, Options{})
	require.ErrorIs(t, err, ErrExecutionFailed)
	require.NotNil(t, run)
	assert.Equal(t, store.RunFailure, run.Status)
}

func TestLateResultDoesNotResurrectRun(t *testing.T) {
	s := newTestStore(t)
	sc := seedScript(t, s)
	seedBuild(t, s, sc.ID, "img", nil)

	remote := &fakeRemote{silent: true}
	ex := &Executor{
		Store: s, Launcher: remote, Logs: remote,
		PollBudget: 30 * time.Millisecond, PollInterval: 10 * time.Millisecond,
	}

	run, err := ex.Execute(context.Background(), sc.ID, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, store.RunFailure, run.Status)

	// simulate the poll match arriving after the timeout already failed
	// the run: the guarded write must be a no-op
	wrote, err := s.CompleteRun(context.Background(), run.ID, store.RunSuccess, `{"result": 1}`)
	require.NoError(t, err)
	assert.False(t, wrote)

	got, err := s.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunFailure, got.Status)
}
