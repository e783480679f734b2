package scheduler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villagehq/village/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenStore("sqlite", filepath.Join(t.TempDir(), "village.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJobID(t *testing.T) {
	assert.Equal(t, "village-schedule-abc", JobID("abc"))
}

func TestRegisterPersistsJob(t *testing.T) {
	st := newTestStore(t)
	s := NewCronScheduler(st, "http://localhost:0/schedule/run")
	defer s.Stop()

	payload := Payload{ScheduleID: "sch1", Token: "secret"}
	require.NoError(t, s.Register(context.Background(), "job1", "0 2 * * *", payload))

	jobs, err := st.ListCronJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job1", jobs[0].JobID)
	assert.Equal(t, "0 2 * * *", jobs[0].CronSpec)

	var persisted Payload
	require.NoError(t, json.Unmarshal([]byte(jobs[0].Payload), &persisted))
	assert.Equal(t, payload, persisted)
}

func TestRegisterReplacesExisting(t *testing.T) {
	st := newTestStore(t)
	s := NewCronScheduler(st, "http://localhost:0/schedule/run")
	defer s.Stop()

	ctx := context.Background()
	require.NoError(t, s.Register(ctx, "job1", "0 2 * * *", Payload{ScheduleID: "sch1", Token: "t1"}))
	require.NoError(t, s.Register(ctx, "job1", "0 3 * * *", Payload{ScheduleID: "sch1", Token: "t2"}))

	jobs, err := st.ListCronJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "0 3 * * *", jobs[0].CronSpec)
	assert.Len(t, s.entries, 1)
}

func TestRegisterRejectsBadCronExpr(t *testing.T) {
	st := newTestStore(t)
	s := NewCronScheduler(st, "http://localhost:0/schedule/run")
	defer s.Stop()

	err := s.Register(context.Background(), "job1", "not a cron expr", Payload{ScheduleID: "sch1"})
	require.Error(t, err)

	jobs, err := st.ListCronJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestDeregister(t *testing.T) {
	st := newTestStore(t)
	s := NewCronScheduler(st, "http://localhost:0/schedule/run")
	defer s.Stop()

	ctx := context.Background()
	require.NoError(t, s.Register(ctx, "job1", "0 2 * * *", Payload{ScheduleID: "sch1"}))
	require.NoError(t, s.Deregister(ctx, "job1"))

	jobs, err := st.ListCronJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Empty(t, s.entries)

	// deregistering an unknown job is not an error
	require.NoError(t, s.Deregister(ctx, "ghost"))
}

func TestReloadRestoresRegistrations(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := NewCronScheduler(st, "http://localhost:0/schedule/run")
	require.NoError(t, first.Register(ctx, "job1", "0 2 * * *", Payload{ScheduleID: "sch1", Token: "t"}))
	require.NoError(t, first.Register(ctx, "job2", "30 6 * * 1", Payload{ScheduleID: "sch2", Token: "t"}))
	first.Stop()

	// a fresh process picks the registry back up
	second := NewCronScheduler(st, "http://localhost:0/schedule/run")
	defer second.Stop()
	second.Reload(ctx)
	assert.Len(t, second.entries, 2)
	assert.Contains(t, second.entries, "job1")
	assert.Contains(t, second.entries, "job2")
}

func TestTriggerPostsPayload(t *testing.T) {
	var got Payload
	received := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		close(received)
	}))
	defer ts.Close()

	st := newTestStore(t)
	s := NewCronScheduler(st, ts.URL)
	defer s.Stop()

	payload := Payload{ScheduleID: "sch1", Token: "secret"}
	s.trigger(payload)

	<-received
	assert.Equal(t, payload, got)
}
