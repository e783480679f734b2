// Package scheduler issues and verifies schedule trigger secrets and
// keeps durable cron registrations in sync with schedule records.
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/villagehq/village/store"
)

// Payload is what the durable scheduler posts to the trigger endpoint on
// each tick.
type Payload struct {
	ScheduleID string `json:"schedule_id"`
	Token      string `json:"token"`
}

// Registrar is the durable scheduler capability: register or remove a
// cron job that calls the trigger endpoint with the payload.
type Registrar interface {
	Register(ctx context.Context, jobID, cronExpr string, payload Payload) error
	Deregister(ctx context.Context, jobID string) error
}

// CronScheduler is the local durable implementation: an in-process cron
// runner whose registrations live in the store, reloaded at boot. Its
// registry table stands in for the external scheduler's own storage, so
// keeping the payload there mirrors what a hosted scheduler would do.
type CronScheduler struct {
	mu         sync.Mutex
	cron       *cron.Cron
	entries    map[string]cron.EntryID
	store      *store.Store
	triggerURL string
	client     *http.Client
}

func NewCronScheduler(st *store.Store, triggerURL string) *CronScheduler {
	c := cron.New()
	c.Start()
	return &CronScheduler{
		cron:       c,
		entries:    map[string]cron.EntryID{},
		store:      st,
		triggerURL: triggerURL,
		client:     &http.Client{Timeout: 150 * time.Second},
	}
}

// Register adds (or replaces) the cron entry and persists the
// registration so it survives restarts.
func (s *CronScheduler) Register(ctx context.Context, jobID, cronExpr string, payload Payload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := s.add(jobID, cronExpr, payload); err != nil {
		return err
	}
	if err := s.store.UpsertCronJob(ctx, store.CronJob{JobID: jobID, CronSpec: cronExpr, Payload: string(raw)}); err != nil {
		s.remove(jobID)
		return err
	}
	return nil
}

func (s *CronScheduler) Deregister(ctx context.Context, jobID string) error {
	s.remove(jobID)
	return s.store.DeleteCronJob(ctx, jobID)
}

// Reload restores persisted registrations at startup.
func (s *CronScheduler) Reload(ctx context.Context) {
	jobs, err := s.store.ListCronJobs(ctx)
	if err != nil {
		log.Printf("scheduler reload failed: %v", err)
		return
	}
	for _, j := range jobs {
		var payload Payload
		if err := json.Unmarshal([]byte(j.Payload), &payload); err != nil {
			log.Printf("scheduler: bad payload for %s: %v", j.JobID, err)
			continue
		}
		if err := s.add(j.JobID, j.CronSpec, payload); err != nil {
			log.Printf("failed to restore schedule for %s: %v", j.JobID, err)
		}
	}
}

func (s *CronScheduler) Stop() {
	s.cron.Stop()
}

func (s *CronScheduler) add(jobID, cronExpr string, payload Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[jobID]; ok {
		s.cron.Remove(id)
		delete(s.entries, jobID)
	}
	id, err := s.cron.AddFunc(cronExpr, func() { s.trigger(payload) })
	if err != nil {
		return err
	}
	s.entries[jobID] = id
	return nil
}

func (s *CronScheduler) remove(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[jobID]; ok {
		s.cron.Remove(id)
		delete(s.entries, jobID)
	}
}

// trigger posts the payload to the trigger endpoint, exactly like a
// hosted scheduler would on a tick.
func (s *CronScheduler) trigger(payload Payload) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("scheduler: marshal payload for %s: %v", payload.ScheduleID, err)
		return
	}
	resp, err := s.client.Post(s.triggerURL, "application/json", bytes.NewReader(raw))
	if err != nil {
		log.Printf("scheduler: trigger %s failed: %v", payload.ScheduleID, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("scheduler: trigger %s returned %s", payload.ScheduleID, resp.Status)
	}
}

// JobID names the durable registration for a schedule.
func JobID(scheduleID string) string {
	return fmt.Sprintf("village-schedule-%s", scheduleID)
}
