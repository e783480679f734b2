package server

import (
	"log"
	"net/http"

	"github.com/villagehq/village/executor"
	"github.com/villagehq/village/scheduler"
	"github.com/villagehq/village/store"
)

type createScheduleInput struct {
	ScriptID    string            `json:"script_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Params      map[string]string `json:"params"`
	Minute      string            `json:"minute"`
	Hour        string            `json:"hour"`
	DayOfMonth  string            `json:"day_of_month"`
	MonthOfYear string            `json:"month_of_year"`
	DayOfWeek   string            `json:"day_of_week"`
}

// handleCreateSchedule mints the trigger secret, persists only its hash
// and hands the plaintext to the durable scheduler as the job payload.
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var in createScheduleInput
	if !decodeBody(w, r, &in) {
		return
	}
	if _, err := s.store.GetScript(r.Context(), in.ScriptID); err != nil {
		writeDomainError(w, err)
		return
	}

	plaintext, hash, err := scheduler.NewToken()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sch := &store.Schedule{
		ScriptID:    in.ScriptID,
		Name:        in.Name,
		Description: in.Description,
		Params:      in.Params,
		Minute:      in.Minute,
		Hour:        in.Hour,
		DayOfMonth:  in.DayOfMonth,
		MonthOfYear: in.MonthOfYear,
		DayOfWeek:   in.DayOfWeek,
		TokenHash:   hash,
		CreatorID:   callerID(r),
	}
	if err := s.store.CreateSchedule(r.Context(), sch); err != nil {
		writeDomainError(w, err)
		return
	}

	payload := scheduler.Payload{ScheduleID: sch.ID, Token: plaintext}
	if err := s.registrar.Register(r.Context(), scheduler.JobID(sch.ID), sch.CronExpr(), payload); err != nil {
		// no schedule without its durable registration
		_ = s.store.DeleteSchedule(r.Context(), sch.ID)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

type updateScheduleInput struct {
	ScheduleID  string            `json:"schedule_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Params      map[string]string `json:"params"`
	Minute      string            `json:"minute"`
	Hour        string            `json:"hour"`
	DayOfMonth  string            `json:"day_of_month"`
	MonthOfYear string            `json:"month_of_year"`
	DayOfWeek   string            `json:"day_of_week"`
}

// handleUpdateSchedule rewrites the schedule and re-issues the durable
// registration. The trigger secret rotates on update: the plaintext is
// never stored, so a new registration needs a new secret.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var in updateScheduleInput
	if !decodeBody(w, r, &in) {
		return
	}
	sch, err := s.store.GetSchedule(r.Context(), in.ScheduleID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	prev := *sch

	plaintext, hash, err := scheduler.NewToken()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sch.Name = in.Name
	sch.Description = in.Description
	if in.Params != nil {
		sch.Params = in.Params
	}
	sch.Minute = in.Minute
	sch.Hour = in.Hour
	sch.DayOfMonth = in.DayOfMonth
	sch.MonthOfYear = in.MonthOfYear
	sch.DayOfWeek = in.DayOfWeek
	sch.TokenHash = hash

	if err := s.store.UpdateSchedule(r.Context(), sch); err != nil {
		writeDomainError(w, err)
		return
	}
	payload := scheduler.Payload{ScheduleID: sch.ID, Token: plaintext}
	if err := s.registrar.Register(r.Context(), scheduler.JobID(sch.ID), sch.CronExpr(), payload); err != nil {
		// the durable job still carries the previous secret; restore the
		// matching hash so its ticks keep verifying
		if rerr := s.store.UpdateSchedule(r.Context(), &prev); rerr != nil {
			log.Printf("server: restoring schedule %s after failed registration: %v", sch.ID, rerr)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("schedule_id")
	if _, err := s.store.GetSchedule(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.deregister(r, id); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.store.DeleteSchedule(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) deregister(r *http.Request, scheduleID string) error {
	return s.registrar.Deregister(r.Context(), scheduler.JobID(scheduleID))
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.store.ListSchedules(r.Context(), r.URL.Query().Get("script_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if schedules == nil {
		schedules = []store.Schedule{}
	}
	writeJSON(w, http.StatusOK, schedules)
}

type triggerInput struct {
	ScheduleID string `json:"schedule_id"`
	Token      string `json:"token"`
}

// handleTriggerSchedule is the endpoint the durable scheduler posts to on
// each tick (and the manual replay path). 404 for an unknown schedule and
// 403 for a bad token are deliberately distinct, matching the public API
// contract; the token check itself is a one-way hash compare.
func (s *Server) handleTriggerSchedule(w http.ResponseWriter, r *http.Request) {
	var in triggerInput
	if !decodeBody(w, r, &in) {
		return
	}

	sch, err := s.store.GetSchedule(r.Context(), in.ScheduleID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !scheduler.VerifyToken(sch.TokenHash, in.Token) {
		writeError(w, http.StatusForbidden, "invalid schedule token")
		return
	}

	values := make(map[string]any, len(sch.Params))
	for k, v := range sch.Params {
		values[k] = v
	}

	run, err := s.executor.Execute(r.Context(), sch.ScriptID, values, executor.Options{ScheduleID: sch.ID})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
