// Package server exposes the HTTP surface: script registration and
// builds, run execution, schedule management and the trigger endpoint
// durable schedulers call on each tick.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/villagehq/village/builder"
	"github.com/villagehq/village/engine"
	"github.com/villagehq/village/executor"
	"github.com/villagehq/village/manifest"
	"github.com/villagehq/village/params"
	"github.com/villagehq/village/scheduler"
	"github.com/villagehq/village/store"
)

// maxContextSize bounds uploaded build contexts (64 MiB).
const maxContextSize = 64 << 20

type Server struct {
	store     *store.Store
	builder   *builder.Builder
	executor  *executor.Executor
	registrar scheduler.Registrar
	mux       *http.ServeMux
}

func New(st *store.Store, b *builder.Builder, ex *executor.Executor, reg scheduler.Registrar) *Server {
	s := &Server{store: st, builder: b, executor: ex, registrar: reg, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.HandleFunc("POST /script/create", s.handleCreateScript)
	s.mux.HandleFunc("POST /script/update", s.handleUpdateScript)
	s.mux.HandleFunc("GET /script/get", s.handleGetScript)
	s.mux.HandleFunc("GET /script/list", s.handleListScripts)
	s.mux.HandleFunc("DELETE /script/delete", s.handleDeleteScript)
	s.mux.HandleFunc("GET /scripts/propose_id", s.handleProposeScriptID)
	s.mux.HandleFunc("GET /scripts/check_id", s.handleCheckScriptID)

	s.mux.HandleFunc("POST /script/build", s.handleBuildScript)
	s.mux.HandleFunc("POST /script/run", s.handleRunScript)
	s.mux.HandleFunc("GET /script/builds", s.handleListBuilds)
	s.mux.HandleFunc("GET /script/runs", s.handleListRuns)
	s.mux.HandleFunc("GET /script/schedules", s.handleListSchedules)

	s.mux.HandleFunc("GET /build/get", s.handleGetBuild)
	s.mux.HandleFunc("GET /run/get", s.handleGetRun)

	s.mux.HandleFunc("POST /schedule/create", s.handleCreateSchedule)
	s.mux.HandleFunc("POST /schedule/update", s.handleUpdateSchedule)
	s.mux.HandleFunc("DELETE /schedule/delete", s.handleDeleteSchedule)
	s.mux.HandleFunc("POST /schedule/run", s.handleTriggerSchedule)
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, errorResponse{Detail: detail})
}

// writeDomainError maps domain errors onto the documented status codes:
// 400 for input errors, 404 for missing entities, 500 for backend
// failures.
func writeDomainError(w http.ResponseWriter, err error) {
	var validationErr *params.ValidationError
	switch {
	case errors.As(err, &validationErr),
		errors.Is(err, manifest.ErrManifestMissing),
		errors.Is(err, manifest.ErrManifestInvalid),
		errors.Is(err, engine.ErrUnsupported),
		errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, executor.ErrNoEligibleBuild):
		writeError(w, http.StatusNotFound, "No builds found")
	case errors.Is(err, builder.ErrBuildFailed):
		writeError(w, http.StatusInternalServerError, "Build failed")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// callerID is the interactive creator identity forwarded by the identity
// layer, which sits in front of this service and is out of scope here.
func callerID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}
