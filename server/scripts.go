package server

import (
	"io"
	"net/http"

	"github.com/villagehq/village/engine"
	"github.com/villagehq/village/executor"
	"github.com/villagehq/village/store"
)

type createScriptInput struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	WorkspaceID   string `json:"workspace_id"`
	Engine        string `json:"engine"`
	EngineVersion string `json:"engine_version"`
}

func (s *Server) handleCreateScript(w http.ResponseWriter, r *http.Request) {
	var in createScriptInput
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Name == "" || in.WorkspaceID == "" || in.EngineVersion == "" {
		writeError(w, http.StatusBadRequest, "name, workspace_id and engine_version are required")
		return
	}
	eng, err := engine.Parse(in.Engine)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	id := in.ID
	if id == "" {
		id, err = s.store.ProposeScriptID(r.Context(), in.Name)
		if err != nil {
			writeDomainError(w, err)
			return
		}
	}

	script := &store.Script{
		ID:            id,
		Name:          in.Name,
		Description:   in.Description,
		Engine:        eng,
		EngineVersion: in.EngineVersion,
		WorkspaceID:   in.WorkspaceID,
		CreatorID:     callerID(r),
	}
	if err := s.store.CreateScript(r.Context(), script); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, script)
}

type updateScriptInput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleUpdateScript(w http.ResponseWriter, r *http.Request) {
	var in updateScriptInput
	if !decodeBody(w, r, &in) {
		return
	}
	script, err := s.store.GetScript(r.Context(), in.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if in.Name == "" {
		in.Name = script.Name
	}
	if in.Description == "" {
		in.Description = script.Description
	}
	if err := s.store.UpdateScriptMeta(r.Context(), in.ID, in.Name, in.Description); err != nil {
		writeDomainError(w, err)
		return
	}
	script, err = s.store.GetScript(r.Context(), in.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, script)
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	script, err := s.store.GetScript(r.Context(), r.URL.Query().Get("script_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, script)
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := s.store.ListScripts(r.Context(), r.URL.Query().Get("workspace_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if scripts == nil {
		scripts = []store.Script{}
	}
	writeJSON(w, http.StatusOK, scripts)
}

// handleDeleteScript cascades: durable cron registrations go first so no
// orphaned tick can fire for a schedule whose script is gone.
func (s *Server) handleDeleteScript(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("script_id")
	schedules, err := s.store.ListSchedules(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	for _, sch := range schedules {
		if err := s.deregister(r, sch.ID); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	if err := s.store.DeleteScript(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleProposeScriptID(w http.ResponseWriter, r *http.Request) {
	id, err := s.store.ProposeScriptID(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (s *Server) handleCheckScriptID(w http.ResponseWriter, r *http.Request) {
	free, err := s.store.ScriptIDAvailable(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, free)
}

func (s *Server) handleBuildScript(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxContextSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	scriptID := r.FormValue("script_id")
	script, err := s.store.GetScript(r.Context(), scriptID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	file, _, err := r.FormFile("context")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing build context")
		return
	}
	defer file.Close()
	archive, err := io.ReadAll(io.LimitReader(file, maxContextSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable build context")
		return
	}

	build, err := s.builder.Build(r.Context(), script, archive)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, build)
}

type runScriptInput struct {
	ScriptID string         `json:"script_id"`
	Params   map[string]any `json:"params"`
}

func (s *Server) handleRunScript(w http.ResponseWriter, r *http.Request) {
	var in runScriptInput
	if !decodeBody(w, r, &in) {
		return
	}
	run, err := s.executor.Execute(r.Context(), in.ScriptID, in.Params, executor.Options{CreatorID: callerID(r)})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	builds, err := s.store.ListBuilds(r.Context(), r.URL.Query().Get("script_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if builds == nil {
		builds = []store.Build{}
	}
	writeJSON(w, http.StatusOK, builds)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), r.URL.Query().Get("script_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	build, err := s.store.GetBuild(r.Context(), r.URL.Query().Get("build_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, build)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), r.URL.Query().Get("run_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
