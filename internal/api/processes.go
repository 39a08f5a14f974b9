package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/astrobridge/internal/equipment"
	"github.com/nerrad567/astrobridge/internal/process"
)

// maxQueryParamLen limits query parameter length to prevent DoS via oversized URL params.
const maxQueryParamLen = 100

// createProcessRequest is the body of POST /processes.
type createProcessRequest struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
	Start  bool           `json:"start"`
}

// typeRef is a process type as it appears inside conflict lists.
type typeRef struct {
	Name string `json:"Name"`
}

// conflictDTO is one running process blocking a start.
type conflictDTO struct {
	ProcessID   string  `json:"ProcessId"`
	ProcessType typeRef `json:"ProcessType"`
}

// typeDTO describes one catalog entry.
type typeDTO struct {
	Name          string   `json:"Name"`
	Device        string   `json:"Device"`
	Action        string   `json:"Action"`
	AllowMultiple bool     `json:"AllowMultiple"`
	ConflictsWith []string `json:"ConflictsWith"`
}

func toConflicts(infos []process.Info) []conflictDTO {
	out := make([]conflictDTO, 0, len(infos))
	for _, info := range infos {
		out = append(out, conflictDTO{
			ProcessID:   info.ID,
			ProcessType: typeRef{Name: info.Type.Name()},
		})
	}
	return out
}

// writeConflict writes the 409 body listing the blocking processes.
func writeConflict(w http.ResponseWriter, infos []process.Info) {
	writeJSON(w, http.StatusConflict, map[string]any{"conflicts": toConflicts(infos)})
}

// processID extracts and validates the {id} URL parameter.
func processID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid process ID")
		return "", false
	}
	return id, true
}

// handleListProcesses returns every registered process, oldest first.
func (s *Server) handleListProcesses(w http.ResponseWriter, _ *http.Request) {
	procs := s.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{"processes": procs, "count": len(procs)})
}

// handleCreateProcess registers a process bound to its device command and
// optionally starts it. A start refused by a conflict unregisters the new
// process again.
func (s *Server) handleCreateProcess(w http.ResponseWriter, r *http.Request) {
	var req createProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	t, err := process.ParseType(req.Type)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	id := s.registry.Add(equipment.NewWork(s.commander, t, req.Params), t)
	if req.Start {
		res := s.registry.Start(id)
		if res.Outcome == process.Conflict {
			s.registry.Remove(id)
			if s.metrics != nil {
				s.metrics.IncConflict(t)
			}
			writeConflict(w, res.Conflicts)
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"ProcessId": id,
		"Status":    s.registry.Status(id),
	})
}

// handleListProcessTypes returns the process type catalog.
func (s *Server) handleListProcessTypes(w http.ResponseWriter, _ *http.Request) {
	types := process.Types()
	out := make([]typeDTO, 0, len(types))
	for _, t := range types {
		conflicts := t.Conflicts()
		names := make([]string, 0, len(conflicts))
		for _, c := range conflicts {
			names = append(names, c.Name())
		}
		out = append(out, typeDTO{
			Name:          t.Name(),
			Device:        t.Device(),
			Action:        t.Action(),
			AllowMultiple: t.AllowMultiple(),
			ConflictsWith: names,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": out, "count": len(out)})
}

// handleCheckConflicts reports the running processes that would block a
// process of the given type.
//
// Query parameters:
//   - type: process type name (required)
//   - exclude: process ID to leave out of the check
func (s *Server) handleCheckConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t, err := process.ParseType(q.Get("type"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	exclude := q.Get("exclude")
	if len(exclude) > maxQueryParamLen {
		writeBadRequest(w, "exclude exceeds maximum length")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conflicts": toConflicts(s.registry.CheckForConflicts(t, exclude)),
	})
}

// handleStopAll requests cancellation of every process without waiting.
func (s *Server) handleStopAll(w http.ResponseWriter, _ *http.Request) {
	s.registry.StopAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

// handleGetProcess returns a single process.
func (s *Server) handleGetProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := processID(w, r)
	if !ok {
		return
	}
	p, found := s.registry.Get(id)
	if !found {
		writeNotFound(w, "process not found")
		return
	}
	writeJSON(w, http.StatusOK, p.Info())
}

// handleProcessStatus returns only the lifecycle status.
func (s *Server) handleProcessStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := processID(w, r)
	if !ok {
		return
	}
	status := s.registry.Status(id)
	if status == process.StatusNotFound {
		writeNotFound(w, "process not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ProcessId": id, "Status": status})
}

// handleProcessProgress returns the latest progress snapshot.
func (s *Server) handleProcessProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := processID(w, r)
	if !ok {
		return
	}
	p, found := s.registry.Get(id)
	if !found {
		writeNotFound(w, "process not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ProcessId": id, "Progress": p.Progress()})
}

// handleStartProcess starts a registered process.
func (s *Server) handleStartProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := processID(w, r)
	if !ok {
		return
	}

	res := s.registry.Start(id)
	switch res.Outcome {
	case process.Started, process.AlreadyRunning:
		writeJSON(w, http.StatusOK, map[string]any{
			"ProcessId": id,
			"Outcome":   res.Outcome.String(),
			"Status":    s.registry.Status(id),
		})
	case process.Conflict:
		if s.metrics != nil {
			if p, found := s.registry.Get(id); found {
				s.metrics.IncConflict(p.Type())
			}
		}
		writeConflict(w, res.Conflicts)
	case process.NotFound:
		writeNotFound(w, "process not found")
	default:
		writeInternalError(w, "unexpected start outcome")
	}
}

// handleStopProcess requests cancellation of a process.
func (s *Server) handleStopProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := processID(w, r)
	if !ok {
		return
	}
	if !s.registry.Stop(id) {
		writeNotFound(w, "process not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ProcessId": id, "Status": s.registry.Status(id)})
}

// handleRemoveProcess stops a process and unregisters it.
func (s *Server) handleRemoveProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := processID(w, r)
	if !ok {
		return
	}
	s.registry.Stop(id)
	if !s.registry.Remove(id) {
		writeNotFound(w, "process not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ProcessId": id, "Removed": true})
}
