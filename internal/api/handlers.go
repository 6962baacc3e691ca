package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/plc-core/internal/controller"
	"github.com/nerrad567/plc-core/internal/dimmer"
	"github.com/nerrad567/plc-core/internal/universe"
)

var errInvalidChannel = errors.New("api: invalid channel")

// ApplyRequest is the body of POST /apply and the payload of a WebSocket
// "apply" message. Levels maps channel numbers to device levels (0-255).
type ApplyRequest struct {
	Kind   string      `json:"kind"`
	Levels map[int]int `json:"levels,omitempty"`
	ID     string      `json:"id,omitempty"`
	Level  *float64    `json:"level,omitempty"`
}

func (a ApplyRequest) toUpdate() (controller.Update, error) {
	u := controller.Update{
		Kind:  controller.UpdateKind(a.Kind),
		ID:    a.ID,
		Level: a.Level,
	}
	if len(a.Levels) == 0 {
		return u, nil
	}
	u.Dimmers = make(dimmer.Levels, len(a.Levels))
	for ch, v := range a.Levels {
		if ch < 1 || ch > universe.MaxChannels {
			return u, fmt.Errorf("%w: %d", errInvalidChannel, ch)
		}
		if err := dimmer.ValidateDevice(v); err != nil {
			return u, fmt.Errorf("channel %d: %w", ch, err)
		}
		u.Dimmers[ch] = uint8(v)
	}
	return u, nil
}

// handleGetUniverse returns the computed universe levels.
func (s *Server) handleGetUniverse(w http.ResponseWriter, r *http.Request) {
	levels, err := s.ctrl.UniverseState(r.Context())
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"levels": levels})
}

// handleApply applies an update and returns the resulting levels.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	u, err := req.toUpdate()
	if err != nil {
		writeControllerError(w, err)
		return
	}
	if err := s.ctrl.ApplyUpdate(r.Context(), u); err != nil {
		writeControllerError(w, err)
		return
	}
	s.handleGetUniverse(w, r)
}

// handleExportRegistry returns a full registry export as an opaque blob.
func (s *Server) handleExportRegistry(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return
	}
	data, err := s.ctrl.ExportRegistry(r.Context(), kind.RegistryName())
	if err != nil {
		writeControllerError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(data)
}

// handleImportEntity merges a single exported entity blob.
func (s *Server) handleImportEntity(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading body: "+err.Error())
		return
	}
	id, err := s.ctrl.ImportEntity(r.Context(), kind, data)
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// handleCreateEntity creates an empty entity under the id in the path.
func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.ctrl.Create(r.Context(), kind, id); err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handleDeleteEntity removes an entity. Unknown ids succeed.
func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return
	}
	if err := s.ctrl.Delete(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
		writeControllerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePersistCueDefaults freezes the current defaults into a cue.
func (s *Server) handlePersistCueDefaults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.ctrl.PersistCueDefaults(r.Context(), id); err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) kindParam(w http.ResponseWriter, r *http.Request) (dimmer.Kind, bool) {
	name := chi.URLParam(r, "name")
	kind, err := dimmer.ParseKind(name)
	if err != nil {
		writeNotFound(w, "unknown registry: "+name)
		return "", false
	}
	return kind, true
}
