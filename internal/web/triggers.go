package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"hawkview/internal/models"
	"hawkview/internal/triggers"
)

type openTriggerRequest struct {
	Kind       models.TriggerKind `json:"kind"`
	ResourceID string             `json:"resourceId,omitempty"`
	TriggerID  string             `json:"triggerId,omitempty"`
}

func (s *Server) handleOpenTrigger(w http.ResponseWriter, r *http.Request) {
	var in openTriggerRequest
	if !decode(w, r, &in) {
		return
	}
	if !s.editors.Supports(in.Kind) {
		writeError(w, http.StatusBadRequest, "unsupported trigger kind "+string(in.Kind))
		return
	}
	key := in.ResourceID
	if in.Kind == models.KindEvent {
		key = in.TriggerID
	}
	if key == "" {
		writeError(w, http.StatusBadRequest, "resourceId or triggerId is required")
		return
	}
	tenantID, err := s.tenants.ID()
	if err != nil {
		s.fail(w, err)
		return
	}
	sess := s.editors.Open(r.Context(), in.Kind, tenantID, key)
	s.sessions.Add(sess)
	writeJSON(w, http.StatusCreated, sess.View())
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (triggers.Session, bool) {
	sess, ok := s.sessions.Get(mux.Vars(r)["session"])
	if !ok {
		writeError(w, http.StatusNotFound, "edit session not found")
	}
	return sess, ok
}

func (s *Server) handleGetTrigger(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handlePatchTrigger(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var raw json.RawMessage
	if !decode(w, r, &raw) {
		return
	}
	if _, err := sess.Patch(raw); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleCloseTrigger(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Remove(mux.Vars(r)["session"]) {
		writeError(w, http.StatusNotFound, "edit session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReloadTrigger(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Reload(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.View())
}

// handleSaveTrigger answers with the session view either way; a failed
// backend update carries its notification in the view.
func (s *Server) handleSaveTrigger(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	switch err := sess.Save(r.Context()); {
	case err == nil:
		writeJSON(w, http.StatusOK, sess.View())
	case errors.Is(err, triggers.ErrSessionClosed),
		errors.Is(err, triggers.ErrNothingToSave),
		errors.Is(err, triggers.ErrNotLoaded),
		errors.Is(err, triggers.ErrBusy):
		s.fail(w, err)
	default:
		writeJSON(w, http.StatusBadGateway, sess.View())
	}
}
