package web

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"hawkview/internal/tenant"
)

// requireTenant rejects view requests until a persona is loaded.
func (s *Server) requireTenant(w http.ResponseWriter) bool {
	if _, err := s.tenants.ID(); err != nil {
		s.fail(w, err)
		return false
	}
	return true
}

func (s *Server) handleOpenJVM(w http.ResponseWriter, r *http.Request) {
	if !s.requireTenant(w) {
		return
	}
	v, created := s.views.OpenJVM(mux.Vars(r)["resourceId"])
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, v.State())
}

func (s *Server) handleGetJVM(w http.ResponseWriter, r *http.Request) {
	v, ok := s.views.JVM(mux.Vars(r)["resourceId"])
	if !ok {
		writeError(w, http.StatusNotFound, "view not open")
		return
	}
	writeJSON(w, http.StatusOK, v.State())
}

func (s *Server) handleCloseJVM(w http.ResponseWriter, r *http.Request) {
	if !s.views.CloseJVM(mux.Vars(r)["resourceId"]) {
		writeError(w, http.StatusNotFound, "view not open")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rangeRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s *Server) handlePinJVM(w http.ResponseWriter, r *http.Request) {
	v, ok := s.views.JVM(mux.Vars(r)["resourceId"])
	if !ok {
		writeError(w, http.StatusNotFound, "view not open")
		return
	}
	var in rangeRequest
	if !decode(w, r, &in) {
		return
	}
	if !v.PinRange(r.Context(), in.Start, in.End) {
		writeError(w, http.StatusBadRequest, "start must be before end")
		return
	}
	writeJSON(w, http.StatusAccepted, v.State())
}

func (s *Server) handleUnpinJVM(w http.ResponseWriter, r *http.Request) {
	v, ok := s.views.JVM(mux.Vars(r)["resourceId"])
	if !ok {
		writeError(w, http.StatusNotFound, "view not open")
		return
	}
	v.Unpin(r.Context())
	writeJSON(w, http.StatusAccepted, v.State())
}

func (s *Server) handleToggleSeries(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	v, ok := s.views.JVM(vars["resourceId"])
	if !ok {
		writeError(w, http.StatusNotFound, "view not open")
		return
	}
	enabled, err := v.Toggle(vars["name"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": vars["name"], "enabled": enabled})
}

func (s *Server) handleRefreshJVM(w http.ResponseWriter, r *http.Request) {
	v, ok := s.views.JVM(mux.Vars(r)["resourceId"])
	if !ok {
		writeError(w, http.StatusNotFound, "view not open")
		return
	}
	v.Refresh(r.Context())
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleOpenConsole(w http.ResponseWriter, r *http.Request) {
	if !s.requireTenant(w) {
		return
	}
	v, created := s.views.OpenConsole(mux.Vars(r)["resourceId"])
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, v.Page())
}

func (s *Server) handleGetConsole(w http.ResponseWriter, r *http.Request) {
	v, ok := s.views.Console(mux.Vars(r)["resourceId"])
	if !ok {
		writeError(w, http.StatusNotFound, "view not open")
		return
	}
	writeJSON(w, http.StatusOK, v.Page())
}

func (s *Server) handleCloseConsole(w http.ResponseWriter, r *http.Request) {
	if !s.views.CloseConsole(mux.Vars(r)["resourceId"]) {
		writeError(w, http.StatusNotFound, "view not open")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConsolePage(w http.ResponseWriter, r *http.Request) {
	v, ok := s.views.Console(mux.Vars(r)["resourceId"])
	if !ok {
		writeError(w, http.StatusNotFound, "view not open")
		return
	}
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	if err := v.SetPage(r.Context(), page); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	v, ok := s.views.Console(mux.Vars(r)["resourceId"])
	if !ok {
		writeError(w, http.StatusNotFound, "view not open")
		return
	}
	if err := v.Resolve(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Page())
}

func (s *Server) handleRefreshConsole(w http.ResponseWriter, r *http.Request) {
	v, ok := s.views.Console(mux.Vars(r)["resourceId"])
	if !ok {
		writeError(w, http.StatusNotFound, "view not open")
		return
	}
	v.Refresh(r.Context())
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	if _, err := s.tenants.ID(); err != nil {
		writeError(w, http.StatusConflict, tenant.ErrNoTenant.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.views.Servers().List())
}

func (s *Server) handleServersPage(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	if err := s.views.Servers().SetPage(r.Context(), page); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRefreshServers(w http.ResponseWriter, r *http.Request) {
	s.views.Servers().Refresh(r.Context())
	w.WriteHeader(http.StatusAccepted)
}
