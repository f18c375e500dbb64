// Package web serves the JSON API over the live views, the trigger edit
// sessions and the publish-event stream.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"hawkview/internal/alerts"
	"hawkview/internal/hawkular"
	"hawkview/internal/instrument"
	"hawkview/internal/models"
	"hawkview/internal/notifier"
	"hawkview/internal/stream"
	"hawkview/internal/tenant"
	"hawkview/internal/triggers"
	"hawkview/internal/views"
)

// Store is the notification journal and settings storage.
type Store interface {
	RecentNotifications(ctx context.Context, source string, limit int) ([]models.Notification, error)
	SaveTelegramSettings(ctx context.Context, token, chatID string) error
}

type PersonaService interface {
	Personas(ctx context.Context) ([]models.Persona, error)
	SwitchTo(ctx context.Context, id string) (models.Persona, error)
}

// Check is one readiness check.
type Check func(ctx context.Context) error

type Options struct {
	Views          *views.Registry
	Editors        *triggers.Registry
	Sessions       *triggers.Sessions
	Tenants        *tenant.Context
	Personas       PersonaService
	Store          Store
	Telegram       *notifier.Telegram
	Hub            *stream.Hub
	Metrics        *instrument.Metrics
	Gatherer       prometheus.Gatherer
	Checks         map[string]Check
	AllowedOrigins []string
	Logger         *slog.Logger
}

type Server struct {
	views    *views.Registry
	editors  *triggers.Registry
	sessions *triggers.Sessions
	tenants  *tenant.Context
	personas PersonaService
	store    Store
	telegram *notifier.Telegram
	hub      *stream.Hub
	metrics  *instrument.Metrics
	gatherer prometheus.Gatherer
	checks   map[string]Check
	origins  []string
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(o Options) *Server {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Gatherer == nil {
		o.Gatherer = prometheus.DefaultGatherer
	}
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		views:    o.Views,
		editors:  o.Editors,
		sessions: o.Sessions,
		tenants:  o.Tenants,
		personas: o.Personas,
		store:    o.Store,
		telegram: o.Telegram,
		hub:      o.Hub,
		metrics:  o.Metrics,
		gatherer: o.Gatherer,
		checks:   o.Checks,
		origins:  o.AllowedOrigins,
		log:      o.Logger.With("module", "web"),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	if o.Sessions != nil && o.Tenants != nil {
		// Edit sessions are bound to the tenant they were opened for.
		o.Tenants.Subscribe(func(p models.Persona) {
			s.log.Info("tenant changed, closing edit sessions", "tenant", p.ID, "sessions", o.Sessions.Len())
			o.Sessions.CloseAll()
		})
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/tenant", s.handleTenant).Methods(http.MethodGet)
	api.HandleFunc("/tenant/{id}", s.handleSwitchTenant).Methods(http.MethodPut)
	api.HandleFunc("/personas", s.handlePersonas).Methods(http.MethodGet)

	api.HandleFunc("/jvm/{resourceId}", s.handleOpenJVM).Methods(http.MethodPost)
	api.HandleFunc("/jvm/{resourceId}", s.handleGetJVM).Methods(http.MethodGet)
	api.HandleFunc("/jvm/{resourceId}", s.handleCloseJVM).Methods(http.MethodDelete)
	api.HandleFunc("/jvm/{resourceId}/range", s.handlePinJVM).Methods(http.MethodPut)
	api.HandleFunc("/jvm/{resourceId}/range", s.handleUnpinJVM).Methods(http.MethodDelete)
	api.HandleFunc("/jvm/{resourceId}/series/{name}/toggle", s.handleToggleSeries).Methods(http.MethodPost)
	api.HandleFunc("/jvm/{resourceId}/refresh", s.handleRefreshJVM).Methods(http.MethodPost)

	api.HandleFunc("/alerts/{resourceId}", s.handleOpenConsole).Methods(http.MethodPost)
	api.HandleFunc("/alerts/{resourceId}", s.handleGetConsole).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{resourceId}", s.handleCloseConsole).Methods(http.MethodDelete)
	api.HandleFunc("/alerts/{resourceId}/page/{page}", s.handleConsolePage).Methods(http.MethodPut)
	api.HandleFunc("/alerts/{resourceId}/resolve", s.handleResolve).Methods(http.MethodPost)
	api.HandleFunc("/alerts/{resourceId}/refresh", s.handleRefreshConsole).Methods(http.MethodPost)

	api.HandleFunc("/servers", s.handleServers).Methods(http.MethodGet)
	api.HandleFunc("/servers/page/{page}", s.handleServersPage).Methods(http.MethodPut)
	api.HandleFunc("/servers/refresh", s.handleRefreshServers).Methods(http.MethodPost)

	api.HandleFunc("/triggers", s.handleOpenTrigger).Methods(http.MethodPost)
	api.HandleFunc("/triggers/{session}", s.handleGetTrigger).Methods(http.MethodGet)
	api.HandleFunc("/triggers/{session}", s.handlePatchTrigger).Methods(http.MethodPatch)
	api.HandleFunc("/triggers/{session}", s.handleCloseTrigger).Methods(http.MethodDelete)
	api.HandleFunc("/triggers/{session}/reload", s.handleReloadTrigger).Methods(http.MethodPost)
	api.HandleFunc("/triggers/{session}/save", s.handleSaveTrigger).Methods(http.MethodPost)

	api.HandleFunc("/notifications", s.handleNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/test", s.handleTestTelegram).Methods(http.MethodPost)
	api.HandleFunc("/settings/telegram", s.handleSettingsTelegram).Methods(http.MethodPut)
	api.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)

	r.Use(s.recoverMiddleware)
	r.Use(s.logMiddleware)

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return otelhttp.NewHandler(c.Handler(r), "hawkview.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(s.origins, "*") {
		return true
	}
	return slices.Contains(s.origins, origin)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.log.Warn("readiness check failed", "check", name, "err", err)
			http.Error(w, name+" not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleTenant(w http.ResponseWriter, r *http.Request) {
	p, ok := s.tenants.Current()
	if !ok {
		writeError(w, http.StatusNotFound, tenant.ErrNoTenant.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSwitchTenant(w http.ResponseWriter, r *http.Request) {
	p, err := s.personas.SwitchTo(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePersonas(w http.ResponseWriter, r *http.Request) {
	list, err := s.personas.Personas(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	list, err := s.store.RecentNotifications(r.Context(), r.URL.Query().Get("source"), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

type telegramSettings struct {
	Token  string `json:"token"`
	ChatID string `json:"chatId"`
}

func (s *Server) handleSettingsTelegram(w http.ResponseWriter, r *http.Request) {
	var in telegramSettings
	if !decode(w, r, &in) {
		return
	}
	if err := s.store.SaveTelegramSettings(r.Context(), in.Token, in.ChatID); err != nil {
		s.fail(w, err)
		return
	}
	s.telegram.Update(in.Token, in.ChatID)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.telegram.Enabled()})
}

func (s *Server) handleTestTelegram(w http.ResponseWriter, r *http.Request) {
	if err := s.telegram.Send(r.Context(), "hawkview test notification: Telegram integration is working"); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = stream.AllTopics
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	client := stream.NewClient(conn, s.log)
	s.hub.Register(topic, client)
	go func() {
		defer func() {
			s.hub.Unregister(topic, client)
			client.Close()
		}()
		client.Drain()
	}()
}

// fail maps err to a status code and writes it.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var apiErr *hawkular.APIError
	switch {
	case errors.Is(err, tenant.ErrNoTenant),
		errors.Is(err, alerts.ErrNothingToResolve),
		errors.Is(err, triggers.ErrNothingToSave),
		errors.Is(err, triggers.ErrSessionClosed),
		errors.Is(err, triggers.ErrNotLoaded),
		errors.Is(err, triggers.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, tenant.ErrUnknownPersona):
		status = http.StatusNotFound
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "err", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func pageParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	page, err := strconv.Atoi(mux.Vars(r)["page"])
	if err != nil || page < 0 {
		writeError(w, http.StatusBadRequest, "page must be a non-negative integer")
		return 0, false
	}
	return page, true
}
