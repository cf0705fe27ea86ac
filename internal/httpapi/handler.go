// Package httpapi is the browser-facing surface of IntSync: the JSON API the
// pages call, the server-rendered page shells and the middleware in front of
// both.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"intsync/internal/backend"
	"intsync/internal/catalog"
	"intsync/internal/models"
	"intsync/internal/steps"
	"intsync/internal/store"
	"intsync/internal/whatsapp"
)

type Handler struct {
	backend      *backend.Client
	store        store.Store
	sequencer    *steps.Sequencer
	whatsapp     *whatsapp.Watcher
	events       steps.Observer
	realtime     http.Handler
	pages        *pages
	logger       zerolog.Logger
	sessionTTL   time.Duration
	cookieSecure bool
}

type Options struct {
	Backend      *backend.Client
	Store        store.Store
	Sequencer    *steps.Sequencer
	WhatsApp     *whatsapp.Watcher
	Events       steps.Observer
	Realtime     http.Handler
	Logger       zerolog.Logger
	SessionTTL   time.Duration
	CookieSecure bool
}

type errorResponse struct {
	RequestID string        `json:"request_id,omitempty"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(opts Options) *Handler {
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Handler{
		backend:      opts.Backend,
		store:        opts.Store,
		sequencer:    opts.Sequencer,
		whatsapp:     opts.WhatsApp,
		events:       opts.Events,
		realtime:     opts.Realtime,
		pages:        newPages(),
		logger:       opts.Logger,
		sessionTTL:   ttl,
		cookieSecure: opts.CookieSecure,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", expvar.Handler())
	r.Handle("/static/*", staticHandler())
	if h.realtime != nil {
		r.Handle("/realtime/*", h.realtime)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/signup", h.handleSignup)
		r.Post("/logout", h.handleLogout)
		r.Get("/me", h.handleMe)
	})

	r.Route("/api/tickets", func(r chi.Router) {
		r.Get("/", h.handleListTickets)
		r.Post("/", h.handleCreateTicket)
		r.Get("/form-options", h.handleFormOptions)
		r.Get("/{id}", h.handleGetTicket)
		r.Delete("/{id}", h.handleDeleteTicket)
		r.Post("/{id}/advance", h.handleAdvanceTicket)
		r.Put("/{id}/steps/{step}", h.handleUpdateStep)
		r.Post("/{id}/close", h.handleCloseTicket)
	})

	mountCatalog[models.Customer](r, h, backend.Customers)
	mountCatalog[models.Vendor](r, h, backend.Vendors)
	mountCatalog[models.Person](r, h, backend.People)
	mountCatalog[models.Attribute](r, h, backend.Attributes)

	r.Get("/api/whatsapp", h.handleWhatsAppStatus)
	r.Post("/api/whatsapp", h.handleWhatsAppAction)
	r.Get("/api/whatsapp/state", h.handleWhatsAppState)

	r.Get("/api/audit", h.handleAudit)

	h.mountPages(r)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	var statusErr *backend.StatusError
	var urlErr *url.Error
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound, "not_found", "resource not found"
	case errors.Is(err, steps.ErrFinalStep):
		return http.StatusConflict, "final_step", "ticket is already at the final step"
	case errors.Is(err, steps.ErrNotFinalStep):
		return http.StatusConflict, "not_final_step", "ticket can only be closed at the final step"
	case errors.Is(err, steps.ErrTicketClosed):
		return http.StatusConflict, "ticket_closed", "ticket is closed"
	case errors.Is(err, steps.ErrStepAhead):
		return http.StatusConflict, "step_ahead", "step has not been reached yet"
	case errors.Is(err, steps.ErrUnknownStep):
		return http.StatusConflict, "invalid_step", "ticket has an unknown current step"
	case errors.Is(err, steps.ErrInvalidDecision):
		return http.StatusBadRequest, "invalid_request", "decision must be accepted or denied"
	case errors.Is(err, catalog.ErrInvalidRecord):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream_timeout", "backend did not respond in time"
	case errors.As(err, &statusErr), errors.As(err, &urlErr):
		return http.StatusBadGateway, "upstream_error", "backend request failed"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Str("request_id", requestIDFromRequest(r)).Msg("request failed")
	}
	writeError(w, r, status, code, msg)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestIDFromRequest(r),
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
