package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"intsync/internal/backend"
	"intsync/internal/models"
	"intsync/internal/steps"
)

const (
	defaultTicketLimit = 10
	maxTicketLimit     = 100
)

type createTicketRequest struct {
	CustomerName string `json:"customer_name"`
	PersonName   string `json:"person_name"`
	Message      string `json:"message"`
}

type stepInfoRequest struct {
	StepInfo models.StepData `json:"step_info"`
}

type closeTicketRequest struct {
	Decision string `json:"decision"`
}

type stepView struct {
	Key     string          `json:"key"`
	Number  int             `json:"number"`
	Label   string          `json:"label"`
	Data    models.StepData `json:"data,omitempty"`
	Reached bool            `json:"reached"`
	Current bool            `json:"current"`
}

type ticketDetail struct {
	Ticket   models.Ticket `json:"ticket"`
	Steps    []stepView    `json:"steps"`
	NextStep string        `json:"next_step,omitempty"`
	CanClose bool          `json:"can_close"`
}

type formOptions struct {
	Customers []models.Customer `json:"customers"`
	People    []models.Person   `json:"people"`
	Vendors   []models.Vendor   `json:"vendors"`
}

func (h *Handler) handleListTickets(w http.ResponseWriter, r *http.Request) {
	page, err := h.backend.ListTickets(r.Context(), ticketFilterFromQuery(r.URL.Query()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func ticketFilterFromQuery(query url.Values) models.TicketFilter {
	page, _ := strconv.Atoi(query.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit < 1 {
		limit = defaultTicketLimit
	}
	if limit > maxTicketLimit {
		limit = maxTicketLimit
	}
	return models.TicketFilter{
		Page:         page,
		Limit:        limit,
		Status:       strings.TrimSpace(query.Get("status")),
		CustomerName: strings.TrimSpace(query.Get("customer_name")),
		TicketNumber: strings.TrimSpace(query.Get("ticket_number")),
		CurrentStep:  strings.TrimSpace(query.Get("current_step")),
		StartDate:    strings.TrimSpace(query.Get("start_date")),
		EndDate:      strings.TrimSpace(query.Get("end_date")),
	}
}

func (h *Handler) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.PersonName = strings.TrimSpace(req.PersonName)
	req.Message = strings.TrimSpace(req.Message)
	if req.CustomerName == "" || req.Message == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "customer_name and message are required")
		return
	}

	ticket, err := h.backend.CreateTicket(r.Context(), models.CreateTicketInput{
		CustomerName: req.CustomerName,
		PersonName:   req.PersonName,
		Message:      req.Message,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.recordAudit(r, "ticket.create", "ticket", ticket.ID, ticket.TicketNumber)
	h.ticketChanged("created", ticket)
	writeJSON(w, http.StatusOK, ticket)
}

// handleFormOptions loads the pick lists of the new-ticket form in parallel.
func (h *Handler) handleFormOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.loadFormOptions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, options)
}

func (h *Handler) loadFormOptions(ctx context.Context) (formOptions, error) {
	var options formOptions
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := backend.List[models.Customer](ctx, h.backend, backend.Customers)
		options.Customers = items
		return err
	})
	g.Go(func() error {
		items, err := backend.List[models.Person](ctx, h.backend, backend.People)
		options.People = items
		return err
	})
	g.Go(func() error {
		items, err := backend.List[models.Vendor](ctx, h.backend, backend.Vendors)
		options.Vendors = items
		return err
	})
	if err := g.Wait(); err != nil {
		return formOptions{}, err
	}
	return options, nil
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.backend.GetTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTicketDetail(ticket))
}

func newTicketDetail(ticket models.Ticket) ticketDetail {
	current, err := steps.Parse(ticket.CurrentStep)
	detail := ticketDetail{Ticket: ticket}
	for _, step := range steps.All() {
		detail.Steps = append(detail.Steps, stepView{
			Key:     step.Key(),
			Number:  step.Number(),
			Label:   step.Label(),
			Data:    ticket.Steps[step.Key()],
			Reached: err == nil && step <= current,
			Current: err == nil && step == current,
		})
	}
	if ticket.Status != models.TicketStatusClosed {
		if next, err := steps.NextStep(ticket); err == nil {
			detail.NextStep = next.Key()
		}
		detail.CanClose = err == nil && current == steps.StepFinalDecision
	}
	return detail
}

func (h *Handler) handleDeleteTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.backend.DeleteTicket(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.recordAudit(r, "ticket.delete", "ticket", id, "")
	h.ticketChanged("deleted", models.Ticket{ID: id})
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *Handler) handleAdvanceTicket(w http.ResponseWriter, r *http.Request) {
	var req stepInfoRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	ticket, err := h.backend.GetTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	next, err := h.sequencer.Advance(r.Context(), &ticket, req.StepInfo)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.recordAudit(r, "ticket.advance", "ticket", ticket.ID, next.Key())
	writeJSON(w, http.StatusOK, newTicketDetail(ticket))
}

func (h *Handler) handleUpdateStep(w http.ResponseWriter, r *http.Request) {
	rawStep, err := url.PathUnescape(chi.URLParam(r, "step"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid step")
		return
	}
	step, err := steps.Parse(rawStep)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "unknown step")
		return
	}
	var req stepInfoRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	ticket, err := h.backend.GetTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.sequencer.UpdateStep(r.Context(), &ticket, step, req.StepInfo); err != nil {
		h.fail(w, r, err)
		return
	}
	h.recordAudit(r, "ticket.step_update", "ticket", ticket.ID, step.Key())
	writeJSON(w, http.StatusOK, newTicketDetail(ticket))
}

func (h *Handler) handleCloseTicket(w http.ResponseWriter, r *http.Request) {
	var req closeTicketRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	ticket, err := h.backend.GetTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.sequencer.Close(r.Context(), &ticket, req.Decision); err != nil {
		h.fail(w, r, err)
		return
	}
	h.recordAudit(r, "ticket.close", "ticket", ticket.ID, strings.ToLower(strings.TrimSpace(req.Decision)))
	writeJSON(w, http.StatusOK, newTicketDetail(ticket))
}

func (h *Handler) ticketChanged(action string, ticket models.Ticket) {
	if h.events != nil {
		h.events.TicketChanged(action, ticket)
	}
}
