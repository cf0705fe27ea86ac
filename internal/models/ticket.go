package models

import (
	"strings"
	"time"
)

type Ticket struct {
	ID           string              `json:"id"`
	TicketNumber string              `json:"ticket_number"`
	CustomerName string              `json:"customer_name"`
	PersonName   string              `json:"person_name,omitempty"`
	Status       string              `json:"status"`
	Steps        map[string]StepData `json:"steps"`
	CurrentStep  string              `json:"current_step"`
	CreatedDate  *time.Time          `json:"created_date,omitempty"`
	UpdatedDate  *time.Time          `json:"updated_date,omitempty"`
}

const (
	TicketStatusOpen   = "open"
	TicketStatusClosed = "closed"
)

const (
	DecisionAccepted = "accepted"
	DecisionDenied   = "denied"
)

// FinalStepKey is the step that carries the closing decision.
const FinalStepKey = "Step 9"

// Normalize fills the defaults the backend is allowed to omit. A ticket whose
// final step records status closed is closed, whatever the top-level field
// says.
func (t *Ticket) Normalize() {
	if t.Status == "" {
		t.Status = TicketStatusOpen
	}
	if t.Steps == nil {
		t.Steps = map[string]StepData{}
	}
	if status, _ := t.Steps[FinalStepKey]["status"].(string); strings.EqualFold(strings.TrimSpace(status), TicketStatusClosed) {
		t.Status = TicketStatusClosed
	}
}

// Decision is the accepted or denied verdict recorded when the ticket was
// closed, or empty.
func (t Ticket) Decision() string {
	decision, _ := t.Steps[FinalStepKey]["decision"].(string)
	return decision
}

// StepData is the free-form payload stored under one step key. The backend
// writes plain text, lists or decoded structures depending on the step.
type StepData map[string]any

func (d StepData) Text() string {
	if d == nil {
		return ""
	}
	text, _ := d["text"].(string)
	return text
}

func (d StepData) List() []string {
	if d == nil {
		return nil
	}
	raw, ok := d["list"].([]any)
	if !ok {
		if typed, ok := d["list"].([]string); ok {
			return typed
		}
		return nil
	}
	items := make([]string, 0, len(raw))
	for _, item := range raw {
		if text, ok := item.(string); ok {
			items = append(items, text)
		}
	}
	return items
}

// Merge copies every key of other over d and returns the result. A nil
// receiver yields a fresh map.
func (d StepData) Merge(other StepData) StepData {
	merged := make(StepData, len(d)+len(other))
	for key, value := range d {
		merged[key] = value
	}
	for key, value := range other {
		merged[key] = value
	}
	return merged
}

type TicketPage struct {
	Tickets      []Ticket `json:"tickets"`
	TotalTickets int      `json:"total_tickets"`
	CurrentPage  int      `json:"current_page"`
	TotalPages   int      `json:"total_pages"`
	HasNext      bool     `json:"has_next"`
}

type TicketFilter struct {
	Page         int
	Limit        int
	Status       string
	CustomerName string
	TicketNumber string
	CurrentStep  string
	StartDate    string
	EndDate      string
}

type CreateTicketInput struct {
	CustomerName string `json:"customer_name"`
	PersonName   string `json:"person_name"`
	Message      string `json:"message"`
}

// StepUpdate is the body of both step-writing backend calls.
type StepUpdate struct {
	TicketNumber string   `json:"ticket_number"`
	StepInfo     StepData `json:"step_info"`
	StepNumber   int      `json:"step_number"`
}
