package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"intsync/internal/models"
)

var (
	ErrTicketClosed    = errors.New("ticket is closed")
	ErrStepAhead       = errors.New("step is after the current step")
	ErrNotFinalStep    = errors.New("ticket is not at the final step")
	ErrInvalidDecision = errors.New("decision must be accepted or denied")
)

// Backend is the slice of the backend client the sequencer writes through.
type Backend interface {
	UpdateNextStep(ctx context.Context, update models.StepUpdate) error
	UpdateSpecificStep(ctx context.Context, update models.StepUpdate) error
}

// Observer is told about every ticket the sequencer changed.
type Observer interface {
	TicketChanged(action string, ticket models.Ticket)
}

type Sequencer struct {
	backend  Backend
	observer Observer
	logger   zerolog.Logger
}

func NewSequencer(backend Backend, observer Observer, logger zerolog.Logger) *Sequencer {
	return &Sequencer{backend: backend, observer: observer, logger: logger}
}

// NextStep is the step following the ticket's current one.
func NextStep(ticket models.Ticket) (Step, error) {
	current, err := Parse(ticket.CurrentStep)
	if err != nil {
		return 0, err
	}
	return Next(current)
}

// Advance writes stepInfo as the data of the next step and moves the ticket
// there. The ticket is left untouched when the backend call fails.
func (s *Sequencer) Advance(ctx context.Context, ticket *models.Ticket, stepInfo models.StepData) (Step, error) {
	if ticket.Status == models.TicketStatusClosed {
		return 0, ErrTicketClosed
	}
	next, err := NextStep(*ticket)
	if err != nil {
		return 0, err
	}

	update := models.StepUpdate{
		TicketNumber: ticket.TicketNumber,
		StepInfo:     stepInfo,
		StepNumber:   next.Number(),
	}
	if err := s.backend.UpdateNextStep(ctx, update); err != nil {
		s.logger.Error().Err(err).
			Str("ticket_number", ticket.TicketNumber).
			Str("step", next.Key()).
			Msg("advance ticket failed")
		return 0, fmt.Errorf("advance %s to %s: %w", ticket.TicketNumber, next.Key(), err)
	}

	ticket.Normalize()
	ticket.CurrentStep = next.Key()
	ticket.Steps[next.Key()] = ticket.Steps[next.Key()].Merge(stepInfo)
	s.notify("advanced", *ticket)
	return next, nil
}

// UpdateStep overwrites the data of a step the ticket has already reached.
func (s *Sequencer) UpdateStep(ctx context.Context, ticket *models.Ticket, step Step, stepInfo models.StepData) error {
	if !step.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownStep, int(step))
	}
	if ticket.Status == models.TicketStatusClosed {
		return ErrTicketClosed
	}
	current, err := Parse(ticket.CurrentStep)
	if err != nil {
		return err
	}
	if step > current {
		return fmt.Errorf("%w: %s > %s", ErrStepAhead, step.Key(), current.Key())
	}

	update := models.StepUpdate{
		TicketNumber: ticket.TicketNumber,
		StepInfo:     stepInfo,
		StepNumber:   step.Number(),
	}
	if err := s.backend.UpdateSpecificStep(ctx, update); err != nil {
		s.logger.Error().Err(err).
			Str("ticket_number", ticket.TicketNumber).
			Str("step", step.Key()).
			Msg("update ticket step failed")
		return fmt.Errorf("update %s %s: %w", ticket.TicketNumber, step.Key(), err)
	}

	ticket.Normalize()
	ticket.Steps[step.Key()] = stepInfo.Merge(nil)
	s.notify("step_updated", *ticket)
	return nil
}

// Close records the final decision. It is the only way out of the final
// step.
func (s *Sequencer) Close(ctx context.Context, ticket *models.Ticket, decision string) error {
	decision = strings.ToLower(strings.TrimSpace(decision))
	if decision != models.DecisionAccepted && decision != models.DecisionDenied {
		return ErrInvalidDecision
	}
	if ticket.Status == models.TicketStatusClosed {
		return ErrTicketClosed
	}
	current, err := Parse(ticket.CurrentStep)
	if err != nil {
		return err
	}
	if current != StepFinalDecision {
		return fmt.Errorf("%w: %s", ErrNotFinalStep, current.Key())
	}

	info := models.StepData{"status": models.TicketStatusClosed, "decision": decision}
	update := models.StepUpdate{
		TicketNumber: ticket.TicketNumber,
		StepInfo:     info,
		StepNumber:   StepFinalDecision.Number(),
	}
	if err := s.backend.UpdateSpecificStep(ctx, update); err != nil {
		s.logger.Error().Err(err).
			Str("ticket_number", ticket.TicketNumber).
			Str("decision", decision).
			Msg("close ticket failed")
		return fmt.Errorf("close %s: %w", ticket.TicketNumber, err)
	}

	ticket.Normalize()
	ticket.Status = models.TicketStatusClosed
	ticket.Steps[StepFinalDecision.Key()] = ticket.Steps[StepFinalDecision.Key()].Merge(info)
	s.notify("closed", *ticket)
	return nil
}

func (s *Sequencer) notify(action string, ticket models.Ticket) {
	if s.observer == nil {
		return
	}
	s.observer.TicketChanged(action, ticket)
}
