// Package notify fans poller and ticket events out to in-process listeners.
package notify

import (
	"github.com/gookit/event"
	"github.com/rs/zerolog"

	"intsync/internal/models"
	"intsync/internal/whatsapp"
)

const (
	EventWhatsAppState  = "whatsapp.state"
	EventWhatsAppNotice = "whatsapp.notice"
	EventTicketChanged  = "ticket.changed"
)

// Bus wraps a gookit event manager. Listeners run synchronously on the
// firing goroutine and must not fire events themselves.
type Bus struct {
	manager *event.Manager
	logger  zerolog.Logger
}

func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{manager: event.NewManager("intsync"), logger: logger}
}

func (b *Bus) StateChanged(snapshot whatsapp.Snapshot) {
	b.manager.MustFire(EventWhatsAppState, event.M{"snapshot": snapshot})
}

func (b *Bus) Notice(notice whatsapp.Notice) {
	b.logger.Info().Str("kind", string(notice.Kind)).Str("level", notice.Level).Msg(notice.Message)
	b.manager.MustFire(EventWhatsAppNotice, event.M{"notice": notice})
}

func (b *Bus) TicketChanged(action string, ticket models.Ticket) {
	b.manager.MustFire(EventTicketChanged, event.M{"action": action, "ticket": ticket})
}

func (b *Bus) OnWhatsAppState(fn func(whatsapp.Snapshot)) {
	b.manager.On(EventWhatsAppState, event.ListenerFunc(func(e event.Event) error {
		snapshot, ok := e.Get("snapshot").(whatsapp.Snapshot)
		if !ok {
			b.logger.Warn().Str("event", e.Name()).Msg("unexpected payload")
			return nil
		}
		fn(snapshot)
		return nil
	}))
}

func (b *Bus) OnWhatsAppNotice(fn func(whatsapp.Notice)) {
	b.manager.On(EventWhatsAppNotice, event.ListenerFunc(func(e event.Event) error {
		notice, ok := e.Get("notice").(whatsapp.Notice)
		if !ok {
			b.logger.Warn().Str("event", e.Name()).Msg("unexpected payload")
			return nil
		}
		fn(notice)
		return nil
	}))
}

func (b *Bus) OnTicketChanged(fn func(action string, ticket models.Ticket)) {
	b.manager.On(EventTicketChanged, event.ListenerFunc(func(e event.Event) error {
		action, _ := e.Get("action").(string)
		ticket, ok := e.Get("ticket").(models.Ticket)
		if !ok {
			b.logger.Warn().Str("event", e.Name()).Msg("unexpected payload")
			return nil
		}
		fn(action, ticket)
		return nil
	}))
}
