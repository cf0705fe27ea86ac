package whatsapp

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"intsync/internal/models"
)

const (
	ActionLogout  = "logout"
	ActionRestart = "restart"
)

var (
	ErrGaveUp         = errors.New("whatsapp status polling gave up")
	ErrUnknownAction  = errors.New("unknown whatsapp action")
	pollsTotal        = expvar.NewInt("whatsapp_polls_total")
	pollFailuresTotal = expvar.NewInt("whatsapp_poll_failures_total")
)

// Client is the part of the backend client the poller talks to.
type Client interface {
	WhatsAppStatus(ctx context.Context) (models.WhatsAppStatus, error)
	WhatsAppAction(ctx context.Context, action string) (models.ActionResult, error)
}

type Notifier interface {
	StateChanged(snapshot Snapshot)
	Notice(notice Notice)
}

type Options struct {
	Interval        time.Duration
	RestartInterval time.Duration
	MaxRetries      int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
	if o.RestartInterval <= 0 {
		o.RestartInterval = time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 8 * time.Second
	}
	return o
}

type Poller struct {
	client   Client
	notifier Notifier
	logger   zerolog.Logger
	opts     Options
	after    func(time.Duration) <-chan time.Time

	// runMu serializes loops so a cancelled run finishes before the next
	// one marks itself as polling.
	runMu sync.Mutex

	mu         sync.Mutex
	gen        uint64
	state      State
	qr         string
	restarting bool
	polling    bool
	failures   int

	kick chan struct{}
}

func NewPoller(client Client, notifier Notifier, logger zerolog.Logger, opts Options) *Poller {
	return &Poller{
		client:   client,
		notifier: notifier,
		logger:   logger,
		opts:     opts.withDefaults(),
		after:    time.After,
		state:    StateDisconnected,
		kick:     make(chan struct{}, 1),
	}
}

func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Poller) snapshotLocked() Snapshot {
	return Snapshot{State: p.state, QR: p.qr, Restarting: p.restarting, Polling: p.polling}
}

// Backoff is the wait after the given 1-based consecutive failure.
func (p *Poller) Backoff(failure int) time.Duration {
	if failure < 1 {
		failure = 1
	}
	delay := p.opts.BaseBackoff
	for i := 1; i < failure && delay < p.opts.MaxBackoff; i++ {
		delay *= 2
	}
	if delay > p.opts.MaxBackoff {
		delay = p.opts.MaxBackoff
	}
	return delay
}

// Poll fetches the status once and applies it. A response that started
// before a restart or logout is dropped.
func (p *Poller) Poll(ctx context.Context) error {
	pollsTotal.Add(1)
	gen := p.generation()
	status, err := p.client.WhatsAppStatus(ctx)
	if err != nil {
		pollFailuresTotal.Add(1)
		return err
	}
	if !p.apply(gen, FromServer(status), status.QR, false) {
		p.logger.Debug().Str("state", status.State).Msg("dropped whatsapp status from before an action")
	}
	return nil
}

// Run polls until ctx is cancelled or MaxRetries consecutive polls fail.
// Once it returns ErrGaveUp the state is disconnected and nothing polls
// again until Run is called anew.
func (p *Poller) Run(ctx context.Context) error {
	return p.run(ctx, nil)
}

// run is Run with an optional stop condition, checked after every
// successful poll. It returns nil when settled reports true.
func (p *Poller) run(ctx context.Context, settled func(Snapshot) bool) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	p.setPolling(true)
	defer p.setPolling(false)

	for {
		err := p.Poll(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var wait time.Duration
		if err != nil {
			failures := p.recordFailure()
			if failures >= p.opts.MaxRetries {
				p.logger.Error().Err(err).Int("failures", failures).Msg("whatsapp status polling stopped")
				p.apply(0, StateDisconnected, "", true)
				return fmt.Errorf("%w after %d failures: %v", ErrGaveUp, failures, err)
			}
			wait = p.Backoff(failures)
			p.logger.Warn().Err(err).Int("failures", failures).Dur("retry_in", wait).Msg("whatsapp status poll failed")
		} else {
			if settled != nil && settled(p.Snapshot()) {
				return nil
			}
			wait = p.interval()
		}

		if !p.wait(ctx, wait) {
			return ctx.Err()
		}
	}
}

// wait blocks for d. A kick from Restart rearms the timer with the restart
// cadence.
func (p *Poller) wait(ctx context.Context, d time.Duration) bool {
	timer := p.after(d)
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer:
			return true
		case <-p.kick:
			timer = p.after(p.interval())
		}
	}
}

func (p *Poller) interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.restarting {
		return p.opts.RestartInterval
	}
	return p.opts.Interval
}

func (p *Poller) generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

func (p *Poller) recordFailure() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures++
	return p.failures
}

func (p *Poller) setPolling(polling bool) {
	p.mu.Lock()
	p.polling = polling
	if polling {
		p.failures = 0
	}
	p.mu.Unlock()
}

// apply moves to next and reports the change. A poll result whose
// generation is stale is discarded and apply returns false. forced marks the
// give-up path, which ignores generations and always reports a drop.
func (p *Poller) apply(gen uint64, next State, qr string, forced bool) bool {
	p.mu.Lock()
	if !forced && gen != p.gen {
		p.mu.Unlock()
		return false
	}
	prev, prevQR, restarting := p.state, p.qr, p.restarting
	if forced {
		restarting = false
		p.restarting = false
	} else {
		p.failures = 0
	}
	p.state = next
	if next == StateQR {
		p.qr = qr
	} else {
		p.qr = ""
	}
	if p.restarting && next != StateDisconnected {
		p.restarting = false
	}
	changed := prev != next || prevQR != p.qr || restarting != p.restarting
	snapshot := p.snapshotLocked()
	p.mu.Unlock()

	if changed {
		p.logger.Debug().Str("from", string(prev)).Str("to", string(next)).Msg("whatsapp state changed")
		if p.notifier != nil {
			p.notifier.StateChanged(snapshot)
		}
	}
	if notice, ok := noticeFor(prev, next, restarting); ok && p.notifier != nil {
		p.notifier.Notice(notice)
	}
	return true
}

// Restart asks the backend to restart the WhatsApp session. The state drops
// to disconnected at once without a notice and polling runs at the restart
// cadence until a connected or QR state shows up.
func (p *Poller) Restart(ctx context.Context) (models.ActionResult, error) {
	p.mu.Lock()
	prev := p.state
	p.gen++
	p.restarting = true
	p.state = StateDisconnected
	p.qr = ""
	snapshot := p.snapshotLocked()
	p.mu.Unlock()
	if p.notifier != nil && prev != StateDisconnected {
		p.notifier.StateChanged(snapshot)
	}

	result, err := p.client.WhatsAppAction(ctx, ActionRestart)
	if err != nil {
		p.mu.Lock()
		p.restarting = false
		p.mu.Unlock()
		p.logger.Error().Err(err).Msg("whatsapp restart failed")
		return models.ActionResult{Success: false, Message: err.Error()}, err
	}

	// Polls that overlapped the restart call may still describe the old
	// session.
	p.mu.Lock()
	p.gen++
	p.mu.Unlock()
	select {
	case p.kick <- struct{}{}:
	default:
	}
	return result, nil
}

// Logout ends the WhatsApp session. It is an expected drop, so no notice is
// raised.
func (p *Poller) Logout(ctx context.Context) (models.ActionResult, error) {
	result, err := p.client.WhatsAppAction(ctx, ActionLogout)
	if err != nil {
		p.logger.Error().Err(err).Msg("whatsapp logout failed")
		return models.ActionResult{Success: false, Message: err.Error()}, err
	}

	p.mu.Lock()
	prev := p.state
	p.gen++
	p.state = StateDisconnected
	p.qr = ""
	p.restarting = false
	snapshot := p.snapshotLocked()
	p.mu.Unlock()
	if p.notifier != nil && prev != StateDisconnected {
		p.notifier.StateChanged(snapshot)
	}
	return result, nil
}

func (p *Poller) Action(ctx context.Context, action string) (models.ActionResult, error) {
	switch action {
	case ActionRestart:
		return p.Restart(ctx)
	case ActionLogout:
		return p.Logout(ctx)
	default:
		return models.ActionResult{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}
