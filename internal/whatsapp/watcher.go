package whatsapp

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"intsync/internal/models"
)

// Watcher owns the poller goroutine. Polling runs while at least one
// subscriber holds a reference.
type Watcher struct {
	poller *Poller
	logger zerolog.Logger
	parent context.Context

	mu     sync.Mutex
	refs   int
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWatcher(parent context.Context, poller *Poller, logger zerolog.Logger) *Watcher {
	return &Watcher{poller: poller, logger: logger, parent: parent}
}

func (w *Watcher) Poller() *Poller {
	return w.poller
}

func (w *Watcher) Acquire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refs++
	w.ensureRunningLocked()
}

func (w *Watcher) Release() {
	w.mu.Lock()
	if w.refs == 0 {
		w.mu.Unlock()
		return
	}
	w.refs--
	if w.refs > 0 {
		w.mu.Unlock()
		return
	}
	done := w.stopLocked()
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (w *Watcher) Refs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.refs
}

// Action runs a restart or logout. A successful restart makes sure a loop
// is running: it resumes polling for current subscribers if it had given up,
// and with no subscribers it polls only until the restart settles.
func (w *Watcher) Action(ctx context.Context, action string) (models.ActionResult, error) {
	result, err := w.poller.Action(ctx, action)
	if err == nil && action == ActionRestart {
		w.mu.Lock()
		w.ensureRunningLocked()
		w.mu.Unlock()
	}
	return result, err
}

// Close stops polling regardless of references.
func (w *Watcher) Close() {
	w.mu.Lock()
	w.refs = 0
	done := w.stopLocked()
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (w *Watcher) ensureRunningLocked() {
	if w.done != nil {
		select {
		case <-w.done:
		default:
			return
		}
	}
	if w.cancel != nil {
		w.cancel()
	}
	ctx, cancel := context.WithCancel(w.parent)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	go func() {
		defer close(done)
		err := w.poller.run(ctx, func(snapshot Snapshot) bool {
			return w.settled(snapshot, done)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Warn().Err(err).Msg("whatsapp poller exited")
		}
	}()
}

// settled ends a loop nobody subscribes to once the restart it was
// started for has produced a live state.
func (w *Watcher) settled(snapshot Snapshot, done chan struct{}) bool {
	if snapshot.Restarting {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.refs > 0 || w.done != done {
		return false
	}
	w.cancel()
	w.cancel = nil
	w.done = nil
	return true
}

func (w *Watcher) stopLocked() chan struct{} {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	done := w.done
	w.cancel = nil
	w.done = nil
	return done
}
