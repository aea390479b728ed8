// Package scheduler guarantees that, for every live notification, delivery
// is invoked at-or-after its scheduled time, exactly once per firing. The
// platform timer delay is capped, so waits longer than the cap are modeled
// as a re-arming state machine rather than a single long sleep.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/lifelog-dev/beacon/internal/domain"
	"github.com/lifelog-dev/beacon/internal/logging"
	"github.com/lifelog-dev/beacon/internal/metrics"
	"github.com/rs/zerolog"
)

// Config contains scheduler configuration
type Config struct {
	// MaxTimerDelay is the longest delay a single timer arming may
	// request. Longer waits re-arm when it elapses.
	MaxTimerDelay time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		MaxTimerDelay: 24 * time.Hour,
	}
}

// entry is one armed timer. Fire callbacks verify their entry is still the
// live one before delivering, so Cancel always wins the race with a timer
// that is about to fire.
type entry struct {
	timer        *time.Timer
	notification *domain.Notification
}

// Scheduler owns one timer per pending notification and fires the deliverer
// when due.
type Scheduler struct {
	config    Config
	deliverer domain.Deliverer
	mu        sync.Mutex
	timers    map[string]*entry
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	// OnFired, when set, is invoked with the notification ID after a
	// one-shot notification has fired. The engine wires it to record
	// cleanup when that behavior is enabled.
	OnFired func(id string)
}

// NewScheduler creates a scheduler delivering through the given deliverer.
func NewScheduler(config Config, deliverer domain.Deliverer) *Scheduler {
	if config.MaxTimerDelay <= 0 {
		config.MaxTimerDelay = DefaultConfig().MaxTimerDelay
	}
	return &Scheduler{
		config:    config,
		deliverer: deliverer,
		timers:    make(map[string]*entry),
		logger:    logging.Component("scheduler"),
		metrics:   metrics.GetMetrics(),
	}
}

// Schedule arms a timer for the notification, or delivers immediately when
// its scheduled time has already passed. Re-scheduling an already-armed ID
// replaces the previous timer.
func (s *Scheduler) Schedule(n *domain.Notification) {
	delay := time.Until(n.ScheduledTime)
	if delay <= 0 {
		// A previously armed timer for this ID must not fire as well.
		s.Cancel(n.ID)

		s.logger.Info().
			Str("id", n.ID).
			Str("title", n.Title).
			Time("scheduled", n.ScheduledTime).
			Msg("Scheduled time is in the past, delivering immediately")
		s.metrics.ImmediateDeliveries.Inc()
		s.deliver(n)
		return
	}

	s.logger.Info().
		Str("id", n.ID).
		Str("title", n.Title).
		Time("scheduled", n.ScheduledTime).
		Msg("Scheduling notification")
	s.arm(n, delay)
}

// arm installs a timer for min(delay, cap), replacing any existing entry.
func (s *Scheduler) arm(n *domain.Notification, delay time.Duration) {
	capped := delay
	if capped > s.config.MaxTimerDelay {
		capped = s.config.MaxTimerDelay
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[n.ID]; ok {
		prev.timer.Stop()
	}

	e := &entry{notification: n}
	e.timer = time.AfterFunc(capped, func() {
		s.fire(n.ID, e)
	})
	s.timers[n.ID] = e
	s.metrics.TimersActive.Set(float64(len(s.timers)))
}

// fire runs in the timer goroutine. It re-checks liveness and dueness: a
// cancelled or replaced entry does nothing, and an entry that fired early
// because of the cap re-arms with the remaining delay.
func (s *Scheduler) fire(id string, e *entry) {
	s.mu.Lock()
	live, ok := s.timers[id]
	if !ok || live != e {
		// Cancelled or superseded between timer expiry and now.
		s.mu.Unlock()
		return
	}

	n := e.notification
	if remaining := time.Until(n.ScheduledTime); remaining > 0 {
		// The armed delay was capped below the true wait. Re-arm.
		capped := remaining
		if capped > s.config.MaxTimerDelay {
			capped = s.config.MaxTimerDelay
		}
		next := &entry{notification: n}
		next.timer = time.AfterFunc(capped, func() {
			s.fire(id, next)
		})
		s.timers[id] = next
		s.mu.Unlock()

		s.metrics.TimerRearmsTotal.Inc()
		s.logger.Debug().
			Str("id", id).
			Dur("remaining", remaining).
			Msg("Timer cap reached before scheduled time, re-armed")
		return
	}

	delete(s.timers, id)
	s.metrics.TimersActive.Set(float64(len(s.timers)))
	s.mu.Unlock()

	s.metrics.NotificationsFired.Inc()
	s.logger.Info().Str("id", id).Str("title", n.Title).Msg("Executing scheduled notification")
	s.deliver(n)
}

// deliver invokes the delivery engine. Failures are isolated and logged:
// one notification's delivery error never affects other pending timers.
func (s *Scheduler) deliver(n *domain.Notification) {
	if _, err := s.deliverer.SendToAll(context.Background(), n); err != nil {
		s.logger.Error().Err(err).Str("id", n.ID).Msg("Notification delivery failed")
	}

	if n.Repeat != "" && n.Repeat != domain.RepeatNone {
		// Recurrence is a placeholder field: record the wish, do not re-arm.
		s.logger.Info().
			Str("id", n.ID).
			Str("repeat", n.Repeat).
			Msg("Notification requests recurrence, which is not implemented")
		return
	}

	if s.OnFired != nil {
		s.OnFired(n.ID)
	}
}

// Cancel clears the timer for the given ID. It is idempotent: cancelling an
// already-fired or unknown ID is a no-op.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.timers[id]; ok {
		e.timer.Stop()
		delete(s.timers, id)
		s.metrics.TimersActive.Set(float64(len(s.timers)))
		s.logger.Debug().Str("id", id).Msg("Cancelled scheduled notification")
	}
}

// PendingCount returns the number of currently armed timers.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Shutdown stops every armed timer. Pending notifications are recovered at
// next start by re-reading the persisted store.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, id)
	}
	s.metrics.TimersActive.Set(0)
	s.logger.Info().Msg("Scheduler shut down")
	return nil
}
