// Package engine wires the notification components together and owns their
// lifecycle: load stores, re-arm persisted notifications, serve the API,
// and drive the recurring validation and reminder sweeps.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/lifelog-dev/beacon/internal/api"
	"github.com/lifelog-dev/beacon/internal/config"
	"github.com/lifelog-dev/beacon/internal/delivery"
	"github.com/lifelog-dev/beacon/internal/domain"
	"github.com/lifelog-dev/beacon/internal/logging"
	"github.com/lifelog-dev/beacon/internal/push"
	"github.com/lifelog-dev/beacon/internal/reminder"
	"github.com/lifelog-dev/beacon/internal/scheduler"
	"github.com/lifelog-dev/beacon/internal/store"
	"github.com/lifelog-dev/beacon/internal/telemetry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Engine is the main coordinator of all Beacon components
type Engine struct {
	config      *config.Config
	subs        *store.SubscriptionStore
	notifs      *store.NotificationStore
	sched       *scheduler.Scheduler
	deliverer   *delivery.Engine
	validator   *delivery.Validator
	deriver     *reminder.Deriver // nil without a task database
	tasks       domain.TaskRepository
	api         *api.API
	logger      zerolog.Logger
	telemetryFn func(context.Context) error
}

// CreateEngine creates a new Engine instance with all components
// initialized from the config.
func CreateEngine(cfg *config.Config) (*Engine, error) {
	backend, err := store.NewBackend(store.BackendType(cfg.Storage.Backend), cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}

	subs := store.NewSubscriptionStore(backend)
	notifs := store.NewNotificationStore(backend)

	provider := push.NewWebPushProvider(push.Config{
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		Subscriber:      cfg.Push.Subscriber,
		TTL:             time.Duration(cfg.Push.TTLSeconds) * time.Second,
		SendTimeout:     time.Duration(cfg.Push.SendTimeoutSecs) * time.Second,
	})

	deliverer := delivery.NewEngine(delivery.Config{Icon: cfg.Push.Icon}, provider, subs)
	validator := delivery.NewValidator(provider, subs)

	sched := scheduler.NewScheduler(scheduler.Config{
		MaxTimerDelay: time.Duration(cfg.Scheduler.MaxTimerDelayHours) * time.Hour,
	}, deliverer)

	// Deleting a notification cancels its timer atomically with removal.
	notifs.OnDelete = sched.Cancel
	if cfg.Scheduler.CleanupFired {
		sched.OnFired = notifs.DeleteFired
	}

	var (
		tasks   domain.TaskRepository
		deriver *reminder.Deriver
	)
	if cfg.Reminder.DatabaseURL != "" {
		repo, err := reminder.NewPostgresTaskRepository(cfg.Reminder.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize task repository: %w", err)
		}
		tasks = repo
		deriver = reminder.NewDeriver(reminder.Config{
			Lookback: time.Duration(cfg.Reminder.LookbackHours) * time.Hour,
		}, tasks, notifs, sched)
	}

	apiServer := api.NewAPI(api.Config{
		Addr:           cfg.Server.Addr,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeout) * time.Second,
		MetricsEnabled: cfg.Metrics.Enabled,
	}, subs, notifs, sched, deliverer, validator, tasks)

	return &Engine{
		config:    cfg,
		subs:      subs,
		notifs:    notifs,
		sched:     sched,
		deliverer: deliverer,
		validator: validator,
		deriver:   deriver,
		tasks:     tasks,
		api:       apiServer,
		logger:    logging.Component("engine"),
	}, nil
}

// Start initializes and runs all components until the context is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	loggingConfig := logging.DefaultConfig()
	loggingConfig.Level = logging.LogLevel(e.config.Logging.Level)
	loggingConfig.Format = logging.LogFormat(e.config.Logging.Format)
	loggingConfig.IncludeCaller = e.config.Logging.IncludeCaller
	loggingConfig.GlobalFields = e.config.Logging.GlobalFields
	if err := logging.Setup(loggingConfig); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	e.logger.Info().Msg("Starting Beacon engine")

	telShutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:       e.config.Telemetry.Enabled,
		ServiceName:   e.config.Telemetry.ServiceName,
		Endpoint:      e.config.Telemetry.Endpoint,
		SamplingRatio: e.config.Telemetry.SamplingRatio,
		Attributes:    e.config.Telemetry.Attributes,
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to set up telemetry, continuing without it")
	} else {
		e.telemetryFn = telShutdown
	}

	// Load persisted state. Invalid-format subscriptions are pruned inside
	// Load, before first use.
	if err := e.subs.Load(); err != nil {
		return fmt.Errorf("failed to load subscriptions: %w", err)
	}
	if err := e.notifs.Load(); err != nil {
		return fmt.Errorf("failed to load notifications: %w", err)
	}

	// Re-arm every persisted notification. Schedule recomputes the
	// remaining delay from the stored time, so nothing else needs to be
	// persisted across restarts.
	for _, n := range e.notifs.List() {
		e.sched.Schedule(n)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.api.Start(ctx)
	})

	if e.config.Validation.Enabled {
		g.Go(func() error {
			e.runValidationLoop(ctx)
			return nil
		})
	}

	if e.deriver != nil {
		g.Go(func() error {
			e.runReminderLoop(ctx)
			return nil
		})
	}

	g.Go(func() error {
		e.runDailyHousekeeping(ctx)
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return fmt.Errorf("error running engine: %w", err)
	}

	e.logger.Info().Msg("Beacon engine shut down successfully")
	return nil
}

// runValidationLoop sweeps subscriptions once after a warm-up delay, then
// on the configured interval (weekly by default).
func (e *Engine) runValidationLoop(ctx context.Context) {
	warmup := time.Duration(e.config.Validation.WarmupSeconds) * time.Second
	select {
	case <-time.After(warmup):
	case <-ctx.Done():
		return
	}

	if _, err := e.validator.ValidateAll(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Startup validation sweep failed")
	}

	ticker := time.NewTicker(time.Duration(e.config.Validation.IntervalHours) * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := e.validator.ValidateAll(ctx); err != nil {
				e.logger.Error().Err(err).Msg("Validation sweep failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// runReminderLoop derives task reminders shortly after start, then daily.
func (e *Engine) runReminderLoop(ctx context.Context) {
	select {
	case <-time.After(10 * time.Second):
	case <-ctx.Done():
		return
	}

	if err := e.deriver.ScheduleAllTaskReminders(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Startup reminder derivation failed")
	}

	ticker := time.NewTicker(time.Duration(e.config.Reminder.DailyIntervalHours) * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.deriver.ScheduleAllTaskReminders(ctx); err != nil {
				e.logger.Error().Err(err).Msg("Reminder derivation failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// runDailyHousekeeping logs a daily status line so operators can see the
// engine is alive even when nothing fires.
func (e *Engine) runDailyHousekeeping(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			subCount, _ := e.subs.Count()
			e.logger.Info().
				Int("subscriptions", subCount).
				Int("notifications", len(e.notifs.List())).
				Int("pending_timers", e.sched.PendingCount()).
				Msg("Daily notification check")
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown stops the engine
func (e *Engine) Shutdown(ctx context.Context) error {
	e.logger.Info().Msg("Shutting down Beacon engine")

	if err := e.api.Shutdown(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to shut down API")
	}

	if err := e.sched.Shutdown(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to shut down scheduler")
	}

	if e.tasks != nil {
		if err := e.tasks.Close(); err != nil {
			e.logger.Error().Err(err).Msg("Failed to close task repository")
		}
	}

	if e.telemetryFn != nil {
		if err := e.telemetryFn(ctx); err != nil {
			e.logger.Error().Err(err).Msg("Failed to shut down telemetry")
		}
	}

	return nil
}
