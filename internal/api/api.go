// Package api exposes the notification engine over HTTP. Every route is a
// thin wrapper over the stores, scheduler, delivery engine, and validator.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	apierrors "github.com/lifelog-dev/beacon/internal/api/errors"
	"github.com/lifelog-dev/beacon/internal/api/models"
	"github.com/lifelog-dev/beacon/internal/api/response"
	"github.com/lifelog-dev/beacon/internal/api/validation"
	"github.com/lifelog-dev/beacon/internal/delivery"
	"github.com/lifelog-dev/beacon/internal/domain"
	"github.com/lifelog-dev/beacon/internal/logging"
	"github.com/lifelog-dev/beacon/internal/metrics"
	"github.com/lifelog-dev/beacon/internal/scheduler"
	"github.com/lifelog-dev/beacon/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Config contains API configuration
type Config struct {
	// Server address
	Addr string

	// Timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Whether to expose the Prometheus endpoint
	MetricsEnabled bool
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    120 * time.Second,
		MetricsEnabled: true,
	}
}

// API handles HTTP endpoints for the notification engine.
type API struct {
	config    Config
	server    *http.Server
	subs      *store.SubscriptionStore
	notifs    *store.NotificationStore
	sched     *scheduler.Scheduler
	deliverer *delivery.Engine
	validator *delivery.Validator
	tasks     domain.TaskRepository // may be nil
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewAPI creates a new API instance. tasks may be nil when no task
// database is configured; the debug endpoint then omits task reminders.
func NewAPI(
	config Config,
	subs *store.SubscriptionStore,
	notifs *store.NotificationStore,
	sched *scheduler.Scheduler,
	deliverer *delivery.Engine,
	validator *delivery.Validator,
	tasks domain.TaskRepository,
) *API {
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = DefaultConfig().ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = DefaultConfig().IdleTimeout
	}

	return &API{
		config:    config,
		subs:      subs,
		notifs:    notifs,
		sched:     sched,
		deliverer: deliverer,
		validator: validator,
		tasks:     tasks,
		logger:    logging.Component("api"),
		metrics:   metrics.GetMetrics(),
	}
}

// Start initializes and runs the API server until the context is cancelled.
func (a *API) Start(ctx context.Context) error {
	a.logger.Info().Str("addr", a.config.Addr).Msg("Starting API server")

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(a.metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	a.registerRoutes(r)

	server := &http.Server{
		Addr:         a.config.Addr,
		Handler:      r,
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		IdleTimeout:  a.config.IdleTimeout,
	}
	a.server = server

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error().Err(err).Msg("API server error")
		}
	}()

	<-ctx.Done()
	return nil
}

// Shutdown stops the API server.
func (a *API) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	a.logger.Info().Msg("Shutting down API server")
	return a.server.Shutdown(ctx)
}

// registerRoutes sets up all API endpoints
func (a *API) registerRoutes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if a.config.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", a.handleSaveSubscription)
			r.Get("/count", a.handleSubscriptionCount)
			r.Delete("/", a.handleClearSubscriptions)
			r.Post("/validate", a.handleValidateSubscriptions)
			r.Post("/clean", a.handleCleanSubscriptions)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Post("/", a.handleScheduleNotification)
			r.Get("/", a.handleListNotifications)
			r.Delete("/{id}", a.handleDeleteNotification)
			r.Post("/test", a.handleSendTest)
		})

		r.Get("/debug", a.handleDebugInfo)
	})
}

// metricsMiddleware records request counts and durations.
func (a *API) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		a.metrics.APIRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		a.metrics.APIRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// handleSaveSubscription upserts a push subscription.
func (a *API) handleSaveSubscription(w http.ResponseWriter, r *http.Request) {
	var req models.SaveSubscriptionRequest
	if err := validation.ParseAndValidate(r, &req); err != nil {
		a.logger.Debug().Err(err).Msg("Invalid save subscription request")
		response.Error(w, r, err)
		return
	}

	if err := a.subs.Upsert(req.ToDomain()); err != nil {
		if errors.Is(err, store.ErrInvalidSubscription) {
			response.Error(w, r, apierrors.ValidationError("invalid_subscription", "Invalid subscription data"))
			return
		}
		response.Error(w, r, apierrors.InternalError("save_subscription_failed", "Failed to save subscription"))
		return
	}

	response.Message(w, r, http.StatusCreated, "Subscription saved", nil)
}

// handleSubscriptionCount reports the current store size.
func (a *API) handleSubscriptionCount(w http.ResponseWriter, r *http.Request) {
	count, at := a.subs.Count()
	response.JSON(w, r, http.StatusOK, models.SubscriptionCountResponse{
		Count:     count,
		Timestamp: at,
	})
}

// handleClearSubscriptions removes all subscriptions.
func (a *API) handleClearSubscriptions(w http.ResponseWriter, r *http.Request) {
	count := a.subs.Clear()
	response.Message(w, r, http.StatusOK,
		fmt.Sprintf("Removed %d subscriptions", count),
		models.RemovedResponse{Removed: count})
}

// handleValidateSubscriptions runs a validation sweep.
func (a *API) handleValidateSubscriptions(w http.ResponseWriter, r *http.Request) {
	report, err := a.validator.ValidateAll(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("Validation sweep failed")
		response.Error(w, r, apierrors.InternalError("validation_failed", "Failed to validate subscriptions"))
		return
	}
	response.JSON(w, r, http.StatusOK, report)
}

// handleCleanSubscriptions prunes invalid-format subscriptions.
func (a *API) handleCleanSubscriptions(w http.ResponseWriter, r *http.Request) {
	removed := a.subs.PruneInvalid()
	response.Message(w, r, http.StatusOK,
		fmt.Sprintf("Removed %d invalid subscriptions", removed),
		models.RemovedResponse{Removed: removed})
}

// handleScheduleNotification creates and arms a notification.
func (a *API) handleScheduleNotification(w http.ResponseWriter, r *http.Request) {
	var req models.ScheduleNotificationRequest
	if err := validation.ParseAndValidate(r, &req); err != nil {
		a.logger.Debug().Err(err).Msg("Invalid schedule notification request")
		response.Error(w, r, err)
		return
	}

	n := a.notifs.Create(store.CreateInput{
		Title:         req.Title,
		Body:          req.Body,
		ScheduledTime: req.ScheduledTime,
		Repeat:        req.Repeat,
		Data:          req.Data,
	})
	a.sched.Schedule(n)

	response.Message(w, r, http.StatusCreated, "Notification scheduled",
		models.ScheduleNotificationResponse{ID: n.ID})
}

// handleListNotifications returns all scheduled notifications.
func (a *API) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, a.notifs.List())
}

// handleDeleteNotification deletes a notification and cancels its timer.
func (a *API) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.Error(w, r, apierrors.ValidationError("missing_id", "Notification ID is required"))
		return
	}

	if err := a.notifs.DeleteByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, r, apierrors.NotFoundError("notification_not_found", "Notification not found"))
			return
		}
		response.Error(w, r, apierrors.InternalError("delete_notification_failed", "Failed to delete notification"))
		return
	}

	response.Message(w, r, http.StatusOK, "Notification deleted", nil)
}

// handleSendTest delivers the canned test notification immediately.
func (a *API) handleSendTest(w http.ResponseWriter, r *http.Request) {
	if !a.deliverer.Configured() {
		response.Error(w, r, apierrors.UnavailableError("push_not_configured", "Push provider is not configured"))
		return
	}

	summary, err := a.deliverer.SendTest(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("Test notification failed")
		response.Error(w, r, apierrors.InternalError("test_notification_failed", "Failed to send test notification"))
		return
	}
	response.Message(w, r, http.StatusOK,
		fmt.Sprintf("Test notification sent to %d subscriptions", summary.TotalAttempted),
		summary)
}

// handleDebugInfo returns a snapshot of the whole notification system.
func (a *API) handleDebugInfo(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	var info models.DebugInfoResponse
	info.Timestamp = now

	subs := a.subs.List()
	info.Subscriptions.Count = len(subs)
	for _, sub := range subs {
		endpoint := sub.Endpoint
		if len(endpoint) > 50 {
			endpoint = endpoint[:50] + "..."
		}
		info.Subscriptions.Endpoints = append(info.Subscriptions.Endpoints, models.DebugSubscription{
			Endpoint:      endpoint,
			Timestamp:     sub.Timestamp,
			LastValidated: sub.LastValidated,
		})
	}

	notifs := a.notifs.List()
	info.ScheduledNotifications.Count = len(notifs)
	info.ScheduledNotifications.PendingTimers = a.sched.PendingCount()
	for _, n := range notifs {
		info.ScheduledNotifications.Notifications = append(info.ScheduledNotifications.Notifications, models.DebugNotification{
			ID:            n.ID,
			Title:         n.Title,
			ScheduledTime: n.ScheduledTime,
			CreatedAt:     n.CreatedAt,
			IsPast:        !n.ScheduledTime.After(now),
		})
	}

	if a.tasks != nil {
		tasks, err := a.tasks.QueryRemindable(r.Context(), now.Add(-24*time.Hour))
		if err != nil {
			a.logger.Error().Err(err).Msg("Failed to query task reminders for debug info")
		} else {
			info.TaskReminders.Count = len(tasks)
			for _, t := range tasks {
				pastDue := t.ReminderTime != nil && !t.ReminderTime.After(now)
				info.TaskReminders.Tasks = append(info.TaskReminders.Tasks, models.DebugTaskReminder{
					ID:           t.ID,
					Title:        t.Title,
					ReminderTime: t.ReminderTime,
					ReminderType: t.ReminderType,
					DueDate:      t.DueDate,
					IsComplete:   t.IsComplete,
					IsPastDue:    pastDue,
				})
			}
		}
	}

	response.JSON(w, r, http.StatusOK, info)
}
