// Package delivery fans notifications out to all valid subscriptions and
// prunes endpoints the push service reports as permanently gone. Dispatch
// is independent per subscription: one endpoint's failure never blocks or
// fails another's delivery.
package delivery

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lifelog-dev/beacon/internal/domain"
	"github.com/lifelog-dev/beacon/internal/logging"
	"github.com/lifelog-dev/beacon/internal/metrics"
	"github.com/lifelog-dev/beacon/internal/push"
	"github.com/lifelog-dev/beacon/internal/store"
	"github.com/lifelog-dev/beacon/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config contains delivery engine configuration
type Config struct {
	// Icon URL included in every payload.
	Icon string
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Icon: "/icon-192x192.png",
	}
}

// Engine dispatches notifications to every valid subscription through the
// push provider.
type Engine struct {
	config   Config
	provider domain.PushProvider
	subs     *store.SubscriptionStore
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

var _ domain.Deliverer = (*Engine)(nil)

// NewEngine creates a delivery engine.
func NewEngine(config Config, provider domain.PushProvider, subs *store.SubscriptionStore) *Engine {
	if config.Icon == "" {
		config.Icon = DefaultConfig().Icon
	}
	return &Engine{
		config:   config,
		provider: provider,
		subs:     subs,
		logger:   logging.Component("delivery"),
		metrics:  metrics.GetMetrics(),
		tracer:   telemetry.Tracer("beacon/delivery"),
	}
}

// payload is the wire shape handed to the push provider.
type payload struct {
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Icon      string            `json:"icon,omitempty"`
	Timestamp int64             `json:"timestamp"`
	Data      map[string]string `json:"data,omitempty"`
}

// outcome is one subscription's dispatch result.
type outcome struct {
	endpoint string
	err      error
}

// SendToAll delivers the notification to every valid subscription
// concurrently, prunes endpoints whose failures classify as invalid, and
// returns aggregate counts plus the retained (non-invalid) errors.
func (e *Engine) SendToAll(ctx context.Context, n *domain.Notification) (*domain.DeliverySummary, error) {
	ctx, span := e.tracer.Start(ctx, "delivery.SendToAll",
		trace.WithAttributes(attribute.String("notification.id", n.ID)))
	defer span.End()

	logger := logging.FromContext(ctx).With().Str("component", "delivery").Logger()
	start := time.Now()

	// Defensive re-check: shrink the store if invalid records crept in.
	e.subs.PruneInvalid()

	if !e.Configured() {
		logger.Warn().Msg("Push provider not configured, skipping delivery")
		return &domain.DeliverySummary{}, nil
	}

	targets := e.subs.ListValid()
	e.metrics.DeliveryFanoutSize.Observe(float64(len(targets)))
	if len(targets) == 0 {
		logger.Info().Str("id", n.ID).Msg("No valid subscriptions, nothing to deliver")
		return &domain.DeliverySummary{}, nil
	}

	body, err := json.Marshal(e.buildPayload(n))
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("id", n.ID).
		Str("title", n.Title).
		Int("subscriptions", len(targets)).
		Msg("Sending notification")

	outcomes := e.fanOut(ctx, targets, func(ctx context.Context, sub *domain.Subscription) error {
		return e.provider.Send(ctx, sub, body)
	})

	summary := e.collect(n.ID, outcomes)
	e.metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("delivery.success", summary.SuccessCount),
		attribute.Int("delivery.invalid", summary.InvalidCount),
	)
	return summary, nil
}

// Configured reports whether the underlying provider can reach the push
// service. Providers without a Configured method are assumed ready.
func (e *Engine) Configured() bool {
	if c, ok := e.provider.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}

// SendTest delivers the canned test notification to all subscriptions.
func (e *Engine) SendTest(ctx context.Context) (*domain.DeliverySummary, error) {
	return e.SendToAll(ctx, &domain.Notification{
		Title:         "Test Notification",
		Body:          "This is a test notification from the server.",
		ScheduledTime: time.Now(),
	})
}

func (e *Engine) buildPayload(n *domain.Notification) payload {
	data := make(map[string]string, len(n.Data)+1)
	for k, v := range n.Data {
		data[k] = v
	}
	if n.ID != "" {
		data[domain.DataKeyNotificationID] = n.ID
	}
	return payload{
		Title:     n.Title,
		Body:      n.Body,
		Icon:      e.config.Icon,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// fanOut dispatches send to every target concurrently and joins before
// returning, so the caller sees all outcomes at once.
func (e *Engine) fanOut(ctx context.Context, targets []*domain.Subscription, send func(context.Context, *domain.Subscription) error) []outcome {
	outcomes := make([]outcome, len(targets))
	var wg sync.WaitGroup
	for i, sub := range targets {
		wg.Add(1)
		go func(i int, sub *domain.Subscription) {
			defer wg.Done()
			outcomes[i] = outcome{endpoint: sub.Endpoint, err: send(ctx, sub)}
		}(i, sub)
	}
	wg.Wait()
	return outcomes
}

// collect classifies failures, prunes invalid endpoints in one batch, and
// builds the summary.
func (e *Engine) collect(notificationID string, outcomes []outcome) *domain.DeliverySummary {
	summary := &domain.DeliverySummary{TotalAttempted: len(outcomes)}
	var doomed []string

	for _, o := range outcomes {
		if o.err == nil {
			summary.SuccessCount++
			e.metrics.DeliveriesTotal.WithLabelValues("success").Inc()
			continue
		}

		c := push.Classify(o.err)
		e.metrics.DeliveriesTotal.WithLabelValues(string(c.Category)).Inc()

		if c.IsInvalidSubscription {
			summary.InvalidCount++
			doomed = append(doomed, o.endpoint)
			e.logger.Info().
				Int("status", c.StatusCode).
				Str("endpoint", o.endpoint).
				Msg("Subscription no longer valid, marking for removal")
			continue
		}

		summary.Errors = append(summary.Errors, domain.DeliveryFailure{
			Endpoint:   o.endpoint,
			StatusCode: c.StatusCode,
			Category:   string(c.Category),
			Message:    o.err.Error(),
		})
		e.logger.Error().
			Err(o.err).
			Str("category", string(c.Category)).
			Str("endpoint", o.endpoint).
			Msg("Error sending to subscription")
	}

	if len(doomed) > 0 {
		removed := e.subs.RemoveByEndpoints(doomed)
		e.metrics.SubscriptionsPruned.Add(float64(removed))
		e.logger.Info().Int("removed", removed).Msg("Removed expired subscriptions")
	}

	count, _ := e.subs.Count()
	e.metrics.SubscriptionsActive.Set(float64(count))

	e.logger.Info().
		Str("id", notificationID).
		Int("success", summary.SuccessCount).
		Int("invalid", summary.InvalidCount).
		Int("errors", len(summary.Errors)).
		Msg("Delivery complete")
	return summary
}
