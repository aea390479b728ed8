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
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Validator sweeps the subscription store with silent probe notifications,
// pruning endpoints that are permanently unreachable without the user
// noticing anything. Runs at startup (after a warm-up delay) and on a
// recurring schedule supplied by the engine.
type Validator struct {
	provider domain.PushProvider
	subs     *store.SubscriptionStore
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// NewValidator creates a subscription validator.
func NewValidator(provider domain.PushProvider, subs *store.SubscriptionStore) *Validator {
	return &Validator{
		provider: provider,
		subs:     subs,
		metrics:  metrics.GetMetrics(),
		tracer:   telemetry.Tracer("beacon/validator"),
	}
}

// probePayload is the silent marker sent to each subscription. Service
// workers recognize the type and suppress any visible notification.
type probePayload struct {
	Type      string `json:"type"`
	Silent    bool   `json:"silent"`
	Timestamp int64  `json:"timestamp"`
}

// ValidateAll probes every subscription and prunes the ones whose failures
// classify as invalid. Malformed subscriptions are pruned up front without
// spending a provider call.
func (v *Validator) ValidateAll(ctx context.Context) (*domain.ValidationReport, error) {
	ctx, span := v.tracer.Start(ctx, "validator.ValidateAll")
	defer span.End()

	logger := logging.FromContext(ctx).With().Str("component", "validator").Logger()

	v.metrics.ValidationRunsTotal.Inc()
	report := &domain.ValidationReport{}

	// Malformed records never reach the provider.
	report.InvalidCount += v.subs.PruneInvalid()

	if c, ok := v.provider.(interface{ Configured() bool }); ok && !c.Configured() {
		logger.Warn().Msg("Push provider not configured, skipping validation sweep")
		return report, nil
	}

	targets := v.subs.ListValid()
	if len(targets) == 0 {
		logger.Info().Msg("No subscriptions to validate")
		return report, nil
	}

	body, err := json.Marshal(probePayload{
		Type:      "validation-probe",
		Silent:    true,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Int("subscriptions", len(targets)).Msg("Starting validation sweep")

	results := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, sub := range targets {
		wg.Add(1)
		go func(i int, sub *domain.Subscription) {
			defer wg.Done()
			results[i] = v.provider.SendSilent(ctx, sub, body)
		}(i, sub)
	}
	wg.Wait()

	now := time.Now()
	var doomed []string
	for i, sub := range targets {
		if results[i] == nil {
			report.ValidCount++
			v.metrics.ValidationOutcomes.WithLabelValues("valid").Inc()
			v.subs.MarkValidated(sub.Endpoint, now)
			continue
		}

		c := push.Classify(results[i])
		if c.IsInvalidSubscription {
			report.InvalidCount++
			v.metrics.ValidationOutcomes.WithLabelValues("invalid").Inc()
			doomed = append(doomed, sub.Endpoint)
			continue
		}

		// Transient failure: the subscription may still be reachable, keep it.
		report.ErrorCount++
		v.metrics.ValidationOutcomes.WithLabelValues("error").Inc()
		logger.Warn().
			Err(results[i]).
			Str("category", string(c.Category)).
			Str("endpoint", sub.Endpoint).
			Msg("Validation probe failed transiently")
	}

	if len(doomed) > 0 {
		removed := v.subs.RemoveByEndpoints(doomed)
		v.metrics.SubscriptionsPruned.Add(float64(removed))
	}

	span.SetAttributes(
		attribute.Int("validation.valid", report.ValidCount),
		attribute.Int("validation.invalid", report.InvalidCount),
		attribute.Int("validation.errors", report.ErrorCount),
	)
	logger.Info().
		Int("valid", report.ValidCount).
		Int("invalid", report.InvalidCount).
		Int("errors", report.ErrorCount).
		Msg("Validation sweep complete")
	return report, nil
}
