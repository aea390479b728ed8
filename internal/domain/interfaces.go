package domain

import (
	"context"
	"time"
)

// PushProvider delivers an encrypted payload to a single subscription.
// Implementations translate provider failures into *push.DeliveryError so
// the classifier can match on status codes structurally.
type PushProvider interface {
	// Send dispatches payload to the subscription's push service.
	Send(ctx context.Context, sub *Subscription, payload []byte) error

	// SendSilent dispatches a probe payload that must not surface as a
	// user-visible notification.
	SendSilent(ctx context.Context, sub *Subscription, payload []byte) error
}

// TaskRepository is the read-only view of the external task store that
// reminder derivation consumes.
type TaskRepository interface {
	// QueryRemindable returns incomplete tasks with a reminder time no
	// older than the given cutoff (unbounded into the future).
	QueryRemindable(ctx context.Context, notOlderThan time.Time) ([]*Task, error)

	// GetTask retrieves a single task by ID.
	GetTask(ctx context.Context, id int64) (*Task, error)

	// Close releases the underlying connection.
	Close() error
}

// Deliverer fans a notification out to all valid subscriptions. The
// scheduler depends on this interface so tests can observe firings without
// a real push provider.
type Deliverer interface {
	SendToAll(ctx context.Context, n *Notification) (*DeliverySummary, error)
}

// DeliveryFailure records one non-invalid per-subscription failure for
// observability. Invalid subscriptions are pruned instead of reported.
type DeliveryFailure struct {
	Endpoint   string `json:"endpoint"`
	StatusCode int    `json:"statusCode,omitempty"`
	Category   string `json:"category"`
	Message    string `json:"message"`
}

// DeliverySummary aggregates the per-subscription outcomes of one fan-out.
type DeliverySummary struct {
	SuccessCount   int               `json:"successCount"`
	InvalidCount   int               `json:"invalidCount"`
	TotalAttempted int               `json:"totalAttempted"`
	Errors         []DeliveryFailure `json:"errors,omitempty"`
}

// ValidationReport aggregates the outcome of one subscription sweep.
type ValidationReport struct {
	ValidCount   int `json:"validCount"`
	InvalidCount int `json:"invalidCount"`
	ErrorCount   int `json:"errorCount"`
}
