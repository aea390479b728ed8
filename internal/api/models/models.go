// Package models defines the request and response shapes of the HTTP API.
package models

import (
	"time"

	"github.com/lifelog-dev/beacon/internal/api/validation"
	"github.com/lifelog-dev/beacon/internal/domain"
)

// SaveSubscriptionRequest is the browser's push subscription object.
type SaveSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Validate implements validation.Validator.
func (r *SaveSubscriptionRequest) Validate() error {
	return validation.Required("endpoint", r.Endpoint)
}

// ToDomain converts the request into a domain subscription.
func (r *SaveSubscriptionRequest) ToDomain() *domain.Subscription {
	return &domain.Subscription{
		Endpoint: r.Endpoint,
		Keys: domain.SubscriptionKeys{
			P256dh: r.Keys.P256dh,
			Auth:   r.Keys.Auth,
		},
	}
}

// ScheduleNotificationRequest creates a scheduled notification.
type ScheduleNotificationRequest struct {
	Title         string            `json:"title"`
	Body          string            `json:"body"`
	ScheduledTime time.Time         `json:"scheduledTime"`
	Repeat        string            `json:"repeat,omitempty"`
	Data          map[string]string `json:"data,omitempty"`
}

// Validate implements validation.Validator.
func (r *ScheduleNotificationRequest) Validate() error {
	if err := validation.Required("title", r.Title); err != nil {
		return err
	}
	return validation.RequiredTime("scheduledTime", r.ScheduledTime)
}

// ScheduleNotificationResponse carries the assigned notification ID.
type ScheduleNotificationResponse struct {
	ID string `json:"id"`
}

// SubscriptionCountResponse reports the store size for status displays.
type SubscriptionCountResponse struct {
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// RemovedResponse reports how many records a cleanup operation removed.
type RemovedResponse struct {
	Removed int `json:"removed"`
}

// DebugSubscription is the truncated view of one subscription.
type DebugSubscription struct {
	Endpoint      string     `json:"endpoint"`
	Timestamp     time.Time  `json:"timestamp"`
	LastValidated *time.Time `json:"lastValidated,omitempty"`
}

// DebugNotification is the status view of one scheduled notification.
type DebugNotification struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	ScheduledTime time.Time `json:"scheduledTime"`
	CreatedAt     time.Time `json:"createdAt"`
	IsPast        bool      `json:"isPast"`
}

// DebugTaskReminder is the status view of one upcoming task reminder.
type DebugTaskReminder struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	ReminderTime *time.Time `json:"reminderTime,omitempty"`
	ReminderType string     `json:"reminderType,omitempty"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	IsComplete   bool       `json:"isComplete"`
	IsPastDue    bool       `json:"isPastDue"`
}

// DebugInfoResponse is the full notification-system snapshot.
type DebugInfoResponse struct {
	Timestamp     time.Time `json:"timestamp"`
	Subscriptions struct {
		Count     int                 `json:"count"`
		Endpoints []DebugSubscription `json:"endpoints"`
	} `json:"subscriptions"`
	ScheduledNotifications struct {
		Count         int                 `json:"count"`
		PendingTimers int                 `json:"pendingTimers"`
		Notifications []DebugNotification `json:"notifications"`
	} `json:"scheduledNotifications"`
	TaskReminders struct {
		Count int                 `json:"count"`
		Tasks []DebugTaskReminder `json:"tasks"`
	} `json:"taskReminders"`
}
