package domain

import (
	"strings"
	"time"
)

// SubscriptionKeys holds the capability credentials a push service requires
// to encrypt payloads for a subscription.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription represents one push destination (a browser/device
// registration). The endpoint is the unique identity of the subscription.
type Subscription struct {
	Endpoint      string           `json:"endpoint"`
	Keys          SubscriptionKeys `json:"keys"`
	Timestamp     time.Time        `json:"timestamp"`
	LastValidated *time.Time       `json:"lastValidated,omitempty"`
}

// legacyEndpointMarker identifies endpoints registered against the retired
// FCM URL scheme. Push services reject them with permanent errors, so they
// are filtered out before any delivery attempt.
const legacyEndpointMarker = "/fcm/send/"

// IsValidFormat reports whether the subscription can be used for delivery:
// an https endpoint on the current URL scheme plus both credential keys.
func (s *Subscription) IsValidFormat() bool {
	if s == nil || s.Endpoint == "" {
		return false
	}
	if !strings.HasPrefix(s.Endpoint, "https://") {
		return false
	}
	if strings.Contains(s.Endpoint, legacyEndpointMarker) {
		return false
	}
	return s.Keys.P256dh != "" && s.Keys.Auth != ""
}

// Repeat keywords carried on notifications. Recurrence is a placeholder:
// the scheduler records the wish but does not re-arm (see scheduler docs).
const (
	RepeatNone   = "none"
	RepeatDaily  = "daily"
	RepeatWeekly = "weekly"
)

// Notification data keys used for correlating derived reminders back to
// their source task.
const (
	DataKeyNotificationID = "notificationId"
	DataKeyTaskID         = "taskId"
	DataKeyType           = "type"
	DataKeyDueDate        = "dueDate"

	NotificationTypeTaskReminder    = "task_reminder"
	NotificationTypeOverdueReminder = "overdue_reminder"
)

// Notification is a scheduled message with a fire time. Data carries
// free-form correlation fields (taskId, type) used for dedup.
type Notification struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Body          string            `json:"body"`
	ScheduledTime time.Time         `json:"scheduledTime"`
	Repeat        string            `json:"repeat"`
	CreatedAt     time.Time         `json:"createdAt"`
	Data          map[string]string `json:"data,omitempty"`
}

// Task is the external task record reminders are derived from. This engine
// never mutates tasks.
type Task struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ReminderTime *time.Time `json:"reminder_time,omitempty"`
	ReminderType string     `json:"reminder_type,omitempty"`
	IsComplete   bool       `json:"is_complete"`
}
