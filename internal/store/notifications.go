package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lifelog-dev/beacon/internal/domain"
	"github.com/lifelog-dev/beacon/internal/logging"
	"github.com/rs/zerolog"
)

// NotificationStore is the durable collection of scheduled notification
// jobs. Deleting a record also cancels its timer through the OnDelete hook,
// so removal and cancellation stay atomic from the caller's point of view.
type NotificationStore struct {
	backend Backend
	mu      sync.RWMutex
	notifs  []*domain.Notification
	logger  zerolog.Logger

	// OnDelete is invoked with the notification ID whenever a record is
	// removed. The engine wires this to Scheduler.Cancel.
	OnDelete func(id string)

	// persistMu orders snapshot-and-save pairs, so the last write to land
	// on the backend always carries the newest state.
	persistMu sync.Mutex
}

// NewNotificationStore creates a notification store over the given backend.
func NewNotificationStore(backend Backend) *NotificationStore {
	return &NotificationStore{
		backend: backend,
		logger:  logging.Component("notification-store"),
	}
}

// Load reads the persisted collection. A corrupt collection resets to empty.
func (s *NotificationStore) Load() error {
	var notifs []*domain.Notification
	if err := s.backend.Load(CollectionNotifications, &notifs); err != nil {
		s.logger.Error().Err(err).Msg("Failed to load notifications, resetting to empty collection")
		notifs = nil
	}

	s.mu.Lock()
	s.notifs = notifs
	s.mu.Unlock()

	s.logger.Info().Int("count", len(notifs)).Msg("Loaded notifications")
	return nil
}

// CreateInput carries the caller-supplied fields of a new notification.
type CreateInput struct {
	Title         string
	Body          string
	ScheduledTime time.Time
	Repeat        string
	Data          map[string]string
}

// Create assigns a fresh ID, stamps createdAt, appends, persists, and
// returns the created record.
func (s *NotificationStore) Create(in CreateInput) *domain.Notification {
	repeat := in.Repeat
	if repeat == "" {
		repeat = domain.RepeatNone
	}
	n := &domain.Notification{
		ID:            uuid.NewString(),
		Title:         in.Title,
		Body:          in.Body,
		ScheduledTime: in.ScheduledTime,
		Repeat:        repeat,
		CreatedAt:     time.Now(),
		Data:          in.Data,
	}

	s.mu.Lock()
	s.notifs = append(s.notifs, n)
	s.mu.Unlock()

	s.logger.Debug().
		Str("id", n.ID).
		Str("title", n.Title).
		Time("scheduled", n.ScheduledTime).
		Msg("Created notification")
	s.persist()
	return n
}

// List returns all notifications.
func (s *NotificationStore) List() []*domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Notification, len(s.notifs))
	copy(out, s.notifs)
	return out
}

// Get returns the notification with the given ID, or nil.
func (s *NotificationStore) Get(id string) *domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.notifs {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// FindByTask returns the first live notification tagged with the given task
// ID and type, or nil. Used for reminder dedup.
func (s *NotificationStore) FindByTask(taskID, typ string) *domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.notifs {
		if n.Data[domain.DataKeyTaskID] == taskID && n.Data[domain.DataKeyType] == typ {
			return n
		}
	}
	return nil
}

// DeleteByID removes the notification with the given ID, persists, and
// cancels its timer. Returns ErrNotFound when no record matches.
func (s *NotificationStore) DeleteByID(id string) error {
	if !s.remove(id) {
		return ErrNotFound
	}

	if s.OnDelete != nil {
		s.OnDelete(id)
	}
	s.logger.Debug().Str("id", id).Msg("Deleted notification")
	s.persist()
	return nil
}

// DeleteFired removes a fired one-shot record without invoking the
// OnDelete hook; the timer has already completed.
func (s *NotificationStore) DeleteFired(id string) {
	if s.remove(id) {
		s.logger.Debug().Str("id", id).Msg("Removed fired notification")
		s.persist()
	}
}

// remove drops the record from the in-memory collection and reports whether
// it existed.
func (s *NotificationStore) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifs {
		if n.ID == id {
			s.notifs = append(s.notifs[:i], s.notifs[i+1:]...)
			return true
		}
	}
	return false
}

func (s *NotificationStore) persist() {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	snapshot := make([]*domain.Notification, len(s.notifs))
	copy(snapshot, s.notifs)
	s.mu.RUnlock()

	if err := s.backend.Save(CollectionNotifications, snapshot); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist notifications")
	}
}
