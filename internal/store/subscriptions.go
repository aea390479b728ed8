package store

import (
	"sync"
	"time"

	"github.com/lifelog-dev/beacon/internal/domain"
	"github.com/lifelog-dev/beacon/internal/logging"
	"github.com/rs/zerolog"
)

// SubscriptionStore is the durable collection of push subscriptions.
// Endpoints are unique; upserting an existing endpoint replaces the record.
// Every mutation rewrites the whole collection through the backend. Persist
// failures are logged and the in-memory result stands (best-effort
// durability).
type SubscriptionStore struct {
	backend Backend
	mu      sync.RWMutex
	subs    []*domain.Subscription
	logger  zerolog.Logger

	// persistMu orders snapshot-and-save pairs, so the last write to land
	// on the backend always carries the newest state.
	persistMu sync.Mutex
}

// NewSubscriptionStore creates a subscription store over the given backend.
func NewSubscriptionStore(backend Backend) *SubscriptionStore {
	return &SubscriptionStore{
		backend: backend,
		logger:  logging.Component("subscription-store"),
	}
}

// Load reads the persisted collection and prunes invalid-format
// subscriptions before first use. A corrupt collection resets to empty.
func (s *SubscriptionStore) Load() error {
	var subs []*domain.Subscription
	if err := s.backend.Load(CollectionSubscriptions, &subs); err != nil {
		s.logger.Error().Err(err).Msg("Failed to load subscriptions, resetting to empty collection")
		subs = nil
	}

	kept := subs[:0]
	pruned := 0
	for _, sub := range subs {
		if sub.IsValidFormat() {
			kept = append(kept, sub)
		} else {
			pruned++
		}
	}

	s.mu.Lock()
	s.subs = kept
	s.mu.Unlock()

	if pruned > 0 {
		s.logger.Info().Int("pruned", pruned).Msg("Pruned invalid-format subscriptions on load")
		s.persist()
	}
	s.logger.Info().Int("count", len(kept)).Msg("Loaded subscriptions")
	return nil
}

// Upsert adds a subscription or replaces the record with the same endpoint,
// refreshing its timestamp, then persists.
func (s *SubscriptionStore) Upsert(sub *domain.Subscription) error {
	if sub == nil || sub.Endpoint == "" {
		return ErrInvalidSubscription
	}
	sub.Timestamp = time.Now()

	s.mu.Lock()
	replaced := false
	for i, existing := range s.subs {
		if existing.Endpoint == sub.Endpoint {
			s.subs[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		s.subs = append(s.subs, sub)
	}
	s.mu.Unlock()

	if replaced {
		s.logger.Debug().Str("endpoint", truncateEndpoint(sub.Endpoint)).Msg("Updated existing subscription")
	} else {
		s.logger.Debug().Str("endpoint", truncateEndpoint(sub.Endpoint)).Msg("Added new subscription")
	}
	s.persist()
	return nil
}

// List returns all subscriptions, valid or not.
func (s *SubscriptionStore) List() []*domain.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Subscription, len(s.subs))
	copy(out, s.subs)
	return out
}

// ListValid returns only subscriptions passing the format invariant.
func (s *SubscriptionStore) ListValid() []*domain.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Subscription
	for _, sub := range s.subs {
		if sub.IsValidFormat() {
			out = append(out, sub)
		}
	}
	return out
}

// RemoveByEndpoints removes every subscription whose endpoint is in the
// given set, persists once, and returns the number removed.
func (s *SubscriptionStore) RemoveByEndpoints(endpoints []string) int {
	if len(endpoints) == 0 {
		return 0
	}
	doomed := make(map[string]struct{}, len(endpoints))
	for _, ep := range endpoints {
		doomed[ep] = struct{}{}
	}

	s.mu.Lock()
	kept := s.subs[:0]
	removed := 0
	for _, sub := range s.subs {
		if _, ok := doomed[sub.Endpoint]; ok {
			removed++
		} else {
			kept = append(kept, sub)
		}
	}
	s.subs = kept
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Removed subscriptions")
		s.persist()
	}
	return removed
}

// PruneInvalid removes every subscription failing the format invariant and
// returns the number removed.
func (s *SubscriptionStore) PruneInvalid() int {
	s.mu.Lock()
	kept := s.subs[:0]
	removed := 0
	for _, sub := range s.subs {
		if sub.IsValidFormat() {
			kept = append(kept, sub)
		} else {
			removed++
		}
	}
	s.subs = kept
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Pruned invalid-format subscriptions")
		s.persist()
	}
	return removed
}

// MarkValidated stamps lastValidated on the subscription with the given
// endpoint and persists.
func (s *SubscriptionStore) MarkValidated(endpoint string, at time.Time) {
	s.mu.Lock()
	for _, sub := range s.subs {
		if sub.Endpoint == endpoint {
			t := at
			sub.LastValidated = &t
			break
		}
	}
	s.mu.Unlock()
	s.persist()
}

// Clear removes all subscriptions and returns the prior count.
func (s *SubscriptionStore) Clear() int {
	s.mu.Lock()
	count := len(s.subs)
	s.subs = nil
	s.mu.Unlock()

	s.logger.Info().Int("cleared", count).Msg("Cleared all subscriptions")
	s.persist()
	return count
}

// Count returns the subscription count and the time it was taken.
func (s *SubscriptionStore) Count() (int, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs), time.Now()
}

func (s *SubscriptionStore) persist() {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	snapshot := make([]*domain.Subscription, len(s.subs))
	copy(snapshot, s.subs)
	s.mu.RUnlock()

	if err := s.backend.Save(CollectionSubscriptions, snapshot); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist subscriptions")
	}
}

// truncateEndpoint shortens endpoint URLs for logs; full endpoints identify
// user devices and are noisy.
func truncateEndpoint(endpoint string) string {
	if len(endpoint) > 50 {
		return endpoint[:50] + "..."
	}
	return endpoint
}
