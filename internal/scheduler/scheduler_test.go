package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lifelog-dev/beacon/internal/domain"
	"github.com/lifelog-dev/beacon/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDeliverer collects SendToAll calls and signals each one.
type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []*domain.Notification
	signal    chan string
}

func newRecordingDeliverer() *recordingDeliverer {
	return &recordingDeliverer{signal: make(chan string, 16)}
}

func (d *recordingDeliverer) SendToAll(ctx context.Context, n *domain.Notification) (*domain.DeliverySummary, error) {
	d.mu.Lock()
	d.delivered = append(d.delivered, n)
	d.mu.Unlock()
	d.signal <- n.ID
	return &domain.DeliverySummary{}, nil
}

func (d *recordingDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.delivered)
}

func (d *recordingDeliverer) waitFor(t *testing.T, id string, timeout time.Duration) {
	t.Helper()
	select {
	case got := <-d.signal:
		assert.Equal(t, id, got)
	case <-time.After(timeout):
		t.Fatalf("notification %s not delivered within %v", id, timeout)
	}
}

func testNotification(id string, at time.Time) *domain.Notification {
	return &domain.Notification{
		ID:            id,
		Title:         "Test",
		ScheduledTime: at,
		Repeat:        domain.RepeatNone,
	}
}

func TestScheduleDeliversPastNotificationImmediately(t *testing.T) {
	d := newRecordingDeliverer()
	s := NewScheduler(DefaultConfig(), d)
	defer s.Shutdown(context.Background())

	s.Schedule(testNotification("past", time.Now().Add(-time.Minute)))

	// Immediate delivery is synchronous, no timer is left behind.
	assert.Equal(t, 1, d.count())
	assert.Equal(t, 0, s.PendingCount())
}

func TestScheduleFiresAtScheduledTime(t *testing.T) {
	d := newRecordingDeliverer()
	s := NewScheduler(DefaultConfig(), d)
	defer s.Shutdown(context.Background())

	s.Schedule(testNotification("soon", time.Now().Add(30*time.Millisecond)))
	assert.Equal(t, 1, s.PendingCount())

	d.waitFor(t, "soon", time.Second)
	assert.Eventually(t, func() bool { return s.PendingCount() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestScheduleRearmsWhenDelayExceedsCap(t *testing.T) {
	d := newRecordingDeliverer()
	// A tiny cap forces several re-armings before the scheduled time.
	s := NewScheduler(Config{MaxTimerDelay: 20 * time.Millisecond}, d)
	defer s.Shutdown(context.Background())

	s.Schedule(testNotification("capped", time.Now().Add(90*time.Millisecond)))

	// Nothing may fire while the true wait is still running.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, d.count())
	assert.Equal(t, 1, s.PendingCount())

	d.waitFor(t, "capped", time.Second)
	assert.Equal(t, 1, d.count())
}

func TestScheduleReplacesExistingTimer(t *testing.T) {
	d := newRecordingDeliverer()
	s := NewScheduler(DefaultConfig(), d)
	defer s.Shutdown(context.Background())

	n := testNotification("moved", time.Now().Add(time.Hour))
	s.Schedule(n)

	// Re-scheduling the same ID closer in time replaces the original timer
	// and fires once, not twice.
	moved := testNotification("moved", time.Now().Add(20*time.Millisecond))
	s.Schedule(moved)
	assert.Equal(t, 1, s.PendingCount())

	d.waitFor(t, "moved", time.Second)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, d.count())
}

func TestRescheduleToPastClearsArmedTimer(t *testing.T) {
	d := newRecordingDeliverer()
	s := NewScheduler(DefaultConfig(), d)
	defer s.Shutdown(context.Background())

	s.Schedule(testNotification("moved-back", time.Now().Add(50*time.Millisecond)))
	require.Equal(t, 1, s.PendingCount())

	// Moving the same ID into the past delivers immediately and must also
	// disarm the original timer.
	s.Schedule(testNotification("moved-back", time.Now().Add(-time.Second)))
	assert.Equal(t, 1, d.count())
	assert.Equal(t, 0, s.PendingCount())

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, d.count())
}

func TestCancelPreventsDelivery(t *testing.T) {
	d := newRecordingDeliverer()
	s := NewScheduler(DefaultConfig(), d)
	defer s.Shutdown(context.Background())

	s.Schedule(testNotification("doomed", time.Now().Add(40*time.Millisecond)))
	s.Cancel("doomed")
	assert.Equal(t, 0, s.PendingCount())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, d.count())
}

func TestCancelIsIdempotent(t *testing.T) {
	d := newRecordingDeliverer()
	s := NewScheduler(DefaultConfig(), d)
	defer s.Shutdown(context.Background())

	s.Cancel("never-existed")

	s.Schedule(testNotification("once", time.Now().Add(time.Hour)))
	s.Cancel("once")
	s.Cancel("once")
	assert.Equal(t, 0, s.PendingCount())
}

func TestOnFiredInvokedForOneShot(t *testing.T) {
	d := newRecordingDeliverer()
	s := NewScheduler(DefaultConfig(), d)
	defer s.Shutdown(context.Background())

	fired := make(chan string, 1)
	s.OnFired = func(id string) { fired <- id }

	s.Schedule(testNotification("oneshot", time.Now().Add(-time.Second)))

	select {
	case id := <-fired:
		assert.Equal(t, "oneshot", id)
	case <-time.After(time.Second):
		t.Fatal("OnFired hook not invoked")
	}
}

func TestOnFiredSkippedForRecurring(t *testing.T) {
	d := newRecordingDeliverer()
	s := NewScheduler(DefaultConfig(), d)
	defer s.Shutdown(context.Background())

	fired := make(chan string, 1)
	s.OnFired = func(id string) { fired <- id }

	n := testNotification("daily", time.Now().Add(-time.Second))
	n.Repeat = domain.RepeatDaily
	s.Schedule(n)

	// Delivery happens, but recurring notifications keep their record.
	assert.Equal(t, 1, d.count())
	select {
	case <-fired:
		t.Fatal("OnFired must not run for recurring notifications")
	default:
	}
}

func TestRecoveryReschedulesPersistedNotifications(t *testing.T) {
	backend := store.NewMemoryBackend()

	// Persist one overdue and one future notification, as if a previous
	// process had crashed with both pending.
	seed := store.NewNotificationStore(backend)
	seed.Create(store.CreateInput{Title: "Missed", ScheduledTime: time.Now().Add(-time.Hour)})
	seed.Create(store.CreateInput{Title: "Upcoming", ScheduledTime: time.Now().Add(time.Hour)})

	notifs := store.NewNotificationStore(backend)
	require.NoError(t, notifs.Load())

	d := newRecordingDeliverer()
	s := NewScheduler(DefaultConfig(), d)
	defer s.Shutdown(context.Background())

	for _, n := range notifs.List() {
		s.Schedule(n)
	}

	// The overdue one fires immediately, the future one is re-armed.
	assert.Equal(t, 1, d.count())
	assert.Equal(t, "Missed", d.delivered[0].Title)
	assert.Equal(t, 1, s.PendingCount())
}

func TestShutdownStopsAllTimers(t *testing.T) {
	d := newRecordingDeliverer()
	s := NewScheduler(DefaultConfig(), d)

	s.Schedule(testNotification("a", time.Now().Add(time.Hour)))
	s.Schedule(testNotification("b", time.Now().Add(2*time.Hour)))
	assert.Equal(t, 2, s.PendingCount())

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, 0, s.PendingCount())
}
