package delivery

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/lifelog-dev/beacon/internal/domain"
	"github.com/lifelog-dev/beacon/internal/push"
	"github.com/lifelog-dev/beacon/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider returns a scripted error per endpoint and records every
// payload it was handed.
type scriptedProvider struct {
	mu       sync.Mutex
	errs     map[string]error
	payloads map[string][]byte
	silent   map[string][]byte
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{
		errs:     make(map[string]error),
		payloads: make(map[string][]byte),
		silent:   make(map[string][]byte),
	}
}

func (p *scriptedProvider) Send(ctx context.Context, sub *domain.Subscription, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads[sub.Endpoint] = payload
	return p.errs[sub.Endpoint]
}

func (p *scriptedProvider) SendSilent(ctx context.Context, sub *domain.Subscription, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.silent[sub.Endpoint] = payload
	return p.errs[sub.Endpoint]
}

func (p *scriptedProvider) sendCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

func newTestSubs(t *testing.T, endpoints ...string) *store.SubscriptionStore {
	t.Helper()
	s := store.NewSubscriptionStore(store.NewMemoryBackend())
	for _, ep := range endpoints {
		require.NoError(t, s.Upsert(&domain.Subscription{
			Endpoint: ep,
			Keys:     domain.SubscriptionKeys{P256dh: "p", Auth: "a"},
		}))
	}
	return s
}

func TestSendToAllDeliversToEveryValidSubscription(t *testing.T) {
	provider := newScriptedProvider()
	subs := newTestSubs(t,
		"https://push.example/wp/a",
		"https://push.example/wp/b",
		"https://push.example/wp/c",
	)
	e := NewEngine(Config{}, provider, subs)

	summary, err := e.SendToAll(context.Background(), &domain.Notification{
		ID:    "n1",
		Title: "Hello",
		Body:  "World",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalAttempted)
	assert.Equal(t, 3, summary.SuccessCount)
	assert.Equal(t, 0, summary.InvalidCount)
	assert.Empty(t, summary.Errors)
	assert.Equal(t, 3, provider.sendCount())
}

func TestSendToAllPrunesGoneEndpointsKeepsTransient(t *testing.T) {
	provider := newScriptedProvider()
	provider.errs["https://push.example/wp/gone"] = &push.DeliveryError{StatusCode: 410}
	provider.errs["https://push.example/wp/flaky"] = &push.DeliveryError{StatusCode: 503}

	subs := newTestSubs(t,
		"https://push.example/wp/ok",
		"https://push.example/wp/gone",
		"https://push.example/wp/flaky",
	)
	e := NewEngine(Config{}, provider, subs)

	summary, err := e.SendToAll(context.Background(), &domain.Notification{ID: "n1", Title: "T"})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalAttempted)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, 1, summary.InvalidCount)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "https://push.example/wp/flaky", summary.Errors[0].Endpoint)
	assert.Equal(t, string(push.CategoryServerError), summary.Errors[0].Category)
	assert.Equal(t, 503, summary.Errors[0].StatusCode)

	// Only the 410 endpoint is gone from the store. Transient failures and
	// successes are retained.
	remaining := map[string]bool{}
	for _, sub := range subs.List() {
		remaining[sub.Endpoint] = true
	}
	assert.False(t, remaining["https://push.example/wp/gone"])
	assert.True(t, remaining["https://push.example/wp/ok"])
	assert.True(t, remaining["https://push.example/wp/flaky"])
}

// unconfiguredProvider reports missing push credentials.
type unconfiguredProvider struct {
	*scriptedProvider
}

func (unconfiguredProvider) Configured() bool { return false }

func TestSendToAllSkipsWhenProviderUnconfigured(t *testing.T) {
	provider := newScriptedProvider()
	subs := newTestSubs(t, "https://push.example/wp/a")
	e := NewEngine(Config{}, unconfiguredProvider{provider}, subs)

	assert.False(t, e.Configured())

	summary, err := e.SendToAll(context.Background(), &domain.Notification{ID: "n1", Title: "T"})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalAttempted)
	assert.Equal(t, 0, provider.sendCount())
}

func TestSendToAllShortCircuitsWithNoValidSubscriptions(t *testing.T) {
	provider := newScriptedProvider()
	e := NewEngine(Config{}, provider, newTestSubs(t))

	summary, err := e.SendToAll(context.Background(), &domain.Notification{ID: "n1", Title: "T"})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.TotalAttempted)
	assert.Equal(t, 0, provider.sendCount())
}

func TestSendToAllPayloadShape(t *testing.T) {
	provider := newScriptedProvider()
	subs := newTestSubs(t, "https://push.example/wp/a")
	e := NewEngine(Config{Icon: "/icon.png"}, provider, subs)

	_, err := e.SendToAll(context.Background(), &domain.Notification{
		ID:    "n1",
		Title: "Hello",
		Body:  "World",
		Data:  map[string]string{"taskId": "42", "type": "task_reminder"},
	})
	require.NoError(t, err)

	raw := provider.payloads["https://push.example/wp/a"]
	require.NotNil(t, raw)

	var got struct {
		Title     string            `json:"title"`
		Body      string            `json:"body"`
		Icon      string            `json:"icon"`
		Timestamp int64             `json:"timestamp"`
		Data      map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Equal(t, "Hello", got.Title)
	assert.Equal(t, "World", got.Body)
	assert.Equal(t, "/icon.png", got.Icon)
	assert.InDelta(t, time.Now().UnixMilli(), got.Timestamp, float64(5*time.Second.Milliseconds()))
	assert.Equal(t, "n1", got.Data["notificationId"])
	assert.Equal(t, "42", got.Data["taskId"])
	assert.Equal(t, "task_reminder", got.Data["type"])
}

func TestSendTestUsesCannedContent(t *testing.T) {
	provider := newScriptedProvider()
	subs := newTestSubs(t, "https://push.example/wp/a")
	e := NewEngine(Config{}, provider, subs)

	summary, err := e.SendTest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SuccessCount)

	var got payload
	require.NoError(t, json.Unmarshal(provider.payloads["https://push.example/wp/a"], &got))
	assert.Equal(t, "Test Notification", got.Title)
	assert.Equal(t, "This is a test notification from the server.", got.Body)
}

func TestValidateAllStampsAndPrunes(t *testing.T) {
	provider := newScriptedProvider()
	provider.errs["https://push.example/wp/gone"] = &push.DeliveryError{StatusCode: 404}
	provider.errs["https://push.example/wp/flaky"] = &push.DeliveryError{StatusCode: 500}

	subs := newTestSubs(t,
		"https://push.example/wp/ok",
		"https://push.example/wp/gone",
		"https://push.example/wp/flaky",
	)
	v := NewValidator(provider, subs)

	report, err := v.ValidateAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.ValidCount)
	assert.Equal(t, 1, report.InvalidCount)
	assert.Equal(t, 1, report.ErrorCount)

	var okSub *domain.Subscription
	for _, sub := range subs.List() {
		if sub.Endpoint == "https://push.example/wp/ok" {
			okSub = sub
		}
		assert.NotEqual(t, "https://push.example/wp/gone", sub.Endpoint)
	}
	require.NotNil(t, okSub)
	require.NotNil(t, okSub.LastValidated)
	assert.WithinDuration(t, time.Now(), *okSub.LastValidated, time.Second)

	// Probes go through the silent path only.
	assert.Equal(t, 0, provider.sendCount())
}

func TestValidateAllPrunesMalformedWithoutProbing(t *testing.T) {
	provider := newScriptedProvider()
	subs := store.NewSubscriptionStore(store.NewMemoryBackend())
	require.NoError(t, subs.Upsert(&domain.Subscription{
		Endpoint: "https://push.example/fcm/send/legacy",
		Keys:     domain.SubscriptionKeys{P256dh: "p", Auth: "a"},
	}))

	v := NewValidator(provider, subs)
	report, err := v.ValidateAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.InvalidCount)
	assert.Equal(t, 0, report.ValidCount)
	assert.Empty(t, provider.silent)
	assert.Empty(t, subs.List())
}
