// Package push wraps the web-push transport behind a small adapter that
// produces typed delivery errors, and classifies those errors into the
// taxonomy that drives subscription pruning.
package push

import (
	"context"
	"fmt"
	"io"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/lifelog-dev/beacon/internal/domain"
	"github.com/lifelog-dev/beacon/internal/logging"
	"github.com/rs/zerolog"
)

// Config contains push provider configuration.
type Config struct {
	// VAPID key pair identifying this application server.
	VAPIDPublicKey  string
	VAPIDPrivateKey string

	// Contact address sent to the push service (mailto: is added by the
	// library).
	Subscriber string

	// How long the push service should retain undelivered messages.
	TTL time.Duration

	// Per-send timeout. Expiry surfaces to the classifier as a network
	// error.
	SendTimeout time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Subscriber:  "admin@localhost",
		TTL:         24 * time.Hour,
		SendTimeout: 30 * time.Second,
	}
}

// DeliveryError is the single typed failure value produced by the provider
// adapter. StatusCode is zero for transport-level failures, in which case
// Err holds the underlying cause.
type DeliveryError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("push service returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("push delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// WebPushProvider delivers payloads over the Web Push protocol using VAPID
// authentication.
type WebPushProvider struct {
	config Config
	logger zerolog.Logger
}

var _ domain.PushProvider = (*WebPushProvider)(nil)

// NewWebPushProvider creates a provider from the given configuration.
func NewWebPushProvider(config Config) *WebPushProvider {
	if config.TTL == 0 {
		config.TTL = DefaultConfig().TTL
	}
	if config.SendTimeout == 0 {
		config.SendTimeout = DefaultConfig().SendTimeout
	}
	if config.Subscriber == "" {
		config.Subscriber = DefaultConfig().Subscriber
	}
	return &WebPushProvider{
		config: config,
		logger: logging.Component("push-provider"),
	}
}

// Configured reports whether a VAPID key pair is present. Without one the
// push service rejects every request, so delivery is skipped entirely.
func (p *WebPushProvider) Configured() bool {
	return p.config.VAPIDPublicKey != "" && p.config.VAPIDPrivateKey != ""
}

// PublicKey returns the VAPID public key clients subscribe with.
func (p *WebPushProvider) PublicKey() string {
	return p.config.VAPIDPublicKey
}

// Send dispatches payload to the subscription's push service.
func (p *WebPushProvider) Send(ctx context.Context, sub *domain.Subscription, payload []byte) error {
	return p.send(ctx, sub, payload, webpush.UrgencyNormal, p.config.TTL)
}

// SendSilent dispatches a probe with very-low urgency and a short TTL so
// the push service drops it quickly if the device is offline.
func (p *WebPushProvider) SendSilent(ctx context.Context, sub *domain.Subscription, payload []byte) error {
	return p.send(ctx, sub, payload, webpush.UrgencyVeryLow, time.Minute)
}

func (p *WebPushProvider) send(ctx context.Context, sub *domain.Subscription, payload []byte, urgency webpush.Urgency, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.SendTimeout)
	defer cancel()

	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, s, &webpush.Options{
		Subscriber:      p.config.Subscriber,
		VAPIDPublicKey:  p.config.VAPIDPublicKey,
		VAPIDPrivateKey: p.config.VAPIDPrivateKey,
		TTL:             int(ttl.Seconds()),
		Urgency:         urgency,
	})
	if err != nil {
		p.logger.Debug().Err(err).Msg("Push request failed before a response")
		return &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &DeliveryError{StatusCode: resp.StatusCode, Body: string(body)}
}
