package push

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigured(t *testing.T) {
	assert.False(t, NewWebPushProvider(Config{}).Configured())
	assert.False(t, NewWebPushProvider(Config{VAPIDPublicKey: "pub"}).Configured())
	assert.True(t, NewWebPushProvider(Config{
		VAPIDPublicKey:  "pub",
		VAPIDPrivateKey: "priv",
	}).Configured())
}

func TestNewWebPushProviderDefaults(t *testing.T) {
	p := NewWebPushProvider(Config{})
	assert.Equal(t, DefaultConfig().TTL, p.config.TTL)
	assert.Equal(t, DefaultConfig().SendTimeout, p.config.SendTimeout)
	assert.Equal(t, "admin@localhost", p.config.Subscriber)
}

func TestDeliveryErrorMessage(t *testing.T) {
	withStatus := &DeliveryError{StatusCode: 410, Body: "gone"}
	assert.Equal(t, "push service returned status 410: gone", withStatus.Error())

	cause := errors.New("dial tcp: connection refused")
	transport := &DeliveryError{Err: cause}
	assert.Contains(t, transport.Error(), "push delivery failed")
	assert.ErrorIs(t, transport, cause)
}
