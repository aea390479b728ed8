package push

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatusCodes(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantCategory Category
		wantInvalid  bool
	}{
		{"not found", 404, CategoryInvalidSubscription, true},
		{"gone", 410, CategoryInvalidSubscription, true},
		{"bad request", 400, CategoryClientError, false},
		{"payload too large", 413, CategoryClientError, false},
		{"too many requests", 429, CategoryClientError, false},
		{"internal error", 500, CategoryServerError, false},
		{"service unavailable", 503, CategoryServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &DeliveryError{StatusCode: tt.status}
			c := Classify(err)
			assert.Equal(t, tt.wantCategory, c.Category)
			assert.Equal(t, tt.status, c.StatusCode)
			assert.Equal(t, tt.wantInvalid, c.IsInvalidSubscription)
		})
	}
}

func TestClassifyWrappedDeliveryError(t *testing.T) {
	err := fmt.Errorf("sending to endpoint: %w", &DeliveryError{StatusCode: 410})
	c := Classify(err)
	assert.Equal(t, CategoryInvalidSubscription, c.Category)
	assert.True(t, c.IsInvalidSubscription)
}

func TestClassifyNetworkErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"deadline exceeded", context.DeadlineExceeded},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "push.example"}},
		{"url error", &url.Error{Op: "Post", URL: "https://push.example", Err: errors.New("EOF")}},
		{"connection refused", syscall.ECONNREFUSED},
		{"connection reset", syscall.ECONNRESET},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err)
			assert.Equal(t, CategoryNetworkError, c.Category)
			assert.False(t, c.IsInvalidSubscription)
		})
	}
}

func TestClassifyUnknownError(t *testing.T) {
	c := Classify(errors.New("something odd"))
	assert.Equal(t, CategoryUnknownError, c.Category)
	assert.False(t, c.IsInvalidSubscription)

	// DeliveryError without a status (transport failure before a response)
	// still follows the transport path, not the status path.
	wrapped := &DeliveryError{Err: context.DeadlineExceeded}
	assert.Equal(t, CategoryNetworkError, Classify(wrapped).Category)
}
