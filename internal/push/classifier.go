package push

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
)

// Category is the delivery-failure taxonomy. It is the single source of
// truth for whether a subscription gets pruned.
type Category string

const (
	// CategoryInvalidSubscription marks endpoints the push service reports
	// as permanently gone (404/410). These subscriptions are pruned.
	CategoryInvalidSubscription Category = "invalid_subscription"

	// CategoryServerError marks 5xx responses from the push service.
	CategoryServerError Category = "server_error"

	// CategoryClientError marks other 4xx responses.
	CategoryClientError Category = "client_error"

	// CategoryNetworkError marks transport-level failures: DNS, timeouts,
	// connection resets.
	CategoryNetworkError Category = "network_error"

	// CategoryUnknownError marks everything else.
	CategoryUnknownError Category = "unknown_error"
)

// Classification is the classifier's verdict on one delivery failure.
type Classification struct {
	Category              Category
	StatusCode            int
	IsInvalidSubscription bool
}

// Classify maps a delivery failure into the taxonomy. It matches the typed
// *DeliveryError structurally; non-HTTP failures fall through to transport
// inspection.
func Classify(err error) Classification {
	var de *DeliveryError
	if errors.As(err, &de) && de.StatusCode != 0 {
		return classifyStatus(de.StatusCode)
	}
	if isNetworkError(err) {
		return Classification{Category: CategoryNetworkError}
	}
	return Classification{Category: CategoryUnknownError}
}

func classifyStatus(status int) Classification {
	c := Classification{StatusCode: status}
	switch {
	case status == 404 || status == 410:
		c.Category = CategoryInvalidSubscription
		c.IsInvalidSubscription = true
	case status >= 500:
		c.Category = CategoryServerError
	case status >= 400:
		c.Category = CategoryClientError
	default:
		c.Category = CategoryUnknownError
	}
	return c
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED)
}
