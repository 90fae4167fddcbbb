// Package notify delivers alert messages and formats them. Delivery is a
// single attempt per recipient: the state already counted the alert, and
// retry loops here would turn a flaky network into a notification storm.
package notify

import "context"

// FailureKind classifies a delivery failure.
type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureNetwork     FailureKind = "network"
	FailureAuth        FailureKind = "auth"
	FailureRateLimited FailureKind = "rate_limited"
	FailureRejected    FailureKind = "rejected"
)

// DeliveryResult is the outcome of sending one message to one recipient.
type DeliveryResult struct {
	Recipient string
	OK        bool
	Kind      FailureKind
	Detail    string
}

// Notifier sends a message to all configured recipients and reports the
// outcome per recipient. Implementations must not retry.
type Notifier interface {
	// Enabled reports whether the notifier has usable credentials.
	Enabled() bool
	Send(ctx context.Context, text string) []DeliveryResult
}
