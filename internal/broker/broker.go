// Package broker defines the replayable job log shared by the producer and
// the regional workers. Adapters live in subpackages.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable marks a retryable failure to reach the underlying log.
	ErrUnavailable = errors.New("broker unavailable")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("broker closed")
)

// Message is one delivered log entry. Payload is opaque to the broker.
type Message struct {
	ID         string
	Payload    []byte
	Deliveries int
}

// Broker is an append-only log with consumer-group delivery.
//
// ReadGroup returns up to count entries that no consumer in group currently
// holds, blocking up to block when none are ready (block <= 0 does not block).
// An empty result on timeout is not an error. Delivered entries join the
// group's pending list attributed to consumer until acknowledged; entries left
// pending longer than the adapter's claim timeout become deliverable again to
// any consumer of the group. Ack ignores unknown or already acked ids.
type Broker interface {
	Append(ctx context.Context, payload []byte) (string, error)
	ReadGroup(ctx context.Context, group, consumer string, count int, block time.Duration) ([]Message, error)
	Ack(ctx context.Context, group string, ids ...string) error
	Pending(ctx context.Context, group string) (int, error)
	Close() error
}

// IsRetryable reports whether err is a transient broker failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// AckError reports a bulk ack that only partly reached the log. Acked of the
// requested ids were acknowledged; the rest stay pending.
type AckError struct {
	Acked int
	Err   error
}

func (e *AckError) Error() string {
	return fmt.Sprintf("ack: %d acknowledged before failure: %v", e.Acked, e.Err)
}

func (e *AckError) Unwrap() error { return e.Err }

// AckedCount returns how many ids a failed Ack still acknowledged.
func AckedCount(err error) int {
	var ae *AckError
	if errors.As(err, &ae) {
		return ae.Acked
	}
	return 0
}
