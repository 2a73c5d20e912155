package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DriverNATS selects the NATS backend.
	DriverNATS = "nats"
	// DriverNone disables messaging; publishes are dropped and Consume blocks until ctx ends.
	DriverNone = "none"
)

// ErrUnknownDriver indicates an unsupported messaging driver.
var ErrUnknownDriver = errors.New("messaging: unknown driver")

// NewFromDriver constructs a Messaging implementation by driver name.
func NewFromDriver(driver string, nats NATSConfig) (Messaging, error) {
	switch strings.TrimSpace(driver) {
	case DriverNATS:
		return NewNATS(nats)
	case DriverNone, "":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

// Noop is a Messaging that drops everything.
type Noop struct{}

func (Noop) Close() error { return nil }

func (Noop) Publish(_ context.Context, subject string, _ OutgoingMessage) (PublishResult, error) {
	return PublishResult{Subject: subject, Timestamp: time.Now()}, nil
}

func (Noop) Consume(ctx context.Context, _ string, _ Handler, _ ...ConsumeOption) error {
	<-ctx.Done()
	return ctx.Err()
}
