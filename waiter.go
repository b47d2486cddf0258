package twinsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Defaults applied to the zero fields of a WaitPolicy.
const (
	DefaultActivationTimeout = 5 * time.Minute
	DefaultInitialInterval   = 500 * time.Millisecond
	DefaultMaxInterval       = 5 * time.Second
)

// WaitPolicy bounds how a Waiter polls for activation. The zero value is valid
// and selects the defaults above.
type WaitPolicy struct {
	// Timeout bounds the total time spent waiting for a single resource.
	Timeout time.Duration
	// InitialInterval is the pause after the first unsuccessful poll; pauses grow
	// exponentially up to MaxInterval.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p WaitPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = orDefault(p.InitialInterval, DefaultInitialInterval)
	b.MaxInterval = orDefault(p.MaxInterval, DefaultMaxInterval)
	b.MaxElapsedTime = orDefault(p.Timeout, DefaultActivationTimeout)
	b.Reset()
	return b
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// A Poller reports the current provisioning status of a single resource.
type Poller func(ctx context.Context) (Status, error)

// A Waiter converts "creation accepted" into "safe to reference as a
// dependency" by polling a resource until it becomes ACTIVE.
//
// It must be used after every creation whose result a subsequent creation
// depends on.
type Waiter struct {
	Policy WaitPolicy
}

// errNotActive signals the backoff loop to poll again.
var errNotActive = errors.New("not active yet")

// Await blocks until poll reports StateActive, the policy's timeout elapses,
// or ctx is done.
//
// A poll that fails with ErrNotFound is treated as "not yet visible", since
// services may acknowledge a create before reads observe it. A poll reporting
// StateError fails immediately with an error wrapping ErrProvisioningFailed.
// Any other poll failure aborts the wait and is returned as a *TransportError.
// On timeout, Await returns a *ProvisioningTimeoutError.
func (w Waiter) Await(ctx context.Context, resource string, poll Poller) (err error) {
	ctx, span := tracer.Start(ctx, "Await", trace.WithAttributes(
		attribute.String("resource", resource),
	))
	defer span.End()
	logger := component.Logger(ctx).With("resource", resource)

	start := time.Now()
	defer func() {
		measureActivation(ctx, err == nil, time.Since(start))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	var (
		last  State
		polls int
	)
	operation := func() error {
		polls++
		status, err := poll(ctx)
		if errors.Is(err, ErrNotFound) {
			return errNotActive
		}
		if err != nil {
			return backoff.Permanent(transportError("poll "+resource, err))
		}
		last = status.State
		switch status.State {
		case StateActive:
			return nil
		case StateError:
			return backoff.Permanent(fmt.Errorf("%v: %w: %v", resource, ErrProvisioningFailed, status.Message))
		}
		return errNotActive
	}

	err = backoff.Retry(operation, backoff.WithContext(w.Policy.backOff(), ctx))
	span.SetAttributes(attribute.Int("polls", polls))
	if errors.Is(err, errNotActive) {
		return &ProvisioningTimeoutError{Resource: resource, LastState: last, Waited: time.Since(start)}
	}
	if err != nil {
		return err
	}
	logger.Debug("Resource is active", "polls", polls, "elapsed", time.Since(start))
	return nil
}
