package twinsync

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service implementations translate their native failures into these sentinels
// so that the provisioning logic can tell expected conditions apart from real
// failures. Wrap them with fmt.Errorf and %w; callers match with errors.Is.
var (
	// ErrNotFound reports that the queried entity, component type or workspace
	// does not exist. It is expected, and drives creation.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists reports a create call that lost a race against another
	// creator (or a previous run). Provisioning treats it as success.
	ErrAlreadyExists = errors.New("already exists")
)

// Kinds of failures surfaced by this package. Each has a concrete error type
// that matches its kind with errors.Is.
var (
	ErrProvisioningTimeout   = errors.New("provisioning timeout")
	ErrProvisioningFailed    = errors.New("provisioning failed")
	ErrCyclicParentReference = errors.New("cyclic parent reference")
	ErrTransport             = errors.New("transport or auth failure")
)

// A ProvisioningTimeoutError is returned by Waiter.Await when a resource does
// not reach the ACTIVE state within the configured timeout.
type ProvisioningTimeoutError struct {
	Resource  string        // Human-readable identity, e.g. "entity pump-7".
	LastState State         // The last state observed before giving up (maybe empty).
	Waited    time.Duration // How long we waited in total.
}

func (e *ProvisioningTimeoutError) Error() string {
	last := string(e.LastState)
	if last == "" {
		last = "unknown"
	}
	return fmt.Sprintf("%v not active after %v (last state %v)", e.Resource, e.Waited.Round(time.Millisecond), last)
}

func (e *ProvisioningTimeoutError) Is(target error) bool { return target == ErrProvisioningTimeout }

// A CyclicParentReferenceError is returned by Resolver.Resolve when following
// parent_entity_id references within the input set leads back to an entity
// already on the current resolution path.
//
// Chain lists the entity ids from the record being resolved up to, and
// including, the repeated id.
type CyclicParentReferenceError struct {
	Chain []string
}

func (e *CyclicParentReferenceError) Error() string {
	return "parent chain " + strings.Join(e.Chain, " -> ") + " forms a cycle"
}

func (e *CyclicParentReferenceError) Is(target error) bool { return target == ErrCyclicParentReference }

// A TransportError wraps any failure of a collaborator (remote service, blob
// store, credentials) that is neither ErrNotFound nor ErrAlreadyExists. These
// are never retried here; retry policy belongs to the collaborators.
type TransportError struct {
	Op  string // The failed operation, e.g. "get entity".
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Call transportError to classify err as returned by operation op. Expected
// conditions (nil, ErrNotFound, ErrAlreadyExists) and already classified
// errors pass through unchanged.
func transportError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrTransport):
		return err
	}
	return &TransportError{Op: op, Err: err}
}
