package scpi

import (
	"fmt"
	"strings"
)

// TransportError reports a failure of the link itself (dial, timeout,
// disconnect, malformed framing). Transport errors are never retried.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// InstrumentError aggregates every message drained from the instrument's
// error queue after a failed operation.
type InstrumentError struct {
	Op       string
	Messages []string
}

func (e *InstrumentError) Error() string {
	return fmt.Sprintf("instrument reported %d error(s) after %s: %s",
		len(e.Messages), e.Op, strings.Join(e.Messages, "; "))
}

// ValidationError rejects a caller-supplied value before any command is
// sent, so no partial instrument state mutation can occur.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// NotFoundError reports a name absent from a live instrument catalog.
// Catalogs are instrument-owned truth and can legitimately lack an entry,
// so this is distinct from a validation failure.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found in instrument catalog", e.Kind, e.Name)
}
