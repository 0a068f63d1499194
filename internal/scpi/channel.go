// Package scpi implements the command/query link to the instrument.
//
// All instrument traffic goes through the Channel interface: fire-and-forget
// commands, text queries, binary block queries, a completion barrier and an
// error-queue drain. One physical link carries at most one in-flight command,
// so every transport serializes its operations internally.
package scpi

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Channel is the synchronous request/response link to the instrument.
type Channel interface {
	// Write sends a command without reading a response.
	Write(ctx context.Context, cmd string) error

	// Query sends a command and returns the text response with the
	// trailing terminator trimmed.
	Query(ctx context.Context, cmd string) (string, error)

	// QueryBinary sends a command and decodes an IEEE 488.2
	// definite-length block of little-endian float64 values.
	QueryBinary(ctx context.Context, cmd string) ([]float64, error)

	// AwaitCompletion blocks until the instrument reports all prior
	// overlapped operations finished (*OPC?). A positive timeout overrides
	// the link default for this call only; standard measurements can take
	// far longer than an ordinary query.
	AwaitCompletion(ctx context.Context, timeout time.Duration) error

	// DrainErrors reads the instrument error queue until it is empty and
	// returns the accumulated messages in queue order.
	DrainErrors(ctx context.Context) ([]string, error)

	Close() error
}

// maxErrorDrain bounds the SYST:ERR? loop so a garbled link that never
// produces the empty sentinel cannot hang the caller.
const maxErrorDrain = 100

// noError matches the empty-queue sentinel after sign characters are
// stripped; the instrument may prefix the code with '+' or '-'.
const noError = `0,"No error"`

func stripSigns(s string) string {
	return strings.NewReplacer("+", "", "-", "").Replace(s)
}

// drainErrors implements Channel.DrainErrors on top of Query, shared by
// every transport.
func drainErrors(ctx context.Context, ch Channel) ([]string, error) {
	var msgs []string
	for i := 0; i < maxErrorDrain; i++ {
		raw, err := ch.Query(ctx, "SYST:ERR?")
		if err != nil {
			return nil, err
		}
		if stripSigns(strings.TrimSpace(raw)) == noError {
			return msgs, nil
		}
		msgs = append(msgs, strings.TrimSpace(raw))
	}
	return nil, &TransportError{Op: "SYST:ERR?", Err: fmt.Errorf("error queue did not drain after %d reads", maxErrorDrain)}
}

// awaitCompletion implements Channel.AwaitCompletion on top of Query. The
// override timeout is applied as a context deadline; transports honor a
// caller deadline over their link default.
func awaitCompletion(ctx context.Context, ch Channel, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := ch.Query(ctx, "*OPC?")
	if err != nil {
		return err
	}
	if strings.TrimSpace(resp) != "1" {
		return &TransportError{Op: "*OPC?", Err: fmt.Errorf("unexpected response %q", resp)}
	}
	return nil
}
