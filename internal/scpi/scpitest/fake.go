// Package scpitest provides a scripted in-memory Channel for tests.
package scpitest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"govna/internal/scpi"
)

// Fake is a scripted scpi.Channel. Queries are answered from Responses
// (fixed) or Queued (consumed in order, taking precedence); binary queries
// from BinaryData. Every command sent over the link is recorded in Commands.
type Fake struct {
	mu sync.Mutex

	// Responses maps a query to its fixed response.
	Responses map[string]string

	// Queued maps a query to responses consumed one per call, ahead of
	// Responses. Lets a catalog change between calls.
	Queued map[string][]string

	// BinaryData maps a binary query to its decoded payload.
	BinaryData map[string][]float64

	// DrainResults is consumed one element per DrainErrors call; when
	// exhausted the queue reads empty.
	DrainResults [][]string

	// WriteErrs fails Write for commands containing the key.
	WriteErrs map[string]error

	// OPCErr, when set, fails every AwaitCompletion call.
	OPCErr error

	// Commands records every command sent, writes and queries alike.
	Commands []string

	// OPCWaits counts AwaitCompletion calls.
	OPCWaits int
}

// New returns an empty scripted channel.
func New() *Fake {
	return &Fake{
		Responses:  map[string]string{},
		Queued:     map[string][]string{},
		BinaryData: map[string][]float64{},
		WriteErrs:  map[string]error{},
	}
}

func (f *Fake) Write(ctx context.Context, cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = append(f.Commands, cmd)
	for substr, err := range f.WriteErrs {
		if strings.Contains(cmd, substr) {
			return err
		}
	}
	return nil
}

func (f *Fake) Query(ctx context.Context, cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = append(f.Commands, cmd)
	if q, ok := f.Queued[cmd]; ok && len(q) > 0 {
		f.Queued[cmd] = q[1:]
		return q[0], nil
	}
	if resp, ok := f.Responses[cmd]; ok {
		return resp, nil
	}
	return "", &scpi.TransportError{Op: cmd, Err: fmt.Errorf("no scripted response")}
}

func (f *Fake) QueryBinary(ctx context.Context, cmd string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = append(f.Commands, cmd)
	if data, ok := f.BinaryData[cmd]; ok {
		return data, nil
	}
	return nil, &scpi.TransportError{Op: cmd, Err: fmt.Errorf("no scripted binary response")}
}

func (f *Fake) AwaitCompletion(ctx context.Context, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OPCWaits++
	return f.OPCErr
}

func (f *Fake) DrainErrors(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.DrainResults) == 0 {
		return nil, nil
	}
	msgs := f.DrainResults[0]
	f.DrainResults = f.DrainResults[1:]
	return msgs, nil
}

func (f *Fake) Close() error { return nil }

// Sent reports whether any recorded command contains substr.
func (f *Fake) Sent(substr string) bool {
	return f.CountSent(substr) > 0
}

// CountSent counts recorded commands containing substr.
func (f *Fake) CountSent(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, cmd := range f.Commands {
		if strings.Contains(cmd, substr) {
			n++
		}
	}
	return n
}
