// Package vna drives a vector network analyzer over an instrument command
// channel: session state, measurement name resolution, trace creation per
// measurement class, triggering and trace data acquisition.
//
// Instrument session state (selected measurement, transfer format, byte
// order) is global and mutable on the instrument side, so every operation
// re-asserts the preconditions it depends on instead of trusting state left
// behind by earlier calls.
package vna

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"govna/internal/scpi"
)

// DefaultTimeout is the per-operation deadline used when the caller does not
// supply one.
const DefaultTimeout = 10 * time.Second

// Capabilities holds the fixed hardware facts queried once per session.
type Capabilities struct {
	ID            string
	Options       string
	NumPorts      int
	PortCatalog   []string
	NumSources    int
	SourceCatalog []string
}

// Session is one control session with the analyzer. All operations go
// through the underlying command channel, strictly one at a time.
type Session struct {
	ch      scpi.Channel
	log     *logrus.Entry
	Timeout time.Duration
	Caps    Capabilities
}

// NewSession wraps an open command channel. Capabilities are not queried;
// use Open for a fully populated session.
func NewSession(ch scpi.Channel) *Session {
	return &Session{
		ch:      ch,
		log:     logrus.WithField("component", "vna"),
		Timeout: DefaultTimeout,
	}
}

// Open wraps the channel and queries instrument identity and port topology.
func Open(ctx context.Context, ch scpi.Channel) (*Session, error) {
	s := NewSession(ch)
	if err := s.loadCapabilities(ctx); err != nil {
		return nil, err
	}
	s.log = s.log.WithField("instrument", s.Caps.ID)
	return s, nil
}

func (s *Session) loadCapabilities(ctx context.Context) error {
	var err error
	if s.Caps.ID, err = s.Query(ctx, "*IDN?"); err != nil {
		return fmt.Errorf("failed to identify instrument: %w", err)
	}
	if s.Caps.Options, err = s.Query(ctx, "*OPT?"); err != nil {
		return fmt.Errorf("failed to query options: %w", err)
	}

	raw, err := s.Query(ctx, "system:capability:hardware:ports:count?")
	if err != nil {
		return fmt.Errorf("failed to query port count: %w", err)
	}
	if s.Caps.NumPorts, err = parseInt(raw); err != nil {
		return fmt.Errorf("failed to parse port count: %w", err)
	}

	raw, err = s.Query(ctx, "system:capability:hardware:ports:catalog?")
	if err != nil {
		return fmt.Errorf("failed to query port catalog: %w", err)
	}
	s.Caps.PortCatalog = splitCatalog(raw)

	raw, err = s.Query(ctx, "system:capability:hardware:ports:source:count?")
	if err != nil {
		return fmt.Errorf("failed to query source count: %w", err)
	}
	if s.Caps.NumSources, err = parseInt(raw); err != nil {
		return fmt.Errorf("failed to parse source count: %w", err)
	}

	raw, err = s.Query(ctx, "system:capability:hardware:ports:source:catalog?")
	if err != nil {
		return fmt.Errorf("failed to query source catalog: %w", err)
	}
	s.Caps.SourceCatalog = splitCatalog(raw)
	return nil
}

// Channel exposes the underlying command channel to sibling packages.
func (s *Session) Channel() scpi.Channel { return s.ch }

// Write sends one fire-and-forget command.
func (s *Session) Write(ctx context.Context, cmd string) error {
	return s.ch.Write(ctx, cmd)
}

// Writef formats and sends one fire-and-forget command.
func (s *Session) Writef(ctx context.Context, format string, args ...interface{}) error {
	return s.ch.Write(ctx, fmt.Sprintf(format, args...))
}

// Query sends one query and returns the trimmed response.
func (s *Session) Query(ctx context.Context, cmd string) (string, error) {
	resp, err := s.ch.Query(ctx, cmd)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

// Queryf formats and sends one query.
func (s *Session) Queryf(ctx context.Context, format string, args ...interface{}) (string, error) {
	return s.Query(ctx, fmt.Sprintf(format, args...))
}

// WaitOPC blocks until all prior overlapped commands complete. A zero
// timeout uses the session default.
func (s *Session) WaitOPC(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.Timeout
	}
	return s.ch.AwaitCompletion(ctx, timeout)
}

// ErrCheck drains the instrument error queue and fails the named operation
// if anything was queued. The full message list rides on the error.
func (s *Session) ErrCheck(ctx context.Context, op string) error {
	msgs, err := s.ch.DrainErrors(ctx)
	if err != nil {
		return err
	}
	if len(msgs) > 0 {
		return &scpi.InstrumentError{Op: op, Messages: msgs}
	}
	return nil
}

// Preset restores the instrument to a known state. With clearAll set, all
// windows and traces are removed as well.
func (s *Session) Preset(ctx context.Context, clearAll bool) error {
	if err := s.Write(ctx, "*CLS"); err != nil {
		return err
	}
	cmd := "*RST"
	if clearAll {
		cmd = "system:fpreset"
	}
	if err := s.Write(ctx, cmd); err != nil {
		return err
	}
	return s.WaitOPC(ctx, 0)
}

// ActiveChannel selects the first trace of the given channel and reports the
// instrument's active channel number.
func (s *Session) ActiveChannel(ctx context.Context, ch int) (int, error) {
	names, err := s.MeasurementNames(ctx, ch)
	if err != nil {
		return 0, err
	}
	if len(names) == 0 {
		return 0, &scpi.NotFoundError{Kind: "measurement", Name: fmt.Sprintf("channel %d", ch)}
	}
	if err := s.Writef(ctx, `calculate%d:parameter:select "%s"`, ch, names[0]); err != nil {
		return 0, err
	}
	raw, err := s.Query(ctx, "system:active:channel?")
	if err != nil {
		return 0, err
	}
	return parseInt(raw)
}

// SourceUnleveled reports whether the questionable-integrity register flags
// an unleveled source (bit 2).
func (s *Session) SourceUnleveled(ctx context.Context) (bool, error) {
	raw, err := s.Query(ctx, "status:questionable:integrity:hardware:condition?")
	if err != nil {
		return false, err
	}
	cond, err := parseInt(raw)
	if err != nil {
		return false, fmt.Errorf("failed to parse integrity condition: %w", err)
	}
	return cond&(1<<2) != 0, nil
}

// contains reports catalog membership after trimming.
func contains(list []string, want string) bool {
	for _, v := range list {
		if strings.TrimSpace(v) == want {
			return true
		}
	}
	return false
}

// parseInt converts a numeric-looking instrument response, stripping the
// quotes, sign padding and stray parentheses the instrument is known to
// emit around numbers.
func parseInt(raw string) (int, error) {
	return strconv.Atoi(trimNumeric(raw))
}

// parseFloat converts a numeric instrument response.
func parseFloat(raw string) (float64, error) {
	return strconv.ParseFloat(trimNumeric(raw), 64)
}

func trimNumeric(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"`)
	s = strings.TrimLeft(s, "+")
	s = strings.NewReplacer("(", "", ")", "").Replace(s)
	return strings.TrimSpace(s)
}

// splitCatalog turns a quoted comma-separated catalog response into its
// trimmed entries. An empty response yields no entries.
func splitCatalog(raw string) []string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"`)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
