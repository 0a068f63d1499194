package vna

import (
	"context"
	"fmt"
	"strings"

	"govna/internal/frame"
)

// TracePair is one acquired frequency/data vector pair. The vectors share
// identical length and point-for-point correspondence; the length is the
// channel's sweep point count at acquisition time.
type TracePair struct {
	Freq []float64
	Data []float64
}

// assertTransferFormat re-negotiates byte order and element type before a
// binary read. Transfer format is session-global mutable state that another
// caller may have changed, so it is re-asserted on every decode.
func (s *Session) assertTransferFormat(ctx context.Context) error {
	if err := s.Write(ctx, "format:border swap"); err != nil {
		return err
	}
	return s.Write(ctx, "format real,64")
}

// AcquireTrace pulls the formatted data and frequency vectors of a named
// measurement.
func (s *Session) AcquireTrace(ctx context.Context, name string, ch int) (*TracePair, error) {
	if name == "" {
		return nil, fmt.Errorf("measurement name must not be empty")
	}
	if _, err := s.MeasurementNumber(ctx, name, ch); err != nil {
		return nil, err
	}
	if err := s.assertTransferFormat(ctx); err != nil {
		return nil, err
	}

	data, err := s.ch.QueryBinary(ctx, fmt.Sprintf("calculate%d:data? fdata", ch))
	if err != nil {
		return nil, err
	}
	if err := s.WaitOPC(ctx, 0); err != nil {
		return nil, err
	}

	freq, err := s.ch.QueryBinary(ctx, fmt.Sprintf("calculate%d:x?", ch))
	if err != nil {
		return nil, err
	}
	if err := s.WaitOPC(ctx, 0); err != nil {
		return nil, err
	}

	if len(freq) != len(data) {
		return nil, &frame.LayoutError{Op: fmt.Sprintf("trace %q frequency/data pairing", name), Got: len(data), Want: len(freq)}
	}
	return &TracePair{Freq: freq, Data: data}, nil
}

// SweepPoints reports the channel's configured sweep point count. The count
// is mutable instrument state and must be queried per acquisition, never
// assumed constant across calls.
func (s *Session) SweepPoints(ctx context.Context, ch int) (int, error) {
	raw, err := s.Queryf(ctx, "sense%d:sweep:points?", ch)
	if err != nil {
		return 0, err
	}
	points, err := parseInt(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse sweep point count: %w", err)
	}
	return points, nil
}

// SaveSNP stores an sNp file of the measurement on the instrument's own
// filesystem for the given ports.
func (s *Session) SaveSNP(ctx context.Context, name, fileName string, ports []int, ch int) error {
	num, err := s.MeasurementNumber(ctx, name, ch)
	if err != nil {
		return err
	}
	portStrs := make([]string, len(ports))
	for i, p := range ports {
		portStrs[i] = fmt.Sprint(p)
	}
	return s.Writef(ctx, `calculate%d:measure%d:data:snp:ports:save "%s","%s"`,
		ch, num, strings.Join(portStrs, ","), fileName)
}

// LoadSNP loads sNp data from a file on the instrument into a new channel.
func (s *Session) LoadSNP(ctx context.Context, fileName string) error {
	if err := s.Writef(ctx, `mmemory:load "%s"`, fileName); err != nil {
		return err
	}
	return s.WaitOPC(ctx, 0)
}
