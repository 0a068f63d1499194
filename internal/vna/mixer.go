package vna

import (
	"context"
	"strings"
	"time"

	"govna/internal/scpi"
)

// Sideband selects which converter sideband the instrument measures.
type Sideband string

const (
	SidebandLow  Sideband = "low"
	SidebandHigh Sideband = "high"
)

func (sb Sideband) valid() bool {
	return sb == SidebandLow || sb == SidebandHigh
}

// ModSweep configures the carrier sweep of a modulation-distortion channel.
// Only the fixed-frequency sweep type is modeled; the de-embed pipeline uses
// it to re-derive a calibration set's stimulus.
type ModSweep struct {
	CenterFreq float64
	Span       float64
	NoiseBW    float64 // zero keeps the instrument's current noise bandwidth
	Channel    int
}

// ConfigureModSweep applies a fixed-frequency modulation sweep.
func (s *Session) ConfigureModSweep(ctx context.Context, cfg ModSweep) error {
	if cfg.Channel == 0 {
		cfg.Channel = 1
	}
	if err := s.Writef(ctx, "sense%d:distortion:sweep:type fixed", cfg.Channel); err != nil {
		return err
	}
	if err := s.Writef(ctx, "sense%d:distortion:sweep:carrier:frequency %g", cfg.Channel, cfg.CenterFreq); err != nil {
		return err
	}
	if err := s.Writef(ctx, "sense%d:frequency:span %g", cfg.Channel, cfg.Span); err != nil {
		return err
	}
	if cfg.NoiseBW > 0 {
		if err := s.Writef(ctx, "sense%d:sa:bandwidth:noise %g", cfg.Channel, cfg.NoiseBW); err != nil {
			return err
		}
	}
	return s.WaitOPC(ctx, 0)
}

// ConverterMixer fixes the LO frequency and sideband of a converter channel.
// For modulation-distortion converters the input frequency is read back from
// the carrier setting and pinned, then the output side is recalculated.
func (s *Session) ConverterMixer(ctx context.Context, ch int, loFreq float64, sideband Sideband) error {
	if !sideband.valid() {
		return &scpi.ValidationError{Field: "sideband", Value: string(sideband), Reason: "must be low or high"}
	}

	inputFreq, err := s.Queryf(ctx, "sense%d:distortion:sweep:carrier:frequency?", ch)
	if err != nil {
		return err
	}
	if err := s.Writef(ctx, "sense%d:mixer:input:frequency:fixed %s", ch, strings.TrimSpace(inputFreq)); err != nil {
		return err
	}
	if err := s.Writef(ctx, "sense%d:mixer:lo1:frequency:fixed %g", ch, loFreq); err != nil {
		return err
	}
	if err := s.WaitOPC(ctx, 0); err != nil {
		return err
	}

	if err := s.Writef(ctx, "sense%d:mixer:output:frequency:sideband %s", ch, sideband); err != nil {
		return err
	}
	if err := s.Writef(ctx, "sense%d:mixer:calculate output", ch); err != nil {
		return err
	}
	return s.WaitOPC(ctx, 0)
}

// MixerFrequency configures a swept-input mixer: input start/stop, fixed LO,
// and the output sideband, then recalculates the output range.
type MixerFrequency struct {
	StartFreq    float64
	StopFreq     float64
	LOFreq       float64
	Sideband     Sideband
	InputGreater bool // downconverter: input frequency above the LO
	Channel      int
}

// ConfigureMixerFrequency applies a swept mixer frequency plan.
func (s *Session) ConfigureMixerFrequency(ctx context.Context, cfg MixerFrequency) error {
	if cfg.Channel == 0 {
		cfg.Channel = 1
	}
	if !cfg.Sideband.valid() {
		return &scpi.ValidationError{Field: "sideband", Value: string(cfg.Sideband), Reason: "must be low or high"}
	}

	if err := s.Writef(ctx, "sense%d:mixer:input:frequency:start %g", cfg.Channel, cfg.StartFreq); err != nil {
		return err
	}
	if err := s.Writef(ctx, "sense%d:mixer:input:frequency:stop %g", cfg.Channel, cfg.StopFreq); err != nil {
		return err
	}
	if err := s.Writef(ctx, "sense%d:mixer:lo:frequency:fixed %g", cfg.Channel, cfg.LOFreq); err != nil {
		return err
	}
	ilti := 0
	if cfg.InputGreater {
		ilti = 1
	}
	if err := s.Writef(ctx, "sense%d:mixer:lo:frequency:ilti %d", cfg.Channel, ilti); err != nil {
		return err
	}
	if err := s.Writef(ctx, "sense%d:mixer:output:frequency:sideband %s", cfg.Channel, cfg.Sideband); err != nil {
		return err
	}
	if err := s.Writef(ctx, "sense%d:mixer:calculate output", cfg.Channel); err != nil {
		return err
	}
	return s.WaitOPC(ctx, 0)
}

// TuningMethod selects how the embedded-LO search tunes.
type TuningMethod string

const (
	TuningBroadband TuningMethod = "broadband"
	TuningPrecise   TuningMethod = "precise"
	TuningNone      TuningMethod = "none"
)

// EmbeddedLO configures the embedded-LO search for mixer measurements. One
// parameterized operation covers both command dialects: converter
// modulation-distortion channels take the noise bandwidth key, all other
// converter channels take the IF bandwidth key plus a normalize point.
type EmbeddedLO struct {
	Method        TuningMethod
	SweepInterval int
	Span          float64
	Bandwidth     float64 // NBW for converter mod channels, IFBW otherwise
	Iterations    int
	Tolerance     float64
	TuningPoint   int // normalize point; ignored for converter mod channels
	Converter     bool
	Enable        bool
	Channel       int
}

// ConfigureEmbeddedLO applies the embedded-LO search settings. The
// instrument needs a settling pause before the enable state is honored.
func (s *Session) ConfigureEmbeddedLO(ctx context.Context, cfg EmbeddedLO) error {
	if cfg.Channel == 0 {
		cfg.Channel = 1
	}
	switch cfg.Method {
	case TuningBroadband, TuningPrecise, TuningNone:
	default:
		return &scpi.ValidationError{Field: "tuning method", Value: string(cfg.Method), Reason: "must be broadband, precise or none"}
	}

	if err := s.Writef(ctx, "sense%d:mixer:elo:tuning:mode %s", cfg.Channel, cfg.Method); err != nil {
		return err
	}
	if !cfg.Converter {
		if err := s.Writef(ctx, "sense%d:mixer:elo:normalize:point %d", cfg.Channel, cfg.TuningPoint); err != nil {
			return err
		}
	}
	if err := s.Writef(ctx, "sense%d:mixer:elo:tuning:interval %d", cfg.Channel, cfg.SweepInterval); err != nil {
		return err
	}
	if err := s.Writef(ctx, "sense%d:mixer:elo:tuning:span %g", cfg.Channel, cfg.Span); err != nil {
		return err
	}
	bwKey := "ifbw"
	if cfg.Converter {
		bwKey = "nbw"
	}
	if err := s.Writef(ctx, "sense%d:mixer:elo:tuning:%s %g", cfg.Channel, bwKey, cfg.Bandwidth); err != nil {
		return err
	}
	if err := s.Writef(ctx, "sense%d:mixer:elo:tuning:iterations %d", cfg.Channel, cfg.Iterations); err != nil {
		return err
	}
	if err := s.Writef(ctx, "sense%d:mixer:elo:tuning:tolerance %g", cfg.Channel, cfg.Tolerance); err != nil {
		return err
	}

	time.Sleep(time.Second)

	enable := 0
	if cfg.Enable {
		enable = 1
	}
	return s.Writef(ctx, "sense%d:mixer:elo:state %d", cfg.Channel, enable)
}

// LOFrequencyDelta reports the offset the embedded-LO search measured
// between the expected and actual LO frequency.
func (s *Session) LOFrequencyDelta(ctx context.Context, ch int) (float64, error) {
	raw, err := s.Queryf(ctx, "sense%d:mixer:elo:lo:delta?", ch)
	if err != nil {
		return 0, err
	}
	return parseFloat(raw)
}
