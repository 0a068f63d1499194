package vna

import (
	"context"
	"fmt"

	"govna/internal/scpi"
)

// Class identifies a measurement class. The class constrains which parameter
// tags are valid and which downstream queries apply; the relation is closed
// and enumerable, so trace creation is one generic operation validated
// against a per-class table instead of a procedure per class.
type Class int

const (
	Standard Class = iota
	ModDistortion
	ModDistortionConverters
	GainCompression
	GainCompressionConverters
	ScalarMixerConverter
	NoiseFigure
	NoiseFigureConverters
	SpectrumAnalyzer
)

// instrumentName is the class string the CALC:CUST:DEF command expects.
func (c Class) instrumentName() string {
	switch c {
	case ModDistortion:
		return "Modulation Distortion"
	case ModDistortionConverters:
		return "Modulation Distortion Converters"
	case GainCompression:
		return "Gain Compression"
	case GainCompressionConverters:
		return "Gain Compression Converters"
	case ScalarMixerConverter:
		return "Scalar Mixer/Converter"
	case NoiseFigure:
		return "Noise Figure"
	case NoiseFigureConverters:
		return "Noise Figure Converters"
	case SpectrumAnalyzer:
		return "Spectrum Analyzer"
	default:
		return "Standard"
	}
}

func (c Class) String() string { return c.instrumentName() }

// modParams is shared by the modulation-distortion classes; the converter
// class accepts the identical tag set.
var modParams = []string{
	"PIn1", "POut1", "POut2", "PModFile", "MSig1", "MSig2", "MDist1", "MDist2",
	"MDistIR1", "MDistIR2", "MGain21", "MGain12", "PGain21", "PGain12",
	"MComp21", "MComp12", "LMatch1", "LMatch2", "CarrIn1", "CarrIn2",
	"CarrOut1", "CarrOut2", "NPRIn1", "NPRIn2", "NPROut1", "NPROut2",
	"NPRDist21", "NPRDist12", "NPRPwrOut1", "NPRPwrOut2", "ACPIn1", "ACPIn2",
	"ACPOut1", "ACPOut2", "ACPDist21", "ACPDist12", "ACPPwrIn1", "ACPPwrIn2",
	"ACPPwrOut1", "ACPPwrOut2", "EVMDistEq21", "EVMDistEq12", "EVMDistUn21",
	"EVMDistUn12", "EVMPwrIn1", "EVMPwrIn2", "EVMPwrOut1", "EVMPwrOut2",
	"ModFilter", "A", "B", "C", "D", "a1", "a2", "a3", "a4", "b1", "b3", "b4",
	"R1", "R2", "R3", "R4", "S11", "S21", "LPIn1", "LPOut1", "LPOut2",
	"PIn2",
}

var classParams = map[Class][]string{
	Standard: standardParams(),
	ModDistortion:           modParams,
	ModDistortionConverters: modParams,
	GainCompression: {
		"S21", "S11", "S12", "S22", "CompIn21", "CompOut21", "DeltaGain21",
		"CompGain21", "CompS11", "RefS21", "CompIn12", "CompOut12",
		"DeltaGain12", "CompGain12", "CompS22", "RefS12",
	},
	GainCompressionConverters: {
		"S21", "S11", "S12", "S22", "CompIn21", "CompOut21", "DeltaGain21",
		"CompGain21", "CompS11", "RefS21", "SC21", "SC12", "Ipwr", "RevIPwr",
		"Opwr", "RevOPwr",
	},
	ScalarMixerConverter: {
		"SC21", "SC12", "S11", "S22", "Ipwr", "RevIPwr", "Opwr", "RevOPwr",
	},
	NoiseFigure: {
		"NF", "ENR", "T-Eff", "DUTRNP", "DUTRNPI", "SYSRNP", "SYSRNPI",
		"DUTNPD", "DUTNPDI", "SYSNPD", "SYSNPDI", "OvrRng", "T-Rcvr",
		"S11", "S21", "S12", "S22", "GammaOpt", "Rn", "NFMin",
	},
	NoiseFigureConverters: {
		"NF", "ENR", "T-Eff", "DUTRNP", "DUTRNPI", "SYSRNP", "SYSRNPI",
		"DUTNPD", "DUTNPDI", "SYSNPD", "SYSNPDI", "OvrRng", "T-Rcvr",
		"S11", "SC21", "SC12", "S22", "Ipwr", "RevIPwr", "Opwr", "RevOPwr",
	},
	SpectrumAnalyzer: {
		"B", "A", "R1", "R2", "b1", "b2", "a1", "a2",
	},
}

// standardParams builds the closed tag set of a standard channel: every
// S-parameter over four ports plus the raw receiver letters.
func standardParams() []string {
	params := make([]string, 0, 24)
	for dst := 1; dst <= 4; dst++ {
		for src := 1; src <= 4; src++ {
			params = append(params, fmt.Sprintf("S%d%d", dst, src))
		}
	}
	return append(params, "A", "B", "C", "D", "R1", "R2", "R3", "R4")
}

// ValidParam reports whether the tag is in the class's allowed set.
func (c Class) ValidParam(param string) bool {
	for _, p := range classParams[c] {
		if p == param {
			return true
		}
	}
	return false
}

// Trace describes one trace to create or modify.
type Trace struct {
	Name    string
	Param   string
	Class   Class
	Window  int // display window, default 1
	Channel int // measurement channel, default 1
	Modify  bool
}

// CreateTrace creates a new named trace of the given class and feeds it into
// the next free slot of its window, or, with Modify set, re-targets an
// existing measurement to a new parameter. The parameter tag is validated
// against the class table before any command is sent.
func (s *Session) CreateTrace(ctx context.Context, tr Trace) error {
	if tr.Window == 0 {
		tr.Window = 1
	}
	if tr.Channel == 0 {
		tr.Channel = 1
	}
	if !tr.Class.ValidParam(tr.Param) {
		return &scpi.ValidationError{
			Field:  "measurement parameter",
			Value:  tr.Param,
			Reason: fmt.Sprintf("not valid for class %q", tr.Class),
		}
	}

	op := fmt.Sprintf("create trace %q", tr.Name)
	if tr.Modify {
		if tr.Class == Standard {
			return &scpi.ValidationError{Field: "modify", Value: tr.Name, Reason: "standard traces cannot be modified in place"}
		}
		if err := s.Writef(ctx, `calc%d:parameter:select "%s"`, tr.Channel, tr.Name); err != nil {
			return err
		}
		if err := s.Writef(ctx, `calc%d:custom:modify "%s"`, tr.Channel, tr.Param); err != nil {
			return err
		}
		if err := s.WaitOPC(ctx, 0); err != nil {
			return err
		}
		return s.ErrCheck(ctx, op)
	}

	if tr.Class == Standard {
		if err := s.Writef(ctx, `calc%d:parameter:define:extended "%s", "%s"`, tr.Channel, tr.Name, tr.Param); err != nil {
			return err
		}
	} else {
		if err := s.Writef(ctx, `calc%d:custom:define "%s", "%s", "%s"`, tr.Channel, tr.Name, tr.Class.instrumentName(), tr.Param); err != nil {
			return err
		}
	}

	if err := s.feedTrace(ctx, tr.Name, tr.Window); err != nil {
		return err
	}
	if err := s.WaitOPC(ctx, 0); err != nil {
		return err
	}
	return s.ErrCheck(ctx, op)
}

// feedTrace binds a created measurement to the next free slot of a window,
// creating the window on demand.
func (s *Session) feedTrace(ctx context.Context, name string, win int) error {
	if err := s.EnsureWindow(ctx, win); err != nil {
		return err
	}
	slot, err := s.NextTraceSlot(ctx, win)
	if err != nil {
		return err
	}
	return s.Writef(ctx, `display:window%d:trace%d:feed "%s"`, win, slot, name)
}
