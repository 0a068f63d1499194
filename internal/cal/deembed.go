package cal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"govna/internal/vna"
)

// ScratchChannel is the reserved channel id the simulator compose path uses
// for its throwaway measurement. It is torn down on every exit path so the
// id never leaks across runs.
const ScratchChannel = 200

// DeembedConfig describes one fixture-removal compose: a base cal set, two
// single-port fixture files, and the name of the corrected set to produce.
type DeembedConfig struct {
	BaseSet  string
	FinalSet string

	// PortOneFile and PortTwoFile are absolute instrument-side paths of the
	// s2p fixture descriptions for DUT port 1 and 2. Their content is
	// opaque here.
	PortOneFile string
	PortTwoFile string

	// EnhancedResponse selects the circuit-simulator compose, which nulls
	// the fixture reflection at the DUT-facing port to keep transmission
	// terms clean. Off, the two-stage direct file de-embed runs instead.
	EnhancedResponse bool

	PortOnePowerComp bool
	PortTwoPowerComp bool
	Extrapolate      bool

	// Overwrite deletes a pre-existing final set first.
	Overwrite bool

	// StageTimeout bounds each compose stage's completion barrier; zero
	// uses the session default.
	StageTimeout time.Duration
}

// Composer builds corrected cal sets by composing a base calibration with
// embedded-fixture descriptions.
type Composer struct {
	sess *vna.Session
	log  *logrus.Entry
}

// NewComposer returns a Composer over the session.
func NewComposer(sess *vna.Session) *Composer {
	return &Composer{sess: sess, log: logrus.WithField("component", "deembed")}
}

// Compose produces the corrected cal set. Any error queued on the
// instrument after either strategy means the final set is not trustworthy,
// and the compose fails with the full message list.
func (c *Composer) Compose(ctx context.Context, cfg DeembedConfig) error {
	if cfg.Overwrite {
		if err := DeleteSet(ctx, c.sess, cfg.FinalSet); err != nil {
			return err
		}
	}

	var err error
	if cfg.EnhancedResponse {
		err = c.composeSimulator(ctx, cfg)
	} else {
		err = c.composeDirect(ctx, cfg)
	}
	if err != nil {
		return err
	}

	if err := c.sess.ErrCheck(ctx, fmt.Sprintf("compose cal set %q", cfg.FinalSet)); err != nil {
		return err
	}
	c.log.WithField("base", cfg.BaseSet).WithField("final", cfg.FinalSet).Info("cal set composed")
	return nil
}

// composeDirect de-embeds fixture A into an intermediate set, then fixture
// B from the intermediate into the final set. The stages are strictly
// sequential: each must pass its barrier before the next begins.
func (c *Composer) composeDirect(ctx context.Context, cfg DeembedConfig) error {
	extrap := 0
	if cfg.Extrapolate {
		extrap = 1
	}
	if err := c.sess.Writef(ctx, `cset:fixture:deembed "%s","intermediate","%s",1,1,%d`,
		cfg.BaseSet, cfg.PortOneFile, extrap); err != nil {
		return err
	}
	if err := c.sess.WaitOPC(ctx, cfg.StageTimeout); err != nil {
		return fmt.Errorf("first de-embed stage did not complete: %w", err)
	}
	if err := c.sess.Writef(ctx, `cset:fixture:deembed "intermediate","%s","%s",2,1,%d`,
		cfg.FinalSet, cfg.PortTwoFile, extrap); err != nil {
		return err
	}
	if err := c.sess.WaitOPC(ctx, cfg.StageTimeout); err != nil {
		return fmt.Errorf("second de-embed stage did not complete: %w", err)
	}
	return nil
}

// composeSimulator loads the base set onto the scratch channel, attaches a
// reflection-nulled fixture file per DUT port, applies the simulated
// network and flattens the result into the final set.
func (c *Composer) composeSimulator(ctx context.Context, cfg DeembedConfig) (err error) {
	class := familyOf(cfg.BaseSet)
	tr := vna.Trace{
		Name:    "DeembedScratch",
		Param:   familyDefaultParam(class),
		Class:   class,
		Window:  ScratchChannel,
		Channel: ScratchChannel,
	}
	if err := c.sess.CreateTrace(ctx, tr); err != nil {
		return fmt.Errorf("failed to stand up scratch channel %d: %w", ScratchChannel, err)
	}
	// The scratch channel must not leak across runs: issue the delete
	// exactly once on every exit path from here on.
	defer func() {
		if delErr := c.sess.Writef(ctx, "system:channels:delete %d", ScratchChannel); delErr != nil && err == nil {
			err = delErr
		}
	}()

	if err := LoadSet(ctx, c.sess, cfg.BaseSet, true, ScratchChannel); err != nil {
		return err
	}
	if err := c.sess.HoldTrigger(ctx, ScratchChannel); err != nil {
		return err
	}

	// Converter mod sets cannot inherit stimulus on activation; it is read
	// back from the set's frequency metadata and re-applied by hand.
	if strings.Contains(cfg.BaseSet, "MODX") {
		if err := c.restoreConverterStimulus(ctx, cfg.BaseSet); err != nil {
			return err
		}
	} else if strings.Contains(cfg.BaseSet, "MOD") {
		if err := c.restoreSweptStimulus(ctx, cfg.BaseSet); err != nil {
			return err
		}
	}

	if err := c.attachFixture(ctx, 1, cfg.PortOneFile, 1, cfg.Extrapolate); err != nil {
		return err
	}
	if err := c.attachFixture(ctx, 2, cfg.PortTwoFile, 2, cfg.Extrapolate); err != nil {
		return err
	}

	if err := c.sess.Writef(ctx, "calculate%d:fsimulator:apply", ScratchChannel); err != nil {
		return err
	}
	if err := c.sess.Writef(ctx, "calculate%d:fsimulator:state 1", ScratchChannel); err != nil {
		return err
	}

	if cfg.PortOnePowerComp {
		if err := c.sess.Writef(ctx, "calculate%d:fsimulator:power:port1:compensate:state 1", ScratchChannel); err != nil {
			return err
		}
	}
	if cfg.PortTwoPowerComp {
		if err := c.sess.Writef(ctx, "calculate%d:fsimulator:power:port2:compensate:state 1", ScratchChannel); err != nil {
			return err
		}
	}

	return c.sess.Writef(ctx, `sense%d:correction:cset:flatten "%s"`, ScratchChannel, cfg.FinalSet)
}

// attachFixture adds one fixture file circuit to the scratch channel's
// draft network, nulling the reflection at the DUT-facing side.
func (c *Composer) attachFixture(ctx context.Context, circuit int, file string, port int, extrapolate bool) error {
	if err := c.sess.Writef(ctx, "calculate%d:fsimulator:draft:circuit%d:add file, 2", ScratchChannel, circuit); err != nil {
		return err
	}
	if err := c.sess.Writef(ctx, `calculate%d:fsimulator:draft:circuit%d:file "%s"`, ScratchChannel, circuit, file); err != nil {
		return err
	}
	if err := c.sess.Writef(ctx, "calculate%d:fsimulator:draft:circuit%d:file:modify nreflect", ScratchChannel, circuit); err != nil {
		return err
	}
	extrap := 0
	if extrapolate {
		extrap = 1
	}
	if err := c.sess.Writef(ctx, "calculate%d:fsimulator:draft:circuit%d:file:extrapolate %d", ScratchChannel, circuit, extrap); err != nil {
		return err
	}
	return c.sess.Writef(ctx, "calculate%d:fsimulator:draft:circuit%d:vna:ports %d", ScratchChannel, circuit, port)
}

// restoreConverterStimulus re-derives center/span and sideband for a
// converter modulation set from its LO/input/output frequency metadata.
func (c *Composer) restoreConverterStimulus(ctx context.Context, baseSet string) error {
	loFreq, err := c.querySetFreq(ctx, baseSet, "lo1", "start")
	if err != nil {
		return err
	}
	inStart, err := c.querySetFreq(ctx, baseSet, "input", "start")
	if err != nil {
		return err
	}
	inStop, err := c.querySetFreq(ctx, baseSet, "input", "stop")
	if err != nil {
		return err
	}
	outStart, err := c.querySetFreq(ctx, baseSet, "output", "start")
	if err != nil {
		return err
	}

	if err := c.sess.ConfigureModSweep(ctx, vna.ModSweep{
		CenterFreq: (inStart + inStop) / 2,
		Span:       inStop - inStart,
		Channel:    ScratchChannel,
	}); err != nil {
		return err
	}

	sideband := vna.SidebandLow
	if inStart < outStart {
		sideband = vna.SidebandHigh
	}
	return c.sess.ConverterMixer(ctx, ScratchChannel, loFreq, sideband)
}

// restoreSweptStimulus re-derives center/span for a swept modulation set.
func (c *Composer) restoreSweptStimulus(ctx context.Context, baseSet string) error {
	start, err := c.queryFloat(ctx, fmt.Sprintf(`cset:frequency:swept? "%s", start`, baseSet))
	if err != nil {
		return err
	}
	stop, err := c.queryFloat(ctx, fmt.Sprintf(`cset:frequency:swept? "%s", stop`, baseSet))
	if err != nil {
		return err
	}
	return c.sess.ConfigureModSweep(ctx, vna.ModSweep{
		CenterFreq: (start + stop) / 2,
		Span:       stop - start,
		Channel:    ScratchChannel,
	})
}

func (c *Composer) querySetFreq(ctx context.Context, set, port, bound string) (float64, error) {
	return c.queryFloat(ctx, fmt.Sprintf(`cset:frequency:converter? "%s", %s, %s`, set, port, bound))
}

func (c *Composer) queryFloat(ctx context.Context, cmd string) (float64, error) {
	raw, err := c.sess.Query(ctx, cmd)
	if err != nil {
		return 0, err
	}
	var v float64
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%g", &v); err != nil {
		return 0, fmt.Errorf("failed to parse frequency response %q: %w", raw, err)
	}
	return v, nil
}

// familySuffixes maps cal-set name markers to measurement classes, longest
// marker first so MODX is not mistaken for MOD.
var familySuffixes = []struct {
	marker string
	class  vna.Class
}{
	{"_MODX", vna.ModDistortionConverters},
	{"_MOD", vna.ModDistortion},
	{"_STD", vna.Standard},
	{"_SMC", vna.ScalarMixerConverter},
	{"_GCX", vna.GainCompressionConverters},
	{"_GCA", vna.GainCompression},
	{"_NFX", vna.NoiseFigureConverters},
	{"_NFA", vna.NoiseFigure},
}

// familyOf infers the measurement class a cal set was made for from its
// name marker; unmarked names are treated as standard.
func familyOf(name string) vna.Class {
	for _, fs := range familySuffixes {
		if strings.Contains(name, fs.marker) {
			return fs.class
		}
	}
	return vna.Standard
}

// familyDefaultParam picks a parameter tag valid for the class, used only
// for the throwaway scratch trace.
func familyDefaultParam(class vna.Class) string {
	switch class {
	case vna.ScalarMixerConverter:
		return "SC21"
	case vna.GainCompression, vna.GainCompressionConverters:
		return "CompGain21"
	case vna.NoiseFigure, vna.NoiseFigureConverters:
		return "NF"
	case vna.ModDistortion, vna.ModDistortionConverters:
		return "PIn1"
	default:
		return "S11"
	}
}

// PortFixture describes one fixture file de-embedded directly from a live
// channel's port, outside any cal-set compose.
type PortFixture struct {
	VNAPort        int
	File           string
	Reverse        bool
	ZeroReflection bool
	Extrapolate    bool
	Channel        int
}

// ApplyPortFixture de-embeds one s2p file from a VNA port on a live
// channel. Call once per fixture.
func (c *Composer) ApplyPortFixture(ctx context.Context, f PortFixture) error {
	ch := f.Channel
	if ch == 0 {
		ch = 1
	}
	if err := c.sess.Writef(ctx, "calculate%d:fsimulator:draft:circuit:reset", ch); err != nil {
		return err
	}
	raw, err := c.sess.Queryf(ctx, "calculate%d:fsimulator:draft:circuit:next?", ch)
	if err != nil {
		return err
	}
	var circuit int
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%d", &circuit); err != nil {
		return fmt.Errorf("failed to parse next circuit number %q: %w", raw, err)
	}

	if err := c.sess.Writef(ctx, "calculate%d:fsimulator:draft:circuit%d:add file,2", ch, circuit); err != nil {
		return err
	}
	if err := c.sess.Writef(ctx, "calculate%d:fsimulator:draft:circuit%d:vna:ports %d", ch, circuit, f.VNAPort); err != nil {
		return err
	}
	if err := c.sess.Writef(ctx, `calculate%d:fsimulator:draft:circuit%d:file "%s"`, ch, circuit, f.File); err != nil {
		return err
	}
	if f.ZeroReflection {
		if err := c.sess.Writef(ctx, "calculate%d:fsimulator:draft:circuit%d:file:modify nreflect", ch, circuit); err != nil {
			return err
		}
	}
	if f.Reverse {
		if err := c.sess.Writef(ctx, "calculate%d:fsimulator:draft:circuit%d:device:ports:reverse 1", ch, circuit); err != nil {
			return err
		}
	}
	if f.Extrapolate {
		if err := c.sess.Writef(ctx, "calculate%d:fsimulator:draft:circuit%d:file:extrapolate 1", ch, circuit); err != nil {
			return err
		}
	}

	if err := c.sess.Writef(ctx, "calculate%d:fsimulator:draft:circuit%d:state 1", ch, circuit); err != nil {
		return err
	}
	if err := c.sess.Writef(ctx, "calculate%d:fsimulator:draft:apply", ch); err != nil {
		return err
	}
	if err := c.sess.Writef(ctx, "calculate%d:fsimulator:state 1", ch); err != nil {
		return err
	}
	return c.sess.ErrCheck(ctx, fmt.Sprintf("de-embed fixture on port %d", f.VNAPort))
}
