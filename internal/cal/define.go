package cal

import (
	"context"
	"fmt"
	"strings"

	"govna/internal/scpi"
)

// PortSetup names the DUT connector and cal kit for one test port.
type PortSetup struct {
	Connector string
	CalKit    string
}

// validatePorts checks every connector against the live connector catalog
// and every kit against that connector's live kit catalog. Nothing is sent
// to the instrument beyond the catalog queries, so a rejection leaves no
// partial state behind.
func (g *Guided) validatePorts(ctx context.Context, ports []PortSetup) error {
	raw, err := g.sess.Query(ctx, "sense:correction:collect:guided:connector:cat?")
	if err != nil {
		return err
	}
	connectors := splitQuotedList(raw)

	for _, p := range ports {
		if !containsFold(connectors, p.Connector) {
			return &scpi.ValidationError{
				Field:  "connector",
				Value:  p.Connector,
				Reason: "not in instrument connector catalog: " + strings.Join(connectors, ", "),
			}
		}
		// Kit availability depends on the connector type, so kits are
		// checked per port.
		rawKits, err := g.sess.Queryf(ctx, `sense:correction:collect:guided:ckit:cat? "%s"`, p.Connector)
		if err != nil {
			return err
		}
		kits := splitQuotedList(rawKits)
		if !containsFold(kits, p.CalKit) {
			return &scpi.ValidationError{
				Field:  "cal kit",
				Value:  p.CalKit,
				Reason: fmt.Sprintf("not valid for connector %q: %s", p.Connector, strings.Join(kits, ", ")),
			}
		}
	}
	return nil
}

// DefinePorts assigns connectors and cal kits port by port for a guided
// calibration on the orchestrator's channel.
func (g *Guided) DefinePorts(ctx context.Context, ports []PortSetup) error {
	if len(ports) == 0 {
		return &scpi.ValidationError{Field: "ports", Value: "", Reason: "at least one port is required"}
	}
	if err := g.validatePorts(ctx, ports); err != nil {
		return err
	}
	for i, p := range ports {
		port := i + 1
		if err := g.sess.Writef(ctx, `sense%d:correction:collect:guided:connector:port%d "%s"`, g.Channel, port, p.Connector); err != nil {
			return err
		}
		if err := g.sess.Writef(ctx, `sense%d:correction:collect:guided:ckit:port%d "%s"`, g.Channel, port, p.CalKit); err != nil {
			return err
		}
	}
	return g.sess.Write(ctx, "sense:correction:preference:cset:save user")
}

// CalAllConfig parameterizes a Cal All definition across channels.
type CalAllConfig struct {
	// Channels to calibrate; empty means every channel the instrument
	// lists.
	Channels []int

	Ports []PortSetup

	// SParamCalLevel is the source power in dBm used for the S-parameter
	// portion.
	SParamCalLevel float64

	// PowerOffsets maps port number to a source power offset in dB.
	PowerOffsets map[int]float64

	// IncludePowerCal adds a power calibration using the sensor at
	// PowerSensorVISA, driven at PowerCalLevel dBm.
	IncludePowerCal bool
	PowerCalLevel   float64
	PowerSensorVISA string

	// SACalPoints is the spectrum-analyzer calibration point count.
	SACalPoints int
}

// DefineCalAll resets and configures a Cal All definition, then binds the
// connectors and kits to the guided channel the instrument designates.
// Returns that channel; the orchestrator's Run must use it.
func (g *Guided) DefineCalAll(ctx context.Context, cfg CalAllConfig) (int, error) {
	if err := g.validatePorts(ctx, cfg.Ports); err != nil {
		return 0, err
	}

	if err := g.sess.Write(ctx, "syst:cal:all:reset"); err != nil {
		return 0, err
	}

	channelList := ""
	if len(cfg.Channels) == 0 {
		raw, err := g.sess.Query(ctx, "system:channels:catalog?")
		if err != nil {
			return 0, err
		}
		channelList = strings.Trim(strings.TrimSpace(raw), `"`)
	} else {
		parts := make([]string, len(cfg.Channels))
		for i, ch := range cfg.Channels {
			parts[i] = fmt.Sprint(ch)
		}
		channelList = strings.Join(parts, ",")
	}
	if err := g.sess.Writef(ctx, "syst:cal:all:sel %s", channelList); err != nil {
		return 0, err
	}

	if cfg.SACalPoints > 0 {
		if err := g.sess.Writef(ctx, `system:cal:all:mclass:property:value "Calibration Points", "%d"`, cfg.SACalPoints); err != nil {
			return 0, err
		}
	}
	for port, offset := range cfg.PowerOffsets {
		if err := g.sess.Writef(ctx, "system:calibrate:all:port%d:source:power:offset %g", port, offset); err != nil {
			return 0, err
		}
	}
	for i := range cfg.Ports {
		if err := g.sess.Writef(ctx, "system:calibrate:all:port%d:source:power %g", i+1, cfg.SParamCalLevel); err != nil {
			return 0, err
		}
	}

	includeArg := "false"
	if cfg.IncludePowerCal {
		includeArg = "true"
	}
	if err := g.sess.Writef(ctx, `syst:cal:all:mclass:prop:val "Include Power Calibration", "%s"`, includeArg); err != nil {
		return 0, err
	}
	if cfg.IncludePowerCal {
		if err := g.sess.Writef(ctx, `syst:comm:psen any, "%s"`, cfg.PowerSensorVISA); err != nil {
			return 0, err
		}
		if err := g.sess.WaitOPC(ctx, 0); err != nil {
			return 0, err
		}
		if err := g.sess.Writef(ctx, "system:calibrate:all:port1:source:power:value %g", cfg.PowerCalLevel); err != nil {
			return 0, err
		}
		if err := g.sess.WaitOPC(ctx, 0); err != nil {
			return 0, err
		}
	}
	if err := g.sess.Write(ctx, `syst:cal:all:mclass:prop:val "Enable Extra Power Cals", "false"`); err != nil {
		return 0, err
	}

	raw, err := g.sess.Query(ctx, "syst:cal:all:guid:chan?")
	if err != nil {
		return 0, err
	}
	calChannel := 0
	if _, err := fmt.Sscanf(strings.TrimLeft(strings.TrimSpace(raw), "+"), "%d", &calChannel); err != nil {
		return 0, fmt.Errorf("failed to parse guided cal channel %q: %w", raw, err)
	}

	for i, p := range cfg.Ports {
		port := i + 1
		if err := g.sess.Writef(ctx, `sens%d:corr:coll:guid:conn:port%d "%s"`, calChannel, port, p.Connector); err != nil {
			return 0, err
		}
		if err := g.sess.Writef(ctx, `sens%d:corr:coll:guid:ckit:port%d "%s"`, calChannel, port, p.CalKit); err != nil {
			return 0, err
		}
	}
	return calChannel, nil
}

// splitQuotedList splits a catalog of comma-space separated quoted entries.
func splitQuotedList(raw string) []string {
	s := strings.Trim(strings.TrimSpace(raw), `"`)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ", ")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
