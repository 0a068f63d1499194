package cal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govna/internal/scpi"
	"govna/internal/scpi/scpitest"
	"govna/internal/vna"
)

func defineFake() *scpitest.Fake {
	fake := scpitest.New()
	fake.Responses["sense:correction:collect:guided:connector:cat?"] = `"APC 3.5 female, APC 3.5 male, Type N (50) female"`
	fake.Responses[`sense:correction:collect:guided:ckit:cat? "APC 3.5 female"`] = `"85052D, 85033E"`
	fake.Responses[`sense:correction:collect:guided:ckit:cat? "APC 3.5 male"`] = `"85052D"`
	return fake
}

func TestDefinePorts(t *testing.T) {
	fake := defineFake()
	g := NewGuided(vna.NewSession(fake), 1)

	ports := []PortSetup{
		{Connector: "APC 3.5 female", CalKit: "85052D"},
		{Connector: "APC 3.5 male", CalKit: "85052D"},
	}
	require.NoError(t, g.DefinePorts(context.Background(), ports))

	assert.True(t, fake.Sent(`sense1:correction:collect:guided:connector:port1 "APC 3.5 female"`))
	assert.True(t, fake.Sent(`sense1:correction:collect:guided:ckit:port2 "85052D"`))
	assert.True(t, fake.Sent("preference:cset:save user"))
}

func TestDefinePortsRejectsUnknownConnector(t *testing.T) {
	fake := defineFake()
	g := NewGuided(vna.NewSession(fake), 1)

	ports := []PortSetup{{Connector: "Waveguide", CalKit: "85052D"}}
	err := g.DefinePorts(context.Background(), ports)

	var vErr *scpi.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "connector", vErr.Field)
	assert.False(t, fake.Sent("connector:port"), "a rejected definition must leave no partial state")
}

func TestDefinePortsRejectsKitWrongForConnector(t *testing.T) {
	fake := defineFake()
	g := NewGuided(vna.NewSession(fake), 1)

	ports := []PortSetup{{Connector: "APC 3.5 male", CalKit: "85033E"}}
	err := g.DefinePorts(context.Background(), ports)

	var vErr *scpi.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "cal kit", vErr.Field)
}

func TestDefinePortsRequiresAtLeastOne(t *testing.T) {
	g := NewGuided(vna.NewSession(scpitest.New()), 1)
	err := g.DefinePorts(context.Background(), nil)
	var vErr *scpi.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestDefineCalAllBindsGuidedChannel(t *testing.T) {
	fake := defineFake()
	fake.Responses["syst:cal:all:guid:chan?"] = "+45"
	g := NewGuided(vna.NewSession(fake), 1)

	ch, err := g.DefineCalAll(context.Background(), CalAllConfig{
		Channels:       []int{1, 2},
		Ports:          []PortSetup{{Connector: "APC 3.5 female", CalKit: "85052D"}},
		SParamCalLevel: -10,
	})
	require.NoError(t, err)
	assert.Equal(t, 45, ch)
	assert.True(t, fake.Sent("syst:cal:all:reset"))
	assert.True(t, fake.Sent("syst:cal:all:sel 1,2"))
	assert.True(t, fake.Sent("system:calibrate:all:port1:source:power -10"))
	assert.True(t, fake.Sent(`sens45:corr:coll:guid:conn:port1 "APC 3.5 female"`))
	assert.True(t, fake.Sent(`syst:cal:all:mclass:prop:val "Include Power Calibration", "false"`))
}

func TestLoadSetUnknownName(t *testing.T) {
	fake := scpitest.New()
	fake.Responses["cset:catalog?"] = `"OtherSet"`
	sess := vna.NewSession(fake)

	err := LoadSet(context.Background(), sess, "Missing", true, 1)
	var notFound *scpi.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.False(t, fake.Sent("activate"), "an unknown set must not be activated")
}

func TestListSets(t *testing.T) {
	fake := scpitest.New()
	fake.Responses["cset:catalog?"] = `"CalSet_1,CalSet_2"`
	sess := vna.NewSession(fake)

	sets, err := ListSets(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, []string{"CalSet_1", "CalSet_2"}, sets)
}
