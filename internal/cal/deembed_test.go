package cal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govna/internal/scpi/scpitest"
	"govna/internal/vna"
)

func simulatorFake(baseSet string) *scpitest.Fake {
	fake := scpitest.New()
	fake.Responses["display:catalog?"] = `"1"`
	fake.Responses["display:window200:catalog?"] = `"EMPTY"`
	fake.Responses["cset:catalog?"] = `"` + baseSet + `"`
	return fake
}

func TestComposeDirectRunsBothStages(t *testing.T) {
	fake := scpitest.New()
	c := NewComposer(vna.NewSession(fake))

	err := c.Compose(context.Background(), DeembedConfig{
		BaseSet:     "Base",
		FinalSet:    "Corrected",
		PortOneFile: "C:/p1.s2p",
		PortTwoFile: "C:/p2.s2p",
		Extrapolate: true,
	})
	require.NoError(t, err)

	assert.True(t, fake.Sent(`cset:fixture:deembed "Base","intermediate","C:/p1.s2p",1,1,1`))
	assert.True(t, fake.Sent(`cset:fixture:deembed "intermediate","Corrected","C:/p2.s2p",2,1,1`))
	assert.Equal(t, 2, fake.OPCWaits)
}

func TestComposeOverwriteDeletesFirst(t *testing.T) {
	fake := scpitest.New()
	c := NewComposer(vna.NewSession(fake))

	err := c.Compose(context.Background(), DeembedConfig{
		BaseSet:   "Base",
		FinalSet:  "Corrected",
		Overwrite: true,
	})
	require.NoError(t, err)
	assert.True(t, fake.Sent(`cset:delete "Corrected"`))
}

func TestComposeSimulator(t *testing.T) {
	fake := simulatorFake("Base")
	c := NewComposer(vna.NewSession(fake))

	err := c.Compose(context.Background(), DeembedConfig{
		BaseSet:          "Base",
		FinalSet:         "Corrected",
		PortOneFile:      "C:/p1.s2p",
		PortTwoFile:      "C:/p2.s2p",
		EnhancedResponse: true,
		PortOnePowerComp: true,
	})
	require.NoError(t, err)

	assert.True(t, fake.Sent(`sense200:correction:cset:activate "Base", 1`))
	assert.True(t, fake.Sent("sense200:sweep:mode hold"))
	assert.True(t, fake.Sent(`calculate200:fsimulator:draft:circuit1:file "C:/p1.s2p"`))
	assert.True(t, fake.Sent(`calculate200:fsimulator:draft:circuit2:file "C:/p2.s2p"`))
	assert.True(t, fake.Sent("calculate200:fsimulator:apply"))
	assert.True(t, fake.Sent("calculate200:fsimulator:power:port1:compensate:state 1"))
	assert.False(t, fake.Sent("power:port2:compensate"))
	assert.True(t, fake.Sent(`sense200:correction:cset:flatten "Corrected"`))
	assert.Equal(t, 1, fake.CountSent("system:channels:delete 200"))
}

func TestComposeSimulatorTearsDownScratchChannelOnFailure(t *testing.T) {
	fake := simulatorFake("Base")
	fake.WriteErrs["fsimulator:apply"] = errors.New("connection reset")
	c := NewComposer(vna.NewSession(fake))

	err := c.Compose(context.Background(), DeembedConfig{
		BaseSet:          "Base",
		FinalSet:         "Corrected",
		EnhancedResponse: true,
	})
	require.Error(t, err)
	assert.Equal(t, 1, fake.CountSent("system:channels:delete 200"),
		"the scratch channel must be deleted exactly once even when the compose fails")
	assert.False(t, fake.Sent("flatten"), "no cal set may be produced after a failure")
}

func TestComposeSimulatorUnknownBaseSet(t *testing.T) {
	fake := simulatorFake("SomethingElse")
	c := NewComposer(vna.NewSession(fake))

	err := c.Compose(context.Background(), DeembedConfig{
		BaseSet:          "Base",
		FinalSet:         "Corrected",
		EnhancedResponse: true,
	})
	require.Error(t, err)
	assert.Equal(t, 1, fake.CountSent("system:channels:delete 200"))
}

func TestComposeSimulatorRestoresSweptStimulus(t *testing.T) {
	fake := simulatorFake("DUT_MOD_cal")
	fake.Responses[`cset:frequency:swept? "DUT_MOD_cal", start`] = "1.0e9"
	fake.Responses[`cset:frequency:swept? "DUT_MOD_cal", stop`] = "2.0e9"
	c := NewComposer(vna.NewSession(fake))

	err := c.Compose(context.Background(), DeembedConfig{
		BaseSet:          "DUT_MOD_cal",
		FinalSet:         "Corrected",
		EnhancedResponse: true,
	})
	require.NoError(t, err)
	assert.True(t, fake.Sent("sense200:distortion:sweep:carrier:frequency 1.5e+09"))
	assert.True(t, fake.Sent("sense200:frequency:span 1e+09"))
}

func TestFamilyOf(t *testing.T) {
	assert.Equal(t, vna.ModDistortionConverters, familyOf("DUT_MODX_1"))
	assert.Equal(t, vna.ModDistortion, familyOf("DUT_MOD_1"))
	assert.Equal(t, vna.ScalarMixerConverter, familyOf("DUT_SMC_1"))
	assert.Equal(t, vna.NoiseFigure, familyOf("DUT_NFA_1"))
	assert.Equal(t, vna.Standard, familyOf("plain"))
}

func TestApplyPortFixture(t *testing.T) {
	fake := scpitest.New()
	fake.Responses["calculate1:fsimulator:draft:circuit:next?"] = "+3"
	c := NewComposer(vna.NewSession(fake))

	err := c.ApplyPortFixture(context.Background(), PortFixture{
		VNAPort:        2,
		File:           "C:/fix.s2p",
		Reverse:        true,
		ZeroReflection: true,
	})
	require.NoError(t, err)
	assert.True(t, fake.Sent("calculate1:fsimulator:draft:circuit3:add file,2"))
	assert.True(t, fake.Sent("calculate1:fsimulator:draft:circuit3:vna:ports 2"))
	assert.True(t, fake.Sent("calculate1:fsimulator:draft:circuit3:device:ports:reverse 1"))
	assert.True(t, fake.Sent("calculate1:fsimulator:draft:apply"))
	assert.False(t, fake.Sent("extrapolate"))
}
