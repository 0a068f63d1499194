package vna

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govna/internal/frame"
	"govna/internal/scpi/scpitest"
)

func acquireFake() *scpitest.Fake {
	fake := scpitest.New()
	fake.Responses["calculate1:parameter:catalog:extended?"] = `"Gain,S21"`
	fake.Responses["calculate1:parameter:mnumber?"] = "1"
	fake.BinaryData["calculate1:data? fdata"] = []float64{-3.1, -3.2, -3.3}
	fake.BinaryData["calculate1:x?"] = []float64{1e9, 2e9, 3e9}
	return fake
}

func TestAcquireTrace(t *testing.T) {
	fake := acquireFake()
	sess := NewSession(fake)

	tp, err := sess.AcquireTrace(context.Background(), "Gain", 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1e9, 2e9, 3e9}, tp.Freq)
	assert.Equal(t, []float64{-3.1, -3.2, -3.3}, tp.Data)
}

func TestAcquireTraceReassertsTransferFormat(t *testing.T) {
	fake := acquireFake()
	sess := NewSession(fake)

	// Transfer format is mutable instrument state; every acquisition must
	// negotiate it again.
	for i := 1; i <= 2; i++ {
		_, err := sess.AcquireTrace(context.Background(), "Gain", 1)
		require.NoError(t, err)
		assert.Equal(t, i, fake.CountSent("format:border swap"))
		assert.Equal(t, i, fake.CountSent("format real,64"))
	}
}

func TestAcquireTraceLengthMismatch(t *testing.T) {
	fake := acquireFake()
	fake.BinaryData["calculate1:x?"] = []float64{1e9, 2e9}
	sess := NewSession(fake)

	tp, err := sess.AcquireTrace(context.Background(), "Gain", 1)
	assert.Nil(t, tp)
	var layoutErr *frame.LayoutError
	require.ErrorAs(t, err, &layoutErr)
	assert.Equal(t, 3, layoutErr.Got)
	assert.Equal(t, 2, layoutErr.Want)
}

func TestAcquireTraceUnknownMeasurement(t *testing.T) {
	fake := acquireFake()
	sess := NewSession(fake)

	_, err := sess.AcquireTrace(context.Background(), "Nope", 1)
	require.Error(t, err)
	assert.False(t, fake.Sent("data? fdata"), "no binary read may happen for an unresolved name")
}

func TestSweepPoints(t *testing.T) {
	fake := scpitest.New()
	fake.Responses["sense1:sweep:points?"] = "+201"
	sess := NewSession(fake)

	points, err := sess.SweepPoints(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 201, points)
}

func TestSaveSNP(t *testing.T) {
	fake := scpitest.New()
	fake.Responses["calculate1:parameter:catalog:extended?"] = `"Gain,S21"`
	fake.Responses["calculate1:parameter:mnumber?"] = "3"
	sess := NewSession(fake)

	err := sess.SaveSNP(context.Background(), "Gain", "C:/dut.s2p", []int{1, 2}, 1)
	require.NoError(t, err)
	assert.True(t, fake.Sent(`calculate1:measure3:data:snp:ports:save "1,2","C:/dut.s2p"`))
}

func TestSingleTriggerSequence(t *testing.T) {
	fake := scpitest.New()
	sess := NewSession(fake)

	require.NoError(t, sess.SingleTrigger(context.Background(), 1, 0))
	assert.True(t, fake.Sent("trigger:source immediate"))
	assert.True(t, fake.Sent("sense1:sweep:mode single"))
	assert.Equal(t, 1, fake.OPCWaits)
}
