package cal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govna/internal/scpi/scpitest"
	"govna/internal/vna"
)

func guidedFake(steps string) *scpitest.Fake {
	fake := scpitest.New()
	fake.Responses["sense1:correction:collect:guided:steps?"] = steps
	fake.Responses["sense1:correction:collect:guided:description? 1"] = `"Connect OPEN to port 1"`
	fake.Responses["sense1:correction:collect:guided:description? 2"] = `"Connect SHORT to port 1"`
	return fake
}

func TestRunMeasuresEveryStep(t *testing.T) {
	fake := guidedFake("2")
	g := NewGuided(vna.NewSession(fake), 1)

	var confirmed []string
	g.Confirm = func(step, total int, description string) error {
		confirmed = append(confirmed, description)
		return nil
	}

	steps, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, steps)
	assert.Len(t, confirmed, 2)
	assert.Equal(t, 1, fake.CountSent("acquire stan1"))
	assert.Equal(t, 1, fake.CountSent("acquire stan2"))
}

func TestRunRetriesRejectedStandardUnlimited(t *testing.T) {
	fake := guidedFake("1")
	// The instrument rejects the standard twice, then accepts it.
	fake.DrainResults = [][]string{
		{`-222,"Data out of range"`},
		{`-222,"Data out of range"`},
	}
	g := NewGuided(vna.NewSession(fake), 1)

	_, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, fake.CountSent("acquire stan1"))
}

func TestRunAbortsWhenRetryBudgetExhausted(t *testing.T) {
	fake := guidedFake("1")
	fake.DrainResults = [][]string{
		{`-222,"Data out of range"`},
		{`-222,"Data out of range"`},
		{`-222,"Data out of range"`},
	}
	g := NewGuided(vna.NewSession(fake), 1)
	g.Retry = RetryPolicy{MaxRetries: 1}

	_, err := g.Run(context.Background())
	require.Error(t, err)
	// One retry after the first attempt means two attempts total.
	assert.Equal(t, 2, fake.CountSent("acquire stan1"))
	assert.False(t, fake.Sent("save:cset"), "an aborted run must save nothing")
}

func TestRunTransportFailureIsFatal(t *testing.T) {
	fake := guidedFake("1")
	fake.WriteErrs["acquire stan1"] = errors.New("connection reset")
	g := NewGuided(vna.NewSession(fake), 1)

	_, err := g.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, fake.CountSent("acquire stan1"), "transport failures are never retried")
}

func TestRunConfirmAbort(t *testing.T) {
	fake := guidedFake("2")
	g := NewGuided(vna.NewSession(fake), 1)
	g.Confirm = func(step, total int, description string) error {
		return errors.New("operator cancelled")
	}

	_, err := g.Run(context.Background())
	require.Error(t, err)
	assert.False(t, fake.Sent("acquire stan"), "nothing may be measured after an abort")
}

func TestSavedName(t *testing.T) {
	at := time.Date(2026, 8, 31, 14, 3, 5, 0, time.UTC)
	assert.Equal(t, "dut_20260831_14-03-05", SavedName("dut", at, true))
	assert.Equal(t, "dut", SavedName("dut", at, false))
}

func TestFinalizeSavesNamedSet(t *testing.T) {
	fake := guidedFake("1")
	g := NewGuided(vna.NewSession(fake), 1)

	name, err := g.Finalize(context.Background(), "dut", false)
	require.NoError(t, err)
	assert.Equal(t, "dut", name)
	assert.True(t, fake.Sent(`save:cset "dut"`))
}

func TestParseSteps(t *testing.T) {
	n, err := parseSteps("+3\n")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = parseSteps("garbage")
	assert.Error(t, err)
}
