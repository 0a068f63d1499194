package cal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govna/internal/scpi/scpitest"
	"govna/internal/vna"
)

const sourceCorrStatusQuery = `source1:modulation:correction:collection:acquire:status? "port 1"`

func TestSourceCorrectionSucceedsAfterRetry(t *testing.T) {
	fake := scpitest.New()
	fake.Queued[sourceCorrStatusQuery] = []string{
		`"Calibration failed: phase error too large"`,
		`"Calibration succeeded."`,
	}
	sc := NewSourceCorrection(vna.NewSession(fake), 1)

	require.NoError(t, sc.Acquire(context.Background()))
	assert.Equal(t, 2, fake.CountSent("acquire synchronous"))
}

func TestSourceCorrectionAbortsAfterBudget(t *testing.T) {
	fake := scpitest.New()
	fake.Responses[sourceCorrStatusQuery] = `"Calibration failed: phase error too large"`
	sc := NewSourceCorrection(vna.NewSession(fake), 1)

	err := sc.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phase error")
	// MaxRetries 1 means two attempts total.
	assert.Equal(t, 2, fake.CountSent("acquire synchronous"))
}

func TestSourceCorrectionImmediateSuccess(t *testing.T) {
	fake := scpitest.New()
	fake.Responses[sourceCorrStatusQuery] = `"Calibration succeeded."`
	sc := NewSourceCorrection(vna.NewSession(fake), 1)

	require.NoError(t, sc.Acquire(context.Background()))
	assert.Equal(t, 1, fake.CountSent("acquire synchronous"))
}
