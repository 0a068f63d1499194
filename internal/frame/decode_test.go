package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInterleaved(t *testing.T) {
	l := Layout{
		Points:      2,
		Pairs:       []PortPair{{1, 1}},
		Interleaved: true,
	}
	raw := []float64{1, 3, 2, 4}

	d, err := Decode(raw, l)
	require.NoError(t, err)
	assert.Nil(t, d.Freq)
	assert.Equal(t, []complex128{complex(1, 3), complex(2, 4)}, d.S[PortPair{1, 1}])
}

func TestDecodeBlockSequential(t *testing.T) {
	l := Layout{
		Points: 2,
		Pairs:  []PortPair{{1, 1}},
	}
	// Full real block then full imaginary block.
	raw := []float64{1, 2, 3, 4}

	d, err := Decode(raw, l)
	require.NoError(t, err)
	assert.Equal(t, []complex128{complex(1, 3), complex(2, 4)}, d.S[PortPair{1, 1}])
}

func TestDecodeFreqBlock(t *testing.T) {
	l := Layout{
		Points:    3,
		Pairs:     []PortPair{{1, 1}, {2, 1}},
		FreqBlock: true,
	}
	raw := []float64{
		1e9, 2e9, 3e9, // frequency
		0.1, 0.2, 0.3, 1.1, 1.2, 1.3, // S11 re, im
		0.4, 0.5, 0.6, 1.4, 1.5, 1.6, // S21 re, im
	}

	d, err := Decode(raw, l)
	require.NoError(t, err)
	assert.Equal(t, []float64{1e9, 2e9, 3e9}, d.Freq)
	assert.Equal(t, complex(0.2, 1.2), d.S[PortPair{1, 1}][1])
	assert.Equal(t, complex(0.6, 1.6), d.S[PortPair{2, 1}][2])
}

func TestDecodeLengthMismatch(t *testing.T) {
	l := Layout{Points: 4, Pairs: []PortPair{{1, 1}}, FreqBlock: true}
	require.Equal(t, 12, l.ExpectedLen())

	d, err := Decode(make([]float64, 11), l)
	assert.Nil(t, d, "a shape mismatch must not produce a partial result")

	var layoutErr *LayoutError
	require.ErrorAs(t, err, &layoutErr)
	assert.Equal(t, 11, layoutErr.Got)
	assert.Equal(t, 12, layoutErr.Want)
}

func TestDecodeRejectsNonPositivePoints(t *testing.T) {
	_, err := Decode(nil, Layout{Points: 0})
	assert.Error(t, err)
}

func TestECalPathLayoutSinglePort(t *testing.T) {
	l, err := ECalPathLayout("b", 5)
	require.NoError(t, err)
	assert.Equal(t, []PortPair{{2, 2}}, l.Pairs)
	assert.True(t, l.FreqBlock)
	assert.False(t, l.Interleaved)
	assert.Equal(t, 15, l.ExpectedLen())
}

func TestECalPathLayoutPortPair(t *testing.T) {
	l, err := ECalPathLayout("ab", 3)
	require.NoError(t, err)
	assert.Equal(t, []PortPair{{1, 1}, {1, 2}, {2, 1}, {2, 2}}, l.Pairs)
	assert.Equal(t, 27, l.ExpectedLen())
}

func TestECalPathLayoutRejectsBadPath(t *testing.T) {
	for _, path := range []string{"", "x", "aa", "abc"} {
		_, err := ECalPathLayout(path, 3)
		assert.Error(t, err, "path %q", path)
	}
}

func TestECalPaths(t *testing.T) {
	paths, err := ECalPaths(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "ab"}, paths)

	paths, err = ECalPaths(4)
	require.NoError(t, err)
	assert.Len(t, paths, 10)

	_, err = ECalPaths(3)
	assert.Error(t, err)
}
