// Package frame decodes raw float64 blocks from the instrument into typed
// frequency and complex S-parameter data. All functions are pure: the layout
// is described explicitly by the caller, and a length mismatch between the
// raw data and the declared layout fails hard instead of producing a
// truncated or padded result.
package frame

import "fmt"

// PortPair identifies one S-parameter by destination and source port.
type PortPair struct {
	Dst, Src int
}

func (p PortPair) String() string {
	return fmt.Sprintf("S%d%d", p.Dst, p.Src)
}

// Layout describes how a flat value block is organized.
type Layout struct {
	// Points is the sweep point count; every block run has this length.
	Points int

	// Pairs lists the S-parameters present, in destination-major order.
	Pairs []PortPair

	// FreqBlock indicates a leading frequency block of Points values.
	FreqBlock bool

	// Interleaved selects real/imaginary alternating per point within each
	// pair's chunk; otherwise each pair carries a full real block followed
	// by a full imaginary block.
	Interleaved bool
}

// BlockCount is the number of Points-length runs the layout expects.
func (l Layout) BlockCount() int {
	n := 2 * len(l.Pairs)
	if l.FreqBlock {
		n++
	}
	return n
}

// ExpectedLen is the exact raw length the layout demands.
func (l Layout) ExpectedLen() int {
	return l.Points * l.BlockCount()
}

// LayoutError reports data whose length is inconsistent with its declared
// shape: a metadata/data desynchronization, distinct from an
// instrument-reported error. It is never recovered by truncation or padding.
type LayoutError struct {
	Op   string
	Got  int
	Want int
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("%s: got %d values, want %d", e.Op, e.Got, e.Want)
}
