package frame

import (
	"fmt"

	"govna/internal/scpi"
)

// Data is one decoded multiport block.
type Data struct {
	Freq []float64
	S    map[PortPair][]complex128
}

// Decode slices a flat value block according to the layout. The raw length
// must match the layout exactly; on mismatch no partial result is produced.
func Decode(raw []float64, l Layout) (*Data, error) {
	if l.Points <= 0 {
		return nil, &scpi.ValidationError{Field: "layout points", Value: fmt.Sprint(l.Points), Reason: "must be positive"}
	}
	if len(raw) != l.ExpectedLen() {
		return nil, &LayoutError{
			Op:   fmt.Sprintf("decode %d-block x %d-point layout", l.BlockCount(), l.Points),
			Got:  len(raw),
			Want: l.ExpectedLen(),
		}
	}

	d := &Data{S: make(map[PortPair][]complex128, len(l.Pairs))}
	off := 0

	if l.FreqBlock {
		d.Freq = append([]float64(nil), raw[:l.Points]...)
		off = l.Points
	}

	for _, pair := range l.Pairs {
		vals := make([]complex128, l.Points)
		if l.Interleaved {
			chunk := raw[off : off+2*l.Points]
			for i := 0; i < l.Points; i++ {
				vals[i] = complex(chunk[2*i], chunk[2*i+1])
			}
		} else {
			re := raw[off : off+l.Points]
			im := raw[off+l.Points : off+2*l.Points]
			for i := 0; i < l.Points; i++ {
				vals[i] = complex(re[i], im[i])
			}
		}
		off += 2 * l.Points
		d.S[pair] = vals
	}
	return d, nil
}
