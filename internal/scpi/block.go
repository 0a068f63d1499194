package scpi

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
)

// readBlock consumes one IEEE 488.2 definite-length block from the link:
// '#', one digit giving the length-field width, the payload byte count, then
// the payload itself. The trailing line terminator is consumed if present.
func readBlock(r *bufio.Reader) ([]byte, error) {
	head, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if head != '#' {
		return nil, fmt.Errorf("expected block header '#', got %q", head)
	}

	widthByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if widthByte < '1' || widthByte > '9' {
		return nil, fmt.Errorf("unsupported block length-field width %q", widthByte)
	}

	lenField := make([]byte, widthByte-'0')
	if _, err := io.ReadFull(r, lenField); err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(string(lenField))
	if err != nil {
		return nil, fmt.Errorf("malformed block length %q: %w", lenField, err)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	// Terminator after the payload; absence is not an error.
	if b, err := r.ReadByte(); err == nil && b != '\n' {
		r.UnreadByte()
	}
	return payload, nil
}

// decodeFloat64s interprets a block payload as little-endian float64 values.
// The byte order must have been negotiated (FORM:BORD SWAP) before the query.
func decodeFloat64s(payload []byte) ([]float64, error) {
	if len(payload)%8 != 0 {
		return nil, fmt.Errorf("block payload of %d bytes is not a whole number of float64 values", len(payload))
	}
	vals := make([]float64, len(payload)/8)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:]))
	}
	return vals, nil
}
