package scpi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptChannel answers SYST:ERR? from a queue and *OPC? with a fixed
// response, enough to exercise the shared helpers.
type scriptChannel struct {
	errQueue []string
	opcResp  string
}

func (s *scriptChannel) Write(ctx context.Context, cmd string) error { return nil }

func (s *scriptChannel) Query(ctx context.Context, cmd string) (string, error) {
	switch cmd {
	case "SYST:ERR?":
		if len(s.errQueue) == 0 {
			return `+0,"No error"`, nil
		}
		msg := s.errQueue[0]
		s.errQueue = s.errQueue[1:]
		return msg, nil
	case "*OPC?":
		return s.opcResp, nil
	}
	return "", nil
}

func (s *scriptChannel) QueryBinary(ctx context.Context, cmd string) ([]float64, error) {
	return nil, nil
}

func (s *scriptChannel) AwaitCompletion(ctx context.Context, timeout time.Duration) error {
	return awaitCompletion(ctx, s, timeout)
}

func (s *scriptChannel) DrainErrors(ctx context.Context) ([]string, error) {
	return drainErrors(ctx, s)
}

func (s *scriptChannel) Close() error { return nil }

func TestDrainErrorsCollectsQueueInOrder(t *testing.T) {
	ch := &scriptChannel{errQueue: []string{
		`-222,"Data out of range"`,
		`-113,"Undefined header"`,
	}}
	msgs, err := ch.DrainErrors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{`-222,"Data out of range"`, `-113,"Undefined header"`}, msgs)
}

func TestDrainErrorsEmptyQueue(t *testing.T) {
	ch := &scriptChannel{}
	msgs, err := ch.DrainErrors(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAwaitCompletion(t *testing.T) {
	ch := &scriptChannel{opcResp: "1\n"}
	assert.NoError(t, ch.AwaitCompletion(context.Background(), time.Second))

	ch.opcResp = "0"
	err := ch.AwaitCompletion(context.Background(), time.Second)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestInstrumentErrorMessage(t *testing.T) {
	err := &InstrumentError{Op: "measure standard 2", Messages: []string{`-222,"Data out of range"`}}
	assert.Contains(t, err.Error(), "measure standard 2")
	assert.Contains(t, err.Error(), "Data out of range")
}
