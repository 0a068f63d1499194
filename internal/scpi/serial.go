package scpi

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// SerialChannel is a Channel over an RS-232/USB-serial instrument port.
type SerialChannel struct {
	mu      sync.Mutex
	port    serial.Port
	reader  *bufio.Reader
	timeout time.Duration
	log     *logrus.Entry
}

// OpenSerial opens the named serial port for SCPI traffic.
func OpenSerial(portName string, baudRate int, timeout time.Duration) (*SerialChannel, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, &TransportError{Op: "open " + portName, Err: err}
	}
	return &SerialChannel{
		port:    port,
		reader:  bufio.NewReader(port),
		timeout: timeout,
		log:     logrus.WithField("component", "scpi").WithField("port", portName),
	}, nil
}

// armTimeout applies the effective deadline to the port's read timeout.
// A caller deadline overrides the link default so long operations can
// extend it.
func (s *SerialChannel) armTimeout(ctx context.Context) error {
	d := s.timeout
	if dl, ok := ctx.Deadline(); ok {
		d = time.Until(dl)
		if d <= 0 {
			return &TransportError{Op: "arm timeout", Err: ctx.Err()}
		}
	}
	return s.port.SetReadTimeout(d)
}

func (s *SerialChannel) send(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: cmd, Err: err}
	}
	if err := s.armTimeout(ctx); err != nil {
		return err
	}
	if _, err := s.port.Write([]byte(cmd + "\n")); err != nil {
		return &TransportError{Op: cmd, Err: err}
	}
	return nil
}

// Write sends a fire-and-forget command.
func (s *SerialChannel) Write(ctx context.Context, cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.WithField("cmd", cmd).Trace("write")
	return s.send(ctx, cmd)
}

// Query sends a command and reads one text response line.
func (s *SerialChannel) Query(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.send(ctx, cmd); err != nil {
		return "", err
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", &TransportError{Op: cmd, Err: err}
	}
	if line == "" {
		return "", &TransportError{Op: cmd, Err: fmt.Errorf("read timed out")}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// QueryBinary sends a command and decodes a definite-length float64 block.
func (s *SerialChannel) QueryBinary(ctx context.Context, cmd string) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.send(ctx, cmd); err != nil {
		return nil, err
	}
	payload, err := readBlock(s.reader)
	if err != nil {
		return nil, &TransportError{Op: cmd, Err: err}
	}
	vals, err := decodeFloat64s(payload)
	if err != nil {
		return nil, &TransportError{Op: cmd, Err: err}
	}
	return vals, nil
}

// AwaitCompletion blocks on *OPC? with an optional override timeout.
func (s *SerialChannel) AwaitCompletion(ctx context.Context, timeout time.Duration) error {
	return awaitCompletion(ctx, s, timeout)
}

// DrainErrors empties the instrument error queue.
func (s *SerialChannel) DrainErrors(ctx context.Context) ([]string, error) {
	return drainErrors(ctx, s)
}

// Close releases the serial port.
func (s *SerialChannel) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}
