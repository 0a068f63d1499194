package scpi

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Conn is a Channel over a raw SCPI socket (typically port 5025). A mutex
// serializes all operations: one serial link, one in-flight command.
type Conn struct {
	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
	log     *logrus.Entry
}

// Dial connects to the instrument's SCPI socket. The timeout is the default
// per-operation deadline; a caller-supplied context deadline takes
// precedence for individual calls.
func Dial(address string, timeout time.Duration) (*Conn, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, &TransportError{Op: "dial " + address, Err: err}
	}
	return &Conn{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: timeout,
		log:     logrus.WithField("component", "scpi").WithField("address", address),
	}, nil
}

func (c *Conn) deadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(c.timeout)
}

func (c *Conn) send(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: cmd, Err: err}
	}
	if err := c.conn.SetDeadline(c.deadline(ctx)); err != nil {
		return &TransportError{Op: cmd, Err: err}
	}
	if _, err := fmt.Fprintf(c.conn, "%s\n", cmd); err != nil {
		return &TransportError{Op: cmd, Err: err}
	}
	return nil
}

// Write sends a fire-and-forget command.
func (c *Conn) Write(ctx context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.WithField("cmd", cmd).Trace("write")
	return c.send(ctx, cmd)
}

// Query sends a command and reads one text response line.
func (c *Conn) Query(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.send(ctx, cmd); err != nil {
		return "", err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", &TransportError{Op: cmd, Err: err}
	}
	resp := strings.TrimRight(line, "\r\n")
	c.log.WithField("cmd", cmd).WithField("resp", resp).Trace("query")
	return resp, nil
}

// QueryBinary sends a command and decodes a definite-length float64 block.
func (c *Conn) QueryBinary(ctx context.Context, cmd string) ([]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.send(ctx, cmd); err != nil {
		return nil, err
	}
	payload, err := readBlock(c.reader)
	if err != nil {
		return nil, &TransportError{Op: cmd, Err: err}
	}
	vals, err := decodeFloat64s(payload)
	if err != nil {
		return nil, &TransportError{Op: cmd, Err: err}
	}
	c.log.WithField("cmd", cmd).WithField("values", len(vals)).Trace("binary query")
	return vals, nil
}

// AwaitCompletion blocks on *OPC? with an optional override timeout.
func (c *Conn) AwaitCompletion(ctx context.Context, timeout time.Duration) error {
	return awaitCompletion(ctx, c, timeout)
}

// DrainErrors empties the instrument error queue.
func (c *Conn) DrainErrors(ctx context.Context) ([]string, error) {
	return drainErrors(ctx, c)
}

// Close shuts down the socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
