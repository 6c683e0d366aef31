package link

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/micro-nova/flick-go/internal/models"
)

const maxFrameSize = 64 * 1024

type frameKind string

const (
	kindHello   frameKind = "hello"
	kindPing    frameKind = "ping"
	kindCommand frameKind = "command"
	kindAck     frameKind = "ack"
	kindContext frameKind = "context"
)

// frame is the JSON envelope exchanged between peers.
type frame struct {
	ID      string          `json:"id,omitempty"`
	Kind    frameKind       `json:"kind"`
	Node    string          `json:"node,omitempty"`
	Command models.Command  `json:"command,omitempty"`
	Context json.RawMessage `json:"context,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func encodeFrame(f frame) ([]byte, error) {
	return json.Marshal(f)
}

func decodeFrame(b []byte) (frame, error) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return frame{}, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Kind {
	case kindHello, kindPing, kindAck, kindContext:
	case kindCommand:
		if f.ID == "" || !f.Command.Valid() {
			return frame{}, fmt.Errorf("decode frame: command frame missing id or command")
		}
	default:
		return frame{}, fmt.Errorf("decode frame: unknown kind %q", f.Kind)
	}
	return f, nil
}

// FrameConn carries whole frames. Implementations need not support
// concurrent writers; Peer writes from a single goroutine.
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(b []byte) error
	Close() error
}

// LineConn frames newline-delimited JSON over a byte stream (serial ports,
// pipes).
type LineConn struct {
	rwc     io.ReadWriteCloser
	scanner *bufio.Scanner

	closeOnce sync.Once
	closeErr  error
}

// NewLineConn wraps a byte stream.
func NewLineConn(rwc io.ReadWriteCloser) *LineConn {
	sc := bufio.NewScanner(rwc)
	sc.Buffer(make([]byte, 0, 4096), maxFrameSize)
	return &LineConn{rwc: rwc, scanner: sc}
}

// ReadFrame returns the next non-empty line.
func (c *LineConn) ReadFrame() ([]byte, error) {
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// WriteFrame writes b followed by a newline.
func (c *LineConn) WriteFrame(b []byte) error {
	buf := make([]byte, 0, len(b)+1)
	buf = append(buf, b...)
	buf = append(buf, '\n')
	_, err := c.rwc.Write(buf)
	return err
}

// Close closes the underlying stream once.
func (c *LineConn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.rwc.Close() })
	return c.closeErr
}
