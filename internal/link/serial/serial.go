// Package serial carries the peer link over a serial port (for example an
// RFCOMM Bluetooth serial device), one JSON frame per line.
package serial

import (
	"context"
	"fmt"
	"log/slog"

	"go.bug.st/serial"

	"github.com/micro-nova/flick-go/internal/link"
)

// DefaultBaudRate is used when no baud rate is configured.
const DefaultBaudRate = 115200

// openPort is a variable so tests can substitute a fake port.
var openPort = func(name string, mode *serial.Mode) (serial.Port, error) {
	return serial.Open(name, mode)
}

// Dialer returns a link.Dialer that opens the named port on every dial.
func Dialer(port string, baud int) link.Dialer {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return func(ctx context.Context) (link.FrameConn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := openPort(port, mode)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", port, err)
		}
		slog.Info("serial: port opened", "port", port, "baud", baud)
		return link.NewLineConn(p), nil
	}
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
