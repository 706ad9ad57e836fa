package modem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultSerialBaudRate is used when neither BaudRate nor Mode is set.
	DefaultSerialBaudRate = 115200
	// DefaultReadTimeout is the serial poll interval.
	DefaultReadTimeout = 10 * time.Millisecond
)

// SerialDialer opens a GSM modem over a serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. "/dev/ttyUSB0" or "COM3".
	PortName string
	// BaudRate is the initial line speed. Ignored when Mode is set.
	BaudRate int
	// Mode overrides the full serial framing. Defaults to 8N1 at BaudRate.
	Mode *serial.Mode
	// ReadTimeout bounds every Read so the dispatcher can poll. Defaults to
	// DefaultReadTimeout.
	ReadTimeout time.Duration
}

// Dial opens the serial port.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if d.Mode != nil {
		mode = *d.Mode
	}
	if mode.BaudRate == 0 {
		mode.BaudRate = DefaultSerialBaudRate
	}

	port, err := serial.Open(d.PortName, &mode)
	if err != nil {
		return nil, fmt.Errorf("modem: open %s: %w", d.PortName, err)
	}

	readTimeout := d.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("modem: set read timeout on %s: %w", d.PortName, err)
	}

	return &serialTransport{port: port, mode: mode}, nil
}

// ListSerialPorts returns the serial ports present on the system.
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

// serialTransport is the Transport returned by SerialDialer. It implements
// BaudRateSetter.
type serialTransport struct {
	port serial.Port
	mode serial.Mode
}

func (t *serialTransport) Read(p []byte) (int, error) {
	return t.port.Read(p)
}

func (t *serialTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

func (t *serialTransport) Close() error {
	return t.port.Close()
}

// SetBaudRate switches the port to rate and drops whatever was received at
// the old speed.
func (t *serialTransport) SetBaudRate(rate int) error {
	mode := t.mode
	mode.BaudRate = rate
	if err := t.port.SetMode(&mode); err != nil {
		return fmt.Errorf("modem: set baud rate %d: %w", rate, err)
	}
	t.mode = mode
	return t.port.ResetInputBuffer()
}
