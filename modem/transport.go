package modem

import (
	"context"
	"io"
)

//go:generate mockgen -destination=mock_transport.go -package=modem . Transport,Dialer

// Transport represents an established, bidirectional byte stream to a GSM modem.
//
// A Transport is assumed to be already connected and ready for use. It provides
// the low-level I/O primitives required to send AT commands and receive responses.
// Typical implementations include serial ports, TCP connections to emulators,
// or in-memory fakes used for testing.
//
// Read must not block indefinitely: when no data is pending it returns
// (0, nil) after a short poll interval, the way a serial port with a read
// timeout does. All command deadlines are enforced by the Modem.
type Transport interface {
	io.ReadWriteCloser
}

// BaudRateSetter is implemented by transports whose line speed can be
// changed while open. The Modem uses it during baud rate negotiation when no
// explicit BaudSetter is configured.
type BaudRateSetter interface {
	SetBaudRate(rate int) error
}

// BaudSetter reconfigures the transport to the given baud rate. The change
// must take effect before it returns.
type BaudSetter func(rate int) error

// Dialer opens a Transport to a GSM modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port, TCP-based emulator, or test double) and is intended to be used
// during modem construction only. Once a Transport is obtained, the Dialer is
// no longer needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// byteSource adapts a Transport to the "bytes available" and "read one
// byte" pair the dispatcher polls.
type byteSource struct {
	r   io.Reader
	buf [256]byte
	pos int
	end int
	err error
}

// available reports whether a byte can be read without blocking past the
// transport's poll interval.
func (s *byteSource) available() (bool, error) {
	if s.pos < s.end {
		return true, nil
	}
	if s.err != nil {
		err := s.err
		s.err = nil
		return false, err
	}
	n, err := s.r.Read(s.buf[:])
	if n < 0 {
		n = 0
	}
	s.pos, s.end = 0, n
	if n > 0 {
		// deliver the data first, the error on the next call
		s.err = err
		return true, nil
	}
	return false, err
}

func (s *byteSource) readByte() byte {
	b := s.buf[s.pos]
	s.pos++
	return b
}

// buffered returns the bytes already read from the transport but not yet
// consumed.
func (s *byteSource) buffered() []byte {
	b := s.buf[s.pos:s.end]
	s.pos = s.end
	return b
}
