package modem

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNoBaudSetter is returned when baud rate negotiation is required but
	// neither the configuration nor the transport can change the baud rate.
	ErrNoBaudSetter = errors.New("no baud rate setter configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has not been successfully initialized.
	//
	// This can occur if the Dialer returned no transport or if the Modem was
	// not created via New.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when an operation is attempted on a Modem
	// that has already been closed.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrNotReachable is returned when no candidate baud rate produced an
	// answer to the liveness probe.
	ErrNotReachable = errors.New("modem not reachable")

	// ErrTimeout is wrapped by CommandError when no terminal line arrived
	// before the command deadline.
	ErrTimeout = errors.New("command timed out")

	// ErrCommandFailed is wrapped by CommandError when the modem answered
	// with a failure line or rejected a handshake step.
	ErrCommandFailed = errors.New("command failed")

	// ErrCommandTooLong is returned when a formatted command exceeds
	// MaxCommandLength. Nothing is written to the transport.
	ErrCommandTooLong = errors.New("command too long")

	// ErrInvalidMux is returned for connection indexes outside
	// 0..MaxConnections-1.
	ErrInvalidMux = errors.New("invalid connection index")

	// ErrPayloadTooLarge is returned by SendData for payloads above
	// MaxSendSize.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrEmptyBuffer is returned by ReceiveData for a destination without
	// capacity.
	ErrEmptyBuffer = errors.New("empty receive buffer")
)

// CommandError describes a command that ended with Error or Timeout.
//
// It wraps either ErrCommandFailed or ErrTimeout, so callers can use
// errors.Is to tell the two apart.
type CommandError struct {
	// Command is the command text as written to the modem.
	Command string
	// Response is the line that ended the command, empty on timeout.
	Response string
	// Elapsed is the time spent waiting for the response.
	Elapsed time.Duration
	// Err is ErrCommandFailed or ErrTimeout.
	Err error
}

func (e *CommandError) Error() string {
	if e.Response == "" {
		return fmt.Sprintf("%s: %v after %s", e.Command, e.Err, e.Elapsed)
	}
	return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, e.Response)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
