package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"i4.energy/across/simcom/at"
)

// MaxCommandLength is the longest command line, without terminator, the
// dispatcher writes. Longer commands are rejected, never truncated.
const MaxCommandLength = 199

// Modem drives a SIMCOM modem over a Transport.
//
// Exactly one command is outstanding at a time. Every operation writes its
// command, then polls the transport and feeds the parser until the command
// completes or its deadline passes. There is no background goroutine: a Modem
// is owned by one caller and is not safe for concurrent use.
type Modem struct {
	// transport provides the physical connection to the modem (serial, TCP, etc.)
	transport Transport
	// src buffers what was read from transport but not yet parsed
	src *byteSource
	// parser turns the byte stream into command results
	parser *at.Parser
	// config contains the modem configuration settings
	config Config
	logger *slog.Logger

	// baudRate is the last rate that answered a liveness probe, 0 if unknown
	baudRate   int
	baudSetter BaudSetter
	// imsiFormat tracks whether AT+COPS? reports operators numerically
	imsiFormat bool
	// closed indicates if the modem has been shut down
	closed bool
}

// New creates a new Modem instance with the given configuration.
// It establishes the transport connection and brings up the serial link:
// liveness probe, baud rate negotiation to the configured rate and echo off.
//
// Returns an error if the transport connection or link bootstrap fails.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	m := newModem(transport, config)

	initCtx, cancel := context.WithTimeout(ctx, config.initTimeout)
	defer cancel()
	if err := m.EnsureConnected(initCtx, config.baudRate); err != nil {
		transport.Close()
		return nil, fmt.Errorf("initialize modem: %w", err)
	}

	return m, nil
}

func newModem(transport Transport, config Config) *Modem {
	m := &Modem{
		transport:  transport,
		src:        &byteSource{r: transport},
		parser:     at.NewParser(),
		config:     config,
		logger:     config.logger,
		baudSetter: config.baudSetter,
	}
	if m.baudSetter == nil {
		if s, ok := transport.(BaudRateSetter); ok {
			m.baudSetter = s.SetBaudRate
		}
	}
	if config.notify != nil {
		m.parser.OnNotification(config.notify)
	}
	return m
}

// Close closes the transport. After calling Close the modem cannot be reused.
func (m *Modem) Close() error {
	if m.closed {
		return ErrAlreadyClosed
	}
	m.closed = true

	if m.transport != nil {
		return m.transport.Close()
	}
	return nil
}

// BaudRate returns the last baud rate the modem answered at, 0 if unknown.
func (m *Modem) BaudRate() int {
	return m.baudRate
}

// GarbageDetected reports whether bytes outside the AT line grammar arrived
// while no command was outstanding, typically right after a baud rate change
// or a modem reboot.
func (m *Modem) GarbageDetected() bool {
	return m.parser.Garbage()
}

func (m *Modem) ClearGarbage() {
	m.parser.ClearGarbage()
}

// Command writes a formatted command that answers with OK or ERROR and waits
// up to the default deadline.
func (m *Modem) Command(ctx context.Context, format string, args ...any) error {
	return m.exec(ctx, at.NewCommand(at.KindGeneric, nil), m.config.atTimeout, format, args...)
}

// Wait feeds whatever the modem sends during d to the parser, without a
// command outstanding. Unsolicited lines go to the notification handler,
// anything else raises the garbage flag.
func (m *Modem) Wait(ctx context.Context, d time.Duration) error {
	if err := m.ready(); err != nil {
		return err
	}
	_, err := m.poll(ctx, d, func(b byte) bool {
		m.parser.Feed(b)
		return false
	})
	return err
}

func (m *Modem) ready() error {
	if m.closed {
		return ErrAlreadyClosed
	}
	if m.transport == nil {
		return ErrNotInitialized
	}
	return nil
}

func formatCommand(format string, args ...any) (string, error) {
	text := fmt.Sprintf(format, args...)
	if len(text) > MaxCommandLength {
		return "", fmt.Errorf("%w: %d bytes, max %d", ErrCommandTooLong, len(text), MaxCommandLength)
	}
	return text, nil
}

// exec formats, sends and awaits one command.
func (m *Modem) exec(ctx context.Context, cmd *at.Command, timeout time.Duration, format string, args ...any) error {
	text, err := formatCommand(format, args...)
	if err != nil {
		return err
	}
	if err := m.send(cmd, text); err != nil {
		return err
	}
	return m.await(ctx, cmd, text, timeout)
}

// send writes the command line and makes cmd the outstanding command. Any
// slot must already be bound to cmd. It does not wait for the answer.
func (m *Modem) send(cmd *at.Command, text string) error {
	if err := m.ready(); err != nil {
		return err
	}
	// bytes already read belong to the idle stream
	for _, b := range m.src.buffered() {
		m.parser.Feed(b)
	}
	if err := m.parser.Begin(cmd); err != nil {
		return err
	}

	m.logger.Debug("=>", "command", text)
	if _, err := m.transport.Write([]byte(text + at.CR)); err != nil {
		m.parser.End()
		return fmt.Errorf("write command %q: %w", text, err)
	}
	return nil
}

// await polls the transport until cmd is ready or timeout elapses, then
// ends the command and maps its result to an error.
func (m *Modem) await(ctx context.Context, cmd *at.Command, text string, timeout time.Duration) error {
	start := time.Now()
	_, err := m.poll(ctx, timeout, func(b byte) bool {
		m.parser.Feed(b)
		return cmd.Ready()
	})
	result := m.parser.End()
	return m.outcome(cmd, text, result, time.Since(start), err)
}

func (m *Modem) outcome(cmd *at.Command, text string, result at.Result, elapsed time.Duration, err error) error {
	m.logger.Debug("<=", "command", text, "result", result, "elapsed", elapsed)
	if err != nil {
		return fmt.Errorf("%s: %w", text, err)
	}
	switch result {
	case at.Success:
		return nil
	case at.Timeout:
		m.logger.Warn("command timed out", "command", text, "elapsed", elapsed)
		return &CommandError{Command: text, Elapsed: elapsed, Err: ErrTimeout}
	default:
		m.logger.Warn("command failed", "command", text, "response", cmd.Line(), "elapsed", elapsed)
		return &CommandError{Command: text, Response: cmd.Line(), Elapsed: elapsed, Err: ErrCommandFailed}
	}
}

// poll hands transport bytes to consume until it returns true or the
// deadline passes. The deadline is measured from entry and never extends
// past the context deadline. It reports whether consume finished.
func (m *Modem) poll(ctx context.Context, timeout time.Duration, consume func(b byte) bool) (bool, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for {
		if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		ok, err := m.src.available()
		if err != nil {
			return false, fmt.Errorf("read: %w", err)
		}
		if ok && consume(m.src.readByte()) {
			return true, nil
		}
	}
}

// promptExchange runs a command that needs the '>' handshake: the command
// line, the prompt, the raw payload, an optional terminator, then the usual
// response.
func (m *Modem) promptExchange(ctx context.Context, cmd *at.Command, timeout time.Duration, payload []byte, terminator string, format string, args ...any) error {
	text, err := formatCommand(format, args...)
	if err != nil {
		return err
	}
	if err := m.send(cmd, text); err != nil {
		return err
	}
	if err := m.waitPrompt(ctx, cmd, text); err != nil {
		return err
	}

	m.logger.Debug("=> payload", "command", text, "bytes", len(payload))
	if _, err := m.transport.Write(payload); err != nil {
		m.parser.End()
		return fmt.Errorf("write payload for %q: %w", text, err)
	}
	if terminator != "" {
		if _, err := m.transport.Write([]byte(terminator)); err != nil {
			m.parser.End()
			return fmt.Errorf("write terminator for %q: %w", text, err)
		}
	}
	return m.await(ctx, cmd, text, timeout)
}

// waitPrompt skips line terminators and expects the prompt byte within the
// prompt deadline. Any other byte fails the command; the rest of its line is
// still consumed so the modem's error text does not leak into the next
// command.
func (m *Modem) waitPrompt(ctx context.Context, cmd *at.Command, text string) error {
	start := time.Now()
	var got byte
	ok, err := m.poll(ctx, m.config.promptTimeout, func(b byte) bool {
		if b == '\r' || b == '\n' {
			return false
		}
		got = b
		return true
	})
	if err != nil || !ok {
		result := m.parser.End()
		return m.outcome(cmd, text, result, time.Since(start), err)
	}
	if got == at.Prompt {
		return nil
	}

	m.parser.Feed(got)
	_, err = m.poll(ctx, m.config.promptTimeout, func(b byte) bool {
		m.parser.Feed(b)
		return cmd.Ready()
	})
	m.parser.End()
	response := cmd.Line()
	if response == "" {
		response = fmt.Sprintf("unexpected %q instead of prompt", got)
	}
	elapsed := time.Since(start)
	if err != nil {
		return fmt.Errorf("%s: %w", text, err)
	}
	m.logger.Warn("no data prompt", "command", text, "response", response, "elapsed", elapsed)
	return &CommandError{Command: text, Response: response, Elapsed: elapsed, Err: ErrCommandFailed}
}
