package modem_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"i4.energy/across/simcom/modem"
)

func TestModemNew(t *testing.T) {
	t.Run("Initialization Success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)

		gomock.InOrder(slices.Concat(
			[]any{
				mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			},
			initMockCalls(mockTransport),
		)...)
		idleReads(mockTransport)

		m, err := modem.New(context.Background(), mockConfig(t, mockDialer))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m == nil {
			t.Fatal("New() should return valid modem on success")
		}
		if m.BaudRate() != 115200 {
			t.Errorf("expected baud rate 115200, got %d", m.BaudRate())
		}

		// Clean up
		mockTransport.EXPECT().Close().Return(nil)
		if err := m.Close(); err != nil {
			t.Errorf("unexpected error from Close(): %v", err)
		}
	})

	t.Run("Dialer error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := modem.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, errors.New("connection failed"))

		m, err := modem.New(context.Background(), mockConfig(t, mockDialer))
		if err == nil {
			t.Error("expected error from dialer failure")
		}
		if m != nil {
			t.Error("New() should return nil modem when dialer fails")
		}
	})

	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		m, err := modem.New(context.Background(), modem.Config{})
		if !errors.Is(err, modem.ErrNoDialer) {
			t.Errorf("expected ErrNoDialer from New(), got: %v", err)
		}
		if m != nil {
			t.Error("New() should return nil modem when no dialer provided")
		}
	})

	t.Run("ErrNotInitialized on nil transport", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := modem.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, nil)

		_, err := modem.New(context.Background(), mockConfig(t, mockDialer))
		if !errors.Is(err, modem.ErrNotInitialized) {
			t.Errorf("expected ErrNotInitialized from New(), got: %v", err)
		}
	})

	t.Run("ErrNoBaudSetter when the transport cannot change speed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)

		gomock.InOrder(slices.Concat(
			[]any{
				mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			},
			reply(mockTransport, "AT", "OK\r\n"),
			[]any{
				mockTransport.EXPECT().Close().Return(nil),
			},
		)...)
		idleReads(mockTransport)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			WithProbeRetries(-1, 0).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		m, err := modem.New(context.Background(), config)
		if !errors.Is(err, modem.ErrNoBaudSetter) {
			t.Errorf("expected ErrNoBaudSetter, got: %v", err)
		}
		if m != nil {
			t.Error("New() should return nil modem when error occurs")
		}
	})

	t.Run("ErrNotReachable closes the transport", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)

		mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil)
		mockTransport.EXPECT().Write([]byte("AT\r")).Return(3, nil).Times(2)
		mockTransport.EXPECT().Close().Return(nil)
		idleReads(mockTransport)

		m, err := modem.New(context.Background(), mockConfig(t, mockDialer))
		if !errors.Is(err, modem.ErrNotReachable) {
			t.Errorf("expected ErrNotReachable, got: %v", err)
		}
		if m != nil {
			t.Error("New() should return nil modem when error occurs")
		}
	})
}

func TestModemClose(t *testing.T) {
	t.Run("Closes underlying transport successfully", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)

		gomock.InOrder(slices.Concat(
			[]any{
				mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			},
			initMockCalls(mockTransport),
			[]any{
				mockTransport.EXPECT().Close().Return(nil),
			},
		)...)
		idleReads(mockTransport)

		m, err := modem.New(context.Background(), mockConfig(t, mockDialer))
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}

		if err := m.Close(); err != nil {
			t.Errorf("unexpected error from Close(): %v", err)
		}
	})

	t.Run("Returns transport error on close failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)

		closeError := errors.New("transport close failed")
		gomock.InOrder(slices.Concat(
			[]any{
				mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			},
			initMockCalls(mockTransport),
			[]any{
				mockTransport.EXPECT().Close().Return(closeError),
			},
		)...)
		idleReads(mockTransport)

		m, err := modem.New(context.Background(), mockConfig(t, mockDialer))
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}

		if err := m.Close(); err != closeError {
			t.Errorf("expected transport error, got: %v", err)
		}
	})

	t.Run("ErrAlreadyClosed on double close and later commands", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)

		gomock.InOrder(slices.Concat(
			[]any{
				mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			},
			initMockCalls(mockTransport),
			[]any{
				mockTransport.EXPECT().Close().Return(nil),
			},
		)...)
		idleReads(mockTransport)

		m, err := modem.New(context.Background(), mockConfig(t, mockDialer))
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}

		if err := m.Close(); err != nil {
			t.Errorf("first close should succeed, got error: %v", err)
		}
		if err := m.Close(); err != modem.ErrAlreadyClosed {
			t.Errorf("expected ErrAlreadyClosed on second close, got: %v", err)
		}
		if err := m.At(context.Background()); err != modem.ErrAlreadyClosed {
			t.Errorf("expected ErrAlreadyClosed from At(), got: %v", err)
		}
	})
}

func TestModemCommand(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		m := newMockModem(t, func(tr *modem.MockTransport) []any {
			return reply(tr, "AT+CSCLK=0", "\r\nOK\r\n")
		})
		if err := m.Command(context.Background(), "AT+CSCLK=%d", 0); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("ErrCommandFailed carries the response line", func(t *testing.T) {
		m := newMockModem(t, func(tr *modem.MockTransport) []any {
			return reply(tr, "AT+CPIN=1234", "\r\n+CME ERROR: 16\r\n")
		})
		err := m.Command(context.Background(), "AT+CPIN=%s", "1234")
		if !errors.Is(err, modem.ErrCommandFailed) {
			t.Fatalf("expected ErrCommandFailed, got: %v", err)
		}
		var cmdErr *modem.CommandError
		if !errors.As(err, &cmdErr) {
			t.Fatalf("expected *CommandError, got: %T", err)
		}
		if cmdErr.Response != "+CME ERROR: 16" {
			t.Errorf("unexpected response: %q", cmdErr.Response)
		}
		if cmdErr.Command != "AT+CPIN=1234" {
			t.Errorf("unexpected command: %q", cmdErr.Command)
		}
	})

	t.Run("ErrTimeout when nothing answers", func(t *testing.T) {
		m := newMockModem(t, func(tr *modem.MockTransport) []any {
			return []any{tr.EXPECT().Write([]byte("AT+CFUN=1\r")).Return(10, nil)}
		})
		start := time.Now()
		err := m.Command(context.Background(), "AT+CFUN=1")
		if !errors.Is(err, modem.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
			t.Errorf("timed out early after %s", elapsed)
		}
	})

	t.Run("ErrTimeout ignores traffic that does not end the command", func(t *testing.T) {
		m := newMockModem(t, func(tr *modem.MockTransport) []any {
			return reply(tr, "AT+CFUN=1", "AT+CFUN=1\r\n+CPIN: READY\r\nCall Ready\r\n")
		})
		if err := m.Command(context.Background(), "AT+CFUN=1"); !errors.Is(err, modem.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got: %v", err)
		}
	})

	t.Run("ErrCommandTooLong writes nothing", func(t *testing.T) {
		m := newMockModem(t, func(*modem.MockTransport) []any { return nil })
		err := m.Command(context.Background(), "AT+CSTT=%q", strings.Repeat("x", modem.MaxCommandLength))
		if !errors.Is(err, modem.ErrCommandTooLong) {
			t.Errorf("expected ErrCommandTooLong, got: %v", err)
		}
	})

	t.Run("Canceled context", func(t *testing.T) {
		m := newMockModem(t, func(tr *modem.MockTransport) []any {
			return []any{tr.EXPECT().Write([]byte("ATH\r")).Return(4, nil)}
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := m.Hangup(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got: %v", err)
		}
	})

	t.Run("Context deadline is a timeout", func(t *testing.T) {
		m := newMockModem(t, func(tr *modem.MockTransport) []any {
			return []any{tr.EXPECT().Write([]byte("ATH\r")).Return(4, nil)}
		})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		start := time.Now()
		if err := m.Hangup(ctx); !errors.Is(err, modem.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 90*time.Millisecond {
			t.Errorf("context deadline not honored, took %s", elapsed)
		}
	})

	t.Run("Write error", func(t *testing.T) {
		writeErr := errors.New("broken pipe")
		m := newMockModem(t, func(tr *modem.MockTransport) []any {
			return []any{tr.EXPECT().Write([]byte("ATH\r")).Return(0, writeErr)}
		})
		if err := m.Hangup(context.Background()); !errors.Is(err, writeErr) {
			t.Errorf("expected write error, got: %v", err)
		}
	})
}

func TestModemWait(t *testing.T) {
	t.Run("Notifications go to the handler", func(t *testing.T) {
		transport := modem.NewTestTransport()
		scriptInit(transport)

		var lines []string
		config, err := testBuilder(transport).
			WithNotificationHandler(func(line string) { lines = append(lines, line) }).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}
		m, err := modem.New(context.Background(), config)
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}
		defer m.Close()

		transport.Inject("\r\n+CMTI: \"SM\",1\r\n\r\nRING\r\n")
		if err := m.Wait(context.Background(), 20*time.Millisecond); err != nil {
			t.Fatalf("unexpected error from Wait(): %v", err)
		}
		if !slices.Equal(lines, []string{`+CMTI: "SM",1`, "RING"}) {
			t.Errorf("unexpected notifications: %q", lines)
		}
		if m.GarbageDetected() {
			t.Error("notifications must not raise the garbage flag")
		}
	})

	t.Run("Garbage flag", func(t *testing.T) {
		transport := modem.NewTestTransport()
		m := newTestModem(t, transport)

		transport.Inject("\x00\xff\x13")
		if err := m.Wait(context.Background(), 20*time.Millisecond); err != nil {
			t.Fatalf("unexpected error from Wait(): %v", err)
		}
		if !m.GarbageDetected() {
			t.Fatal("expected garbage flag after line noise")
		}
		m.ClearGarbage()
		if m.GarbageDetected() {
			t.Error("ClearGarbage() should reset the flag")
		}
	})

	t.Run("Unterminated noise before a command sets the garbage flag", func(t *testing.T) {
		transport := modem.NewTestTransport()
		m := newTestModem(t, transport)

		transport.Inject("x7#k")
		transport.Expect("AT\r", "\r\nOK\r\n")
		if err := m.Wait(context.Background(), 5*time.Millisecond); err != nil {
			t.Fatalf("unexpected error from Wait(): %v", err)
		}
		if m.GarbageDetected() {
			t.Fatal("an unterminated line is not garbage yet")
		}
		if err := m.At(context.Background()); err != nil {
			t.Fatalf("unexpected error from At(): %v", err)
		}
		if !m.GarbageDetected() {
			t.Error("expected garbage flag for the dropped partial line")
		}
	})

	t.Run("Late answers drained while idle do not end the next command", func(t *testing.T) {
		transport := modem.NewTestTransport()
		m := newTestModem(t, transport)

		// late OK of a command that already timed out
		transport.Inject("OK\r\n")
		transport.Expect("AT+CSQ\r", "\r\n+CSQ: 17,0\r\n\r\nOK\r\n")
		if err := m.Wait(context.Background(), 5*time.Millisecond); err != nil {
			t.Fatalf("unexpected error from Wait(): %v", err)
		}

		rssi, err := m.SignalQuality(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rssi != 17 {
			t.Errorf("expected 17, got %d", rssi)
		}
		assertScriptDone(t, transport)
	})
}
