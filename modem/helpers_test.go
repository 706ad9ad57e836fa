package modem_test

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"i4.energy/across/simcom/modem"
)

// reply expects write (without the trailing CR) followed by one Read that
// returns resp.
func reply(transport *modem.MockTransport, write, resp string) []any {
	return []any{
		transport.EXPECT().Write([]byte(write + "\r")).Return(len(write)+1, nil),
		transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, resp), nil
		}),
	}
}

// initMockCalls is the link bootstrap against a modem that answers at the
// first candidate rate: probe, probe after setting the rate, echo off.
func initMockCalls(transport *modem.MockTransport) []any {
	var calls []any
	calls = append(calls, reply(transport, "AT", "OK\r\n")...)
	calls = append(calls, reply(transport, "AT", "OK\r\n")...)
	calls = append(calls, reply(transport, "ATE0", "ATE0\r\nOK\r\n")...)
	return calls
}

// idleReads lets every poll without scripted data see an empty line.
func idleReads(transport *modem.MockTransport) {
	transport.EXPECT().Read(gomock.Any()).Return(0, nil).AnyTimes()
}

func mockConfig(t *testing.T, dialer modem.Dialer) modem.Config {
	t.Helper()
	config, err := modem.NewConfigBuilder().
		WithDialer(dialer).
		WithBaudCandidates(115200).
		WithBaudSetter(func(int) error { return nil }).
		WithEchoSettle(time.Millisecond).
		WithProbeRetries(-1, 0).
		WithATTimeout(100 * time.Millisecond).
		WithPromptTimeout(50 * time.Millisecond).
		Build()
	require.NoError(t, err)
	return config
}

// newMockModem brings up a Modem on a strict gomock transport. script
// returns the calls expected after the bootstrap, in order; they have to be
// recorded before the idle reads, so they are passed in up front.
func newMockModem(t *testing.T, script func(*modem.MockTransport) []any) *modem.Modem {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockTransport := modem.NewMockTransport(ctrl)
	mockDialer := modem.NewMockDialer(ctrl)

	gomock.InOrder(slices.Concat(
		[]any{
			mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
		},
		initMockCalls(mockTransport),
		script(mockTransport),
	)...)
	idleReads(mockTransport)
	mockTransport.EXPECT().Close().Return(nil).AnyTimes()

	m, err := modem.New(context.Background(), mockConfig(t, mockDialer))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

// scriptInit queues the link bootstrap on a TestTransport.
func scriptInit(transport *modem.TestTransport) {
	transport.
		Expect("AT\r", "OK\r\n").
		Expect("AT\r", "OK\r\n").
		Expect("ATE0\r", "ATE0\r\nOK\r\n")
}

func testBuilder(transport *modem.TestTransport) *modem.ConfigBuilder {
	return modem.NewConfigBuilder().
		WithDialer(modem.TestDialer{Transport: transport}).
		WithBaudCandidates(115200).
		WithEchoSettle(time.Millisecond).
		WithProbeRetries(-1, 0).
		WithATTimeout(150 * time.Millisecond).
		WithPromptTimeout(50 * time.Millisecond).
		WithConnectTimeout(150 * time.Millisecond).
		WithAttachTimeout(150 * time.Millisecond).
		WithRegistrationTimeout(150 * time.Millisecond).
		WithUSSDTimeout(150 * time.Millisecond)
}

// newTestModem brings up a Modem on a scripted transport. Exchanges queued
// on transport after this call belong to the test.
func newTestModem(t *testing.T, transport *modem.TestTransport) *modem.Modem {
	t.Helper()
	scriptInit(transport)
	config, err := testBuilder(transport).Build()
	require.NoError(t, err)

	m, err := modem.New(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

// assertScriptDone checks that every scripted exchange was used and nothing
// else was written.
func assertScriptDone(t *testing.T, transport *modem.TestTransport) {
	t.Helper()
	require.Zero(t, transport.Remaining(), "unused exchanges, written: %q", transport.Written())
	require.Empty(t, transport.Unmatched())
}
