package modem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"i4.energy/across/simcom/at"
	"i4.energy/across/simcom/modem"
)

func TestRegistrationStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Registered roaming", func(t *testing.T) {
		transport := modem.NewTestTransport()
		m := newTestModem(t, transport)

		transport.Expect("AT+CREG?\r", "\r\n+CREG: 0,5\r\n\r\nOK\r\n")
		state, err := m.RegistrationStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, at.RegisteredRoaming, state)
		assert.True(t, state.Registered())
	})

	t.Run("OK without status line", func(t *testing.T) {
		transport := modem.NewTestTransport()
		m := newTestModem(t, transport)

		transport.Expect("AT+CREG?\r", "\r\nOK\r\n")
		state, err := m.RegistrationStatus(ctx)
		assert.ErrorIs(t, err, modem.ErrCommandFailed)
		assert.Equal(t, at.RegistrationUnknown, state)
	})

	t.Run("Registration notification inside the query window", func(t *testing.T) {
		transport := modem.NewTestTransport()
		m := newTestModem(t, transport)

		transport.Expect("AT+CREG?\r", "\r\n+CREG: 2\r\n\r\n+CREG: 1,1\r\n\r\nOK\r\n")
		state, err := m.RegistrationStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, at.RegisteredHome, state)
	})

	t.Run("Malformed status is ignored", func(t *testing.T) {
		transport := modem.NewTestTransport()
		m := newTestModem(t, transport)

		transport.Expect("AT+CREG?\r", "\r\n+CREG: 0,9\r\n\r\n+CREG: 0,1\r\n\r\nOK\r\n")
		state, err := m.RegistrationStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, at.RegisteredHome, state)
	})
}

func TestSignalQuality(t *testing.T) {
	transport := modem.NewTestTransport()
	m := newTestModem(t, transport)

	transport.
		Expect("AT+CSQ\r", "\r\n+CSQ: 23,0\r\n\r\nOK\r\n").
		Expect("AT+CSQ\r", "\r\n+CME ERROR: 100\r\n")

	rssi, err := m.SignalQuality(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 23, rssi)

	rssi, err = m.SignalQuality(context.Background())
	assert.ErrorIs(t, err, modem.ErrCommandFailed)
	assert.Zero(t, rssi)
	assertScriptDone(t, transport)
}

func TestBatteryStatus(t *testing.T) {
	transport := modem.NewTestTransport()
	m := newTestModem(t, transport)

	transport.Expect("AT+CBC\r", "\r\n+CBC: 0,76,3987\r\n\r\nOK\r\n")
	status, err := m.BatteryStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, at.BatteryStatus{Charge: at.NotCharging, Percent: 76, Millivolts: 3987}, status)
}

func TestIMEI(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		transport := modem.NewTestTransport()
		m := newTestModem(t, transport)

		transport.Expect("AT+GSN\r", "\r\n490154203237518\r\n\r\nOK\r\n")
		imei, err := m.IMEI(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "490154203237518", imei)
	})

	t.Run("Bad check digit", func(t *testing.T) {
		transport := modem.NewTestTransport()
		m := newTestModem(t, transport)

		transport.Expect("AT+GSN\r", "\r\n490154203237519\r\n\r\nOK\r\n")
		imei, err := m.IMEI(context.Background())
		assert.ErrorIs(t, err, modem.ErrCommandFailed)
		assert.Empty(t, imei)
	})
}

func TestOperatorName(t *testing.T) {
	ctx := context.Background()

	t.Run("Long name in the current format", func(t *testing.T) {
		transport := modem.NewTestTransport()
		m := newTestModem(t, transport)

		transport.Expect("AT+COPS?\r", "\r\n+COPS: 0,0,\"Orange PL\"\r\n\r\nOK\r\n")
		name, err := m.OperatorName(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, "Orange PL", name)
		assertScriptDone(t, transport)
	})

	t.Run("Switches to numeric format", func(t *testing.T) {
		transport := modem.NewTestTransport()
		m := newTestModem(t, transport)

		transport.
			Expect("AT+COPS?\r", "\r\n+COPS: 0,0,\"Orange PL\"\r\n\r\nOK\r\n").
			Expect("AT+COPS=3,2\r", "\r\nOK\r\n").
			Expect("AT+COPS?\r", "\r\n+COPS: 0,2,\"26003\"\r\n\r\nOK\r\n").
			Expect("AT+COPS=1,2,\"26002\"\r", "\r\nOK\r\n")

		name, err := m.OperatorName(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, "26003", name)

		// the selection uses the format the modem now reports in
		require.NoError(t, m.SetRegistrationMode(ctx, at.ModeManual, "26002"))
		assertScriptDone(t, transport)
	})

	t.Run("Failed format switch aborts", func(t *testing.T) {
		transport := modem.NewTestTransport()
		m := newTestModem(t, transport)

		transport.
			Expect("AT+COPS?\r", "\r\n+COPS: 0,0,\"Orange PL\"\r\n\r\nOK\r\n").
			Expect("AT+COPS=3,2\r", "\r\n+CME ERROR: 3\r\n")

		name, err := m.OperatorName(ctx, true)
		assert.ErrorIs(t, err, modem.ErrCommandFailed)
		assert.Empty(t, name)
		assertScriptDone(t, transport)
	})

	t.Run("Not registered", func(t *testing.T) {
		transport := modem.NewTestTransport()
		m := newTestModem(t, transport)

		transport.Expect("AT+COPS?\r", "\r\n+COPS: 0\r\n\r\nOK\r\n")
		name, err := m.OperatorName(ctx, false)
		require.NoError(t, err)
		assert.Empty(t, name)
	})
}

func TestPowerDown(t *testing.T) {
	transport := modem.NewTestTransport()
	m := newTestModem(t, transport)

	transport.Expect("AT+CPOWD=0\r", "\r\nNORMAL POWER DOWN\r\n")
	require.NoError(t, m.PowerDown(context.Background()))
}
