package modem_test

import (
	"testing"
	"time"

	"i4.energy/across/simcom/modem"
)

func TestConfig(t *testing.T) {
	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		_, err := modem.NewConfigBuilder().Build()

		if err != modem.ErrNoDialer {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})

	t.Run("Build with every option", func(t *testing.T) {
		_, err := modem.NewConfigBuilder().
			WithDialer(modem.TestDialer{Transport: modem.NewTestTransport()}).
			WithBaudRate(57600).
			WithBaudCandidates(57600, 9600, 0).
			WithBaudSetter(func(int) error { return nil }).
			WithATTimeout(time.Second).
			WithProbeTimeout(20 * time.Millisecond).
			WithPromptTimeout(100 * time.Millisecond).
			WithEchoSettle(10 * time.Millisecond).
			WithConnectTimeout(30 * time.Second).
			WithAttachTimeout(30 * time.Second).
			WithRegistrationTimeout(time.Minute).
			WithUSSDTimeout(5 * time.Second).
			WithInitTimeout(10 * time.Second).
			WithProbeRetries(3, 10*time.Millisecond).
			WithNotificationHandler(func(string) {}).
			Build()

		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}
	})
}
