package modem

import (
	"context"
	"errors"
	"fmt"

	"i4.energy/across/simcom/at"
)

// At sends the bare AT liveness probe with the short probe deadline.
func (m *Modem) At(ctx context.Context) error {
	return m.exec(ctx, at.NewCommand(at.KindGeneric, nil), m.config.probeTimeout, "AT")
}

// SetEcho enables or disables command echo. The modem needs a short pause
// after ATE before it accepts the next command, so SetEcho waits for the
// configured settle time before returning.
func (m *Modem) SetEcho(ctx context.Context, enabled bool) error {
	cmd := "ATE0"
	if enabled {
		cmd = "ATE1"
	}
	err := m.exec(ctx, at.NewCommand(at.KindGeneric, nil), m.config.atTimeout, "%s", cmd)
	if werr := m.Wait(ctx, m.config.echoSettle); err == nil {
		err = werr
	}
	return err
}

// SetBaudRate asks the modem to switch to rate (AT+IPR). The transport is
// not touched.
func (m *Modem) SetBaudRate(ctx context.Context, rate int) error {
	return m.exec(ctx, at.NewCommand(at.KindGeneric, nil), m.config.atTimeout, "AT+IPR=%d", rate)
}

// EnsureConnected makes sure the modem answers at a known baud rate.
//
// It probes the modem, retrying a few times. When the baud rate is still
// unknown or the probes time out, it negotiates: every candidate rate is
// tried until one answers, then the modem is switched to desired if it
// differs. Echo is disabled and the garbage flag cleared afterwards.
func (m *Modem) EnsureConnected(ctx context.Context, desired int) error {
	err := m.At(ctx)
	for n := m.config.probeRetries; err != nil && n > 0; n-- {
		if !isProtocolError(err) {
			return err
		}
		if werr := m.Wait(ctx, m.config.probeRetryDelay); werr != nil {
			return werr
		}
		err = m.At(ctx)
	}

	if m.baudRate == 0 || errors.Is(err, ErrTimeout) {
		return m.negotiate(ctx, desired)
	}
	return err
}

func isProtocolError(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrCommandFailed)
}

// negotiate finds the modem's baud rate and moves it to desired.
func (m *Modem) negotiate(ctx context.Context, desired int) error {
	if m.baudSetter == nil {
		return ErrNoBaudSetter
	}

	detected, err := m.findBaudRate(ctx)
	if err != nil {
		return err
	}
	m.baudRate = detected
	m.logger.Info("found baud rate", "baud_rate", detected)

	if desired != 0 && desired != detected {
		if err := m.switchBaudRate(ctx, detected, desired); err != nil {
			return err
		}
	}

	if err := m.SetEcho(ctx, false); err != nil {
		return fmt.Errorf("disable echo: %w", err)
	}
	m.parser.ClearGarbage()
	return nil
}

// findBaudRate sweeps the candidate list, stopping at a zero entry.
func (m *Modem) findBaudRate(ctx context.Context) (int, error) {
	for _, rate := range m.config.baudCandidates {
		if rate == 0 {
			break
		}
		m.logger.Debug("trying baud rate", "baud_rate", rate)
		if err := m.baudSetter(rate); err != nil {
			return 0, fmt.Errorf("set transport baud rate %d: %w", rate, err)
		}
		err := m.At(ctx)
		if err == nil {
			return rate, nil
		}
		if !isProtocolError(err) {
			return 0, err
		}
	}
	return 0, ErrNotReachable
}

// switchBaudRate moves the modem from detected to desired. The recorded
// rate only changes when the modem answers at the new speed; otherwise the
// transport goes back to detected.
func (m *Modem) switchBaudRate(ctx context.Context, detected, desired int) error {
	if err := m.SetBaudRate(ctx, desired); err != nil {
		m.logger.Warn("failed to update baud rate", "baud_rate", detected, "desired", desired, "error", err)
		return nil
	}
	if err := m.baudSetter(desired); err != nil {
		return fmt.Errorf("set transport baud rate %d: %w", desired, err)
	}
	if err := m.At(ctx); err == nil {
		m.baudRate = desired
		m.logger.Info("set baud rate", "baud_rate", desired)
		return nil
	}

	m.logger.Warn("no answer at new baud rate", "baud_rate", desired, "fallback", detected)
	if err := m.baudSetter(detected); err != nil {
		return fmt.Errorf("set transport baud rate %d: %w", detected, err)
	}
	return nil
}
