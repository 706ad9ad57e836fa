package modem

import (
	"context"
	"fmt"

	"i4.energy/across/simcom/at"
)

// RegistrationStatus queries the network registration state (AT+CREG?).
func (m *Modem) RegistrationStatus(ctx context.Context) (at.RegistrationState, error) {
	var state at.RegistrationState
	cmd := at.NewCommand(at.KindCREG, at.Bind(&state, at.DecodeRegistration))
	if err := m.exec(ctx, cmd, m.config.atTimeout, "AT+CREG?"); err != nil {
		return at.RegistrationUnknown, err
	}
	return state, nil
}

// SetRegistrationMode selects how the modem registers (AT+COPS=<mode>,...).
// operator is given in the format the modem currently reports operators in.
// Network selection can take up to the registration timeout.
func (m *Modem) SetRegistrationMode(ctx context.Context, mode at.RegistrationMode, operator string) error {
	format := at.FormatLongAlpha
	if m.imsiFormat {
		format = at.FormatNumeric
	}
	// the write form of COPS answers with OK/ERROR only
	return m.exec(ctx, at.NewCommand(at.KindGeneric, nil), m.config.registrationTimeout,
		`AT+COPS=%d,%d,"%s"`, mode, format, operator)
}

// OperatorName returns the name of the registered operator. With imsi set
// the numeric MCC/MNC form is returned instead of the long name; the modem
// is switched to the requested format first if needed. A failed format
// switch aborts and returns its error.
func (m *Modem) OperatorName(ctx context.Context, imsi bool) (string, error) {
	op, err := m.queryOperator(ctx)
	if err != nil {
		return "", err
	}
	if m.imsiFormat == imsi {
		return op.Name, nil
	}

	format := at.FormatLongAlpha
	if imsi {
		format = at.FormatNumeric
	}
	if err := m.exec(ctx, at.NewCommand(at.KindGeneric, nil), m.config.atTimeout, "AT+COPS=%d,%d", at.ModeSetFormat, format); err != nil {
		return "", fmt.Errorf("switch operator format: %w", err)
	}
	m.imsiFormat = imsi

	if op, err = m.queryOperator(ctx); err != nil {
		return "", err
	}
	return op.Name, nil
}

func (m *Modem) queryOperator(ctx context.Context) (at.Operator, error) {
	var op at.Operator
	cmd := at.NewCommand(at.KindCOPS, at.Bind(&op, at.DecodeOperator))
	if err := m.exec(ctx, cmd, m.config.atTimeout, "AT+COPS?"); err != nil {
		return at.Operator{}, err
	}
	if op.HasName {
		m.imsiFormat = op.Format == at.FormatNumeric
	}
	return op, nil
}

// SignalQuality returns the RSSI reported by AT+CSQ: 0..31, 99 if unknown.
func (m *Modem) SignalQuality(ctx context.Context) (int, error) {
	var rssi int
	cmd := at.NewCommand(at.KindCSQ, at.Bind(&rssi, at.DecodeSignalQuality))
	if err := m.exec(ctx, cmd, m.config.atTimeout, "AT+CSQ"); err != nil {
		return 0, err
	}
	return rssi, nil
}

// BatteryStatus queries charge state, level and voltage (AT+CBC).
func (m *Modem) BatteryStatus(ctx context.Context) (at.BatteryStatus, error) {
	var status at.BatteryStatus
	cmd := at.NewCommand(at.KindCBC, at.Bind(&status, at.DecodeBattery))
	if err := m.exec(ctx, cmd, m.config.atTimeout, "AT+CBC"); err != nil {
		return at.BatteryStatus{}, err
	}
	return status, nil
}

// IMEI returns the modem's IMEI (AT+GSN).
func (m *Modem) IMEI(ctx context.Context) (string, error) {
	var imei string
	cmd := at.NewCommand(at.KindGSN, at.Bind(&imei, at.DecodeIMEI))
	if err := m.exec(ctx, cmd, m.config.atTimeout, "AT+GSN"); err != nil {
		return "", err
	}
	return imei, nil
}

// PowerDown switches the modem off immediately (AT+CPOWD=0).
func (m *Modem) PowerDown(ctx context.Context) error {
	return m.exec(ctx, at.NewCommand(at.KindCPOWD, nil), m.config.atTimeout, "AT+CPOWD=0")
}
