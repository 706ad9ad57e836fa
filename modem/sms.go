package modem

import (
	"context"
	"fmt"

	"i4.energy/across/simcom/at"
)

// SetSMSTextMode selects text mode for SMS (AT+CMGF=1).
func (m *Modem) SetSMSTextMode(ctx context.Context) error {
	return m.exec(ctx, at.NewCommand(at.KindGeneric, nil), m.config.atTimeout, "AT+CMGF=1")
}

// SendSMS sends a text message to the specified recipient.
//
// The message is sent in text mode (not PDU mode). The recipient should be
// in international format (e.g., "+1234567890"). The body is written only
// after the modem's '>' prompt and terminated with Ctrl-Z.
//
// This method blocks until the message is accepted by the network or an error
// occurs. Network delivery (to the final recipient) happens asynchronously.
func (m *Modem) SendSMS(ctx context.Context, recipient, message string) error {
	err := m.promptExchange(ctx, at.NewCommand(at.KindGeneric, nil), m.config.connectTimeout,
		[]byte(message), at.CtrlZ, `AT+CMGS="%s"`, recipient)
	if err != nil {
		return fmt.Errorf("send SMS: %w", err)
	}
	return nil
}

// SendUSSD sends a USSD code such as "*100#" and returns the network's
// answer. The answer arrives after the OK, so this waits up to the USSD
// timeout.
func (m *Modem) SendUSSD(ctx context.Context, code string) (at.UssdResponse, error) {
	var resp at.UssdResponse
	cmd := at.NewCommand(at.KindCUSD, at.Bind(&resp, at.DecodeUSSD))
	if err := m.exec(ctx, cmd, m.config.ussdTimeout, `AT+CUSD=1,"%s"`, code); err != nil {
		return at.UssdResponse{}, err
	}
	return resp, nil
}

// Call dials number as a voice call (ATD<number>;).
func (m *Modem) Call(ctx context.Context, number string) error {
	return m.exec(ctx, at.NewCommand(at.KindGeneric, nil), m.config.atTimeout, "ATD%s;", number)
}

// Hangup ends the current call (ATH).
func (m *Modem) Hangup(ctx context.Context) error {
	return m.exec(ctx, at.NewCommand(at.KindGeneric, nil), m.config.atTimeout, "ATH")
}

// IncomingCall returns the first call listed by AT+CLCC. ok is false when
// there is no call.
func (m *Modem) IncomingCall(ctx context.Context) (at.CallInfo, bool, error) {
	var call *at.CallInfo
	cmd := at.NewCommand(at.KindCLCC, at.Bind(&call, func(payload string) (*at.CallInfo, bool) {
		info, ok := at.DecodeCallInfo(payload)
		return &info, ok
	}))
	if err := m.exec(ctx, cmd, m.config.atTimeout, "AT+CLCC"); err != nil {
		return at.CallInfo{}, false, err
	}
	if call == nil {
		return at.CallInfo{}, false, nil
	}
	return *call, true, nil
}
