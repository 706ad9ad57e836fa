package modem

import (
	"context"
	"fmt"
	"net/netip"

	"i4.energy/across/simcom/at"
)

const (
	// MaxConnections is the number of multiplexed connections (mux 0..5).
	MaxConnections = 6
	// MaxSendSize is the largest payload one AT+CIPSEND accepts.
	MaxSendSize = 1460
	// MaxReceiveSize is the largest read one AT+CIPRXGET=2 returns.
	MaxReceiveSize = 1460
)

// SetAPN sets the access point for the GPRS context (AT+CSTT).
func (m *Modem) SetAPN(ctx context.Context, apn, username, password string) error {
	return m.exec(ctx, at.NewCommand(at.KindGeneric, nil), m.config.atTimeout,
		`AT+CSTT="%s","%s","%s"`, apn, username, password)
}

// AttachGprs brings up the wireless connection (AT+CIICR).
func (m *Modem) AttachGprs(ctx context.Context) error {
	return m.exec(ctx, at.NewCommand(at.KindGeneric, nil), m.config.attachTimeout, "AT+CIICR")
}

// Shutdown deactivates the GPRS context (AT+CIPSHUT). Every connection
// index is invalid afterwards.
func (m *Modem) Shutdown(ctx context.Context) error {
	return m.exec(ctx, at.NewCommand(at.KindCIPSHUT, nil), m.config.attachTimeout, "AT+CIPSHUT")
}

// IPAddress returns the local address of the GPRS context. AT+CIFSR answers
// with the bare address and no OK, so ";E0" is appended to get a terminal OK.
func (m *Modem) IPAddress(ctx context.Context) (netip.Addr, error) {
	var addr netip.Addr
	cmd := at.NewCommand(at.KindCIFSR, at.Bind(&addr, at.DecodeIPAddress))
	if err := m.exec(ctx, cmd, m.config.atTimeout, "AT+CIFSR;E0"); err != nil {
		return netip.Addr{}, err
	}
	return addr, nil
}

// IPState returns the state of the IP stack (AT+CIPSTATUS).
func (m *Modem) IPState(ctx context.Context) (at.IPState, error) {
	var state at.IPState
	cmd := at.NewCommand(at.KindCIPSTATUS, at.Bind(&state, at.DecodeIPState))
	if err := m.exec(ctx, cmd, m.config.atTimeout, "AT+CIPSTATUS"); err != nil {
		return 0, err
	}
	return state, nil
}

// Cipmux reports whether multi-connection mode is enabled (AT+CIPMUX?).
func (m *Modem) Cipmux(ctx context.Context) (bool, error) {
	var enabled bool
	cmd := at.NewCommand(at.KindCIPMUX, at.Bind(&enabled, at.DecodeFlag))
	if err := m.exec(ctx, cmd, m.config.atTimeout, "AT+CIPMUX?"); err != nil {
		return false, err
	}
	return enabled, nil
}

// SetCipmux enables or disables multi-connection mode.
func (m *Modem) SetCipmux(ctx context.Context, enabled bool) error {
	return m.exec(ctx, at.NewCommand(at.KindGeneric, nil), m.config.atTimeout, "AT+CIPMUX=%d", flag(enabled))
}

// SetTransparentMode switches between normal and transparent (AT+CIPMODE)
// data mode.
func (m *Modem) SetTransparentMode(ctx context.Context, enabled bool) error {
	return m.exec(ctx, at.NewCommand(at.KindGeneric, nil), m.config.atTimeout, "AT+CIPMODE=%d", flag(enabled))
}

// SetManualReceive makes the modem buffer incoming data until it is fetched
// with ReceiveData (AT+CIPRXGET=1) instead of pushing it unsolicited.
func (m *Modem) SetManualReceive(ctx context.Context, enabled bool) error {
	return m.exec(ctx, at.NewCommand(at.KindGeneric, nil), m.config.atTimeout, "AT+CIPRXGET=%d", flag(enabled))
}

// OpenConnection starts a TCP or UDP connection on mux (AT+CIPSTART). It
// returns once the modem accepted the command; use ConnectionStatus to see
// whether the connection came up.
func (m *Modem) OpenConnection(ctx context.Context, protocol at.Protocol, mux int, address string, port int) error {
	if err := checkMux(mux); err != nil {
		return err
	}
	if protocol != at.TCP && protocol != at.UDP {
		return fmt.Errorf("unsupported protocol %d", protocol)
	}
	return m.exec(ctx, at.NewCommand(at.KindGeneric, nil), m.config.connectTimeout,
		`AT+CIPSTART=%d,"%s","%s","%d"`, mux, protocol, address, port)
}

// CloseConnection closes mux (AT+CIPCLOSE). Closing a connection that is not
// open fails with ErrCommandFailed.
func (m *Modem) CloseConnection(ctx context.Context, mux int) error {
	if err := checkMux(mux); err != nil {
		return err
	}
	return m.exec(ctx, at.NewCommand(at.KindCIPCLOSE, nil), m.config.atTimeout, "AT+CIPCLOSE=%d", mux)
}

// ConnectionStatus returns the state of one connection (AT+CIPSTATUS=<mux>).
func (m *Modem) ConnectionStatus(ctx context.Context, mux int) (at.ConnectionInfo, error) {
	if err := checkMux(mux); err != nil {
		return at.ConnectionInfo{}, err
	}
	var info at.ConnectionInfo
	cmd := at.NewCommand(at.KindCIPSTATUSConn, at.Bind(&info, at.DecodeConnectionInfo))
	if err := m.exec(ctx, cmd, m.config.atTimeout, "AT+CIPSTATUS=%d", mux); err != nil {
		return at.ConnectionInfo{}, err
	}
	return info, nil
}

// SendData writes data on mux. The length is declared up front, the payload
// only goes out after the modem's '>' prompt.
func (m *Modem) SendData(ctx context.Context, mux int, data []byte) error {
	if err := checkMux(mux); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if len(data) > MaxSendSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(data), MaxSendSize)
	}
	return m.promptExchange(ctx, at.NewCommand(at.KindCIPSEND, nil), m.config.atTimeout,
		data, "", "AT+CIPSEND=%d,%d", mux, len(data))
}

// ReceiveData reads buffered data of mux into buf (AT+CIPRXGET=2) and returns
// the number of bytes read. The request is capped at len(buf), and buf never
// receives more than len(buf) bytes. Manual receive mode must be enabled.
func (m *Modem) ReceiveData(ctx context.Context, mux int, buf []byte) (int, error) {
	if err := checkMux(mux); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, ErrEmptyBuffer
	}
	if len(buf) > MaxReceiveSize {
		buf = buf[:MaxReceiveSize]
	}
	var n int
	cmd := at.NewCommand(at.KindCIPRXGET, at.BindRaw(buf, &n, mux))
	if err := m.exec(ctx, cmd, m.config.atTimeout, "AT+CIPRXGET=2,%d,%d", mux, len(buf)); err != nil {
		return 0, err
	}
	return n, nil
}

func checkMux(mux int) error {
	if mux < 0 || mux >= MaxConnections {
		return fmt.Errorf("%w: %d", ErrInvalidMux, mux)
	}
	return nil
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}
