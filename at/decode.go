package at

import (
	"net/netip"
	"strconv"
	"strings"
)

// RegistrationState is the network registration status reported by +CREG.
type RegistrationState int

const (
	NotRegistered RegistrationState = iota
	RegisteredHome
	Searching
	RegistrationDenied
	RegistrationUnknown
	RegisteredRoaming
)

var registrationNames = [...]string{
	NotRegistered:       "not registered",
	RegisteredHome:      "registered (home)",
	Searching:           "searching",
	RegistrationDenied:  "denied",
	RegistrationUnknown: "unknown",
	RegisteredRoaming:   "registered (roaming)",
}

func (s RegistrationState) String() string {
	if s < 0 || int(s) >= len(registrationNames) {
		return "invalid"
	}
	return registrationNames[s]
}

// Registered reports whether the modem is attached to a home or roaming network.
func (s RegistrationState) Registered() bool {
	return s == RegisteredHome || s == RegisteredRoaming
}

// ParseRegistrationStatus maps the numeric <stat> field to a state.
func ParseRegistrationStatus(code int) (RegistrationState, bool) {
	if code < int(NotRegistered) || code > int(RegisteredRoaming) {
		return 0, false
	}
	return RegistrationState(code), true
}

// DecodeRegistration decodes the "<n>,<stat>[,<lac>,<ci>]" answer to
// AT+CREG?. The one field form is the unsolicited notification and is
// rejected here so it cannot stand in for the answer.
func DecodeRegistration(payload string) (RegistrationState, bool) {
	f := fields(payload)
	if len(f) < 2 {
		return 0, false
	}
	return parseRegistrationField(f[1])
}

// DecodeRegistrationNotification decodes the payload of the unsolicited
// "+CREG: <stat>[,<lac>,<ci>]" line sent while AT+CREG=1 or 2 is enabled.
func DecodeRegistrationNotification(payload string) (RegistrationState, bool) {
	return parseRegistrationField(fields(payload)[0])
}

func parseRegistrationField(field string) (RegistrationState, bool) {
	code, err := strconv.Atoi(field)
	if err != nil {
		return 0, false
	}
	return ParseRegistrationStatus(code)
}

// DecodeSignalQuality decodes "<rssi>,<ber>" into the rssi value: 0..31, or
// 99 when not known.
func DecodeSignalQuality(payload string) (int, bool) {
	f := fields(payload)
	if len(f) != 2 {
		return 0, false
	}
	rssi, err := strconv.Atoi(f[0])
	if err != nil || rssi < 0 || (rssi > 31 && rssi != 99) {
		return 0, false
	}
	return rssi, true
}

// ChargeState is the <bcs> field of +CBC.
type ChargeState int

const (
	NotCharging ChargeState = iota
	Charging
	ChargingFinished
)

// BatteryStatus is the decoded +CBC line.
type BatteryStatus struct {
	Charge     ChargeState
	Percent    int
	Millivolts int
}

// DecodeBattery decodes "<bcs>,<bcl>,<voltage>".
func DecodeBattery(payload string) (BatteryStatus, bool) {
	f := fields(payload)
	if len(f) != 3 {
		return BatteryStatus{}, false
	}
	var v [3]int
	for i := range f {
		n, err := strconv.Atoi(f[i])
		if err != nil || n < 0 {
			return BatteryStatus{}, false
		}
		v[i] = n
	}
	if v[0] > int(ChargingFinished) || v[1] > 100 {
		return BatteryStatus{}, false
	}
	return BatteryStatus{Charge: ChargeState(v[0]), Percent: v[1], Millivolts: v[2]}, true
}

// OperatorFormat is the <format> field of +COPS.
type OperatorFormat int

const (
	FormatLongAlpha  OperatorFormat = 0
	FormatShortAlpha OperatorFormat = 1
	FormatNumeric    OperatorFormat = 2
)

// RegistrationMode is the <mode> field of +COPS.
type RegistrationMode int

const (
	ModeAutomatic         RegistrationMode = 0
	ModeManual            RegistrationMode = 1
	ModeDeregister        RegistrationMode = 2
	ModeSetFormat         RegistrationMode = 3
	ModeManualOrAutomatic RegistrationMode = 4
)

// Operator is the decoded +COPS? line. Name is empty and HasName false when
// the modem is not registered.
type Operator struct {
	Mode    RegistrationMode
	Format  OperatorFormat
	Name    string
	HasName bool
}

// DecodeOperator decodes `<mode>[,<format>,"<oper>"]`.
func DecodeOperator(payload string) (Operator, bool) {
	f := fields(payload)
	mode, err := strconv.Atoi(f[0])
	if err != nil || mode < 0 || mode > int(ModeManualOrAutomatic) {
		return Operator{}, false
	}
	op := Operator{Mode: RegistrationMode(mode)}
	switch len(f) {
	case 1:
		return op, true
	case 3:
		format, err := strconv.Atoi(f[1])
		if err != nil || format < 0 || format > int(FormatNumeric) {
			return Operator{}, false
		}
		name, ok := unquote(f[2])
		if !ok {
			return Operator{}, false
		}
		op.Format, op.Name, op.HasName = OperatorFormat(format), name, true
		return op, true
	}
	return Operator{}, false
}

// DecodeFlag decodes a single 0/1 field such as the +CIPMUX answer.
func DecodeFlag(payload string) (bool, bool) {
	switch strings.TrimSpace(payload) {
	case "0":
		return false, true
	case "1":
		return true, true
	}
	return false, false
}

// DecodeIPAddress decodes a bare dotted-quad IPv4 line.
func DecodeIPAddress(payload string) (netip.Addr, bool) {
	if strings.Count(payload, ".") != 3 {
		return netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(payload)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, false
	}
	return addr, true
}

// IsIMEIValid checks length, digits and the Luhn check digit.
func IsIMEIValid(imei string) bool {
	if len(imei) != 15 {
		return false
	}
	sum := 0
	for i := 0; i < len(imei); i++ {
		c := imei[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

// DecodeIMEI accepts a bare line holding a valid IMEI.
func DecodeIMEI(payload string) (string, bool) {
	if !IsIMEIValid(payload) {
		return "", false
	}
	return payload, true
}

// IPState is the connection state reported on the STATE: line of AT+CIPSTATUS.
type IPState int

const (
	IPInitial IPState = iota
	IPStart
	IPConfig
	IPGprsAct
	IPStatus
	IPProcessing
	TCPConnecting
	UDPConnecting
	ServerListening
	IPConnectOK
	TCPClosing
	UDPClosing
	TCPClosed
	UDPClosed
	PDPDeact
)

var ipStateNames = [...]string{
	IPInitial:       "IP INITIAL",
	IPStart:         "IP START",
	IPConfig:        "IP CONFIG",
	IPGprsAct:       "IP GPRSACT",
	IPStatus:        "IP STATUS",
	IPProcessing:    "IP PROCESSING",
	TCPConnecting:   "TCP CONNECTING",
	UDPConnecting:   "UDP CONNECTING",
	ServerListening: "SERVER LISTENING",
	IPConnectOK:     "CONNECT OK",
	TCPClosing:      "TCP CLOSING",
	UDPClosing:      "UDP CLOSING",
	TCPClosed:       "TCP CLOSED",
	UDPClosed:       "UDP CLOSED",
	PDPDeact:        "PDP DEACT",
}

func (s IPState) String() string {
	if s < 0 || int(s) >= len(ipStateNames) {
		return "invalid"
	}
	return ipStateNames[s]
}

// ParseIPState maps the state text to an IPState.
func ParseIPState(text string) (IPState, bool) {
	for i, name := range ipStateNames {
		if name == text {
			return IPState(i), true
		}
	}
	return 0, false
}

// DecodeIPState decodes the text after "STATE:".
func DecodeIPState(payload string) (IPState, bool) {
	return ParseIPState(strings.TrimSpace(payload))
}

// Protocol is the transport protocol of a connection.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	TCP
	UDP
)

func (p Protocol) String() string {
	switch p {
	case TCP:
		return "TCP"
	case UDP:
		return "UDP"
	}
	return ""
}

// ParseProtocol maps "TCP" and "UDP" to a Protocol.
func ParseProtocol(s string) (Protocol, bool) {
	switch strings.ToUpper(s) {
	case "TCP":
		return TCP, true
	case "UDP":
		return UDP, true
	}
	return ProtocolUnknown, false
}

// ConnectionState is the state of one multiplexed connection.
type ConnectionState int

const (
	ConnInitial ConnectionState = iota
	ConnConnecting
	ConnConnected
	ConnRemoteClosing
	ConnClosing
	ConnClosed
)

var connStateNames = [...]string{
	ConnInitial:       "INITIAL",
	ConnConnecting:    "CONNECTING",
	ConnConnected:     "CONNECTED",
	ConnRemoteClosing: "REMOTE CLOSING",
	ConnClosing:       "CLOSING",
	ConnClosed:        "CLOSED",
}

func (s ConnectionState) String() string {
	if s < 0 || int(s) >= len(connStateNames) {
		return "invalid"
	}
	return connStateNames[s]
}

// ParseConnectionState maps the state text to a ConnectionState.
func ParseConnectionState(text string) (ConnectionState, bool) {
	for i, name := range connStateNames {
		if name == text {
			return ConnectionState(i), true
		}
	}
	return 0, false
}

// ConnectionInfo is one +CIPSTATUS=<n> line.
type ConnectionInfo struct {
	Mux      int
	Bearer   int
	Protocol Protocol
	Address  string
	Port     int
	State    ConnectionState
}

// DecodeConnectionInfo decodes
// `<n>,<bearer>,"<TCP/UDP>","<ip>","<port>","<state>"`. Unused connections
// report empty protocol, address and port.
func DecodeConnectionInfo(payload string) (ConnectionInfo, bool) {
	f := fields(payload)
	if len(f) != 6 {
		return ConnectionInfo{}, false
	}
	mux, err := strconv.Atoi(f[0])
	if err != nil || mux < 0 {
		return ConnectionInfo{}, false
	}
	info := ConnectionInfo{Mux: mux}
	if f[1] != "" {
		if info.Bearer, err = strconv.Atoi(f[1]); err != nil {
			return ConnectionInfo{}, false
		}
	}
	var text [4]string
	for i := range text {
		s, ok := unquote(f[2+i])
		if !ok {
			return ConnectionInfo{}, false
		}
		text[i] = s
	}
	if text[0] != "" {
		proto, ok := ParseProtocol(text[0])
		if !ok {
			return ConnectionInfo{}, false
		}
		info.Protocol = proto
	}
	info.Address = text[1]
	if text[2] != "" {
		if info.Port, err = strconv.Atoi(text[2]); err != nil || info.Port < 0 || info.Port > 65535 {
			return ConnectionInfo{}, false
		}
	}
	state, ok := ParseConnectionState(text[3])
	if !ok {
		return ConnectionInfo{}, false
	}
	info.State = state
	return info, true
}

// UssdResponse is the decoded +CUSD line.
type UssdResponse struct {
	Status int
	Text   string
	Scheme int
}

// DecodeUSSD decodes `<m>[,"<str>"[,<dcs>]]`. The text may span lines.
func DecodeUSSD(payload string) (UssdResponse, bool) {
	first, rest, _ := strings.Cut(payload, ",")
	status, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || status < 0 || status > 5 {
		return UssdResponse{}, false
	}
	resp := UssdResponse{Status: status}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return resp, true
	}
	if rest[0] != '"' {
		return UssdResponse{}, false
	}
	end := strings.LastIndexByte(rest, '"')
	if end <= 0 {
		return UssdResponse{}, false
	}
	resp.Text = rest[1:end]
	if tail := strings.TrimSpace(rest[end+1:]); tail != "" {
		tail, ok := strings.CutPrefix(tail, ",")
		if !ok {
			return UssdResponse{}, false
		}
		if resp.Scheme, err = strconv.Atoi(strings.TrimSpace(tail)); err != nil {
			return UssdResponse{}, false
		}
	}
	return resp, true
}

// CallState is the <stat> field of +CLCC.
type CallState int

const (
	CallActive CallState = iota
	CallHeld
	CallDialing
	CallAlerting
	CallIncoming
	CallWaiting
	CallDisconnect
)

// CallInfo is one +CLCC line.
type CallInfo struct {
	Index    int
	Incoming bool
	State    CallState
	Number   string
}

// DecodeCallInfo decodes `<id>,<dir>,<stat>,<mode>,<mpty>[,"<number>",<type>...]`.
func DecodeCallInfo(payload string) (CallInfo, bool) {
	f := fields(payload)
	if len(f) < 5 {
		return CallInfo{}, false
	}
	var n [3]int
	for i := range n {
		v, err := strconv.Atoi(f[i])
		if err != nil || v < 0 {
			return CallInfo{}, false
		}
		n[i] = v
	}
	if n[1] > 1 || n[2] > int(CallDisconnect) {
		return CallInfo{}, false
	}
	info := CallInfo{Index: n[0], Incoming: n[1] == 1, State: CallState(n[2])}
	if len(f) > 5 {
		number, ok := unquote(f[5])
		if !ok {
			return CallInfo{}, false
		}
		info.Number = number
	}
	return info, true
}

// fields splits a comma separated payload and trims every field. Commas
// inside quotes do not split.
func fields(payload string) []string {
	var (
		out    []string
		start  int
		quoted bool
	)
	for i := 0; i < len(payload); i++ {
		switch payload[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				out = append(out, strings.TrimSpace(payload[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(payload[start:]))
}

func unquote(s string) (string, bool) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", false
	}
	return s[1 : len(s)-1], true
}
