package at

import "strings"

// Kind identifies the command that is outstanding. It decides how the
// parser interprets the lines that arrive until the command completes.
type Kind int

const (
	KindGeneric       Kind = iota // plain OK/ERROR
	KindCREG                      // AT+CREG?
	KindCSQ                       // AT+CSQ
	KindCBC                       // AT+CBC
	KindCOPS                      // AT+COPS?
	KindCIPMUX                    // AT+CIPMUX?
	KindCIFSR                     // AT+CIFSR;E0
	KindGSN                       // AT+GSN
	KindCIPSTATUS                 // AT+CIPSTATUS
	KindCIPSTATUSConn             // AT+CIPSTATUS=<mux>
	KindCIPRXGET                  // AT+CIPRXGET=2,<mux>,<len>
	KindCUSD                      // AT+CUSD=1,"<code>"
	KindCLCC                      // AT+CLCC
	KindCIPSHUT                   // AT+CIPSHUT
	KindCIPCLOSE                  // AT+CIPCLOSE=<mux>
	KindCIPSEND                   // AT+CIPSEND=<mux>,<len>
	KindCPOWD                     // AT+CPOWD=0
)

var kindNames = map[Kind]string{
	KindGeneric:       "generic",
	KindCREG:          "CREG",
	KindCSQ:           "CSQ",
	KindCBC:           "CBC",
	KindCOPS:          "COPS",
	KindCIPMUX:        "CIPMUX",
	KindCIFSR:         "CIFSR",
	KindGSN:           "GSN",
	KindCIPSTATUS:     "CIPSTATUS",
	KindCIPSTATUSConn: "CIPSTATUS=n",
	KindCIPRXGET:      "CIPRXGET",
	KindCUSD:          "CUSD",
	KindCLCC:          "CLCC",
	KindCIPSHUT:       "CIPSHUT",
	KindCIPCLOSE:      "CIPCLOSE",
	KindCIPSEND:       "CIPSEND",
	KindCPOWD:         "CPOWD",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// grammar describes the response of one Kind.
type grammar struct {
	// prefix selects payload lines. Empty with bare set means every
	// non-terminal line is offered to the slot's decoder.
	prefix string
	bare   bool
	// terminal payload lines complete the command (they arrive after OK).
	terminal bool
	// optional payloads may be absent; a plain OK is still Success.
	optional bool
	// quoted payloads may continue on following lines until the quote closes.
	quoted bool
	// raw payloads announce a byte count followed by that many raw bytes.
	raw bool
	// success and failure are kind specific markers matched as line suffixes.
	success string
	failure string
	// rejected payload lines end the command with Error.
	rejected string
}

var grammars = map[Kind]grammar{
	KindGeneric:       {},
	KindCREG:          {prefix: UrcRegistration},
	KindCSQ:           {prefix: UrcSignalStrength},
	KindCBC:           {prefix: "+CBC:"},
	KindCOPS:          {prefix: "+COPS:"},
	KindCIPMUX:        {prefix: "+CIPMUX:"},
	KindCIFSR:         {bare: true},
	KindGSN:           {bare: true},
	KindCIPSTATUS:     {prefix: UrcState, terminal: true},
	KindCIPSTATUSConn: {prefix: "+CIPSTATUS:"},
	KindCIPRXGET:      {prefix: UrcDataReady, raw: true},
	KindCUSD:          {prefix: UrcUssd, terminal: true, quoted: true, rejected: UssdNotSupported},
	KindCLCC:          {prefix: "+CLCC:", optional: true},
	KindCIPSHUT:       {success: ShutOK},
	KindCIPCLOSE:      {success: CloseOK},
	KindCIPSEND:       {success: SendOK, failure: SendFail},
	KindCPOWD:         {success: UrcPowerDown},
}

func (k Kind) grammar() grammar {
	return grammars[k]
}

// HasPayload reports whether commands of this kind decode a payload line
// and therefore need a bound slot.
func (k Kind) HasPayload() bool {
	g := k.grammar()
	return g.prefix != "" || g.bare
}

func (g grammar) isPayload(line string) bool {
	if g.prefix != "" {
		return strings.HasPrefix(line, g.prefix)
	}
	return g.bare
}

// isFailure reports whether line ends the command with Error.
func (g grammar) isFailure(line string) bool {
	if g.failure != "" && strings.HasSuffix(line, g.failure) {
		return true
	}
	if g.rejected != "" && strings.HasPrefix(line, g.rejected) {
		return true
	}
	return Classify(line) == TypeFinal && line != OK
}

func (g grammar) isSuccess(line string) bool {
	return g.success != "" && strings.HasSuffix(line, g.success)
}

var notifications = []string{
	UrcReady, UrcCallReady, UrcSMSReady, UrcNewMsg, UrcCall, UrcCallerID,
	UrcFunctionality, UrcPin, UrcRegistration, UrcPDPDeact, UrcDataReady,
	UrcUssd, UrcPowerDown, UrcUnderVoltage, UrcOverVoltage, UrcConnStatus,
	UrcState, UrcSignalStrength, NoCarrier, OK, ERROR, ShutOK, "AT",
}

var notificationSuffixes = []string{
	UrcClosed, CloseOK, ConnectOK, ConnectFail, SendOK, SendFail, "ALREADY CONNECT",
}

// IsNotification reports whether line is something the modem sends on its
// own: boot banners, URCs and late answers to commands that already timed out.
func IsNotification(line string) bool {
	for _, p := range notifications {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	for _, s := range notificationSuffixes {
		if strings.HasSuffix(line, s) {
			return true
		}
	}
	return false
}

// partialNotification reports whether an unterminated line may still grow
// into a notification.
func partialNotification(line string) bool {
	for _, p := range notifications {
		if strings.HasPrefix(p, line) || strings.HasPrefix(line, p) {
			return true
		}
	}
	// "<mux>, CLOSED" and the other per-connection forms
	mux, rest, _ := strings.Cut(line, ",")
	if len(mux) != 1 || mux[0] < '0' || mux[0] > '9' {
		return false
	}
	rest = strings.TrimSpace(rest)
	for _, s := range notificationSuffixes {
		if strings.HasPrefix(s, rest) {
			return true
		}
	}
	return false
}

// Classify identifies the nature of the modem output
func Classify(line string) ResponseType {
	// Direct matches for final results
	switch line {
	case OK, ERROR, NoCarrier, NoDialtone, Busy, NoAnswer:
		return TypeFinal
	}

	// Prefix matches
	switch {
	case strings.HasPrefix(line, CmeError), strings.HasPrefix(line, CmsError):
		return TypeFinal
	case IsNotification(line):
		return TypeURC
	default:
		return TypeData
	}
}
