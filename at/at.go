// Package at implements the response side of the SIMCOM AT command protocol:
// the per-command response grammar, an incremental byte parser and the field
// decoders for the payload lines the modem sends back.
package at

const (
	// Terminal Control
	CR     = "\r"
	CRLF   = "\r\n"
	Prompt = '>'
	CtrlZ  = "\x1a"

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// Kind specific markers
	ShutOK      = "SHUT OK"
	CloseOK     = "CLOSE OK"
	SendOK      = "SEND OK"
	SendFail    = "SEND FAIL"
	ConnectOK   = "CONNECT OK"
	ConnectFail = "CONNECT FAIL"

	// UssdNotSupported is the +CUSD answer with <m>=4: the network does not
	// support the operation.
	UssdNotSupported = "+CUSD: 4"

	// URCs (Unsolicited Result Codes)
	UrcReady          = "RDY"
	UrcCallReady      = "Call Ready"
	UrcSMSReady       = "SMS Ready"
	UrcNewMsg         = "+CMTI:"
	UrcCall           = "RING"
	UrcCallerID       = "+CLIP:"
	UrcFunctionality  = "+CFUN:"
	UrcPin            = "+CPIN:"
	UrcRegistration   = "+CREG:"
	UrcPDPDeact       = "+PDP: DEACT"
	UrcDataReady      = "+CIPRXGET:"
	UrcUssd           = "+CUSD:"
	UrcPowerDown      = "NORMAL POWER DOWN"
	UrcUnderVoltage   = "UNDER-VOLTAGE"
	UrcOverVoltage    = "OVER-VOLTAGE"
	UrcClosed         = "CLOSED"
	UrcConnStatus     = "C:"
	UrcState          = "STATE:"
	UrcSignalStrength = "+CSQ:"

	// MaxLineLength is the capacity of the parser's line buffer.
	MaxLineLength = 512
)

// Result classifies the outcome of one command.
type Result int

const (
	Pending Result = iota // no terminal line seen yet
	Success               // terminal success line seen, payload committed
	Error                 // terminal failure line seen
	Timeout               // deadline elapsed without a terminal line
)

func (r Result) String() string {
	switch r {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Error:
		return "error"
	case Timeout:
		return "timeout"
	}
	return "unknown"
}

// ResponseType is the coarse class of a complete response line.
type ResponseType int

const (
	TypeFinal ResponseType = iota // OK, ERROR
	TypeURC                       // Asynchronous notifications
	TypeData                      // Intermediate command output (+CSQ: ...)
)
