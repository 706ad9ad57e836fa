package at

import "strings"

// Command is the per-dispatch context handed to the Parser: the kind of the
// outstanding command, the slot its payload goes to and, once ready, the
// result.
type Command struct {
	kind   Kind
	slot   Slot
	result Result
	line   string
	begun  bool
}

// NewCommand returns a command of the given kind. slot may be nil for kinds
// without payload.
func NewCommand(kind Kind, slot Slot) *Command {
	return &Command{kind: kind, slot: slot}
}

func (c *Command) Kind() Kind { return c.kind }

// Ready reports whether a terminal line has been classified.
func (c *Command) Ready() bool { return c.result == Success || c.result == Error }

func (c *Command) Result() Result { return c.result }

// Line returns the line that ended the command, e.g. "+CME ERROR: 10".
func (c *Command) Line() string { return c.line }

type rawSlot interface {
	expect() int
	put(b byte)
}

// Parser consumes the modem's byte stream one byte at a time. It never
// blocks and performs no I/O; the caller feeds it whatever the transport
// delivered.
type Parser struct {
	line     []byte
	overflow bool

	cmd *Command
	raw int
	dst rawSlot

	garbage bool
	notify  func(line string)
}

func NewParser() *Parser {
	return &Parser{line: make([]byte, 0, MaxLineLength)}
}

// OnNotification registers fn to receive recognized lines that arrive while
// no command is outstanding.
func (p *Parser) OnNotification(fn func(line string)) {
	p.notify = fn
}

// Begin makes c the outstanding command and resets the line state.
func (p *Parser) Begin(c *Command) error {
	if p.cmd != nil {
		return ErrBusy
	}
	if c.begun {
		return ErrCommandReused
	}
	if c.kind.HasPayload() {
		if c.slot == nil {
			return ErrSlotUnbound
		}
		if c.slot.spent() {
			return ErrSlotSpent
		}
	}
	if partial := strings.TrimSpace(string(p.line)); p.overflow || (partial != "" && !partialNotification(partial)) {
		// an unterminated idle line is dropped here
		p.garbage = true
	}
	c.begun = true
	p.cmd = c
	p.reset()
	return nil
}

// End detaches the outstanding command and returns its result. A command
// that never became ready ends with Timeout. The slot is spent either way.
func (p *Parser) End() Result {
	c := p.cmd
	if c == nil {
		return Pending
	}
	if c.result == Pending {
		c.result = Timeout
	}
	if c.slot != nil {
		c.slot.spend()
	}
	p.cmd = nil
	p.reset()
	return c.result
}

// Active reports whether a command is outstanding.
func (p *Parser) Active() bool { return p.cmd != nil }

// Garbage reports whether bytes outside the line grammar were seen while no
// command was outstanding.
func (p *Parser) Garbage() bool { return p.garbage }

func (p *Parser) ClearGarbage() { p.garbage = false }

func (p *Parser) reset() {
	p.line = p.line[:0]
	p.overflow = false
	p.raw = 0
	p.dst = nil
}

// Feed consumes one byte.
func (p *Parser) Feed(b byte) {
	if p.raw > 0 {
		p.dst.put(b)
		p.raw--
		return
	}
	switch b {
	case '\r':
		return
	case '\n':
		p.completeLine()
		return
	}
	if p.cmd == nil && !printable(b) {
		p.garbage = true
	}
	if len(p.line) >= MaxLineLength {
		p.overflow = true
		return
	}
	p.line = append(p.line, b)
}

func printable(b byte) bool {
	return b == '\t' || (b >= 0x20 && b < 0x7f)
}

func (p *Parser) completeLine() {
	if p.overflow {
		if p.cmd == nil {
			p.garbage = true
		}
		p.reset()
		return
	}
	line := strings.TrimSpace(string(p.line))
	if line == "" {
		p.line = p.line[:0]
		return
	}

	if c := p.cmd; c != nil && c.result == Pending {
		g := c.kind.grammar()
		if g.quoted && g.isPayload(line) && strings.Count(line, `"`)%2 == 1 && len(p.line) < MaxLineLength {
			// quoted text continues on the next line
			p.line = append(p.line, '\n')
			return
		}
		p.line = p.line[:0]
		p.classify(c, g, line)
		return
	}
	p.line = p.line[:0]

	if p.cmd != nil {
		// late lines for a command that is already ready
		return
	}
	if IsNotification(line) {
		if p.notify != nil {
			p.notify(line)
		}
		return
	}
	p.garbage = true
}

func (p *Parser) classify(c *Command, g grammar, line string) {
	switch {
	case g.isFailure(line):
		p.finish(c, Error, line)

	case g.isPayload(line) && c.slot != nil && !c.slot.staged() &&
		c.slot.stage(strings.TrimSpace(strings.TrimPrefix(line, g.prefix))):
		if r, ok := c.slot.(rawSlot); ok && r.expect() > 0 {
			p.raw, p.dst = r.expect(), r
		}
		if g.terminal {
			p.finish(c, Success, line)
		}

	case g.isSuccess(line):
		p.finish(c, Success, line)

	case line == OK:
		switch {
		case g.terminal:
			// the payload follows OK
		case c.kind.HasPayload() && !g.optional && !c.slot.staged():
			p.finish(c, Error, line)
		default:
			p.finish(c, Success, line)
		}

	default:
		// noise: echo, URCs, intermediate lines
	}
}

func (p *Parser) finish(c *Command, r Result, line string) {
	c.result, c.line = r, line
	if r == Success && c.slot != nil {
		c.slot.commit()
	}
}
