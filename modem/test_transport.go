package modem

import (
	"context"
	"io"
	"sync"
	"time"
)

// TestTransport is a scripted modem for tests. Every expected command line
// is answered with a canned reply; the reply only arrives when the transport
// runs at the baud rate the simulated modem listens on. Read never blocks
// for long, like a serial port with a read timeout.
type TestTransport struct {
	mu        sync.Mutex
	script    []exchange
	pending   []byte
	baud      int
	modemBaud int
	rates     []int
	written   []string
	unmatched []string
	closed    bool
}

type exchange struct {
	write string
	reply string
	rate  int
}

// NewTestTransport creates a transport whose modem answers at any baud rate.
func NewTestTransport() *TestTransport {
	return &TestTransport{}
}

// Expect queues reply to be sent when write is the next line written.
func (t *TestTransport) Expect(write, reply string) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script = append(t.script, exchange{write: write, reply: reply})
	return t
}

// ExpectBaudSwitch is Expect for AT+IPR: after the reply the simulated
// modem listens on rate.
func (t *TestTransport) ExpectBaudSwitch(write, reply string, rate int) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script = append(t.script, exchange{write: write, reply: reply, rate: rate})
	return t
}

// ModemBaud sets the rate the simulated modem listens on. Zero means any.
func (t *TestTransport) ModemBaud(rate int) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.modemBaud = rate
	return t
}

// Inject makes data readable as if the modem sent it unprompted.
func (t *TestTransport) Inject(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, data...)
}

func (t *TestTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.EOF
	}
	if len(t.pending) == 0 {
		t.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	t.mu.Unlock()
	return n, nil
}

func (t *TestTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	line := string(p)
	t.written = append(t.written, line)
	if len(t.script) == 0 || t.script[0].write != line {
		t.unmatched = append(t.unmatched, line)
		return len(p), nil
	}
	e := t.script[0]
	t.script = t.script[1:]
	if !t.live() {
		return len(p), nil
	}
	t.pending = append(t.pending, e.reply...)
	if e.rate != 0 {
		t.modemBaud = e.rate
	}
	return len(p), nil
}

func (t *TestTransport) live() bool {
	return t.modemBaud == 0 || t.baud == t.modemBaud
}

// SetBaudRate implements BaudRateSetter. Bytes in flight are dropped, as a
// serial port does when its speed changes.
func (t *TestTransport) SetBaudRate(rate int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baud = rate
	t.rates = append(t.rates, rate)
	t.pending = nil
	return nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Written returns every write in order.
func (t *TestTransport) Written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.written...)
}

// Unmatched returns the writes no scripted exchange expected.
func (t *TestTransport) Unmatched() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.unmatched...)
}

// Rates returns the baud rates the transport was switched to, in order.
func (t *TestTransport) Rates() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.rates...)
}

// Remaining returns the number of scripted exchanges not yet consumed.
func (t *TestTransport) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.script)
}

// TestDialer dials a fixed transport.
type TestDialer struct {
	Transport Transport
}

func (d TestDialer) Dial(ctx context.Context) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Transport, nil
}
