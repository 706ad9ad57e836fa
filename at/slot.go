package at

import (
	"strconv"
	"strings"
)

// Slot is a single-shot binding between one command and the caller's
// destination. The parser stages a decoded payload in the slot and commits it
// to the destination only when the command ends with Success. After the
// command ends the slot is spent and cannot be bound again.
type Slot interface {
	stage(payload string) bool
	staged() bool
	commit()
	spend()
	spent() bool
}

// Decoder turns the payload of a response line (prefix stripped, spaces
// trimmed) into a value. It reports false on malformed input.
type Decoder[T any] func(payload string) (T, bool)

// ValueSlot binds a destination of type T.
type ValueSlot[T any] struct {
	dst    *T
	decode Decoder[T]
	value  T
	full   bool
	used   bool
}

// Bind returns a slot that decodes payload lines with decode and writes the
// result into dst on Success.
func Bind[T any](dst *T, decode Decoder[T]) *ValueSlot[T] {
	return &ValueSlot[T]{dst: dst, decode: decode}
}

func (s *ValueSlot[T]) stage(payload string) bool {
	if s.full {
		// first payload line wins
		return true
	}
	v, ok := s.decode(payload)
	if !ok {
		return false
	}
	s.value, s.full = v, true
	return true
}

func (s *ValueSlot[T]) staged() bool { return s.full }

func (s *ValueSlot[T]) commit() {
	if s.full && s.dst != nil && !s.used {
		*s.dst = s.value
	}
}

func (s *ValueSlot[T]) spend() {
	s.used = true
	s.dst = nil
}

func (s *ValueSlot[T]) spent() bool { return s.used }

// RawSlot receives the byte payload of a raw data read. It never holds more
// than the capacity of its destination; surplus bytes are dropped.
type RawSlot struct {
	dst  []byte
	n    *int
	mux  int
	buf  []byte
	want int
	full bool
	used bool
}

// BindRaw returns a slot that copies the data returned for mux into dst and
// stores the number of bytes copied into n on Success.
func BindRaw(dst []byte, n *int, mux int) *RawSlot {
	return &RawSlot{dst: dst, n: n, mux: mux, buf: make([]byte, 0, len(dst))}
}

// stage parses the "+CIPRXGET: 2,<mux>,<len>,<remaining>" header. The
// single connection form without <mux> is accepted too.
func (s *RawSlot) stage(payload string) bool {
	if s.full {
		return false
	}
	fields := strings.Split(payload, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) < 3 || fields[0] != "2" {
		return false
	}
	var lenField string
	switch len(fields) {
	case 3:
		lenField = fields[1]
	case 4:
		mux, err := strconv.Atoi(fields[1])
		if err != nil || mux != s.mux {
			return false
		}
		lenField = fields[2]
	default:
		return false
	}
	n, err := strconv.Atoi(lenField)
	if err != nil || n < 0 {
		return false
	}
	s.want, s.full = n, true
	return true
}

// expect returns the number of raw bytes announced by the header.
func (s *RawSlot) expect() int { return s.want }

func (s *RawSlot) put(b byte) {
	if len(s.buf) < cap(s.buf) {
		s.buf = append(s.buf, b)
	}
}

func (s *RawSlot) staged() bool { return s.full }

func (s *RawSlot) commit() {
	if !s.full || s.used {
		return
	}
	n := copy(s.dst, s.buf)
	if s.n != nil {
		*s.n = n
	}
}

func (s *RawSlot) spend() {
	s.used = true
	s.dst, s.n = nil, nil
}

func (s *RawSlot) spent() bool { return s.used }
