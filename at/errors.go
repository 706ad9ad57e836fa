package at

import "errors"

var (
	// ErrBusy is returned by Begin when another command is still outstanding.
	ErrBusy = errors.New("at: another command is outstanding")

	// ErrCommandReused is returned by Begin for a Command that was already
	// handed to a parser. Commands are single-use.
	ErrCommandReused = errors.New("at: command already dispatched")

	// ErrSlotUnbound is returned by Begin when the command kind decodes a
	// payload but no slot was bound to receive it.
	ErrSlotUnbound = errors.New("at: payload command without bound slot")

	// ErrSlotSpent is returned by Begin when the bound slot already served
	// an earlier command.
	ErrSlotSpent = errors.New("at: slot already spent")
)
