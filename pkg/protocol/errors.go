package protocol

import "github.com/pkg/errors"

var (
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	ErrTruncated       = errors.New("truncated frame")
	ErrInvalidType     = errors.New("invalid message type")
	ErrUnexpectedType  = errors.New("unexpected message type")
	ErrInvalidSeq      = errors.New("sequence number out of window")
	ErrTooManyValues   = errors.New("too many sensor values")
	ErrWindowFull      = errors.New("window is full")
	ErrBudgetExhausted = errors.New("time budget exhausted")
	ErrTransmitTimeout = errors.New("transmission timed out")
	ErrRadio           = errors.New("radio failure")
	ErrAborted         = errors.New("exchange aborted")
)
