package mirra

import "github.com/pkg/errors"

var (
	ErrRegistryFull   = errors.New("node registry is full")
	ErrUnknownNode    = errors.New("unknown node")
	ErrDuplicateNode  = errors.New("node already registered")
	ErrFaultySchedule = errors.New("comm time already passed")
	ErrInvalidUpdate  = errors.New("invalid node update")
	ErrUploadAborted  = errors.New("upload aborted")
)
