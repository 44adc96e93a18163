package board

import (
	"errors"
	"fmt"

	"github.com/ssargent/boarddb/pkg/codec"
)

// FieldError rejects a payload field before anything is written. It matches
// codec.ErrEncodingViolation under errors.Is.
type FieldError struct {
	Field  string
	Reason string
	Size   int
	Limit  int
}

func (e *FieldError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("%s: %s is %s (%d > %d bytes)", codec.ErrEncodingViolation, e.Field, e.Reason, e.Size, e.Limit)
	}
	return fmt.Sprintf("%s: %s is %s", codec.ErrEncodingViolation, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return codec.ErrEncodingViolation
}

// NotFoundError reports an operation on an id with no record.
type NotFoundError struct {
	ID uint64
	Op string
}

func (e *NotFoundError) Error() string {
	switch e.Op {
	case "update":
		return fmt.Sprintf("couldn't update a message with id=%d. message not found", e.ID)
	case "delete":
		return fmt.Sprintf("couldn't delete a message with id=%d. message not found.", e.ID)
	default:
		return fmt.Sprintf("a message with id=%d not found", e.ID)
	}
}

// StorageFault reports a failure of the backing medium. The operation was
// aborted and the prior state is intact.
type StorageFault struct {
	Op  string
	Err error
}

func (e *StorageFault) Error() string {
	return fmt.Sprintf("storage fault during %s: %v", e.Op, e.Err)
}

func (e *StorageFault) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsEncodingViolation reports whether err was caused by a record that cannot
// be encoded within the size bound.
func IsEncodingViolation(err error) bool {
	return errors.Is(err, codec.ErrEncodingViolation)
}

// IsStorageFault reports whether err is a StorageFault.
func IsStorageFault(err error) bool {
	var sf *StorageFault
	return errors.As(err, &sf)
}
