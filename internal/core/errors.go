package core

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error kinds returned by the resource services. Match with errors.Is.
var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrDispatch         = errors.New("dispatch error")
)

type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string {
	return e.err.Error()
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.err}
}

func Validationf(format string, args ...any) error {
	return &kindError{kind: ErrValidation, err: fmt.Errorf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &kindError{kind: ErrNotFound, err: fmt.Errorf(format, args...)}
}

func PermissionDeniedf(format string, args ...any) error {
	return &kindError{kind: ErrPermissionDenied, err: fmt.Errorf(format, args...)}
}

func Unauthenticatedf(format string, args ...any) error {
	return &kindError{kind: ErrUnauthenticated, err: fmt.Errorf(format, args...)}
}

// DispatchError is returned alongside a committed task when its message could
// not be handed to the broker. The task row is kept and marked failed.
type DispatchError struct {
	TaskId uuid.UUID
	Queue  string
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("task %s was created but could not be queued on %s: %v", e.TaskId, e.Queue, e.Err)
}

func (e *DispatchError) Unwrap() []error {
	return []error{ErrDispatch, e.Err}
}
