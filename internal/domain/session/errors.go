package session

import "errors"

type ErrorKind int

const (
	ErrNoOriginal ErrorKind = iota + 1
	ErrIndexOutOfRange
	ErrInvalidStatus
)

// Error is a rejected aggregate mutation. Msg is user facing.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func IsKind(err error, kind ErrorKind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}
