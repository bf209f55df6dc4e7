package realtime

import "errors"

// Code classifies a realtime failure. The code travels to the client in
// the error frame alongside the human-readable message.
type Code string

const (
	CodeUnauthenticated   Code = "Unauthenticated"
	CodePrincipalNotFound Code = "PrincipalNotFound"
	CodeNoTeam            Code = "NoTeam"
	CodeNotFound          Code = "NotFoundOrUnauthorized"
	CodeInvalidValue      Code = "InvalidValue"
	CodeTransient         Code = "TransientStoreFailure"
)

// Error is the error type every handler returns. Two Errors match under
// errors.Is when their codes are equal.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrUnauthenticated   = &Error{Code: CodeUnauthenticated, Message: "Authentication error"}
	ErrPrincipalNotFound = &Error{Code: CodePrincipalNotFound, Message: "User not found"}
	ErrNoTeam            = &Error{Code: CodeNoTeam, Message: "You are not in any team"}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "Task not found"}
)

func invalid(msg string) *Error {
	return &Error{Code: CodeInvalidValue, Message: msg}
}

func transient(msg string, err error) *Error {
	return &Error{Code: CodeTransient, Message: msg, Err: err}
}

// CodeOf returns the code carried by err, or CodeTransient for errors that
// did not originate in this package.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeTransient
}

// messageOf is the text sent to the client. Wrapped causes stay in the log.
func messageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error"
}
