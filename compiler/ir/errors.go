package ir

import (
	"fmt"

	"tlog.app/go/loc"
)

type (
	// UserError is a problem in the compiled program.
	UserError struct {
		Where string
		Msg   string
	}

	// InternalError is a violated compiler invariant.
	InternalError struct {
		Msg string
		PC  loc.PC
	}
)

func Userf(where, format string, args ...any) error {
	return UserError{Where: where, Msg: fmt.Sprintf(format, args...)}
}

func Internalf(format string, args ...any) error {
	return InternalError{Msg: fmt.Sprintf(format, args...), PC: loc.Caller(1)}
}

func (e UserError) Error() string {
	if e.Where == "" {
		return e.Msg
	}

	return e.Where + ": " + e.Msg
}

func (e InternalError) Error() string {
	return fmt.Sprintf("internal error: %v (at %v)", e.Msg, e.PC)
}
