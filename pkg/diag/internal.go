package diag

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// internalError marks an error as a violated compiler invariant.
type internalError struct {
	cause error
}

func (e *internalError) Error() string { return e.cause.Error() }
func (e *internalError) Unwrap() error { return e.cause }
func (e *internalError) Cause() error  { return e.cause }

func (e *internalError) Format(s fmt.State, verb rune) {
	if f, ok := e.cause.(fmt.Formatter); ok {
		f.Format(s, verb)
		return
	}
	io.WriteString(s, e.Error())
}

// Internalf returns an ICE error carrying the current stack.
func Internalf(format string, args ...any) error {
	return &internalError{cause: errors.Errorf(format, args...)}
}

// WrapInternal marks err as an ICE, adding msg and a stack.
func WrapInternal(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &internalError{cause: errors.Wrap(err, msg)}
}

// IsInternal reports whether err, or anything it wraps, is an ICE.
func IsInternal(err error) bool {
	var ie *internalError
	return errors.As(err, &ie)
}
