// Package diag holds compiler diagnostics as values: a Diagnostic, the Sink
// that receives them, a Bag that collects them for a compilation and an
// Emitter that renders them with source context.
package diag

import (
	"fmt"

	"github.com/xplshn/gqasm/pkg/token"
)

// Level is the severity of a diagnostic.
type Level int

const (
	Warning Level = iota
	Error
	ICE
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "warning"
	case Error:
		return "error"
	case ICE:
		return "internal compiler error"
	default:
		return "unknown"
	}
}

// Diagnostic is a single positioned message.
type Diagnostic struct {
	Level   Level
	Tok     token.Token
	Message string
	// Flag names the -W option that controls a warning.
	Flag string
	// Cause is the underlying error of an ICE, with its stack.
	Cause error
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s: %s", d.Level, d.Message)
	if d.Flag != "" {
		s += fmt.Sprintf(" [-W%s]", d.Flag)
	}
	return s
}

// Sink receives diagnostics.
type Sink interface {
	Emit(d Diagnostic)
}

// Errorf builds an Error-level diagnostic.
func Errorf(tok token.Token, format string, args ...any) Diagnostic {
	return Diagnostic{Level: Error, Tok: tok, Message: fmt.Sprintf(format, args...)}
}

// Warnf builds a Warning-level diagnostic tagged with its -W flag name.
func Warnf(tok token.Token, flag, format string, args ...any) Diagnostic {
	return Diagnostic{Level: Warning, Tok: tok, Flag: flag, Message: fmt.Sprintf(format, args...)}
}

// FromError turns err into a diagnostic, ICE when err is internal.
func FromError(tok token.Token, err error) Diagnostic {
	if IsInternal(err) {
		return Diagnostic{Level: ICE, Tok: tok, Message: err.Error(), Cause: err}
	}
	return Diagnostic{Level: Error, Tok: tok, Message: err.Error()}
}
