package diag

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorPurple = "\033[35m"
	colorGreen  = "\033[32m"
	colorReset  = "\033[0m"
)

// Emitter renders diagnostics as "file:line:col: level: message" followed
// by the offending source line and a caret.
type Emitter struct {
	w       io.Writer
	sources []SourceFile
	Color   bool
	// Trace prints the stack of ICE causes.
	Trace bool
}

// NewEmitter writes to w. Colour is enabled when w is a terminal.
func NewEmitter(w io.Writer, sources []SourceFile) *Emitter {
	e := &Emitter{w: w, sources: sources}
	if f, ok := w.(*os.File); ok {
		e.Color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return e
}

func (e *Emitter) paint(color, s string) string {
	if !e.Color {
		return s
	}
	return color + s + colorReset
}

func (e *Emitter) location(d Diagnostic) (string, int, int) {
	tok := d.Tok
	if tok.FileIndex < 0 || tok.FileIndex >= len(e.sources) {
		return "<unknown>", tok.Line, tok.Column
	}
	return e.sources[tok.FileIndex].Name, tok.Line, tok.Column
}

// Emit writes a single diagnostic.
func (e *Emitter) Emit(d Diagnostic) {
	var label string
	switch d.Level {
	case Warning:
		label = e.paint(colorYellow, "warning:")
	case Error:
		label = e.paint(colorRed, "error:")
	default:
		label = e.paint(colorPurple, "internal compiler error:")
	}

	if d.Tok.IsValid() {
		name, line, col := e.location(d)
		fmt.Fprintf(e.w, "%s:%d:%d: %s %s", name, line, col, label, d.Message)
	} else {
		fmt.Fprintf(e.w, "%s %s", label, d.Message)
	}
	if d.Flag != "" {
		fmt.Fprintf(e.w, " [-W%s]", d.Flag)
	}
	fmt.Fprintln(e.w)
	e.printLine(d)

	if e.Trace && d.Level == ICE && d.Cause != nil {
		fmt.Fprintf(e.w, "%+v\n", d.Cause)
	}
}

// EmitAll writes every diagnostic of b and a one-line summary.
func (e *Emitter) EmitAll(b *Bag) {
	for _, d := range b.Diagnostics() {
		e.Emit(d)
	}
	errs, warns := b.Count(Error)+b.Count(ICE), b.Count(Warning)
	switch {
	case errs > 0 && warns > 0:
		fmt.Fprintf(e.w, "%d error(s) and %d warning(s) generated.\n", errs, warns)
	case errs > 0:
		fmt.Fprintf(e.w, "%d error(s) generated.\n", errs)
	case warns > 0:
		fmt.Fprintf(e.w, "%d warning(s) generated.\n", warns)
	}
}

func (e *Emitter) printLine(d Diagnostic) {
	tok := d.Tok
	if tok.FileIndex < 0 || tok.FileIndex >= len(e.sources) || tok.Line == 0 {
		return
	}

	content := e.sources[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}
	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(e.w, "  %s\n", string(content[lineStart:lineEnd]))
	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	pad := 0
	if tok.Column > 1 {
		pad = tok.Column - 1
	}
	fmt.Fprintf(e.w, "  %s%s\n", strings.Repeat(" ", pad), e.paint(colorGreen, caret))
}
