package diag

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/pkg/errors"

	"github.com/xplshn/gqasm/pkg/token"
)

func TestBagCounts(t *testing.T) {
	bag := NewBag()
	be.Equal(t, bag.HasErrors(), false)

	bag.Emit(Warnf(token.Token{}, "truncation", "narrowing"))
	be.Equal(t, bag.HasErrors(), false)
	be.Equal(t, bag.Count(Warning), 1)

	bag.Emit(Errorf(token.Token{}, "unknown identifier '%s'", "x"))
	be.Equal(t, bag.HasErrors(), true)
	be.Equal(t, bag.HasICE(), false)

	bag.Emit(FromError(token.Token{}, Internalf("table %d is corrupt", 3)))
	be.Equal(t, bag.HasICE(), true)
	be.Equal(t, len(bag.Diagnostics()), 3)

	first, ok := bag.First(Error)
	be.True(t, ok)
	be.Equal(t, first.Message, "unknown identifier 'x'")

	bag.Reset()
	be.Equal(t, len(bag.Diagnostics()), 0)
	be.Equal(t, bag.Count(ICE), 0)
}

func TestIsInternal(t *testing.T) {
	ice := Internalf("context stack underflow")
	be.True(t, IsInternal(ice))
	be.True(t, IsInternal(errors.Wrap(ice, "popping gate body")))
	be.True(t, IsInternal(fmt.Errorf("outer: %w", ice)))
	be.Equal(t, IsInternal(errors.New("plain")), false)
	be.Equal(t, WrapInternal(nil, "nothing"), nil)

	d := FromError(token.Token{}, errors.New("redeclaration of 'x'"))
	be.Equal(t, d.Level, Error)
	d = FromError(token.Token{}, ice)
	be.Equal(t, d.Level, ICE)
	be.True(t, d.Cause != nil)
}

func TestEmitterRendersSourceLine(t *testing.T) {
	bag := NewBag()
	idx := bag.AddSource("test.qasm", []rune("qubit q;\nint[32] x = y;\n"))
	tok := token.Token{FileIndex: idx, Line: 2, Column: 13, Len: 1}
	bag.Emit(Errorf(tok, "unknown identifier 'y'"))
	bag.Emit(Warnf(tok, "truncation", "value truncated"))

	var buf bytes.Buffer
	NewEmitter(&buf, bag.Sources()).EmitAll(bag)
	out := buf.String()

	be.True(t, strings.Contains(out, "test.qasm:2:13: error: unknown identifier 'y'\n"))
	be.True(t, strings.Contains(out, "  int[32] x = y;\n"))
	be.True(t, strings.Contains(out, "              ^\n"))
	be.True(t, strings.Contains(out, "value truncated [-Wtruncation]"))
	be.True(t, strings.Contains(out, "1 error(s) and 1 warning(s) generated."))
}

func TestEmitterWithoutPosition(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf, nil)
	e.Emit(FromError(token.Token{}, Internalf("boom")))
	be.Equal(t, buf.String(), "internal compiler error: boom\n")
}
