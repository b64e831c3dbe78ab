package session

import (
	"testing"

	"github.com/nalgeon/be"

	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/config"
	"github.com/xplshn/gqasm/pkg/diag"
	"github.com/xplshn/gqasm/pkg/mp"
	"github.com/xplshn/gqasm/pkg/scope"
	"github.com/xplshn/gqasm/pkg/symtab"
	"github.com/xplshn/gqasm/pkg/token"
)

var tok = token.Token{Type: token.Ident, Value: "x", Line: 1, Column: 1, Len: 1}

func TestGateLocalShadowsGlobal(t *testing.T) {
	s := New(nil)
	global := ast.NewInt(tok, 1, 32).Named("x")
	_, ok := s.Declare(symtab.Global, global)
	be.True(t, ok)

	_, ok = s.PushContext(scope.Gate, tok)
	be.True(t, ok)
	local := ast.NewInt(tok, 2, 32).Named("x")
	_, ok = s.Declare(symtab.Local, local)
	be.True(t, ok)

	e, found := s.Lookup("x", 32, ast.Int)
	be.True(t, found)
	be.Equal(t, e.Value(), local)
	be.Equal(t, e.Ctx, s.Current())

	be.True(t, s.PopContext(tok))
	e, found = s.Lookup("x", 32, ast.Int)
	be.True(t, found)
	be.Equal(t, e.Value(), global)
	be.Equal(t, s.Stats().Erased, 1)
	be.Equal(t, s.Diags.HasErrors(), false)
}

func TestShadowWarning(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnShadow, true)
	s := New(cfg)
	s.Declare(symtab.Global, ast.NewInt(tok, 1, 32).Named("x"))
	s.PushContext(scope.Function, tok)
	s.Declare(symtab.Local, ast.NewInt(tok, 1, 32).Named("x"))
	w, ok := s.Diags.First(diag.Warning)
	be.True(t, ok)
	be.Equal(t, w.Flag, "shadow")
}

func TestRedefinition(t *testing.T) {
	s := New(nil)
	_, ok := s.Declare(symtab.Global, ast.NewInt(tok, 1, 32).Named("x"))
	be.True(t, ok)
	_, ok = s.Declare(symtab.Global, ast.NewInt(tok, 5, 32).Named("x"))
	be.Equal(t, ok, false)
	e, _ := s.Diags.First(diag.Error)
	be.Equal(t, e.Message, "redefinition of 'x'")
	be.True(t, s.Trusted())
}

func TestGateRedefinitionByMangledName(t *testing.T) {
	s := New(nil)
	gate := func() *ast.Node {
		q := ast.NewGateQubitParam(tok, 0).Named("q")
		return ast.NewGate(tok, "h", nil, []*ast.Node{q}, ast.NewBlock(tok, nil))
	}
	first := gate()
	_, ok := s.Declare(symtab.Global, first)
	be.True(t, ok)
	be.Equal(t, first.Mangled, "_QG1hQt0_1qEE_")

	_, ok = s.Declare(symtab.Global, gate())
	be.Equal(t, ok, false)
	e, _ := s.Diags.First(diag.Error)
	be.Equal(t, e.Message, "redefinition of gate 'h'")

	found, ok := s.Symbols.FindMangled(first.Mangled)
	be.True(t, ok)
	be.Equal(t, found.Value(), first)
}

func TestTransferIntoGateBody(t *testing.T) {
	s := New(nil)
	theta := ast.NewAngle(tok, mp.NewDecimal(0, 64), 64).Named("theta")
	h, ok := s.Declare(symtab.Angle, theta)
	be.True(t, ok)

	s.PushContext(scope.Gate, tok)
	be.True(t, s.Transfer(h, symtab.Local, tok))
	be.Equal(t, s.Symbols.TablesOf(h), []symtab.TableKind{symtab.Local})
	be.Equal(t, theta.Ctx, s.Current())

	s.PopContext(tok)
	_, found := s.Resolve("theta")
	be.Equal(t, found, false)
}

func TestPopGlobalIsInternal(t *testing.T) {
	s := New(nil)
	be.Equal(t, s.PopContext(tok), false)
	be.True(t, s.Diags.HasICE())
	be.Equal(t, s.Trusted(), false)
}

func TestConvertThroughSession(t *testing.T) {
	s := New(nil)
	h, _ := s.Declare(symtab.Global, ast.NewInt(tok, 2, 32).Named("k"))
	e, ok := s.Symbols.Get(h)
	be.True(t, ok)

	d := s.Convert(e, ast.Type{Kind: ast.Angle, Bits: 64})
	be.True(t, d.Valid)
	be.Equal(t, d.Node.Mangled, "_QX64_1kE_")

	s.PushContext(scope.Calibration, tok)
	d = s.Convert(e, ast.Type{Kind: ast.Angle, Bits: 64})
	be.Equal(t, d.Node.Mangled, "_Q:C:X64_1kE_")
	be.Equal(t, s.Stats().Conversions, 2)
}

func TestCheckReturns(t *testing.T) {
	s := New(nil)
	ret := ast.NewReturn(tok, ast.NewInt(tok, 1, 32))
	fn := ast.NewFunction(tok, "f", nil, ast.Type{Kind: ast.Bitset, Bits: 2}, ast.NewBlock(tok, []*ast.Node{ret}), false)
	res := s.CheckReturns(fn)
	be.Equal(t, res.OK, false)
	be.Equal(t, res.Witness, ret)
	be.True(t, s.Diags.HasErrors())
}
