package sema

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"

	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/config"
	"github.com/xplshn/gqasm/pkg/diag"
	"github.com/xplshn/gqasm/pkg/lexer"
	"github.com/xplshn/gqasm/pkg/parser"
	"github.com/xplshn/gqasm/pkg/session"
	"github.com/xplshn/gqasm/pkg/symtab"
)

func checkWith(t *testing.T, cfg *config.Config, src string) (*session.Session, []*ast.Node) {
	t.Helper()
	s := session.New(cfg)
	toks := lexer.NewLexer([]rune(src), 0, cfg, s.Diags).Tokenize()
	prog := parser.NewParser(toks, cfg, s.Diags).Parse()
	NewTypeChecker(s).Check(prog)
	return s, prog.Data.(*ast.BlockNode).Stmts
}

func check(t *testing.T, src string) (*session.Session, []*ast.Node) {
	t.Helper()
	return checkWith(t, config.NewConfig(), src)
}

func messages(s *session.Session, l diag.Level) []string {
	var out []string
	for _, d := range s.Diags.Diagnostics() {
		if d.Level == l {
			out = append(out, d.Message)
		}
	}
	return out
}

// clean fails the test on any error.
func clean(t *testing.T, src string) (*session.Session, []*ast.Node) {
	t.Helper()
	s, stmts := check(t, src)
	for _, m := range messages(s, diag.Error) {
		t.Errorf("unexpected error: %s", m)
	}
	be.Equal(t, s.Diags.HasICE(), false)
	return s, stmts
}

func wantErrors(t *testing.T, src string, want ...string) *session.Session {
	t.Helper()
	s, _ := check(t, src)
	if diff := cmp.Diff(want, messages(s, diag.Error)); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
	return s
}

// balanced asserts that every body opened by the checker has been closed
// and that nothing is left in the scoped tables.
func balanced(t *testing.T, s *session.Session) {
	t.Helper()
	be.Equal(t, s.Contexts.Depth(), 1)
	be.Equal(t, s.Symbols.Len(symtab.Local), 0)
	be.Equal(t, s.Symbols.Len(symtab.GateQubitParam), 0)
	be.Equal(t, s.Symbols.Len(symtab.Angle), 0)
}

func TestGateBodyIsScoped(t *testing.T) {
	s, stmts := clean(t, `
OPENQASM 3;
include "stdgates.inc";
gate g(theta) a, b { U(theta, 0, pi) a; CX a, b; }
qubit[2] q;
g(0.5) q[0], q[1];
`)
	balanced(t, s)

	g, ok := s.Resolve("g")
	be.True(t, ok)
	be.Equal(t, g.Kind, ast.Gate)
	be.True(t, strings.HasPrefix(g.Mangled, "_QG1g"))

	// theta and the qubit parameters are gone once the gate is closed.
	_, ok = s.Resolve("theta")
	be.Equal(t, ok, false)
	_, ok = s.Resolve("a")
	be.Equal(t, ok, false)

	call := stmts[len(stmts)-1]
	be.Equal(t, call.Type, ast.GateCall)
	be.True(t, call.Data.(*ast.CallNode).Ref.IsValid())
	be.True(t, strings.HasPrefix(call.Mangled, "_QGC1g"))
}

func TestNestedBodiesAreBalanced(t *testing.T) {
	s, _ := clean(t, `
int total = 0;
def f(int n) -> int {
    int acc = 0;
    for int i in [0:n] {
        if (i > 2) { int tmp = i; acc += tmp; } else { continue; }
        while (acc > 10) { acc -= 1; }
    }
    switch (n) { case 0 { return 0; } default { } }
    return acc;
}
total = f(4);
`)
	balanced(t, s)
	be.True(t, s.Stats().Contexts > 5)
}

func TestUndeclaredNames(t *testing.T) {
	wantErrors(t, "qubit q; x q; y = 1;",
		"undefined gate 'x'",
		"use of undeclared identifier 'y'",
	)
}

func TestDuplicateQubitOperand(t *testing.T) {
	wantErrors(t, `include "stdgates.inc"; qubit[2] q; cx q[0], q[0]; cx q[0], q[1];`,
		"duplicate qubit operand 'q[0]'",
	)
}

func TestGateArity(t *testing.T) {
	wantErrors(t, `include "stdgates.inc"; qubit[3] q; rx q[0]; ctrl @ x q[0], q[1]; ctrl(2) @ x q[0], q[1];`,
		"gate 'rx' takes 1 parameters, 0 given",
		"gate 'x' acts on 3 qubits, 2 given",
	)
}

func TestGateBodyRestrictions(t *testing.T) {
	wantErrors(t, `
qubit r;
int n = 3;
const int k = 1;
gate g a { U(0, 0, 0) r; }
gate h a { U(n, 0, 0) a; }
gate ok a { U(k, 0, pi) a; }
gate d a { int x; }
`,
		"gate 'g' cannot use global qubit 'r'; pass it as a qubit argument",
		"gate 'h' cannot use non-constant global 'n'",
		"classical declarations are not allowed inside gate 'd'",
	)
}

func TestNestedGateDefinition(t *testing.T) {
	s := wantErrors(t, "gate g a { gate h b { } }", "gate definitions are only allowed at global scope")
	balanced(t, s)
}

func TestAngleArguments(t *testing.T) {
	wantErrors(t, "qubit q; bool b = true; U(b, 0, 0) q;", "impossible implicit conversion to angle from bool")

	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatImplicitAngle, false)
	s, _ := checkWith(t, cfg, "qubit q; U(1, 0, 0) q;")
	disabled := "implicit conversion to angle from int[32] is disabled"
	be.Equal(t, cmp.Diff([]string{disabled, disabled, disabled}, messages(s, diag.Error)), "")
}

func TestConstantFeedsGateArgument(t *testing.T) {
	_, stmts := clean(t, "const float c = 0.5; qubit q; U(c, 0, 0) q;")
	arg := stmts[2].Data.(*ast.CallNode).Args[0]
	be.True(t, strings.Contains(arg.Mangled, "X64_1c"))

	decl := stmts[0].Data.(*ast.DeclarationNode).Value
	be.Equal(t, decl.Data.(*ast.FloatNode).Value, 0.5)
}

func TestBitsetVariableFeedsAngle(t *testing.T) {
	s, _ := clean(t, `bit[2] b = "11"; bit[4] w = "11"; qubit q; U(b, 0, 0) q; U(w, 0, 0) q;`)
	angle := ast.Type{Kind: ast.Angle, Bits: 64}
	tests := []struct {
		name string
		want float64
	}{
		// Two set bits of a 2-bit register give two quarter turns.
		{"b", math.Pi},
		// A 4-bit register counts min(4, 64) % 4 = 0 bits.
		{"w", 0},
	}
	for _, tt := range tests {
		e, ok := s.Resolve(tt.name)
		be.True(t, ok)
		d := s.Convert(e, angle)
		be.True(t, d.Valid)
		got := d.Node.Data.(*ast.AngleNode).Value.Float64()
		be.True(t, math.Abs(got-tt.want) < 1e-12)
	}
}

func TestGlobalAngleIsShared(t *testing.T) {
	s, _ := clean(t, `
const angle c = pi / 2;
angle theta = pi;
gate g(theta) q { U(theta, c, 0) q; }
qubit r;
g(0.5) r;
`)
	e, ok := s.Resolve("c")
	be.True(t, ok)
	tables := s.Symbols.TablesOf(e.Handle())
	be.Equal(t, cmp.Diff([]symtab.TableKind{symtab.Global, symtab.Angle}, tables), "")

	a, ok := s.Symbols.Find(symtab.Angle, nil, "theta", e.Bits, ast.Angle)
	be.True(t, ok)
	be.True(t, a.Ctx.IsGlobal())
	// The gate parameter shadowing it is gone with the gate body.
	be.Equal(t, s.Symbols.Len(symtab.Local), 0)
	be.Equal(t, s.Contexts.Depth(), 1)
}

func TestGphaseStatement(t *testing.T) {
	_, stmts := clean(t, "gphase(pi);")
	call := stmts[0].Data.(*ast.ExprStmtNode).Expr
	be.Equal(t, call.Type, ast.GateCall)
	be.True(t, strings.HasPrefix(call.Mangled, "_QGC6gphase"))
}

func TestControlFlowPlacement(t *testing.T) {
	wantErrors(t, "return; break; while (true) { break; } for int i in [0:3] { continue; }",
		"return statement outside of a function or defcal",
		"'break' statement not in loop or switch statement",
	)
}

func TestReturnTypes(t *testing.T) {
	wantErrors(t, "def f() -> bit[4] { int x = 1; return x; }",
		"cannot return int[32] from a function returning bit[4]",
	)
	clean(t, "def g(int n) -> int { return g(n - 1); }")
}

func TestFunctionCalls(t *testing.T) {
	wantErrors(t, "def f(int a) -> int { return a; } int y = f(1, 2); int z = h(1);",
		"function 'f' takes 1 arguments, 2 given",
		"call to undeclared function 'h'",
	)
}

func TestDefcalOverloads(t *testing.T) {
	s, stmts := clean(t, `
defcalgrammar "openpulse";
defcal x90 $0 { }
defcal x90 $1 { }
defcal x90 q { }
x90 $0;
x90 $1;
x90 $2;
`)
	balanced(t, s)
	refs := make([]string, 3)
	for i, st := range stmts[4:] {
		be.Equal(t, st.Type, ast.DefcalCall)
		e, ok := s.Symbols.Get(st.Data.(*ast.CallNode).Ref)
		be.True(t, ok)
		refs[i] = e.Mangled
	}
	be.Equal(t, refs[0], stmts[1].Mangled)
	be.Equal(t, refs[1], stmts[2].Mangled)
	be.Equal(t, refs[2], stmts[3].Mangled)
}

func TestDefcalRedefinition(t *testing.T) {
	wantErrors(t, `defcalgrammar "openpulse"; defcal x90 $0 { } defcal x90 $0 { }`,
		"redefinition of defcal 'x90'",
	)
}

func TestDefcalWithoutMatch(t *testing.T) {
	wantErrors(t, `defcalgrammar "openpulse"; defcal x90 $0 { } x90 $1;`,
		"no defcal 'x90' matches 0 parameters on qubits $1",
	)
}

func TestMeasureRecordsResult(t *testing.T) {
	_, stmts := clean(t, "qubit q; bit c; c = measure q; bit[2] r; qubit[2] qs; r = measure qs;")
	m := stmts[2].Data.(*ast.AssignNode).Value
	be.Equal(t, m.Type, ast.Measure)
	be.True(t, m.Data.(*ast.MeasureNode).Result.IsValid())
	be.True(t, strings.Contains(m.Mangled, "R1c"))

	wide := stmts[5].Data.(*ast.AssignNode).Value
	be.Equal(t, wide.Kind(), ast.Type{Kind: ast.Bitset, Bits: 2})
}

func TestSwitchChecks(t *testing.T) {
	s := wantErrors(t, "int x = 1; switch (x) { case 1 { } case 2, 1 { } } switch (x) { }",
		"duplicate case value 1",
		"switch statement has no case labels",
	)
	be.Equal(t, cmp.Diff([]string{"switch statement has no default label"}, messages(s, diag.Warning)), "")
}

func TestStrayCaseLabel(t *testing.T) {
	wantErrors(t, "case 1 { }", "'case' label outside of a switch statement")
	// Inside a body the return checker reports it, once.
	wantErrors(t, "def f() { case 1 { } }", "'case' label outside of a switch statement")
}

func TestLabelNestedInCaseBody(t *testing.T) {
	src := "switch (x) { case 1 { if (x == 1) { case 2 { } } } default { } }"
	wantErrors(t, "int x = 1; "+src, "'case' label outside of a switch statement")
	wantErrors(t, "def f(int x) -> int { "+strings.ReplaceAll(src, "{ }", "{ return 0; }")+" return 1; }",
		"'case' label outside of a switch statement")
}

func TestDeclarations(t *testing.T) {
	wantErrors(t, `
const int n = 1;
n = 2;
qubit q;
q = 1;
def f() { qubit r; }
qubit[2] qs;
reset qs[2];
`,
		"cannot assign to constant 'n'",
		"cannot assign to qubit 'q'",
		"qubit 'r' must be declared at global scope",
		"index 2 out of range for 'qs' of size 2",
	)
}

func TestVersions(t *testing.T) {
	wantErrors(t, "OPENQASM 2.0;", "OpenQASM 2.0 is not supported; only version 3 programs are accepted")
	clean(t, "OPENQASM 3.0;")

	cfg := config.NewConfig()
	cfg.StdName = "3.0"
	cfg.SetWarning(config.WarnPedantic, true)
	s, _ := checkWith(t, cfg, "OPENQASM 3.1;")
	be.Equal(t, s.Diags.Count(diag.Warning), 1)
}

func TestIncludes(t *testing.T) {
	s, _ := clean(t, `include "stdgates.inc"; include "stdgates.inc"; include "mine.inc";`)
	want := []string{
		"'stdgates.inc' is included more than once",
		"include file 'mine.inc' is not processed",
	}
	be.Equal(t, cmp.Diff(want, messages(s, diag.Warning)), "")
	_, ok := s.Resolve("cswap")
	be.True(t, ok)
}

func TestBuiltins(t *testing.T) {
	s, _ := clean(t, "float[64] x = sin(pi / 2) + euler + τ;")
	for _, name := range []string{"U", "gphase", "pi", "π", "tau", "euler", "ℇ", "sqrt"} {
		_, ok := s.Resolve(name)
		be.True(t, ok)
	}
	_, ok := s.Resolve("cx")
	be.Equal(t, ok, false)
}
