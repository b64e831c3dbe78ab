package parser

import (
	"testing"

	"github.com/nalgeon/be"

	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/config"
	"github.com/xplshn/gqasm/pkg/diag"
	"github.com/xplshn/gqasm/pkg/lexer"
	"github.com/xplshn/gqasm/pkg/token"
)

func parse(t *testing.T, src string) (*ast.Node, *diag.Bag) {
	t.Helper()
	cfg := config.NewConfig()
	bag := diag.NewBag()
	toks := lexer.NewLexer([]rune(src), 0, cfg, bag).Tokenize()
	return NewParser(toks, cfg, bag).Parse(), bag
}

func stmts(t *testing.T, src string) []*ast.Node {
	t.Helper()
	prog, bag := parse(t, src)
	for _, d := range bag.Diagnostics() {
		t.Errorf("unexpected diagnostic: %s", d)
	}
	return prog.Data.(*ast.BlockNode).Stmts
}

func TestHeader(t *testing.T) {
	s := stmts(t, `OPENQASM 3.1; include "stdgates.inc"; defcalgrammar "openpulse";`)
	be.Equal(t, len(s), 3)
	be.Equal(t, s[0].Type, ast.Version)
	be.Equal(t, s[0].Data.(*ast.DirectiveNode).Value, "3.1")
	be.Equal(t, s[1].Type, ast.Include)
	be.Equal(t, s[2].Type, ast.Grammar)
}

func TestDeclarations(t *testing.T) {
	tests := []struct {
		src  string
		want ast.Type
	}{
		{"bit c;", ast.Type{Kind: ast.Bitset, Bits: 1}},
		{"bit[4] c;", ast.Type{Kind: ast.Bitset, Bits: 4}},
		{"int x;", ast.Type{Kind: ast.Int, Bits: 32}},
		{"uint[8] x;", ast.Type{Kind: ast.UInt, Bits: 8}},
		{"float[32] x;", ast.Type{Kind: ast.Float, Bits: 32}},
		{"float x;", ast.Type{Kind: ast.Double, Bits: 64}},
		{"angle[16] a;", ast.Type{Kind: ast.Angle, Bits: 16}},
		{"int[128] big;", ast.Type{Kind: ast.MPInteger, Bits: 128}},
		{"float[2*64] wide;", ast.Type{Kind: ast.MPDecimal, Bits: 128}},
		{"complex[float[32]] z;", ast.Type{Kind: ast.MPComplex, Bits: 32}},
		{"qubit q;", ast.TypeQubit},
		{"qubit[3] qs;", ast.Type{Kind: ast.QubitContainer, Bits: 3}},
		{"const int n = 3;", ast.Type{Kind: ast.Int, Bits: 32, Const: true}},
		{"bool b = true;", ast.TypeBool},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			s := stmts(t, tt.src)
			be.Equal(t, len(s), 1)
			d := s[0].Data.(*ast.DeclarationNode)
			be.Equal(t, d.Value.Kind(), tt.want)
			be.True(t, d.Value.Name != "")
		})
	}
}

func TestConstDesignator(t *testing.T) {
	s := stmts(t, "const int n = 2; qubit[n * 3] q;")
	q := s[1].Data.(*ast.DeclarationNode).Value
	be.Equal(t, q.Kind(), ast.Type{Kind: ast.QubitContainer, Bits: 6})
}

func TestGateDefinition(t *testing.T) {
	s := stmts(t, "gate rz(theta) a { U(0, 0, theta) a; }")
	g := s[0]
	be.Equal(t, g.Type, ast.Gate)
	be.Equal(t, g.Name, "rz")
	gd := g.Data.(*ast.GateNode)
	be.Equal(t, len(gd.Params), 1)
	be.Equal(t, gd.Params[0].Type, ast.Angle)
	be.Equal(t, gd.Params[0].Name, "theta")
	be.Equal(t, gd.Qubits[0].Type, ast.GateQubitParam)

	call := gd.Body.Data.(*ast.BlockNode).Stmts[0]
	be.Equal(t, call.Type, ast.GateCall)
	be.Equal(t, len(call.Data.(*ast.CallNode).Args), 3)
}

func TestGateCallModifiers(t *testing.T) {
	s := stmts(t, "ctrl(2) @ inv @ pow(2) @ x a, b, c;")
	cd := s[0].Data.(*ast.CallNode)
	be.Equal(t, len(cd.Modifiers), 3)
	be.Equal(t, cd.Modifiers[0].Kind, token.Ctrl)
	be.True(t, cd.Modifiers[0].Arg != nil)
	be.Equal(t, cd.Modifiers[1].Kind, token.Inv)
	be.Equal(t, len(cd.Qubits), 3)
}

func TestFunctionCallIsNotGateCall(t *testing.T) {
	s := stmts(t, "gphase(pi); x = f(1) + 2;")
	be.Equal(t, s[0].Type, ast.ExprStmt)
	be.Equal(t, s[0].Data.(*ast.ExprStmtNode).Expr.Type, ast.FunctionCall)
	be.Equal(t, s[1].Type, ast.Assign)
}

func TestDef(t *testing.T) {
	s := stmts(t, "def parity(bit[4] b, const int n) -> bit { return b[0]; }")
	fn := s[0].Data.(*ast.FunctionNode)
	be.Equal(t, fn.Result, ast.TypeBit)
	be.Equal(t, len(fn.Params), 2)
	be.Equal(t, fn.Params[1].Kind().Const, true)
	be.Equal(t, fn.Extern, false)
}

func TestExtern(t *testing.T) {
	s := stmts(t, "extern sample(float[64]) -> int[32];")
	fn := s[0].Data.(*ast.FunctionNode)
	be.True(t, fn.Extern)
	be.Equal(t, fn.Body, (*ast.Node)(nil))
	be.Equal(t, fn.Params[0].Name, "arg0")
}

func TestDefcal(t *testing.T) {
	s := stmts(t, `defcalgrammar "openpulse"; defcal measure $0 -> bit { return 0; } defcal rx(theta) q { }`)
	m := s[1]
	be.Equal(t, m.Name, "measure")
	md := m.Data.(*ast.DefcalNode)
	be.Equal(t, md.Grammar, "openpulse")
	be.Equal(t, *md.Result, ast.TypeBit)
	be.True(t, md.Qubits[0].Data.(*ast.QubitNode).Bound)

	rx := s[2].Data.(*ast.DefcalNode)
	be.Equal(t, rx.Result, (*ast.Type)(nil))
	be.Equal(t, rx.Params[0].Type, ast.Angle)
	be.Equal(t, rx.Qubits[0].Data.(*ast.QubitNode).Bound, false)
}

func TestControlFlow(t *testing.T) {
	src := `
if (x == 1) y = 2; else if (x == 2) { y = 3; } else { y = 4; }
for int i in [0:2:10] { }
for i in {1, 3, 5} { }
while (x < 3) x += 1;
do { x -= 1; } while (x > 0);
switch (x) { case 1, 2 { } default { } }
`
	s := stmts(t, src)
	be.Equal(t, len(s), 6)

	ifs := s[0].Data.(*ast.IfNode)
	be.Equal(t, len(ifs.ElseIfs), 1)
	be.True(t, ifs.Else != nil)
	be.Equal(t, ifs.Then.Type, ast.Block)

	rng := s[1].Data.(*ast.ForNode)
	be.True(t, rng.Step != nil)
	be.Equal(t, rng.Stop.Data.(*ast.IntNode).Value, int64(10))

	set := s[2].Data.(*ast.ForNode)
	be.Equal(t, len(set.Set), 3)

	be.Equal(t, s[3].Type, ast.While)
	be.Equal(t, s[4].Type, ast.DoWhile)

	sw := s[5].Data.(*ast.SwitchNode)
	be.Equal(t, len(sw.Cases), 1)
	be.Equal(t, len(sw.Cases[0].Data.(*ast.CaseNode).Values), 2)
	be.True(t, sw.Default != nil)
}

func TestQuantumStatements(t *testing.T) {
	s := stmts(t, "measure q -> c[0]; c = measure q; reset q; barrier q, r;")
	be.Equal(t, s[0].Type, ast.Assign)
	a := s[0].Data.(*ast.AssignNode)
	be.Equal(t, a.Op, token.Arrow)
	be.Equal(t, a.Value.Type, ast.Measure)
	be.Equal(t, s[1].Data.(*ast.AssignNode).Value.Type, ast.Measure)
	be.Equal(t, s[2].Type, ast.Reset)
	be.Equal(t, len(s[3].Data.(*ast.QuantumStmtNode).Qubits), 2)
}

func TestStrayCaseLabelIsKept(t *testing.T) {
	s := stmts(t, "def f() { case 1 { } }")
	body := s[0].Data.(*ast.FunctionNode).Body.Data.(*ast.BlockNode).Stmts
	be.Equal(t, body[0].Type, ast.Case)
}

func TestPrecedence(t *testing.T) {
	s := stmts(t, "x = 1 + 2 * 3 ** 2;")
	v := s[0].Data.(*ast.AssignNode).Value
	add := v.Data.(*ast.BinaryOpNode)
	be.Equal(t, add.Op, token.Plus)
	mul := add.Right.Data.(*ast.BinaryOpNode)
	be.Equal(t, mul.Op, token.Star)
	be.Equal(t, mul.Right.Data.(*ast.BinaryOpNode).Op, token.StarStar)
}

func TestLiterals(t *testing.T) {
	s := stmts(t, `x = 3000000000; y = 1.5; z = 2im; c = "101"; k = int[8](y);`)
	val := func(i int) *ast.Node { return s[i].Data.(*ast.AssignNode).Value }
	be.Equal(t, val(0).Kind(), ast.Type{Kind: ast.Int, Bits: 64})
	be.Equal(t, val(1).Kind(), ast.Type{Kind: ast.Double, Bits: 64})
	be.Equal(t, val(2).Type, ast.MPComplex)
	b := val(3).Data.(*ast.BitsetNode)
	be.Equal(t, b.Size, 3)
	be.Equal(t, b.Value.Int64(), int64(5))
	be.Equal(t, val(4).Type, ast.Cast)
	be.Equal(t, val(4).Kind(), ast.Type{Kind: ast.Int, Bits: 8})
}

func TestSyntaxErrorsRecover(t *testing.T) {
	prog, bag := parse(t, "int x = ;\nqubit q;\nbit[0] c;")
	be.Equal(t, bag.Count(diag.Error), 2)
	first, _ := bag.First(diag.Error)
	be.Equal(t, first.Message, "expected an expression, found ;")
	// qubit q survives the first error.
	found := false
	for _, st := range prog.Data.(*ast.BlockNode).Stmts {
		if d, ok := ast.As[*ast.DeclarationNode](st); ok && d.Value.Name == "q" {
			found = true
		}
	}
	be.True(t, found)
}

func TestVersionMustComeFirst(t *testing.T) {
	_, bag := parse(t, "qubit q; OPENQASM 3;")
	e, ok := bag.First(diag.Error)
	be.True(t, ok)
	be.Equal(t, e.Message, "the version declaration must be the first statement")
}

func TestWideIntegerNeedsMP(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatMPNumerics, false)
	bag := diag.NewBag()
	toks := lexer.NewLexer([]rune("int[128] x;"), 0, cfg, bag).Tokenize()
	prog := NewParser(toks, cfg, bag).Parse()
	be.True(t, bag.HasErrors())
	d := prog.Data.(*ast.BlockNode).Stmts[0].Data.(*ast.DeclarationNode)
	be.Equal(t, d.Value.Kind(), ast.Type{Kind: ast.Int, Bits: 64})
}
