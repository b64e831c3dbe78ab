package sema

import (
	"fmt"
	"math"

	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/mp"
	"github.com/xplshn/gqasm/pkg/symtab"
	"github.com/xplshn/gqasm/pkg/token"
)

type gateShape struct {
	name           string
	params, qubits int
}

// Gates declared by include "stdgates.inc".
var stdGates = []gateShape{
	{"p", 1, 1}, {"x", 0, 1}, {"y", 0, 1}, {"z", 0, 1}, {"h", 0, 1},
	{"s", 0, 1}, {"sdg", 0, 1}, {"t", 0, 1}, {"tdg", 0, 1}, {"sx", 0, 1},
	{"rx", 1, 1}, {"ry", 1, 1}, {"rz", 1, 1},
	{"cx", 0, 2}, {"cy", 0, 2}, {"cz", 0, 2}, {"cp", 1, 2},
	{"crx", 1, 2}, {"cry", 1, 2}, {"crz", 1, 2}, {"ch", 0, 2},
	{"swap", 0, 2}, {"ccx", 0, 3}, {"cswap", 0, 3}, {"cu", 4, 2},
	{"CX", 0, 2}, {"phase", 1, 1}, {"cphase", 1, 2}, {"id", 0, 1},
	{"u1", 1, 1}, {"u2", 2, 1}, {"u3", 3, 1},
}

var builtinConsts = []struct {
	names []string
	value float64
}{
	{[]string{"pi", "π"}, math.Pi},
	{[]string{"tau", "τ"}, 2 * math.Pi},
	{[]string{"euler", "ℇ"}, math.E},
}

var builtinFuncs = []string{"sin", "cos", "tan", "arcsin", "arccos", "arctan", "exp", "log", "sqrt", "ceil", "floor"}

func (tc *TypeChecker) builtinGate(tok token.Token, g gateShape) *ast.Node {
	bits := tc.s.Config.AngleBits
	params := make([]*ast.Node, g.params)
	for i := range params {
		params[i] = ast.NewAngle(tok, mp.NewDecimal(0, bits), bits).Named(fmt.Sprintf("a%d", i))
	}
	qubits := make([]*ast.Node, g.qubits)
	for i := range qubits {
		qubits[i] = ast.NewGateQubitParam(tok, i).Named(fmt.Sprintf("q%d", i))
	}
	return ast.NewGate(tok, g.name, params, qubits, ast.NewBlock(tok, nil))
}

// declareBuiltins preloads U, gphase, the math constants and the math
// functions into the global table.
func (tc *TypeChecker) declareBuiltins() {
	if tc.builtins {
		return
	}
	tc.builtins = true
	tok := token.Token{Type: token.Ident}

	tc.s.Declare(symtab.Global, tc.builtinGate(tok, gateShape{"U", 3, 1}))
	tc.s.Declare(symtab.Global, tc.builtinGate(tok, gateShape{"gphase", 1, 0}))

	for _, c := range builtinConsts {
		for _, name := range c.names {
			n := ast.NewFloat(tok, c.value, 64).Named(name)
			n.Typ.Const = true
			tc.s.Declare(symtab.Global, n)
		}
	}

	double := ast.Type{Kind: ast.Double, Bits: 64}
	for _, name := range builtinFuncs {
		x := ast.NewFloat(tok, 0, 64).Named("x")
		tc.s.Declare(symtab.Global, ast.NewFunction(tok, name, []*ast.Node{x}, double, nil, true))
	}
}

func (tc *TypeChecker) declareStdGates(tok token.Token) {
	for _, g := range stdGates {
		tc.s.Declare(symtab.Global, tc.builtinGate(tok, g))
	}
}
