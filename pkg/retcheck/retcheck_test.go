package retcheck

import (
	"math/big"
	"testing"

	"github.com/nalgeon/be"

	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/config"
	"github.com/xplshn/gqasm/pkg/convert"
	"github.com/xplshn/gqasm/pkg/diag"
	"github.com/xplshn/gqasm/pkg/token"
)

func at(line int) token.Token { return token.Token{Type: token.Return, Value: "return", Line: line, Column: 1, Len: 6} }

func newChecker() (*Checker, *diag.Bag) {
	bag := diag.NewBag()
	cfg := config.NewConfig()
	return New(convert.New(cfg, bag), bag, cfg), bag
}

func block(stmts ...*ast.Node) *ast.Node { return ast.NewBlock(at(0), stmts) }

func cond() *ast.Node { return ast.NewBool(at(0), true) }

func TestIntReturnFromBitsetFunction(t *testing.T) {
	c, bag := newChecker()
	ret := ast.NewReturn(at(4), ast.NewInt(at(4), 1, 32))
	fn := ast.NewFunction(at(1), "f", nil, ast.Type{Kind: ast.Bitset, Bits: 4}, block(ret), false)

	res := c.Check(fn)
	be.Equal(t, res.OK, false)
	be.Equal(t, res.Witness, ret)
	be.Equal(t, res.Descriptor.Valid, false)
	be.Equal(t, bag.Count(diag.Error), 1)
	e, _ := bag.First(diag.Error)
	be.Equal(t, e.Tok.Line, 4)
}

func TestEveryBranchReturnsFloat(t *testing.T) {
	c, bag := newChecker()
	f := func(line int) *ast.Node { return ast.NewReturn(at(line), ast.NewFloat(at(line), 1.5, 64)) }
	ifs := ast.NewIf(at(2), cond(), block(f(3)),
		[]*ast.Node{ast.NewElseIf(at(4), cond(), block(f(5)))},
		ast.NewElse(at(6), block(f(7))))
	fn := ast.NewFunction(at(1), "f", nil, ast.Type{Kind: ast.Double, Bits: 64}, block(ifs), false)

	res := c.Check(fn)
	be.True(t, res.OK)
	be.Equal(t, res.Witness, (*ast.Node)(nil))
	be.Equal(t, len(bag.Diagnostics()), 0)
}

func TestSwitchWithoutDefaultWarns(t *testing.T) {
	c, bag := newChecker()
	bad := ast.NewReturn(at(5), ast.NewQubit(at(5), 0, false))
	sw := ast.NewSwitch(at(2), ast.NewInt(at(2), 1, 32),
		[]*ast.Node{ast.NewCase(at(3), []*ast.Node{ast.NewInt(at(3), 1, 32)}, block(bad))}, nil)
	res := c.CheckBody(ast.Type{Kind: ast.Int, Bits: 32}, block(sw))

	be.Equal(t, bag.Count(diag.Warning), 1)
	w, _ := bag.First(diag.Warning)
	be.Equal(t, w.Flag, "switch-default")
	// The single case body is still walked.
	be.Equal(t, res.OK, false)
	be.Equal(t, res.Witness, bad)
}

func TestSwitchWithoutDefaultPasses(t *testing.T) {
	c, bag := newChecker()
	ret := ast.NewReturn(at(4), ast.NewInt(at(4), 7, 32))
	sw := ast.NewSwitch(at(2), ast.NewInt(at(2), 1, 32),
		[]*ast.Node{ast.NewCase(at(3), []*ast.Node{ast.NewInt(at(3), 1, 32)}, block(ret))}, nil)
	res := c.CheckBody(ast.Type{Kind: ast.Int, Bits: 32}, block(sw))
	be.True(t, res.OK)
	be.Equal(t, bag.Count(diag.Warning), 1)
	be.Equal(t, bag.Count(diag.Error), 0)
}

func TestEmptySwitchIsError(t *testing.T) {
	bodies := [][]*ast.Node{
		nil,
		{ast.NewReturn(at(3), ast.NewInt(at(3), 1, 32))},
	}
	for _, b := range bodies {
		c, bag := newChecker()
		sw := ast.NewSwitch(at(2), ast.NewInt(at(2), 1, 32), nil, ast.NewDefault(at(3), block(b...)))
		res := c.CheckBody(ast.Type{Kind: ast.Int, Bits: 32}, block(sw))
		be.Equal(t, res.OK, false)
		be.Equal(t, res.Witness, sw)
		be.Equal(t, bag.Count(diag.Error), 1)
	}
}

func TestStrayLabel(t *testing.T) {
	c, bag := newChecker()
	label := ast.NewCase(at(2), []*ast.Node{ast.NewInt(at(2), 0, 32)}, block())
	res := c.CheckBody(ast.TypeVoid, block(label))
	be.Equal(t, res.OK, false)
	be.Equal(t, res.Witness, label)
	e, _ := bag.First(diag.Error)
	be.Equal(t, e.Message, "'case' label outside of a switch statement")
}

func TestLabelNestedInCaseBody(t *testing.T) {
	c, bag := newChecker()
	i32 := ast.Type{Kind: ast.Int, Bits: 32}
	inner := ast.NewCase(at(4), []*ast.Node{ast.NewInt(at(4), 2, 32)}, block(ast.NewReturn(at(4), ast.NewInt(at(4), 2, 32))))
	ifs := ast.NewIf(at(3), cond(), block(inner), nil, nil)
	sw := ast.NewSwitch(at(2), ast.NewInt(at(2), 1, 32),
		[]*ast.Node{ast.NewCase(at(3), []*ast.Node{ast.NewInt(at(3), 1, 32)}, block(ifs, ast.NewReturn(at(5), ast.NewInt(at(5), 1, 32))))},
		ast.NewDefault(at(6), block(ast.NewReturn(at(6), ast.NewInt(at(6), 0, 32)))))

	res := c.CheckBody(i32, block(sw))
	be.Equal(t, res.OK, false)
	be.Equal(t, res.Witness, inner)
	e, _ := bag.First(diag.Error)
	be.Equal(t, e.Message, "'case' label outside of a switch statement")
	be.Equal(t, e.Tok.Line, 4)

	// The same label directly under the switch is accepted.
	c, bag = newChecker()
	sw = ast.NewSwitch(at(2), ast.NewInt(at(2), 1, 32), []*ast.Node{inner}, ast.NewDefault(at(6), block()))
	res = c.CheckBody(i32, block(sw))
	be.True(t, res.OK)
	be.Equal(t, bag.Count(diag.Error), 0)
}

func TestShortCircuits(t *testing.T) {
	c, bag := newChecker()
	first := ast.NewReturn(at(2), ast.NewQubit(at(2), 0, false))
	second := ast.NewReturn(at(3), ast.NewQubit(at(3), 1, false))
	loop := ast.NewWhile(at(1), cond(), block(first, second))
	res := c.CheckBody(ast.TypeBool, block(loop))
	be.Equal(t, res.Witness, first)
	be.Equal(t, bag.Count(diag.Error), 1)
}

func TestNestedLoops(t *testing.T) {
	c, _ := newChecker()
	ret := ast.NewReturn(at(9), nil)
	inner := ast.NewDoWhile(at(3), cond(), block(ret))
	outer := ast.NewFor(at(2), ast.NewInt(at(2), 0, 32).Named("i"), ast.NewInt(at(2), 0, 32), nil, ast.NewInt(at(2), 3, 32), nil, block(inner))

	res := c.CheckBody(ast.TypeVoid, block(outer))
	be.True(t, res.OK)

	c, _ = newChecker()
	res = c.CheckBody(ast.Type{Kind: ast.Int, Bits: 32}, block(outer))
	be.Equal(t, res.OK, false)
	be.Equal(t, res.Witness, ret)
}

func TestYield(t *testing.T) {
	q := ast.NewQubitContainer(at(1), 3)
	tests := []struct {
		name string
		ret  *ast.Node
		want ast.Type
	}{
		{"bare", ast.NewReturn(at(1), nil), ast.TypeVoid},
		{"value", ast.NewReturn(at(1), ast.NewInt(at(1), 1, 16)), ast.Type{Kind: ast.Int, Bits: 16}},
		{"cast", ast.NewReturn(at(1), ast.NewCast(at(1), ast.NewInt(at(1), 1, 32), ast.TypeBool)), ast.TypeBool},
		{"measure", ast.NewReturn(at(1), ast.NewMeasure(at(1), q)), ast.Type{Kind: ast.Bitset, Bits: 3}},
	}
	call := ast.NewFunctionCall(at(1), "g", nil)
	call.Typ = &ast.Type{Kind: ast.Double, Bits: 64}
	tests = append(tests, struct {
		name string
		ret  *ast.Node
		want ast.Type
	}{"call", ast.NewReturn(at(1), call), ast.Type{Kind: ast.Double, Bits: 64}})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be.Equal(t, Yield(tt.ret), tt.want)
		})
	}
}

func TestMeasureIntoBitsetFunction(t *testing.T) {
	c, bag := newChecker()
	ret := ast.NewReturn(at(2), ast.NewMeasure(at(2), ast.NewQubit(at(2), 0, false)))
	res := c.CheckBody(ast.Type{Kind: ast.Bitset, Bits: 1}, block(ret))
	be.True(t, res.OK)
	be.Equal(t, len(bag.Diagnostics()), 0)
}

func TestConvertibleReturnPasses(t *testing.T) {
	c, _ := newChecker()
	ret := ast.NewReturn(at(2), ast.NewBitset(at(2), big.NewInt(1), 1))
	res := c.CheckBody(ast.TypeBool, block(ret))
	be.True(t, res.OK)
	be.Equal(t, ret.Data.(*ast.ReturnNode).Expr.Conversion.Type, ast.ImplicitConversion)
}

func TestDefcalWithoutResult(t *testing.T) {
	c, _ := newChecker()
	dc := ast.NewDefcal(at(1), "x", "openpulse", nil, nil, nil, block(ast.NewReturn(at(2), nil)))
	be.True(t, c.Check(dc).OK)

	c, bag := newChecker()
	res := c.Check(ast.NewBreak(at(1)))
	be.Equal(t, res.OK, false)
	be.True(t, bag.HasICE())
}
