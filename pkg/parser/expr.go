package parser

import (
	"math/big"
	"strconv"

	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/config"
	"github.com/xplshn/gqasm/pkg/mp"
	"github.com/xplshn/gqasm/pkg/token"
)

// typeSpec is a type as written in the source, before it becomes a value.
type typeSpec struct {
	kind    token.Type
	bits    int
	sized   bool
	isConst bool
	tok     token.Token
}

func (p *Parser) parseTypeSpec() typeSpec {
	ts := typeSpec{kind: p.current.Type, tok: p.current}
	p.advance()
	switch ts.kind {
	case token.Bool:
		ts.bits = 1
	case token.Complex:
		ts.bits = p.cfg.FloatBits
		if p.match(token.LBracket) {
			if p.expect(token.Float, "expected 'float' inside complex[...]") {
				if p.check(token.LBracket) {
					ts.bits, ts.sized = p.parseDesignator(), true
				}
			}
			p.expect(token.RBracket, "expected ']' after complex element type")
		}
	default:
		if p.check(token.LBracket) {
			ts.bits, ts.sized = p.parseDesignator(), true
		} else {
			ts.bits = p.defaultBits(ts.kind)
		}
	}
	if ts.bits > 64 && !p.cfg.IsFeatureEnabled(config.FeatMPNumerics) {
		switch ts.kind {
		case token.Int, token.Uint, token.Float, token.Complex:
			p.errorAt(ts.tok, "%s width %d exceeds 64 bits (use -Fmp-numerics)", ts.kind, ts.bits)
			ts.bits = 64
		}
	}
	return ts
}

func (p *Parser) defaultBits(kind token.Type) int {
	switch kind {
	case token.Int, token.Uint:
		return p.cfg.IntBits
	case token.Float:
		return p.cfg.FloatBits
	case token.Angle:
		return p.cfg.AngleBits
	}
	return 1
}

func (p *Parser) parseDesignator() int {
	p.expect(token.LBracket, "expected '['")
	tok := p.current
	e := p.parseExpr()
	p.expect(token.RBracket, "expected ']' after designator")
	v, ok := p.constInt(e)
	if !ok {
		p.errorAt(tok, "designator must be a constant integer expression")
		return 1
	}
	if v <= 0 {
		p.errorAt(tok, "designator must be positive, got %d", v)
		return 1
	}
	return int(v)
}

// constInt evaluates e when it is built from integer literals and known
// constants.
func (p *Parser) constInt(e *ast.Node) (int64, bool) {
	if id, ok := ast.As[*ast.IdentifierNode](e); ok && id.Index == nil {
		v, known := p.consts[e.Name]
		return v, known
	}
	if d, ok := ast.As[*ast.BinaryOpNode](e); ok {
		if l, lok := p.constInt(d.Left); lok {
			d.Left = ast.NewInt(d.Left.Tok, l, 64)
		}
		if r, rok := p.constInt(d.Right); rok {
			d.Right = ast.NewInt(d.Right.Tok, r, 64)
		}
	}
	folded, err := ast.FoldConstants(e)
	if err != nil {
		p.errorAt(e.Tok, "%v", err)
		return 0, false
	}
	if v, ok := ast.As[*ast.IntNode](folded); ok {
		return v.Value, true
	}
	return 0, false
}

// zeroValue builds the value node a declaration of type ts starts from.
func (p *Parser) zeroValue(ts typeSpec, tok token.Token) *ast.Node {
	var n *ast.Node
	mpWide := ts.bits > 64
	switch ts.kind {
	case token.Bit:
		n = ast.NewBitset(tok, nil, ts.bits)
	case token.Bool:
		n = ast.NewBool(tok, false)
	case token.Int:
		if mpWide {
			n = ast.NewMPInteger(tok, mp.NewInteger(0, ts.bits))
		} else {
			n = ast.NewInt(tok, 0, ts.bits)
		}
	case token.Uint:
		if mpWide {
			n = ast.NewMPInteger(tok, mp.NewUInteger(0, ts.bits))
		} else {
			n = ast.NewUInt(tok, 0, ts.bits)
		}
	case token.Float:
		if mpWide {
			n = ast.NewMPDecimal(tok, mp.NewDecimal(0, ts.bits))
		} else {
			n = ast.NewFloat(tok, 0, ts.bits)
		}
	case token.Angle:
		n = ast.NewAngle(tok, mp.NewDecimal(0, ts.bits), ts.bits)
	case token.Complex:
		n = ast.NewMPComplex(tok, mp.NewComplex(0, 0, ts.bits))
	case token.Qubit:
		if ts.sized {
			n = ast.NewQubitContainer(tok, ts.bits)
		} else {
			n = ast.NewQubit(tok, 0, false)
		}
	default:
		p.errorAt(tok, "'%s' is not a type", ts.kind)
		n = ast.NewUndefined(tok)
	}
	if ts.isConst {
		t := *n.Typ
		t.Const = true
		n.Typ = &t
	}
	return n
}

func (p *Parser) astType(ts typeSpec) ast.Type { return p.zeroValue(ts, ts.tok).Kind() }

// Expression Parsing
func (p *Parser) parseExpr() *ast.Node { return p.parseBinaryExpr(1) }

func getBinaryOpPrecedence(op token.Type) int {
	switch op {
	case token.OrOr:
		return 1
	case token.AndAnd:
		return 2
	case token.Or:
		return 3
	case token.Xor:
		return 4
	case token.And:
		return 5
	case token.EqEq, token.Neq:
		return 6
	case token.Lt, token.Gt, token.Lte, token.Gte:
		return 7
	case token.Shl, token.Shr:
		return 8
	case token.Plus, token.Minus:
		return 9
	case token.Star, token.Slash, token.Rem:
		return 10
	default:
		return -1
	}
}

func (p *Parser) parseBinaryExpr(minPrec int) *ast.Node {
	left := p.parseUnaryExpr()
	for {
		op := p.current
		prec := getBinaryOpPrecedence(op.Type)
		if prec < minPrec {
			return left
		}
		p.advance()
		right := p.parseBinaryExpr(prec + 1)
		left = ast.NewBinaryOp(op, op.Type, left, right)
	}
}

func (p *Parser) parseUnaryExpr() *ast.Node {
	tok := p.current
	switch tok.Type {
	case token.Minus, token.Plus, token.Not, token.Complement:
		p.advance()
		return ast.NewUnaryOp(tok, tok.Type, p.parseUnaryExpr())
	}
	return p.parsePowerExpr()
}

// ** binds tighter than unary minus on its left and is right-associative.
func (p *Parser) parsePowerExpr() *ast.Node {
	base := p.parsePrimaryExpr()
	if p.check(token.StarStar) {
		op := p.current
		p.advance()
		return ast.NewBinaryOp(op, op.Type, base, p.parseUnaryExpr())
	}
	return base
}

func (p *Parser) parsePrimaryExpr() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Number):
		return p.intLiteral(tok)
	case p.match(token.FloatNumber):
		v, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			p.errorAt(tok, "invalid float literal '%s'", tok.Value)
		}
		return ast.NewFloat(tok, v, 64)
	case p.match(token.ImagNumber):
		v, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			p.errorAt(tok, "invalid imaginary literal '%sim'", tok.Value)
		}
		return ast.NewMPComplex(tok, mp.NewComplex(0, v, p.cfg.FloatBits))
	case p.match(token.BitString):
		v, _ := new(big.Int).SetString(tok.Value, 2)
		return ast.NewBitset(tok, v, len(tok.Value))
	case p.match(token.True):
		return ast.NewBool(tok, true)
	case p.match(token.False):
		return ast.NewBool(tok, false)
	case p.match(token.HardwareQubit):
		return ast.NewIdentifier(tok, tok.Value, nil)
	case p.match(token.Measure):
		return ast.NewMeasure(tok, p.parseQubitArg())
	case token.IsTypeKeyword(tok.Type):
		ts := p.parseTypeSpec()
		p.expect(token.LParen, "expected '(' after type in cast")
		expr := p.parseExpr()
		p.expect(token.RParen, "expected ')' after cast expression")
		return ast.NewCast(tok, expr, p.astType(ts))
	case p.match(token.Ident):
		if p.match(token.LParen) {
			args := p.parseExprList(token.RParen)
			p.expect(token.RParen, "expected ')' after function arguments")
			return ast.NewFunctionCall(tok, tok.Value, args)
		}
		var index *ast.Node
		if p.match(token.LBracket) {
			index = p.parseExpr()
			p.expect(token.RBracket, "expected ']' after index")
		}
		return ast.NewIdentifier(tok, tok.Value, index)
	case p.match(token.LParen):
		expr := p.parseExpr()
		p.expect(token.RParen, "expected ')' after parenthesized expression")
		return expr
	}
	p.errorAt(tok, "expected an expression, found %s", tok.Type)
	return ast.NewUndefined(tok)
}

// intLiteral picks the narrowest of int[32], int[64] and an
// arbitrary-precision integer that holds the literal.
func (p *Parser) intLiteral(tok token.Token) *ast.Node {
	v, ok := new(big.Int).SetString(tok.Value, 10)
	if !ok {
		return ast.NewInt(tok, 0, 32)
	}
	switch {
	case v.IsInt64() && v.Int64() >= -1<<31 && v.Int64() < 1<<31:
		return ast.NewInt(tok, v.Int64(), 32)
	case v.IsInt64():
		return ast.NewInt(tok, v.Int64(), 64)
	}
	if !p.cfg.IsFeatureEnabled(config.FeatMPNumerics) {
		p.errorAt(tok, "integer literal %s does not fit in 64 bits (use -Fmp-numerics)", tok.Value)
		return ast.NewInt(tok, 0, 64)
	}
	i, err := mp.ParseInteger(tok.Value, v.BitLen()+1, true)
	if err != nil {
		p.errorAt(tok, "%v", err)
		return ast.NewInt(tok, 0, 64)
	}
	return ast.NewMPInteger(tok, i)
}
