package parser

import (
	"strconv"

	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/config"
	"github.com/xplshn/gqasm/pkg/diag"
	"github.com/xplshn/gqasm/pkg/token"
)

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
	cfg      *config.Config
	sink     diag.Sink
	// panicking suppresses follow-on errors until the next statement.
	panicking bool
	grammar   string
	consts    map[string]int64
}

// NewParser creates and initializes a new Parser from a token stream
func NewParser(tokens []token.Token, cfg *config.Config, sink diag.Sink) *Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != token.EOF {
		tokens = append(tokens, token.Token{Type: token.EOF})
	}
	p := &Parser{tokens: tokens, cfg: cfg, sink: sink, consts: make(map[string]int64)}
	p.current = p.tokens[0]
	return p
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.previous = p.current
		p.pos++
		p.current = p.tokens[p.pos]
	} else {
		p.previous = p.current
	}
}

func (p *Parser) peekAt(n int) token.Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) peek() token.Token { return p.peekAt(1) }

func (p *Parser) check(tokType token.Type) bool { return p.current.Type == tokType }

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) errorAt(tok token.Token, format string, args ...any) {
	if p.panicking {
		return
	}
	p.panicking = true
	p.sink.Emit(diag.Errorf(tok, format, args...))
}

func (p *Parser) expect(tokType token.Type, message string) bool {
	if p.check(tokType) {
		p.advance()
		return true
	}
	p.errorAt(p.current, "%s", message)
	return false
}

func (p *Parser) synchronize() {
	p.panicking = false
	for !p.check(token.EOF) {
		if p.previous.Type == token.Semi {
			return
		}
		switch p.current.Type {
		case token.RBrace, token.Gate, token.Def, token.Defcal, token.If, token.For, token.While,
			token.Do, token.Switch, token.Return, token.Const, token.Qubit, token.Bit, token.Int,
			token.Uint, token.Float, token.Angle, token.Bool, token.Complex:
			return
		}
		p.advance()
	}
}

// Parse reads a whole program.
func (p *Parser) Parse() *ast.Node {
	tok := p.current
	var stmts []*ast.Node
	if p.check(token.OpenQASM) {
		stmts = append(stmts, p.parseVersion())
	}
	for !p.check(token.EOF) {
		start := p.pos
		if stmt := p.parseStmt(); stmt != nil {
			stmts = append(stmts, stmt)
		}
		if p.panicking {
			p.synchronize()
		}
		if p.pos == start {
			p.advance()
		}
	}
	return ast.NewProgram(tok, stmts)
}

func (p *Parser) parseVersion() *ast.Node {
	tok := p.current
	p.advance()
	version := p.current.Value
	if !p.match(token.FloatNumber) && !p.match(token.Number) {
		p.errorAt(p.current, "expected a version number after 'OPENQASM'")
	}
	p.expect(token.Semi, "expected ';' after the version")
	return ast.NewDirective(tok, ast.Version, version)
}

// Statement Parsing
func (p *Parser) parseBlock() *ast.Node {
	tok := p.current
	p.expect(token.LBrace, "expected '{' to start a block")
	var stmts []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		start := p.pos
		if stmt := p.parseStmt(); stmt != nil {
			stmts = append(stmts, stmt)
		}
		if p.panicking {
			p.synchronize()
		}
		if p.pos == start && !p.check(token.RBrace) {
			p.advance()
		}
	}
	p.expect(token.RBrace, "expected '}' after block")
	return ast.NewBlock(tok, stmts)
}

// parseBody reads a block, or a single statement wrapped in one.
func (p *Parser) parseBody() *ast.Node {
	if p.check(token.LBrace) {
		return p.parseBlock()
	}
	tok := p.current
	stmt := p.parseStmt()
	if stmt == nil {
		return ast.NewBlock(tok, nil)
	}
	return ast.NewBlock(tok, []*ast.Node{stmt})
}

func (p *Parser) parseStmt() *ast.Node {
	tok := p.current
	switch {
	case p.check(token.LBrace):
		return p.parseBlock()
	case p.match(token.Semi):
		return nil
	case p.match(token.Include):
		return p.parseDirective(tok, ast.Include, "include")
	case p.match(token.DefcalGrammar):
		d := p.parseDirective(tok, ast.Grammar, "defcalgrammar")
		if v, ok := ast.As[*ast.DirectiveNode](d); ok {
			p.grammar = v.Value
		}
		return d
	case p.check(token.OpenQASM):
		p.errorAt(tok, "the version declaration must be the first statement")
		return p.parseVersion()
	case p.match(token.Const):
		return p.parseDeclaration(tok, true)
	case token.IsTypeKeyword(p.current.Type) && p.peek().Type != token.LParen:
		return p.parseDeclaration(tok, false)
	case p.match(token.Gate):
		return p.parseGate(tok)
	case p.match(token.Def):
		return p.parseDef(tok)
	case p.match(token.Extern):
		return p.parseExtern(tok)
	case p.match(token.Defcal):
		return p.parseDefcal(tok)
	case p.match(token.Cal):
		body := p.parseBlock()
		return ast.NewCalibration(tok, body.Data.(*ast.BlockNode).Stmts)
	case p.match(token.If):
		return p.parseIf(tok)
	case p.match(token.For):
		return p.parseFor(tok)
	case p.match(token.While):
		cond := p.parseCondition("while")
		return ast.NewWhile(tok, cond, p.parseBody())
	case p.match(token.Do):
		body := p.parseBody()
		p.expect(token.While, "expected 'while' after a do body")
		cond := p.parseCondition("while")
		p.expect(token.Semi, "expected ';' after do-while condition")
		return ast.NewDoWhile(tok, cond, body)
	case p.match(token.Switch):
		return p.parseSwitch(tok)
	case p.match(token.Case):
		// Outside a switch; kept so the checker can reject it.
		values := p.parseExprList(token.LBrace)
		return ast.NewCase(tok, values, p.parseBlock())
	case p.match(token.Default):
		return ast.NewDefault(tok, p.parseBlock())
	case p.match(token.Return):
		var expr *ast.Node
		if !p.check(token.Semi) {
			expr = p.parseExpr()
		}
		p.expect(token.Semi, "expected ';' after return statement")
		return ast.NewReturn(tok, expr)
	case p.match(token.Break):
		p.expect(token.Semi, "expected ';' after 'break'")
		return ast.NewBreak(tok)
	case p.match(token.Continue):
		p.expect(token.Semi, "expected ';' after 'continue'")
		return ast.NewContinue(tok)
	case p.match(token.Reset):
		q := p.parseQubitArg()
		p.expect(token.Semi, "expected ';' after reset")
		return ast.NewReset(tok, []*ast.Node{q})
	case p.match(token.Barrier):
		var qs []*ast.Node
		if !p.check(token.Semi) {
			qs = p.parseQubitArgs()
		}
		p.expect(token.Semi, "expected ';' after barrier")
		return ast.NewBarrier(tok, qs)
	case p.match(token.Measure):
		m := ast.NewMeasure(tok, p.parseQubitArg())
		if p.match(token.Arrow) {
			target := p.parseLValue()
			p.expect(token.Semi, "expected ';' after measurement")
			return ast.NewAssign(tok, token.Arrow, target, m)
		}
		p.expect(token.Semi, "expected ';' after measurement")
		return ast.NewExprStmt(tok, m)
	case isModifier(p.current.Type):
		return p.parseGateCall()
	case p.check(token.Ident) && p.isGateCall():
		return p.parseGateCall()
	}
	return p.parseSimpleStmt()
}

func (p *Parser) parseDirective(tok token.Token, kind ast.NodeType, what string) *ast.Node {
	value := p.current.Value
	if !p.match(token.String) {
		p.errorAt(p.current, "expected a string after '%s'", what)
	}
	p.expect(token.Semi, "expected ';' after "+what)
	return ast.NewDirective(tok, kind, value)
}

func (p *Parser) parseCondition(what string) *ast.Node {
	p.expect(token.LParen, "expected '(' after '"+what+"'")
	cond := p.parseExpr()
	p.expect(token.RParen, "expected ')' after "+what+" condition")
	return cond
}

func (p *Parser) parseIf(tok token.Token) *ast.Node {
	cond := p.parseCondition("if")
	then := p.parseBody()
	var elseIfs []*ast.Node
	var els *ast.Node
	for p.check(token.Else) {
		elseTok := p.current
		p.advance()
		if p.match(token.If) {
			c := p.parseCondition("if")
			elseIfs = append(elseIfs, ast.NewElseIf(elseTok, c, p.parseBody()))
			continue
		}
		els = ast.NewElse(elseTok, p.parseBody())
		break
	}
	return ast.NewIf(tok, cond, then, elseIfs, els)
}

func (p *Parser) parseFor(tok token.Token) *ast.Node {
	varTok := p.current
	ts := typeSpec{kind: token.Int, tok: varTok}
	if token.IsTypeKeyword(p.current.Type) {
		ts = p.parseTypeSpec()
	} else {
		ts.bits = p.cfg.IntBits
	}
	nameTok := p.current
	p.expect(token.Ident, "expected a loop variable name")
	loopVar := p.zeroValue(ts, nameTok).Named(nameTok.Value)
	p.expect(token.In, "expected 'in' after the loop variable")

	var start, step, stop *ast.Node
	var set []*ast.Node
	switch {
	case p.match(token.LBracket):
		start = p.parseExpr()
		p.expect(token.Colon, "expected ':' in range")
		stop = p.parseExpr()
		if p.match(token.Colon) {
			step, stop = stop, p.parseExpr()
		}
		p.expect(token.RBracket, "expected ']' after range")
	case p.match(token.LBrace):
		set = p.parseExprList(token.RBrace)
		p.expect(token.RBrace, "expected '}' after set")
	default:
		set = []*ast.Node{p.parseExpr()}
	}
	return ast.NewFor(tok, loopVar, start, step, stop, set, p.parseBody())
}

func (p *Parser) parseSwitch(tok token.Token) *ast.Node {
	expr := p.parseCondition("switch")
	p.expect(token.LBrace, "expected '{' after switch expression")
	var cases []*ast.Node
	var def *ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		labelTok := p.current
		switch {
		case p.match(token.Case):
			values := p.parseExprList(token.LBrace)
			cases = append(cases, ast.NewCase(labelTok, values, p.parseBlock()))
		case p.match(token.Default):
			body := p.parseBlock()
			if def != nil {
				p.errorAt(labelTok, "multiple default labels in one switch")
				continue
			}
			def = ast.NewDefault(labelTok, body)
		default:
			p.errorAt(labelTok, "expected 'case' or 'default' in switch body")
			p.synchronize()
			if !p.check(token.Case) && !p.check(token.Default) && !p.check(token.RBrace) {
				p.advance()
			}
		}
	}
	p.expect(token.RBrace, "expected '}' after switch body")
	return ast.NewSwitch(tok, expr, cases, def)
}

func (p *Parser) parseExprList(end token.Type) []*ast.Node {
	var out []*ast.Node
	if p.check(end) {
		return out
	}
	for {
		out = append(out, p.parseExpr())
		if !p.match(token.Comma) {
			return out
		}
	}
}

func (p *Parser) parseDeclaration(tok token.Token, isConst bool) *ast.Node {
	ts := p.parseTypeSpec()
	ts.isConst = isConst
	nameTok := p.current
	if !p.expect(token.Ident, "expected an identifier in declaration") {
		return nil
	}
	value := p.zeroValue(ts, nameTok).Named(nameTok.Value)
	var init *ast.Node
	if p.match(token.Eq) {
		init = p.parseExpr()
		if isConst && (ts.kind == token.Int || ts.kind == token.Uint) {
			if v, ok := p.constInt(init); ok {
				p.consts[nameTok.Value] = v
			}
		}
	} else if isConst {
		p.errorAt(nameTok, "constant '%s' must be initialized", nameTok.Value)
	}
	p.expect(token.Semi, "expected ';' after declaration")
	return ast.NewDeclaration(tok, value, init)
}

func (p *Parser) parseLValue() *ast.Node {
	tok := p.current
	if !p.expect(token.Ident, "expected an assignment target") {
		return ast.NewUndefined(tok)
	}
	var index *ast.Node
	if p.match(token.LBracket) {
		index = p.parseExpr()
		p.expect(token.RBracket, "expected ']' after index")
	}
	return ast.NewIdentifier(tok, tok.Value, index)
}

func isAssignOp(t token.Type) bool { return t >= token.Eq && t <= token.ShrEq }

func (p *Parser) parseSimpleStmt() *ast.Node {
	tok := p.current
	expr := p.parseExpr()
	if isAssignOp(p.current.Type) {
		if expr.Type != ast.Identifier {
			p.errorAt(p.current, "invalid target for assignment")
		}
		op := p.current
		p.advance()
		value := p.parseExpr()
		p.expect(token.Semi, "expected ';' after assignment")
		return ast.NewAssign(op, op.Type, expr, value)
	}
	p.expect(token.Semi, "expected ';' after expression statement")
	return ast.NewExprStmt(tok, expr)
}

// Quantum statements
func isModifier(t token.Type) bool {
	return t == token.Ctrl || t == token.NegCtrl || t == token.Inv || t == token.Pow
}

// isGateCall decides whether a statement starting with an identifier is a
// gate application: the name, optional parenthesised arguments, then a
// qubit operand.
func (p *Parser) isGateCall() bool {
	i := 1
	if p.peekAt(i).Type == token.LParen {
		depth := 0
		for ; ; i++ {
			t := p.peekAt(i).Type
			if t == token.EOF {
				return false
			}
			if t == token.LParen {
				depth++
			} else if t == token.RParen {
				depth--
				if depth == 0 {
					i++
					break
				}
			}
		}
	}
	next := p.peekAt(i).Type
	return next == token.Ident || next == token.HardwareQubit
}

func (p *Parser) parseGateCall() *ast.Node {
	var mods []ast.Modifier
	for isModifier(p.current.Type) {
		m := ast.Modifier{Kind: p.current.Type}
		p.advance()
		if p.match(token.LParen) {
			m.Arg = p.parseExpr()
			p.expect(token.RParen, "expected ')' after modifier argument")
		} else if m.Kind == token.Pow {
			p.errorAt(p.current, "'pow' modifier requires an argument")
		}
		p.expect(token.At, "expected '@' after gate modifier")
		mods = append(mods, m)
	}
	tok := p.current
	if !p.expect(token.Ident, "expected a gate name") {
		return nil
	}
	var args []*ast.Node
	if p.match(token.LParen) {
		args = p.parseExprList(token.RParen)
		p.expect(token.RParen, "expected ')' after gate arguments")
	}
	qubits := p.parseQubitArgs()
	p.expect(token.Semi, "expected ';' after gate call")
	return ast.NewGateCall(tok, tok.Value, args, qubits, mods)
}

func (p *Parser) parseQubitArg() *ast.Node {
	tok := p.current
	if p.match(token.HardwareQubit) {
		return ast.NewIdentifier(tok, tok.Value, nil)
	}
	return p.parseLValue()
}

func (p *Parser) parseQubitArgs() []*ast.Node {
	qs := []*ast.Node{p.parseQubitArg()}
	for p.match(token.Comma) {
		qs = append(qs, p.parseQubitArg())
	}
	return qs
}

// Declarations with bodies
func (p *Parser) parseGate(tok token.Token) *ast.Node {
	nameTok := p.current
	if !p.expect(token.Ident, "expected a gate name") {
		return nil
	}
	var params []*ast.Node
	if p.match(token.LParen) {
		for !p.check(token.RParen) && !p.check(token.EOF) {
			pt := p.current
			if !p.expect(token.Ident, "expected a gate parameter name") {
				break
			}
			params = append(params, p.zeroValue(typeSpec{kind: token.Angle, bits: p.cfg.AngleBits}, pt).Named(pt.Value))
			if !p.match(token.Comma) {
				break
			}
		}
		p.expect(token.RParen, "expected ')' after gate parameters")
	}
	var qubits []*ast.Node
	for i := 0; ; i++ {
		qt := p.current
		if !p.expect(token.Ident, "expected a qubit parameter name") {
			break
		}
		qubits = append(qubits, ast.NewGateQubitParam(qt, i).Named(qt.Value))
		if !p.match(token.Comma) {
			break
		}
	}
	body := p.parseBlock()
	return ast.NewGate(nameTok, nameTok.Value, params, qubits, body)
}

func (p *Parser) parseParams(named bool) []*ast.Node {
	var params []*ast.Node
	p.expect(token.LParen, "expected '(' before parameters")
	for i := 0; !p.check(token.RParen) && !p.check(token.EOF); i++ {
		isConst := p.match(token.Const)
		pt := p.current
		if !token.IsTypeKeyword(p.current.Type) {
			p.errorAt(p.current, "expected a parameter type")
			break
		}
		ts := p.parseTypeSpec()
		ts.isConst = isConst
		name := argName(i)
		if named {
			nt := p.current
			if p.expect(token.Ident, "expected a parameter name") {
				name, pt = nt.Value, nt
			}
		} else if p.check(token.Ident) {
			name = p.current.Value
			p.advance()
		}
		params = append(params, p.zeroValue(ts, pt).Named(name))
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RParen, "expected ')' after parameters")
	return params
}

func argName(i int) string { return "arg" + strconv.Itoa(i) }

func (p *Parser) parseResult() ast.Type {
	if !p.match(token.Arrow) {
		return ast.TypeVoid
	}
	if p.match(token.Void) {
		return ast.TypeVoid
	}
	if !token.IsTypeKeyword(p.current.Type) {
		p.errorAt(p.current, "expected a return type after '->'")
		return ast.TypeUndefined
	}
	return p.astType(p.parseTypeSpec())
}

func (p *Parser) parseDef(tok token.Token) *ast.Node {
	nameTok := p.current
	if !p.expect(token.Ident, "expected a function name") {
		return nil
	}
	params := p.parseParams(true)
	result := p.parseResult()
	body := p.parseBlock()
	return ast.NewFunction(nameTok, nameTok.Value, params, result, body, false)
}

func (p *Parser) parseExtern(tok token.Token) *ast.Node {
	nameTok := p.current
	if !p.expect(token.Ident, "expected a function name") {
		return nil
	}
	params := p.parseParams(false)
	result := p.parseResult()
	p.expect(token.Semi, "expected ';' after extern declaration")
	return ast.NewFunction(nameTok, nameTok.Value, params, result, nil, true)
}

func (p *Parser) parseDefcal(tok token.Token) *ast.Node {
	nameTok := p.current
	if p.match(token.Measure) || p.match(token.Reset) {
		nameTok.Value = token.TypeStrings[nameTok.Type]
	} else if !p.expect(token.Ident, "expected a defcal name") {
		return nil
	}
	var params []*ast.Node
	if p.check(token.LParen) {
		p.advance()
		for i := 0; !p.check(token.RParen) && !p.check(token.EOF); i++ {
			pt := p.current
			switch {
			case token.IsTypeKeyword(pt.Type):
				ts := p.parseTypeSpec()
				nt := p.current
				if p.expect(token.Ident, "expected a parameter name") {
					params = append(params, p.zeroValue(ts, nt).Named(nt.Value))
				}
			case pt.Type == token.Ident && (p.peek().Type == token.Comma || p.peek().Type == token.RParen):
				p.advance()
				params = append(params, p.zeroValue(typeSpec{kind: token.Angle, bits: p.cfg.AngleBits}, pt).Named(pt.Value))
			default:
				// A constant argument such as pi/2 selects a specialised calibration.
				p.parseExpr()
				params = append(params, p.zeroValue(typeSpec{kind: token.Angle, bits: p.cfg.AngleBits}, pt).Named(argName(i)))
			}
			if !p.match(token.Comma) {
				break
			}
		}
		p.expect(token.RParen, "expected ')' after defcal parameters")
	}
	var qubits []*ast.Node
	for i := 0; p.check(token.Ident) || p.check(token.HardwareQubit); i++ {
		qt := p.current
		p.advance()
		if qt.Type == token.HardwareQubit {
			qubits = append(qubits, ast.NewQubit(qt, hardwareIndex(qt.Value), true).Named(qt.Value))
		} else {
			qubits = append(qubits, ast.NewQubit(qt, i, false).Named(qt.Value))
		}
		if !p.match(token.Comma) {
			break
		}
	}
	if len(qubits) == 0 {
		p.errorAt(p.current, "expected qubit operands for defcal '%s'", nameTok.Value)
	}
	var result *ast.Type
	if p.check(token.Arrow) {
		r := p.parseResult()
		result = &r
	}
	body := p.parseBlock()
	return ast.NewDefcal(nameTok, nameTok.Value, p.grammar, params, qubits, result, body)
}

func hardwareIndex(s string) int {
	n := 0
	for _, r := range s[1:] {
		n = n*10 + int(r-'0')
	}
	return n
}
