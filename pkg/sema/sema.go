// Package sema resolves a parsed program against a session: it opens a
// context for every body, declares and transfers symbols, converts gate
// arguments into angles, mangles declarations and calls, and checks the
// return types of functions and defcals.
package sema

import (
	"math/big"
	"strings"

	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/config"
	"github.com/xplshn/gqasm/pkg/diag"
	"github.com/xplshn/gqasm/pkg/scope"
	"github.com/xplshn/gqasm/pkg/session"
	"github.com/xplshn/gqasm/pkg/symtab"
	"github.com/xplshn/gqasm/pkg/token"
)

type TypeChecker struct {
	s *session.Session
	// currentFunc is the def or defcal whose body is being checked.
	currentFunc *ast.Node
	currentGate *ast.Node
	loops       int
	switches    int
	defcals     map[string][]ast.Handle
	included    map[string]bool
	builtins    bool
}

func NewTypeChecker(s *session.Session) *TypeChecker {
	return &TypeChecker{
		s:        s,
		defcals:  make(map[string][]ast.Handle),
		included: make(map[string]bool),
	}
}

// Check resolves every statement of root, a Program node. It stops early
// once an internal error makes the session untrustworthy.
func (tc *TypeChecker) Check(root *ast.Node) {
	tc.declareBuiltins()
	if root == nil {
		return
	}
	prog, ok := ast.As[*ast.BlockNode](root)
	if !ok {
		tc.s.Report(root.Tok, diag.Internalf("resolver expects a program, got %s", root.Type))
		return
	}
	tc.checkStmts(prog.Stmts)
}

func (tc *TypeChecker) checkStmts(stmts []*ast.Node) {
	for _, stmt := range stmts {
		if !tc.s.Trusted() {
			return
		}
		tc.checkNode(stmt)
	}
}

// inBody reports whether a def or defcal body is open. Return checks
// inside such bodies belong to the return checker.
func (tc *TypeChecker) inBody() bool { return tc.currentFunc != nil }

func (tc *TypeChecker) checkNode(node *ast.Node) {
	if node == nil {
		return
	}
	switch node.Type {
	case ast.Version:
		tc.checkVersion(node)
	case ast.Include:
		tc.checkInclude(node)
	case ast.Grammar:
		g := node.Data.(*ast.DirectiveNode).Value
		if g != "openpulse" {
			tc.s.Warnf(node.Tok, config.WarnExtra, "unknown calibration grammar '%s'", g)
		}
	case ast.Declaration:
		tc.checkVarDecl(node)
	case ast.Gate:
		tc.checkGateDecl(node)
	case ast.Defcal:
		tc.checkDefcalDecl(node)
	case ast.Function:
		tc.checkFuncDecl(node)
	case ast.Calibration:
		tc.withContext(scope.Calibration, node.Tok, func() {
			tc.checkStmts(node.Data.(*ast.BlockNode).Stmts)
		})
	case ast.Block:
		tc.checkBody(node)
	case ast.If:
		d := node.Data.(*ast.IfNode)
		tc.checkExprAsCondition(d.Cond)
		tc.checkBody(d.Then)
		for _, ei := range d.ElseIfs {
			cb := ei.Data.(*ast.CondBlockNode)
			tc.checkExprAsCondition(cb.Cond)
			tc.checkBody(cb.Body)
		}
		if d.Else != nil {
			tc.checkBody(d.Else.Data.(*ast.CondBlockNode).Body)
		}
	case ast.While, ast.DoWhile:
		d := node.Data.(*ast.CondBlockNode)
		tc.checkExprAsCondition(d.Cond)
		tc.loops++
		tc.checkBody(d.Body)
		tc.loops--
	case ast.For:
		tc.checkFor(node)
	case ast.Switch:
		tc.checkSwitch(node)
	case ast.Case, ast.Default:
		if !tc.inBody() {
			tc.s.Errorf(node.Tok, "'%s' label outside of a switch statement", node.Type)
		}
		tc.checkBody(node.Data.(*ast.CaseNode).Body)
	case ast.Return:
		tc.checkReturn(node)
	case ast.Break, ast.Continue:
		if tc.loops == 0 && tc.switches == 0 {
			tc.s.Errorf(node.Tok, "'%s' statement not in loop or switch statement", node.Type)
		}
	case ast.Assign:
		tc.checkAssign(node)
	case ast.ExprStmt:
		tc.checkExprStmt(node)
	case ast.GateCall:
		tc.checkGateCall(node)
	case ast.Reset, ast.Barrier:
		for _, q := range node.Data.(*ast.QuantumStmtNode).Qubits {
			tc.checkQubitOperand(q)
		}
	default:
		tc.checkExpr(node)
	}
}

// withContext runs fn inside a freshly pushed context of kind k and erases
// the context's symbols afterwards.
func (tc *TypeChecker) withContext(k scope.Kind, tok token.Token, fn func()) {
	if _, ok := tc.s.PushContext(k, tok); !ok {
		return
	}
	fn()
	tc.s.PopContext(tok)
}

// checkBody checks a control-flow body in its own block context.
func (tc *TypeChecker) checkBody(body *ast.Node) {
	if body == nil {
		return
	}
	tc.withContext(scope.Block, body.Tok, func() {
		if b, ok := ast.As[*ast.BlockNode](body); ok {
			tc.checkStmts(b.Stmts)
			return
		}
		tc.checkNode(body)
	})
}

func (tc *TypeChecker) checkVersion(node *ast.Node) {
	v := node.Data.(*ast.DirectiveNode).Value
	switch v {
	case "3", "3.0", "3.1":
	default:
		tc.s.Errorf(node.Tok, "OpenQASM %s is not supported; only version 3 programs are accepted", v)
		return
	}
	std := tc.s.Config.StdName
	if v != "3" && v > std {
		tc.s.Warnf(node.Tok, config.WarnPedantic, "program declares OpenQASM %s but --std=%s is in effect", v, std)
	}
}

func (tc *TypeChecker) checkInclude(node *ast.Node) {
	file := node.Data.(*ast.DirectiveNode).Value
	if tc.included[file] {
		tc.s.Warnf(node.Tok, config.WarnExtra, "'%s' is included more than once", file)
		return
	}
	tc.included[file] = true
	if file == "stdgates.inc" {
		tc.declareStdGates(node.Tok)
		return
	}
	tc.s.Warnf(node.Tok, config.WarnExtra, "include file '%s' is not processed", file)
}

// requireGlobal reports definitions nested inside another body.
func (tc *TypeChecker) requireGlobal(node *ast.Node) bool {
	if tc.s.Current().IsGlobal() {
		return true
	}
	tc.s.Errorf(node.Tok, "%s definitions are only allowed at global scope", node.Type)
	return false
}

func (tc *TypeChecker) checkVarDecl(node *ast.Node) {
	d := node.Data.(*ast.DeclarationNode)
	value := d.Value
	t := value.Kind()

	if t.IsQuantum() {
		if d.Init != nil {
			tc.s.Errorf(node.Tok, "qubit declaration of '%s' cannot have an initializer", value.Name)
		}
		if !tc.s.Current().IsGlobal() {
			tc.s.Errorf(node.Tok, "qubit '%s' must be declared at global scope", value.Name)
			return
		}
	}

	if tc.currentGate != nil {
		tc.s.Errorf(node.Tok, "classical declarations are not allowed inside gate '%s'", tc.currentGate.Name)
		return
	}

	if d.Init != nil {
		from := tc.checkExpr(d.Init)
		lit := d.Init
		if from.Kind != ast.Undefined && !from.Same(t) {
			desc := tc.s.ConvertValue(d.Init, ast.Type{Kind: t.Kind, Bits: t.Bits})
			lit = desc.Node
		}
		// The declared value takes over its literal initializer so that
		// later uses, gate arguments included, see it.
		if lit != nil && lit.Type == value.Type && ast.IsValueKind(lit.Type) {
			value.Data = fitPayload(lit.Data, t)
		}
	}

	tk := symtab.Local
	if tc.s.Current().IsGlobal() {
		tk = symtab.Global
	}
	h, ok := tc.s.Declare(tk, value)
	if ok && tk == symtab.Global && t.Kind == ast.Angle {
		tc.s.Share(h, symtab.Angle, node.Tok)
	}
}

// fitPayload sizes a bitset payload to the declared width.
func fitPayload(p ast.Payload, t ast.Type) ast.Payload {
	b, ok := p.(*ast.BitsetNode)
	if !ok || b.Size == t.Bits || t.Bits <= 0 {
		return p
	}
	v := new(big.Int)
	if b.Value != nil {
		mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(t.Bits)), big.NewInt(1))
		v.And(b.Value, mask)
	}
	return &ast.BitsetNode{Value: v, Size: t.Bits}
}

func (tc *TypeChecker) checkFor(node *ast.Node) {
	d := node.Data.(*ast.ForNode)
	for _, e := range []*ast.Node{d.Start, d.Step, d.Stop} {
		if e != nil {
			tc.requireInteger(e, "range bound")
		}
	}
	for _, e := range d.Set {
		tc.checkExpr(e)
	}
	tc.withContext(scope.Block, node.Tok, func() {
		tc.s.Declare(symtab.Local, d.Var)
		tc.loops++
		if b, ok := ast.As[*ast.BlockNode](d.Body); ok {
			tc.checkStmts(b.Stmts)
		}
		tc.loops--
	})
}

func (tc *TypeChecker) checkSwitch(node *ast.Node) {
	d := node.Data.(*ast.SwitchNode)
	tc.requireInteger(d.Expr, "switch expression")
	if !tc.inBody() {
		if len(d.Cases) == 0 {
			tc.s.Errorf(node.Tok, "switch statement has no case labels")
		} else if d.Default == nil {
			tc.s.Warnf(node.Tok, config.WarnSwitchDefault, "switch statement has no default label")
		}
	}
	seen := make(map[int64]bool)
	tc.switches++
	for _, c := range d.Cases {
		cd := c.Data.(*ast.CaseNode)
		for _, v := range cd.Values {
			tc.requireInteger(v, "case value")
			if i, ok := tc.constValue(v); ok {
				if seen[i] {
					tc.s.Errorf(v.Tok, "duplicate case value %d", i)
				}
				seen[i] = true
			}
		}
		tc.checkBody(cd.Body)
	}
	if d.Default != nil {
		tc.checkBody(d.Default.Data.(*ast.CaseNode).Body)
	}
	tc.switches--
}

func (tc *TypeChecker) checkReturn(node *ast.Node) {
	d := node.Data.(*ast.ReturnNode)
	if d.Expr != nil {
		tc.checkExpr(d.Expr)
	}
	if !tc.inBody() {
		tc.s.Errorf(node.Tok, "return statement outside of a function or defcal")
		return
	}
	tc.s.Mangle(node)
}

func (tc *TypeChecker) checkAssign(node *ast.Node) {
	d := node.Data.(*ast.AssignNode)
	target := tc.checkExpr(d.Target)
	value := tc.checkExpr(d.Value)
	if target.Kind == ast.Undefined {
		return
	}
	if target.IsQuantum() {
		tc.s.Errorf(d.Target.Tok, "cannot assign to qubit '%s'", d.Target.Name)
		return
	}
	if target.Const {
		tc.s.Errorf(d.Target.Tok, "cannot assign to constant '%s'", d.Target.Name)
		return
	}
	if m, ok := ast.As[*ast.MeasureNode](d.Value); ok {
		if id, ok := ast.As[*ast.IdentifierNode](d.Target); ok && id.Ref.IsValid() {
			m.Result = id.Ref
			d.Value.Name = d.Target.Name
			tc.s.Mangle(d.Value)
		}
	}
	if value.Kind == ast.Undefined || value.Same(target) {
		return
	}
	tc.s.ConvertValue(d.Value, ast.Type{Kind: target.Kind, Bits: target.Bits})
}

func (tc *TypeChecker) checkExprStmt(node *ast.Node) {
	d := node.Data.(*ast.ExprStmtNode)
	if d.Expr.Type == ast.FunctionCall {
		if e, ok := tc.s.Resolve(d.Expr.Name); ok && e.Kind == ast.Gate {
			// gphase(x); and other operand-less gate applications.
			call := ast.NewGateCall(d.Expr.Tok, d.Expr.Name, d.Expr.Data.(*ast.CallNode).Args, nil, nil)
			call.Parent = node
			d.Expr = call
			tc.checkGateCall(call)
			return
		}
	}
	t := tc.checkExpr(d.Expr)
	if d.Expr.Type == ast.FunctionCall && t.Kind != ast.Void && t.Kind != ast.Undefined {
		tc.s.Warnf(node.Tok, config.WarnUnusedResult, "result of call to '%s' is unused", d.Expr.Name)
	}
}

// Declarations with bodies
func (tc *TypeChecker) checkGateDecl(node *ast.Node) {
	if !tc.requireGlobal(node) {
		return
	}
	d := node.Data.(*ast.GateNode)
	tc.currentGate = node
	tc.withContext(scope.Gate, node.Tok, func() {
		for _, p := range d.Params {
			// A global angle of the same name already sits in the Angle
			// table; the parameter goes straight to the gate's locals.
			pt := p.Kind()
			if _, held := tc.s.Symbols.Find(symtab.Angle, nil, p.Name, pt.Bits, p.Type); held {
				tc.s.Declare(symtab.Local, p)
				continue
			}
			h, ok := tc.s.Declare(symtab.Angle, p)
			if ok {
				tc.s.Transfer(h, symtab.Local, p.Tok)
			}
		}
		for _, q := range d.Qubits {
			tc.s.Declare(symtab.GateQubitParam, q)
		}
		if b, ok := ast.As[*ast.BlockNode](d.Body); ok {
			tc.checkStmts(b.Stmts)
		}
	})
	tc.currentGate = nil
	tc.s.Declare(symtab.Global, node)
}

func (tc *TypeChecker) checkDefcalDecl(node *ast.Node) {
	if !tc.requireGlobal(node) {
		return
	}
	d := node.Data.(*ast.DefcalNode)
	if d.Grammar == "" {
		tc.s.Warnf(node.Tok, config.WarnExtra, "defcal '%s' has no preceding defcalgrammar", node.Name)
	}
	if node.Name == "measure" && d.Result == nil {
		tc.s.Warnf(node.Tok, config.WarnExtra, "measure defcal without a result type discards the outcome")
	}
	for _, q := range d.Qubits {
		if qn, ok := ast.As[*ast.QubitNode](q); ok && qn.Bound {
			tc.boundQubit(q.Tok, q.Name)
		}
	}
	tc.currentFunc = node
	tc.withContext(scope.Defcal, node.Tok, func() {
		for _, p := range d.Params {
			tc.s.Declare(symtab.Local, p)
		}
		for _, q := range d.Qubits {
			if qn, ok := ast.As[*ast.QubitNode](q); ok && !qn.Bound {
				tc.s.Declare(symtab.GateQubitParam, q)
			}
		}
		if b, ok := ast.As[*ast.BlockNode](d.Body); ok {
			tc.checkStmts(b.Stmts)
		}
		tc.s.CheckReturns(node)
	})
	tc.currentFunc = nil
	if h, ok := tc.s.Declare(symtab.Global, node); ok {
		tc.defcals[node.Name] = append(tc.defcals[node.Name], h)
	}
}

func (tc *TypeChecker) checkFuncDecl(node *ast.Node) {
	if !tc.requireGlobal(node) {
		return
	}
	d := node.Data.(*ast.FunctionNode)
	// Declared before the body so that it may call itself.
	if _, ok := tc.s.Declare(symtab.Global, node); !ok || d.Extern {
		return
	}
	tc.currentFunc = node
	tc.withContext(scope.Function, node.Tok, func() {
		for _, p := range d.Params {
			tc.s.Declare(symtab.Local, p)
		}
		if b, ok := ast.As[*ast.BlockNode](d.Body); ok {
			tc.checkStmts(b.Stmts)
		}
		tc.s.CheckReturns(node)
	})
	tc.currentFunc = nil
}

// boundQubit returns the entry of physical qubit name, declaring it on
// first use.
func (tc *TypeChecker) boundQubit(tok token.Token, name string) (*ast.Node, bool) {
	if e, ok := tc.s.Symbols.Lookup(tc.s.Contexts.Global(), name, 1, ast.Qubit); ok {
		return e.Value(), true
	}
	q := ast.NewQubit(tok, physicalIndex(name), true).Named(name)
	if _, ok := tc.s.Declare(symtab.Global, q); !ok {
		return nil, false
	}
	return q, true
}

func physicalIndex(name string) int {
	n := 0
	for _, r := range strings.TrimPrefix(name, "$") {
		n = n*10 + int(r-'0')
	}
	return n
}
