package sema

import (
	"fmt"
	"strings"

	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/convert"
	"github.com/xplshn/gqasm/pkg/symtab"
	"github.com/xplshn/gqasm/pkg/token"
)

func (tc *TypeChecker) checkExprAsCondition(node *ast.Node) {
	t := tc.checkExpr(node)
	if t.Kind != ast.Undefined && !convert.Valid(t, ast.TypeBool) {
		tc.s.Errorf(node.Tok, "condition of type %s is not convertible to bool", t)
	}
}

func (tc *TypeChecker) requireInteger(node *ast.Node, what string) {
	t := tc.checkExpr(node)
	if t.Kind != ast.Undefined && !t.IsInteger() {
		tc.s.Errorf(node.Tok, "%s must be an integer, found %s", what, t)
	}
}

// constValue evaluates integer literals and references to integer constants.
func (tc *TypeChecker) constValue(node *ast.Node) (int64, bool) {
	switch d := node.Data.(type) {
	case *ast.IntNode:
		return d.Value, true
	case *ast.UnaryOpNode:
		if v, ok := tc.constValue(d.Expr); ok && d.Op == token.Minus {
			return -v, true
		}
	case *ast.IdentifierNode:
		if d.Index != nil {
			return 0, false
		}
		if e, ok := tc.s.Symbols.Get(d.Ref); ok && e.Value() != nil && e.Value().Kind().Const {
			if v, ok := ast.As[*ast.IntNode](e.Value()); ok {
				return v.Value, true
			}
		}
	}
	return 0, false
}

func entryType(e *symtab.Entry) ast.Type {
	if v := e.Value(); v != nil && v.Typ != nil {
		return *v.Typ
	}
	return ast.Type{Kind: e.Kind, Bits: e.Bits}
}

func (tc *TypeChecker) checkExpr(node *ast.Node) ast.Type {
	if node == nil {
		return ast.TypeVoid
	}
	var t ast.Type
	switch node.Type {
	case ast.Identifier:
		t = tc.checkIdent(node)
	case ast.BinaryOp:
		d := node.Data.(*ast.BinaryOpNode)
		l, r := tc.checkExpr(d.Left), tc.checkExpr(d.Right)
		t = tc.getBinaryOpResultType(d.Op, l, r, node.Tok)
	case ast.UnaryOp:
		d := node.Data.(*ast.UnaryOpNode)
		t = tc.getUnaryOpResultType(d.Op, tc.checkExpr(d.Expr), node.Tok)
	case ast.Cast:
		d := node.Data.(*ast.CastNode)
		from := tc.checkExpr(d.Expr)
		t = d.Target
		if from.Kind != ast.Undefined && (from.IsQuantum() || from.Kind == ast.Void) {
			tc.s.Errorf(node.Tok, "cannot cast %s to %s", from, d.Target)
			t = ast.TypeUndefined
			break
		}
		tc.s.Mangle(node)
	case ast.Measure:
		d := node.Data.(*ast.MeasureNode)
		qt := tc.checkQubitOperand(d.Target)
		t = ast.TypeBit
		switch qt.Kind {
		case ast.QubitContainer, ast.QubitContainerAlias:
			t = ast.Type{Kind: ast.Bitset, Bits: qt.Bits}
		case ast.Undefined:
			t = ast.TypeUndefined
		}
		node.Typ = &t
		tc.s.Mangle(node)
		return t
	case ast.FunctionCall:
		t = tc.checkFuncCall(node)
	case ast.GateCall:
		tc.s.Errorf(node.Tok, "gate call to '%s' cannot be used as a value", node.Name)
		t = ast.TypeUndefined
	default:
		if ast.IsValueKind(node.Type) {
			return node.Kind()
		}
		tc.s.Errorf(node.Tok, "%s is not an expression", node.Type)
		t = ast.TypeUndefined
	}
	node.Typ = &t
	return t
}

func (tc *TypeChecker) undeclared(node *ast.Node, format string, args ...any) ast.Type {
	msg := fmt.Sprintf(format, args...)
	tc.s.Errorf(node.Tok, "%s", msg)
	node.SetError(msg)
	return ast.TypeUndefined
}

func (tc *TypeChecker) checkIdent(node *ast.Node) ast.Type {
	d := node.Data.(*ast.IdentifierNode)
	name := node.Name
	if strings.HasPrefix(name, "$") {
		if _, ok := tc.boundQubit(node.Tok, name); !ok {
			return ast.TypeUndefined
		}
	}
	e, ok := tc.s.Resolve(name)
	if !ok {
		return tc.undeclared(node, "use of undeclared identifier '%s'", name)
	}
	switch e.Kind {
	case ast.Gate, ast.Defcal, ast.Function:
		return tc.undeclared(node, "%s '%s' cannot be used as a value", e.Kind, name)
	}
	d.Ref = e.Handle()
	t := entryType(e)

	if g := tc.currentGate; g != nil && e.Ctx != nil && e.Ctx.IsGlobal() && !e.Bound && !t.Const {
		if t.IsQuantum() {
			return tc.undeclared(node, "gate '%s' cannot use global qubit '%s'; pass it as a qubit argument", g.Name, name)
		}
		return tc.undeclared(node, "gate '%s' cannot use non-constant global '%s'", g.Name, name)
	}

	if d.Index == nil {
		return t
	}
	tc.requireInteger(d.Index, "index")
	i, constant := tc.constValue(d.Index)
	if constant && (i < 0 || i >= int64(t.Bits)) {
		tc.s.Errorf(d.Index.Tok, "index %d out of range for '%s' of size %d", i, name, t.Bits)
		return ast.TypeUndefined
	}
	switch t.Kind {
	case ast.QubitContainer, ast.QubitContainerAlias:
		if constant {
			if part, ok := tc.s.Resolve(fmt.Sprintf("%s[%d]", name, i)); ok {
				d.Ref = part.Handle()
			}
		}
		return ast.TypeQubit
	case ast.Bitset, ast.Int, ast.UInt, ast.Angle:
		return ast.TypeBit
	}
	tc.s.Errorf(node.Tok, "cannot index '%s' of type %s", name, t)
	return ast.TypeUndefined
}

func (tc *TypeChecker) checkQubitOperand(node *ast.Node) ast.Type {
	t := tc.checkExpr(node)
	if t.Kind != ast.Undefined && !t.IsQuantum() {
		tc.s.Errorf(node.Tok, "'%s' is not a qubit", node.Name)
		return ast.TypeUndefined
	}
	return t
}

var kindRank = map[ast.NodeType]int{
	ast.Bool:       1,
	ast.Bitset:     2,
	ast.UInt:       3,
	ast.Int:        4,
	ast.MPUInteger: 5,
	ast.MPInteger:  6,
	ast.Angle:      7,
	ast.Float:      8,
	ast.Double:     9,
	ast.MPDecimal:  10,
	ast.MPComplex:  11,
}

func promote(l, r ast.Type) ast.Type {
	w := l
	if kindRank[r.Kind] > kindRank[l.Kind] {
		w = r
	}
	if l.Kind == r.Kind {
		w.Bits = max(l.Bits, r.Bits)
	}
	w.Const = false
	return w
}

func (tc *TypeChecker) getBinaryOpResultType(op token.Type, l, r ast.Type, tok token.Token) ast.Type {
	if l.Kind == ast.Undefined || r.Kind == ast.Undefined {
		return ast.TypeUndefined
	}
	if kindRank[l.Kind] == 0 || kindRank[r.Kind] == 0 {
		tc.s.Errorf(tok, "invalid operands to binary '%s' (%s and %s)", op, l, r)
		return ast.TypeUndefined
	}
	switch op {
	case token.EqEq, token.Neq, token.Lt, token.Gt, token.Lte, token.Gte, token.AndAnd, token.OrOr:
		return ast.TypeBool
	case token.Shl, token.Shr:
		if !r.IsInteger() {
			tc.s.Errorf(tok, "shift amount must be an integer, found %s", r)
		}
		l.Const = false
		return l
	case token.And, token.Or, token.Xor:
		if l.IsFloat() || r.IsFloat() || l.Kind == ast.MPComplex || r.Kind == ast.MPComplex {
			tc.s.Errorf(tok, "invalid operands to binary '%s' (%s and %s)", op, l, r)
			return ast.TypeUndefined
		}
	}
	return promote(l, r)
}

func (tc *TypeChecker) getUnaryOpResultType(op token.Type, t ast.Type, tok token.Token) ast.Type {
	if t.Kind == ast.Undefined {
		return t
	}
	if kindRank[t.Kind] == 0 {
		tc.s.Errorf(tok, "invalid operand to unary '%s' (%s)", op, t)
		return ast.TypeUndefined
	}
	switch op {
	case token.Not:
		return ast.TypeBool
	case token.Complement:
		if !t.IsInteger() && t.Kind != ast.Bitset {
			tc.s.Errorf(tok, "invalid operand to unary '~' (%s)", t)
			return ast.TypeUndefined
		}
	}
	t.Const = false
	return t
}

func (tc *TypeChecker) checkFuncCall(node *ast.Node) ast.Type {
	d := node.Data.(*ast.CallNode)
	for _, a := range d.Args {
		tc.checkExpr(a)
	}
	e, ok := tc.s.Resolve(node.Name)
	if !ok {
		return tc.undeclared(node, "call to undeclared function '%s'", node.Name)
	}
	if e.Kind != ast.Function {
		return tc.undeclared(node, "'%s' is a %s, not a function", node.Name, e.Kind)
	}
	fn, ok := ast.As[*ast.FunctionNode](e.Value())
	if !ok {
		return ast.TypeUndefined
	}
	d.Ref = e.Handle()
	if len(d.Args) != len(fn.Params) {
		tc.s.Errorf(node.Tok, "function '%s' takes %d arguments, %d given", node.Name, len(fn.Params), len(d.Args))
		return fn.Result
	}
	for i, a := range d.Args {
		want, got := fn.Params[i].Kind(), a.Kind()
		switch {
		case got.Kind == ast.Undefined, got.Same(want):
		case want.IsQuantum():
			if !got.IsQuantum() {
				tc.s.Errorf(a.Tok, "argument %d of '%s' must be a qubit, found %s", i+1, node.Name, got)
			}
		default:
			tc.s.ConvertValue(a, ast.Type{Kind: want.Kind, Bits: want.Bits})
		}
	}
	tc.s.Mangle(node)
	return fn.Result
}

func (tc *TypeChecker) angleArg(a *ast.Node) {
	if a.Kind().Kind == ast.Undefined {
		return
	}
	target := ast.Type{Kind: ast.Angle, Bits: tc.s.Config.AngleBits}
	var desc convert.Descriptor
	if id, ok := ast.As[*ast.IdentifierNode](a); ok && id.Index == nil {
		e, found := tc.s.Symbols.Get(id.Ref)
		if !found || e.Value() == nil {
			return
		}
		desc = tc.s.Convert(e, target)
	} else {
		desc = tc.s.ConvertValue(a, target)
	}
	if desc.Valid && desc.Node != nil {
		a.Mangled = desc.Node.Mangled
	}
}

// operandKey names a qubit operand for duplicate detection.
func (tc *TypeChecker) operandKey(q *ast.Node) string {
	id, ok := ast.As[*ast.IdentifierNode](q)
	if !ok || id.Index == nil {
		return q.Name
	}
	if i, ok := tc.constValue(id.Index); ok {
		return fmt.Sprintf("%s[%d]", q.Name, i)
	}
	return ""
}

func (tc *TypeChecker) checkModifiers(mods []ast.Modifier) int {
	controls := 0
	for _, m := range mods {
		switch m.Kind {
		case token.Ctrl, token.NegCtrl:
			n := int64(1)
			if m.Arg != nil {
				tc.requireInteger(m.Arg, fmt.Sprintf("'%s' argument", m.Kind))
				v, ok := tc.constValue(m.Arg)
				if !ok || v < 1 {
					tc.s.Errorf(m.Arg.Tok, "'%s' argument must be a positive constant integer", m.Kind)
					v = 1
				}
				n = v
			}
			controls += int(n)
		case token.Pow:
			if m.Arg != nil {
				t := tc.checkExpr(m.Arg)
				if t.Kind != ast.Undefined && !t.IsNumeric() {
					tc.s.Errorf(m.Arg.Tok, "'pow' exponent must be numeric, found %s", t)
				}
			}
		}
	}
	return controls
}

func (tc *TypeChecker) checkGateCall(node *ast.Node) {
	d := node.Data.(*ast.CallNode)
	controls := tc.checkModifiers(d.Modifiers)
	for _, a := range d.Args {
		tc.checkExpr(a)
	}
	seen := make(map[string]bool)
	for _, q := range d.Qubits {
		if tc.checkQubitOperand(q).Kind == ast.Undefined {
			continue
		}
		if k := tc.operandKey(q); k != "" {
			if seen[k] {
				tc.s.Errorf(q.Tok, "duplicate qubit operand '%s'", k)
			}
			seen[k] = true
		}
	}

	e, ok := tc.s.Resolve(node.Name)
	switch {
	case ok && e.Kind == ast.Gate:
		g, ok := ast.As[*ast.GateNode](e.Value())
		if !ok {
			return
		}
		if len(d.Args) != len(g.Params) {
			tc.s.Errorf(node.Tok, "gate '%s' takes %d parameters, %d given", node.Name, len(g.Params), len(d.Args))
		}
		if want := len(g.Qubits) + controls; len(d.Qubits) != want && !(len(g.Qubits) == 0 && len(d.Qubits) == 0) {
			tc.s.Errorf(node.Tok, "gate '%s' acts on %d qubits, %d given", node.Name, want, len(d.Qubits))
		}
		d.Ref = e.Handle()
	case len(tc.defcals[node.Name]) > 0:
		dc, ok := tc.resolveDefcal(node, d)
		if !ok {
			return
		}
		node.Type = ast.DefcalCall
		for i, a := range d.Args {
			want := dc.Params[i].Kind()
			switch got := a.Kind(); {
			case want.Kind == ast.Angle:
				tc.angleArg(a)
			case got.Kind != ast.Undefined && !got.Same(want):
				tc.s.ConvertValue(a, ast.Type{Kind: want.Kind, Bits: want.Bits})
			}
		}
		tc.s.Mangle(node)
		return
	default:
		tc.s.Errorf(node.Tok, "undefined gate '%s'", node.Name)
		return
	}

	for _, a := range d.Args {
		tc.angleArg(a)
	}
	tc.s.Mangle(node)
}

// resolveDefcal binds a call with no gate definition to a defcal of the
// same name. A defcal on physical qubits only matches those exact qubits and
// is preferred over one taking qubit parameters.
func (tc *TypeChecker) resolveDefcal(node *ast.Node, d *ast.CallNode) (*ast.DefcalNode, bool) {
	var (
		best      *ast.DefcalNode
		bestH     ast.Handle
		bestBound = -1
	)
	for _, h := range tc.defcals[node.Name] {
		e, ok := tc.s.Symbols.Get(h)
		if !ok {
			continue
		}
		dc, ok := ast.As[*ast.DefcalNode](e.Value())
		if !ok || len(dc.Qubits) != len(d.Qubits) || len(dc.Params) != len(d.Args) {
			continue
		}
		bound, match := 0, true
		for i, q := range dc.Qubits {
			if qn, ok := ast.As[*ast.QubitNode](q); ok && qn.Bound {
				if d.Qubits[i].Name != q.Name {
					match = false
					break
				}
				bound++
			}
		}
		if match && bound > bestBound {
			best, bestH, bestBound = dc, h, bound
		}
	}
	if best == nil {
		tc.s.Errorf(node.Tok, "no defcal '%s' matches %d parameters on qubits %s", node.Name, len(d.Args), qubitList(d.Qubits))
		return nil, false
	}
	d.Ref = bestH
	return best, true
}

func qubitList(qs []*ast.Node) string {
	names := make([]string, len(qs))
	for i, q := range qs {
		names[i] = q.Name
	}
	return strings.Join(names, ", ")
}
