package mangle

import (
	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/diag"
)

// Declaration mangles a declared value, gate, defcal or function.
func Declaration(n *ast.Node, calibration bool) (string, error) {
	if n == nil {
		return "", diag.Internalf("mangle of a nil declaration")
	}
	m := New(calibration)
	m.Start()
	t := n.Kind()
	switch n.Type {
	case ast.Gate:
		d, err := ast.Downcast[*ast.GateNode](n)
		if err != nil {
			return "", err
		}
		m.TypeIdentifier(ast.Gate, n.Name)
		for i, p := range d.Params {
			m.GateParam(i, p.Kind(), p.Name)
		}
		for i, q := range d.Qubits {
			m.QubitTarget(i, q.Name)
		}
	case ast.Defcal:
		d, err := ast.Downcast[*ast.DefcalNode](n)
		if err != nil {
			return "", err
		}
		m.TypeIdentifier(ast.Defcal, n.Name)
		if d.Grammar != "" {
			m.Grammar(d.Grammar)
		}
		if d.Result != nil {
			m.FuncReturn(*d.Result)
		}
		for i, p := range d.Params {
			m.DefcalParam(i, p.Kind(), p.Name)
		}
		for i, q := range d.Qubits {
			if qn, ok := ast.As[*ast.QubitNode](q); ok && qn.Bound {
				m.DefcalParamMangled(len(d.Params)+i, Token(ast.Qubit)+q.Name)
				continue
			}
			m.QubitTarget(i, q.Name)
		}
	case ast.Function:
		d, err := ast.Downcast[*ast.FunctionNode](n)
		if err != nil {
			return "", err
		}
		m.TypeIdentifier(ast.Function, n.Name)
		if d.Extern {
			m.Extern()
		}
		m.FuncReturn(d.Result)
		for i, p := range d.Params {
			m.FuncParam(i, p.Kind(), p.Name)
		}
	case ast.Qubit, ast.GateQubitParam:
		m.TypeIdentifier(n.Type, n.Name)
	default:
		if !ast.IsValueKind(n.Type) {
			return "", diag.Internalf("cannot mangle a %s as a declaration", n.Type)
		}
		if t.Const {
			m.Const()
		}
		m.TypeSizeIdentifier(n.Type, t.Bits, n.Name)
	}
	m.End()
	return m.String()
}

// argID names a call argument: its declared name, or its literal text.
func argID(a *ast.Node) string {
	if a.Name != "" {
		return a.Name
	}
	if a.Tok.Value != "" {
		return a.Tok.Value
	}
	return a.Type.String()
}

// Call mangles a function, gate or defcal call site.
func Call(n *ast.Node, calibration bool) (string, error) {
	d, err := ast.Downcast[*ast.CallNode](n)
	if err != nil {
		return "", err
	}
	m := New(calibration)
	m.Start()
	m.TypeIdentifier(n.Type, n.Name)
	for i, a := range d.Args {
		switch {
		case n.Type == ast.DefcalCall:
			s, ok := typeSize(a.Kind().Kind, a.Kind().Bits)
			if !ok {
				s = Token(a.Kind().Kind)
			}
			m.DefcalArg(i, s)
		case n.Type == ast.GateCall && a.Mangled != "":
			m.GateArgMangled(i, a.Mangled)
		case n.Type == ast.GateCall:
			m.GateArg(i, a.Kind(), argID(a))
		default:
			m.FuncArg(i, a.Kind(), argID(a))
		}
	}
	for i, q := range d.Qubits {
		m.QubitTarget(i, argID(q))
	}
	m.End()
	return m.String()
}

// Expression mangles casts, implicit conversions, measurements and returns.
func Expression(n *ast.Node, calibration bool) (string, error) {
	if n == nil {
		return "", diag.Internalf("mangle of a nil expression")
	}
	m := New(calibration)
	m.Start()
	switch n.Type {
	case ast.Cast:
		d, err := ast.Downcast[*ast.CastNode](n)
		if err != nil {
			return "", err
		}
		m.Type(ast.Cast)
		from := d.Expr.Kind()
		m.TypeSize(from.Kind, from.Bits)
		m.TypeSize(d.Target.Kind, d.Target.Bits)
	case ast.ImplicitConversion:
		d, err := ast.Downcast[*ast.ImplicitConversionNode](n)
		if err != nil {
			return "", err
		}
		m.Type(ast.ImplicitConversion)
		for _, t := range []ast.Type{d.From, d.To} {
			if s, ok := typeSize(t.Kind, t.Bits); ok {
				m.write(s)
			} else {
				m.Type(t.Kind)
			}
		}
	case ast.Measure:
		d, err := ast.Downcast[*ast.MeasureNode](n)
		if err != nil {
			return "", err
		}
		m.Type(ast.Measure)
		id := argID(d.Target)
		m.write(len(id), id)
		if d.Result.IsValid() && n.Name != "" {
			m.Result(n.Name)
		}
	case ast.Return:
		d, err := ast.Downcast[*ast.ReturnNode](n)
		if err != nil {
			return "", err
		}
		m.Type(ast.Return)
		if d.Expr == nil {
			m.Type(ast.Void)
		} else if s, ok := typeSize(d.Expr.Kind().Kind, d.Expr.Kind().Bits); ok {
			m.write(s)
		} else {
			m.Type(d.Expr.Kind().Kind)
		}
	default:
		return "", diag.Internalf("cannot mangle a %s as an expression", n.Type)
	}
	m.EndExpression()
	m.End()
	return m.String()
}
