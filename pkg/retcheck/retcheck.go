// Package retcheck verifies that every reachable return statement of a
// function or defcal yields a value convertible to the declared result.
package retcheck

import (
	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/config"
	"github.com/xplshn/gqasm/pkg/convert"
	"github.com/xplshn/gqasm/pkg/diag"
)

// Result is the outcome of a check. Witness is the statement that made the
// check fail: the offending return, or the switch or label at fault.
type Result struct {
	OK         bool
	Witness    *ast.Node
	Descriptor convert.Descriptor
}

type Checker struct {
	Resolver *convert.Resolver
	Sink     diag.Sink
	Config   *config.Config
}

func New(r *convert.Resolver, sink diag.Sink, cfg *config.Config) *Checker {
	return &Checker{Resolver: r, Sink: sink, Config: cfg}
}

type walk struct {
	c        *Checker
	declared ast.Type
	res      Result
}

// Check walks the body of a Function or Defcal node.
func (c *Checker) Check(fn *ast.Node) Result {
	switch fn.Type {
	case ast.Function:
		d, err := ast.Downcast[*ast.FunctionNode](fn)
		if err != nil {
			c.Sink.Emit(diag.FromError(fn.Tok, err))
			return Result{Witness: fn}
		}
		if d.Extern || d.Body == nil {
			return Result{OK: true}
		}
		return c.CheckBody(d.Result, d.Body)
	case ast.Defcal:
		d, err := ast.Downcast[*ast.DefcalNode](fn)
		if err != nil {
			c.Sink.Emit(diag.FromError(fn.Tok, err))
			return Result{Witness: fn}
		}
		declared := ast.TypeVoid
		if d.Result != nil {
			declared = *d.Result
		}
		return c.CheckBody(declared, d.Body)
	}
	c.Sink.Emit(diag.FromError(fn.Tok, diag.Internalf("return check of a %s", fn.Type)))
	return Result{Witness: fn}
}

// CheckBody walks body against the declared result type and stops at the
// first violation.
func (c *Checker) CheckBody(declared ast.Type, body *ast.Node) Result {
	w := &walk{c: c, declared: declared, res: Result{OK: true}}
	w.stmt(body)
	return w.res
}

func (w *walk) fail(n *ast.Node, format string, args ...any) bool {
	w.c.Sink.Emit(diag.Errorf(n.Tok, format, args...))
	w.res.OK = false
	w.res.Witness = n
	return false
}

// Yield is the type a return statement produces.
func Yield(ret *ast.Node) ast.Type {
	d, ok := ast.As[*ast.ReturnNode](ret)
	if !ok || d.Expr == nil {
		return ast.TypeVoid
	}
	return yield(d.Expr)
}

func yield(e *ast.Node) ast.Type {
	switch e.Type {
	case ast.Cast:
		if d, ok := ast.As[*ast.CastNode](e); ok {
			return d.Target
		}
	case ast.Measure:
		if e.Typ != nil {
			return *e.Typ
		}
		if d, ok := ast.As[*ast.MeasureNode](e); ok && d.Target != nil {
			t := d.Target.Kind()
			if t.IsQuantum() {
				return ast.Type{Kind: ast.Bitset, Bits: max(t.Bits, 1)}
			}
		}
		return ast.TypeBit
	}
	return e.Kind()
}

// stmt reports whether the walk may continue.
func (w *walk) stmt(n *ast.Node) bool {
	if n == nil {
		return true
	}
	switch n.Type {
	case ast.Block, ast.Calibration:
		d, _ := ast.As[*ast.BlockNode](n)
		for _, s := range d.Stmts {
			if !w.stmt(s) {
				return false
			}
		}
		return true
	case ast.Return:
		return w.ret(n)
	case ast.If:
		d, _ := ast.As[*ast.IfNode](n)
		if !w.stmt(d.Then) {
			return false
		}
		for _, ei := range d.ElseIfs {
			if !w.stmt(ei) {
				return false
			}
		}
		return w.stmt(d.Else)
	case ast.ElseIf, ast.Else, ast.While, ast.DoWhile:
		d, _ := ast.As[*ast.CondBlockNode](n)
		return w.stmt(d.Body)
	case ast.For:
		d, _ := ast.As[*ast.ForNode](n)
		return w.stmt(d.Body)
	case ast.Switch:
		return w.switchStmt(n)
	case ast.Case, ast.Default:
		// Labels owned by a switch are walked by switchStmt.
		return w.fail(n, "'%s' label outside of a switch statement", labelName(n.Type))
	}
	return true
}

func labelName(t ast.NodeType) string {
	if t == ast.Default {
		return "default"
	}
	return "case"
}

func (w *walk) switchStmt(n *ast.Node) bool {
	d, _ := ast.As[*ast.SwitchNode](n)
	if len(d.Cases) == 0 {
		return w.fail(n, "switch statement has no case labels")
	}
	if d.Default == nil && w.c.warningEnabled(config.WarnSwitchDefault) {
		w.c.Sink.Emit(diag.Warnf(n.Tok, w.c.warningName(config.WarnSwitchDefault), "switch statement has no default label"))
	}
	for _, cs := range d.Cases {
		if !w.label(cs) {
			return false
		}
	}
	return w.label(d.Default)
}

func (w *walk) label(n *ast.Node) bool {
	if n == nil {
		return true
	}
	d, _ := ast.As[*ast.CaseNode](n)
	return w.stmt(d.Body)
}

func (w *walk) ret(n *ast.Node) bool {
	got := Yield(n)
	if got.Kind == w.declared.Kind {
		return true
	}
	origin := n
	if d, ok := ast.As[*ast.ReturnNode](n); ok && d.Expr != nil {
		// Unresolved operands have already been reported.
		if got.Kind == ast.Undefined && d.Expr.HasError() {
			return true
		}
		origin = d.Expr
	}
	desc := w.c.Resolver.Check(got, w.declared, origin)
	if desc.Valid {
		return true
	}
	w.res.Descriptor = desc
	return w.fail(n, "cannot return %s from a function returning %s", got, w.declared)
}

func (c *Checker) warningEnabled(wt config.Warning) bool {
	return c.Config == nil || c.Config.IsWarningEnabled(wt)
}

func (c *Checker) warningName(wt config.Warning) string {
	if c.Config == nil {
		return ""
	}
	return c.Config.WarningName(wt)
}
