// Package convert decides whether a value of one kind may be used where
// another kind is expected, and produces the converted value when it can.
package convert

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"

	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/config"
	"github.com/xplshn/gqasm/pkg/diag"
	"github.com/xplshn/gqasm/pkg/mangle"
	"github.com/xplshn/gqasm/pkg/mp"
	"github.com/xplshn/gqasm/pkg/symtab"
	"github.com/xplshn/gqasm/pkg/token"
)

// FullTurn is one complete rotation, the largest angle that needs no warning.
const FullTurn = 2 * math.Pi

// Descriptor records the outcome of one conversion request.
type Descriptor struct {
	From, To  ast.Type
	Valid     bool
	Truncated bool
	// Node is the converted value. For a rejected conversion it is a
	// placeholder of the target kind carrying the error.
	Node *ast.Node
	// Conversion is the ImplicitConversion node attached to the origin.
	Conversion *ast.Node
}

func (d Descriptor) IsValidConversion() bool { return d.Valid }

var angleSources = map[ast.NodeType]bool{
	ast.Float:      true,
	ast.Double:     true,
	ast.Int:        true,
	ast.UInt:       true,
	ast.MPInteger:  true,
	ast.MPUInteger: true,
	ast.MPDecimal:  true,
	ast.Bitset:     true,
}

var (
	integral = []ast.NodeType{ast.Bool, ast.Int, ast.UInt, ast.MPInteger, ast.MPUInteger, ast.Bitset, ast.Float, ast.Double, ast.MPDecimal}
	floating = append(append([]ast.NodeType(nil), integral...), ast.Angle)
)

// accepts lists, per target kind, the source kinds that convert into it
// besides the target kind itself.
var accepts = map[ast.NodeType][]ast.NodeType{
	ast.Bitset:     {ast.Bool, ast.Angle},
	ast.Bool:       integral,
	ast.Int:        integral,
	ast.UInt:       integral,
	ast.MPInteger:  integral,
	ast.MPUInteger: integral,
	ast.Float:      floating,
	ast.Double:     floating,
	ast.MPDecimal:  floating,
	ast.MPComplex:  {ast.Float, ast.Double, ast.MPDecimal},
}

// Valid reports whether a from value converts implicitly into to.
func Valid(from, to ast.Type) bool {
	if from.Kind == ast.Undefined || to.Kind == ast.Undefined {
		return false
	}
	if from.Kind == to.Kind {
		return true
	}
	if to.Kind == ast.Angle {
		return angleSources[from.Kind]
	}
	for _, k := range accepts[to.Kind] {
		if k == from.Kind {
			return true
		}
	}
	return false
}

// narrows reports whether converting from into to loses width.
func narrows(from, to ast.Type) bool {
	if to.Bits == 0 || from.Bits <= to.Bits {
		return false
	}
	return (from.IsNumeric() || from.Kind == ast.Bitset) && (to.IsNumeric() || to.Kind == ast.Bitset)
}

// Truncate reinterprets v as a bits wide integer of the same signedness.
func Truncate[T constraints.Integer](v T, bits int) T {
	if bits <= 0 || bits >= 64 {
		return v
	}
	var zero T
	signed := ^zero < zero
	mask := uint64(1)<<uint(bits) - 1
	u := uint64(v) & mask
	if signed && u&(uint64(1)<<uint(bits-1)) != 0 {
		u |= ^mask
	}
	return T(u)
}

// Resolver performs conversions for one compilation and reports what it
// finds to Sink.
type Resolver struct {
	Config *config.Config
	Sink   diag.Sink
	// Calibration reports whether a defcal or cal body is open, which
	// changes how produced values are mangled.
	Calibration func() bool
}

func New(cfg *config.Config, sink diag.Sink) *Resolver {
	return &Resolver{Config: cfg, Sink: sink}
}

func (r *Resolver) calibration() bool { return r.Calibration != nil && r.Calibration() }

func (r *Resolver) warn(n *ast.Node, wt config.Warning, format string, args ...any) {
	if r.Config != nil && !r.Config.IsWarningEnabled(wt) {
		return
	}
	name := ""
	if r.Config != nil {
		name = r.Config.WarningName(wt)
	}
	r.Sink.Emit(diag.Warnf(n.Tok, name, format, args...))
}

func (r *Resolver) errorf(n *ast.Node, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	n.SetError(msg)
	r.Sink.Emit(diag.Errorf(n.Tok, "%s", msg))
}

func (r *Resolver) internal(n *ast.Node, err error) {
	r.Sink.Emit(diag.FromError(n.Tok, err))
}

func (r *Resolver) angleBits(t ast.Type) int {
	if t.Bits > 0 {
		return t.Bits
	}
	if r.Config != nil && r.Config.AngleBits > 0 {
		return r.Config.AngleBits
	}
	return 64
}

// Check decides whether origin, of kind from, may be used as a to value.
// The conversion node is attached to origin whether or not it is valid.
// Check reports nothing; callers decide how a rejection is diagnosed.
func (r *Resolver) Check(from, to ast.Type, origin *ast.Node) Descriptor {
	d := Descriptor{From: from, To: to, Valid: Valid(from, to), Truncated: narrows(from, to)}
	d.Conversion = ast.NewImplicitConversion(origin.Tok, from, to, d.Valid)
	d.Conversion.Data.(*ast.ImplicitConversionNode).Truncated = d.Truncated
	if s, err := mangle.Expression(d.Conversion, r.calibration()); err == nil {
		d.Conversion.Mangled = s
	}
	origin.Attach(d.Conversion)
	if d.Valid {
		d.Node = origin
	} else {
		d.Node = placeholder(origin, to)
	}
	return d
}

func placeholder(origin *ast.Node, to ast.Type) *ast.Node {
	p := ast.NewUndefined(origin.Tok)
	p.Typ = &to
	p.Ctx = origin.Ctx
	p.Name = origin.Name
	return p
}

// Convert converts the value bound to entry into target.
func (r *Resolver) Convert(entry *symtab.Entry, target ast.Type) Descriptor {
	src := entry.Value()
	if src == nil {
		src = ast.NewUndefined(token.Token{}).Named(entry.Name)
		src.Typ = &ast.Type{Kind: entry.Kind, Bits: entry.Bits}
		src.Ctx = entry.Ctx
	}
	return r.ConvertValue(src, target)
}

// ConvertValue converts the value node src into target.
func (r *Resolver) ConvertValue(src *ast.Node, target ast.Type) Descriptor {
	if target.Kind == ast.Angle {
		return r.toAngle(src, target)
	}
	from := src.Kind()
	d := r.Check(from, target, src)
	if !d.Valid {
		r.errorf(src, "impossible implicit conversion to %s from %s", target, from)
		return d
	}
	if d.Truncated {
		r.warn(src, config.WarnTruncation, "implicit conversion from %s to %s truncates the value", from, target)
	}
	if v, ok := reinterpret(src, target); ok {
		d.Node = v
	}
	return d
}

// reinterpret rebuilds a constant value at the target kind and width.
func reinterpret(src *ast.Node, to ast.Type) (*ast.Node, bool) {
	var out *ast.Node
	switch to.Kind {
	case ast.Int, ast.UInt:
		i, ok := constInt(src)
		if !ok {
			return nil, false
		}
		if to.Kind == ast.UInt {
			out = ast.NewUInt(src.Tok, int64(Truncate(uint64(i), to.Bits)), to.Bits)
		} else {
			out = ast.NewInt(src.Tok, Truncate(i, to.Bits), to.Bits)
		}
	case ast.Bool:
		i, ok := constInt(src)
		if !ok {
			return nil, false
		}
		out = ast.NewBool(src.Tok, i != 0)
	case ast.Float, ast.Double:
		f, ok := constFloat(src)
		if !ok {
			return nil, false
		}
		out = ast.NewFloat(src.Tok, f, to.Bits)
	case ast.MPDecimal:
		v, ok := constDecimal(src, to.Bits)
		if !ok {
			return nil, false
		}
		out = ast.NewMPDecimal(src.Tok, v)
	default:
		return nil, false
	}
	out.Name = src.Name
	out.Ctx = src.Ctx
	return out, true
}

func constInt(n *ast.Node) (int64, bool) {
	if v, ok := ast.As[*ast.IntNode](n); ok {
		return v.Value, true
	}
	if v, ok := ast.As[*ast.BoolNode](n); ok {
		if v.Value {
			return 1, true
		}
		return 0, true
	}
	if v, ok := ast.As[*ast.MPIntegerNode](n); ok && v.Value.IsInt64() {
		return v.Value.Int64(), true
	}
	if v, ok := ast.As[*ast.BitsetNode](n); ok && v.Value.IsInt64() {
		return v.Value.Int64(), true
	}
	if f, ok := constFloat(n); ok {
		return int64(f), true
	}
	return 0, false
}

func constFloat(n *ast.Node) (float64, bool) {
	if v, ok := ast.As[*ast.FloatNode](n); ok {
		return v.Value, true
	}
	if v, ok := ast.As[*ast.MPDecimalNode](n); ok {
		return v.Value.Float64(), true
	}
	if v, ok := ast.As[*ast.AngleNode](n); ok {
		return v.Value.Float64(), true
	}
	if v, ok := ast.As[*ast.IntNode](n); ok {
		return float64(v.Value), true
	}
	return 0, false
}

func constDecimal(n *ast.Node, bits int) (*mp.Decimal, bool) {
	if v, ok := ast.As[*ast.MPDecimalNode](n); ok {
		return v.Value.WithBits(bits), true
	}
	if v, ok := ast.As[*ast.AngleNode](n); ok {
		return v.Value.WithBits(bits), true
	}
	if v, ok := ast.As[*ast.MPIntegerNode](n); ok {
		return mp.DecimalFromInteger(v.Value, bits), true
	}
	if v, ok := ast.As[*ast.IntNode](n); ok {
		if n.Type == ast.UInt {
			return mp.DecimalFromInteger(mp.NewUInteger(uint64(v.Value), 64), bits), true
		}
		return mp.DecimalFromInteger(mp.NewInteger(v.Value, 64), bits), true
	}
	if v, ok := ast.As[*ast.FloatNode](n); ok {
		return mp.NewDecimal(v.Value, bits), true
	}
	return nil, false
}
