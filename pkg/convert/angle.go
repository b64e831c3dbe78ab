package convert

import (
	"math"
	"math/big"

	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/config"
	"github.com/xplshn/gqasm/pkg/mangle"
	"github.com/xplshn/gqasm/pkg/mp"
)

// BitsetAngle maps a bitset to an angle: π/2 for each set bit among the
// first min(size, width) % 4 bits, bit 0 being the least significant.
func BitsetAngle(b *ast.BitsetNode, width int) float64 {
	n := min(b.Size, width) % 4
	v := 0.0
	for i := 0; i < n; i++ {
		if b.Value.Bit(i) == 1 {
			v += math.Pi / 2
		}
	}
	return v
}

func (r *Resolver) toAngle(src *ast.Node, target ast.Type) Descriptor {
	from := src.Kind()
	width := r.angleBits(target)
	to := ast.Type{Kind: ast.Angle, Bits: width, Const: target.Const}

	if from.Kind == ast.Angle {
		return Descriptor{From: from, To: to, Valid: true, Node: src}
	}

	d := r.Check(from, to, src)
	if d.Valid && r.Config != nil && !r.Config.IsFeatureEnabled(config.FeatImplicitAngle) {
		d.Valid = false
		d.Conversion.Data.(*ast.ImplicitConversionNode).Valid = false
		r.errorf(src, "implicit conversion to angle from %s is disabled", from)
		d.Node = r.anglePlaceholder(src, width)
		return d
	}
	if !d.Valid {
		r.errorf(src, "impossible implicit conversion to angle from %s", from)
		d.Node = r.anglePlaceholder(src, width)
		return d
	}

	var value *mp.Decimal
	switch from.Kind {
	case ast.Bitset:
		b, err := ast.Downcast[*ast.BitsetNode](src)
		if err != nil {
			// A bitset-typed expression with no constant value.
			b = &ast.BitsetNode{Value: new(big.Int), Size: from.Bits}
		}
		d.Truncated = b.Size > width
		if d.Truncated {
			r.warn(src, config.WarnTruncation, "conversion of %s to angle[%d] truncates the bitset", from, width)
		}
		value = mp.NewDecimal(BitsetAngle(b, width), width)
	default:
		v, ok := constDecimal(src, width)
		if !ok {
			v = mp.NewDecimal(0, width)
		}
		value = v
		mpSource := from.Kind == ast.MPInteger || from.Kind == ast.MPUInteger || from.Kind == ast.MPDecimal
		d.Truncated = mpSource && from.Bits > width
		if d.Truncated {
			r.warn(src, config.WarnTruncation, "conversion of %s to angle[%d] loses precision", from, width)
		}
	}
	if conv, ok := d.Conversion.Data.(*ast.ImplicitConversionNode); ok {
		conv.Truncated = d.Truncated
	}

	if math.Abs(value.Float64()) > FullTurn {
		r.warn(src, config.WarnAngleOverflow, "angle value %s exceeds a full turn", value)
	}
	r.warn(src, config.WarnImplicitAngle, "implicit conversion from %s to angle[%d]", from, width)

	angle := ast.NewAngle(src.Tok, value, width)
	angle.Name = src.Name
	angle.Ctx = src.Ctx
	angle.Typ.Const = target.Const
	r.remangle(angle, src)
	d.Node = angle
	return d
}

func (r *Resolver) anglePlaceholder(src *ast.Node, width int) *ast.Node {
	p := ast.NewAngle(src.Tok, mp.NewDecimal(0, width), width)
	p.Name = src.Name
	p.Ctx = src.Ctx
	p.SetError(src.Err)
	r.remangle(p, src)
	return p
}

// remangle gives a produced angle its own canonical name. Unnamed values
// are named after their source text.
func (r *Resolver) remangle(angle, src *ast.Node) {
	id := angle.Name
	if id == "" {
		id = src.Tok.Value
	}
	if id == "" {
		id = "literal"
	}
	m := mangle.New(r.calibration())
	m.Start()
	if angle.Kind().Const {
		m.Const()
	}
	m.TypeSizeIdentifier(ast.Angle, angle.Kind().Bits, id)
	m.End()
	s, err := m.String()
	if err != nil {
		r.internal(src, err)
		return
	}
	angle.Mangled = s
}
