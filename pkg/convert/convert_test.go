package convert

import (
	"math"
	"math/big"
	"testing"

	"github.com/nalgeon/be"

	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/config"
	"github.com/xplshn/gqasm/pkg/diag"
	"github.com/xplshn/gqasm/pkg/mangle"
	"github.com/xplshn/gqasm/pkg/mp"
	"github.com/xplshn/gqasm/pkg/symtab"
	"github.com/xplshn/gqasm/pkg/token"
)

var tok = token.Token{Type: token.Ident, Value: "v", Line: 3, Column: 5, Len: 1}

func value(k ast.NodeType) *ast.Node {
	switch k {
	case ast.Undefined:
		return ast.NewUndefined(tok)
	case ast.Void:
		n := ast.NewUndefined(tok)
		n.Typ = &ast.TypeVoid
		return n
	case ast.Bool:
		return ast.NewBool(tok, true)
	case ast.Int:
		return ast.NewInt(tok, 3, 32)
	case ast.UInt:
		return ast.NewUInt(tok, 3, 32)
	case ast.Float:
		return ast.NewFloat(tok, 0.5, 32)
	case ast.Double:
		return ast.NewFloat(tok, 0.5, 64)
	case ast.MPInteger:
		return ast.NewMPInteger(tok, mp.NewInteger(3, 128))
	case ast.MPUInteger:
		return ast.NewMPInteger(tok, mp.NewUInteger(3, 128))
	case ast.MPDecimal:
		return ast.NewMPDecimal(tok, mp.NewDecimal(0.5, 128))
	case ast.MPComplex:
		return ast.NewMPComplex(tok, mp.NewComplex(1, 1, 64))
	case ast.Angle:
		return ast.NewAngle(tok, mp.NewDecimal(1, 64), 64)
	case ast.Bitset:
		return ast.NewBitset(tok, big.NewInt(0b1011), 4)
	case ast.Qubit:
		return ast.NewQubit(tok, 0, false)
	case ast.QubitContainer:
		return ast.NewQubitContainer(tok, 2)
	case ast.QubitContainerAlias:
		return ast.NewQubitAlias(tok, 2, ast.Handle{})
	case ast.GateQubitParam:
		return ast.NewGateQubitParam(tok, 0)
	}
	panic("no sample for " + k.String())
}

func valueKinds() []ast.NodeType {
	var out []ast.NodeType
	for k := ast.Undefined; ast.IsValueKind(k); k++ {
		out = append(out, k)
	}
	return out
}

func newResolver() (*Resolver, *diag.Bag) {
	bag := diag.NewBag()
	return New(config.NewConfig(), bag), bag
}

func TestAngleSourcesAreExact(t *testing.T) {
	want := map[ast.NodeType]bool{
		ast.Float: true, ast.Double: true, ast.Int: true, ast.UInt: true,
		ast.MPInteger: true, ast.MPUInteger: true, ast.MPDecimal: true, ast.Bitset: true,
		ast.Angle: true,
	}
	angle := ast.Type{Kind: ast.Angle, Bits: 64}
	for _, k := range valueKinds() {
		r, bag := newResolver()
		src := value(k)
		d := r.ConvertValue(src, angle)
		be.Equal(t, d.Valid, want[k])
		be.Equal(t, bag.Count(diag.Error) == 0, want[k])
		be.Equal(t, d.IsValidConversion(), Valid(src.Kind(), angle))
		if !want[k] {
			be.True(t, d.Node != nil)
			be.Equal(t, d.Node.Kind().Kind, ast.Angle)
			be.True(t, src.HasError())
			be.True(t, src.Conversion != nil)
			be.Equal(t, src.Conversion.Data.(*ast.ImplicitConversionNode).Valid, false)
		}
	}
}

func TestAngleNeverComesFromBoolOrQuantum(t *testing.T) {
	angle := ast.Type{Kind: ast.Angle, Bits: 32}
	for _, k := range []ast.NodeType{ast.Bool, ast.MPComplex, ast.Qubit, ast.QubitContainer, ast.GateQubitParam, ast.Undefined} {
		be.Equal(t, Valid(ast.Type{Kind: k, Bits: 1}, angle), false)
	}
}

func TestBitsetToAngle(t *testing.T) {
	tests := []struct {
		name  string
		bits  int64
		size  int
		width int
		want  float64
		trunc bool
	}{
		// SZ = min(4, 64) % 4 = 0, so nothing contributes.
		{"four bits", 0b1111, 4, 64, 0, false},
		// SZ = 3, bits 0 and 1 set.
		{"three bits", 0b011, 3, 64, math.Pi, false},
		{"single high bit", 0b100, 3, 64, math.Pi / 2, false},
		{"empty", 0, 2, 64, 0, false},
		// min(10, 6) % 4 = 2, bit 0 set.
		{"wider than angle", 0b1111111101, 10, 6, math.Pi / 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, bag := newResolver()
			src := ast.NewBitset(tok, big.NewInt(tt.bits), tt.size)
			d := r.ConvertValue(src, ast.Type{Kind: ast.Angle, Bits: tt.width})
			be.True(t, d.Valid)
			be.Equal(t, d.Truncated, tt.trunc)

			a, err := ast.Downcast[*ast.AngleNode](d.Node)
			be.Err(t, err, nil)
			be.True(t, math.Abs(a.Value.Float64()-tt.want) < 1e-12)

			w, found := bag.First(diag.Warning)
			be.Equal(t, found, tt.trunc)
			if tt.trunc {
				be.Equal(t, w.Flag, "truncation")
			}
		})
	}
}

func TestIntegerToAngle(t *testing.T) {
	r, bag := newResolver()
	src := ast.NewInt(tok, 3, 32).Named("k")
	d := r.ConvertValue(src, ast.Type{Kind: ast.Angle, Bits: 64})
	be.True(t, d.Valid)
	be.Equal(t, bag.Count(diag.Warning), 0)

	a, ok := ast.As[*ast.AngleNode](d.Node)
	be.True(t, ok)
	be.Equal(t, a.Value.Float64(), 3.0)
	be.Equal(t, d.Node.Name, "k")
	be.Equal(t, d.Node.Mangled, "_QX64_1kE_")
	be.True(t, mangle.IsMangled(d.Node.Mangled))
}

func TestAngleOverflowWarns(t *testing.T) {
	r, bag := newResolver()
	d := r.ConvertValue(ast.NewFloat(tok, 7, 64), ast.Type{Kind: ast.Angle, Bits: 64})
	be.True(t, d.Valid)
	w, ok := bag.First(diag.Warning)
	be.True(t, ok)
	be.Equal(t, w.Flag, "angle-overflow")
}

func TestWideDecimalToAngleTruncates(t *testing.T) {
	r, bag := newResolver()
	d := r.ConvertValue(ast.NewMPDecimal(tok, mp.NewDecimal(0.25, 256)), ast.Type{Kind: ast.Angle, Bits: 64})
	be.True(t, d.Valid)
	be.True(t, d.Truncated)
	be.Equal(t, bag.Count(diag.Warning), 1)
}

func TestImplicitAngleCanBeDisabled(t *testing.T) {
	r, bag := newResolver()
	r.Config.SetFeature(config.FeatImplicitAngle, false)
	d := r.ConvertValue(ast.NewInt(tok, 1, 32), ast.Type{Kind: ast.Angle, Bits: 64})
	be.Equal(t, d.Valid, false)
	be.Equal(t, bag.Count(diag.Error), 1)
}

func TestAngleWidthDefaultsToTarget(t *testing.T) {
	r, _ := newResolver()
	r.Config.AngleBits = 32
	d := r.ConvertValue(ast.NewInt(tok, 1, 32), ast.Type{Kind: ast.Angle})
	be.Equal(t, d.Node.Kind().Bits, 32)
}

func TestIntToBitsetIsInvalid(t *testing.T) {
	r, bag := newResolver()
	src := ast.NewInt(tok, 5, 32)
	d := r.ConvertValue(src, ast.Type{Kind: ast.Bitset, Bits: 4})
	be.Equal(t, d.Valid, false)
	be.Equal(t, bag.Count(diag.Error), 1)
	e, _ := bag.First(diag.Error)
	be.Equal(t, e.Message, "impossible implicit conversion to bit[4] from int[32]")
	be.Equal(t, e.Tok, tok)
	be.Equal(t, d.Node.Kind().Kind, ast.Bitset)
	be.Equal(t, src.Conversion, d.Conversion)
	be.Equal(t, d.Conversion.Parent, src)
}

func TestNarrowingWarns(t *testing.T) {
	r, bag := newResolver()
	d := r.ConvertValue(ast.NewInt(tok, 300, 32), ast.Type{Kind: ast.Int, Bits: 8})
	be.True(t, d.Valid)
	be.True(t, d.Truncated)
	w, ok := bag.First(diag.Warning)
	be.True(t, ok)
	be.Equal(t, w.Flag, "truncation")

	v, ok := ast.As[*ast.IntNode](d.Node)
	be.True(t, ok)
	be.Equal(t, v.Value, int64(44))
}

func TestDisabledWarningIsSilent(t *testing.T) {
	r, bag := newResolver()
	r.Config.SetWarning(config.WarnTruncation, false)
	d := r.ConvertValue(ast.NewInt(tok, 300, 32), ast.Type{Kind: ast.Int, Bits: 8})
	be.True(t, d.Truncated)
	be.Equal(t, bag.Count(diag.Warning), 0)
}

func TestCheckAttachesConversion(t *testing.T) {
	r, bag := newResolver()
	src := ast.NewBool(tok, true)
	d := r.Check(ast.TypeBool, ast.Type{Kind: ast.Double, Bits: 64}, src)
	be.True(t, d.Valid)
	be.Equal(t, d.Node, src)
	be.Equal(t, src.Conversion.Type, ast.ImplicitConversion)
	be.Equal(t, src.Conversion.Mangled, "_QIXCb_1_d_64_EE_")
	be.Equal(t, bag.Count(diag.Warning)+bag.Count(diag.Error), 0)
}

func TestCalibrationMangling(t *testing.T) {
	r, _ := newResolver()
	r.Calibration = func() bool { return true }
	d := r.ConvertValue(ast.NewInt(tok, 1, 32).Named("x"), ast.Type{Kind: ast.Angle, Bits: 16})
	be.Equal(t, d.Node.Mangled, "_Q:C:X16_1xE_")
}

func TestConvertEntry(t *testing.T) {
	r, _ := newResolver()
	e := symtab.NewEntry(ast.NewFloat(tok, 0.25, 64).Named("f"), nil)
	d := r.Convert(e, ast.Type{Kind: ast.Angle, Bits: 64})
	be.True(t, d.Valid)
	be.Equal(t, d.Node.Name, "f")
}

func TestTruncate(t *testing.T) {
	be.Equal(t, Truncate(int64(300), 8), int64(44))
	be.Equal(t, Truncate(int64(200), 8), int64(-56))
	be.Equal(t, Truncate(uint64(0x1ff), 8), uint64(0xff))
	be.Equal(t, Truncate(int32(-1), 4), int32(-1))
	be.Equal(t, Truncate(int64(5), 64), int64(5))
	be.Equal(t, Truncate(int64(5), 0), int64(5))
}

func TestBitsetAngleUsesLowBitsFirst(t *testing.T) {
	b := &ast.BitsetNode{Value: big.NewInt(0b001), Size: 3}
	be.True(t, math.Abs(BitsetAngle(b, 64)-math.Pi/2) < 1e-12)
	b.Value = big.NewInt(0b110)
	be.True(t, math.Abs(BitsetAngle(b, 64)-math.Pi) < 1e-12)
}
