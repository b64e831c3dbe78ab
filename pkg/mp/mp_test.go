package mp

import (
	"math"
	"testing"

	"github.com/nalgeon/be"
)

func TestIntegerArithmetic(t *testing.T) {
	a := NewInteger(12, 32)
	b := NewInteger(-5, 64)

	be.Equal(t, a.Add(b).String(), "7")
	be.Equal(t, a.Sub(b).String(), "17")
	be.Equal(t, a.Mul(b).String(), "-60")
	be.Equal(t, a.Mul(b).Bits(), 64)

	q, err := a.Div(b)
	be.Equal(t, err, nil)
	be.Equal(t, q.String(), "-2")

	r, err := a.Mod(b)
	be.Equal(t, err, nil)
	be.Equal(t, r.String(), "2")

	_, err = a.Div(NewInteger(0, 32))
	be.True(t, err != nil)

	be.Equal(t, NewInteger(3, 32).Pow(4).String(), "81")
	s, err := NewInteger(99, 32).Sqrt()
	be.Equal(t, err, nil)
	be.Equal(t, s.String(), "9")
	_, err = b.Sqrt()
	be.True(t, err != nil)
}

func TestIntegerWideMultiply(t *testing.T) {
	x, err := ParseInteger("340282366920938463463374607431768211456", 256, true) // 2^128
	be.Equal(t, err, nil)
	be.Equal(t, x.BitLen(), 129)
	sq := x.Mul(x)
	be.Equal(t, sq.BitLen(), 257)
	be.Equal(t, sq.Fits(), false)
	be.Equal(t, x.Fits(), true)
}

func TestIntegerFits(t *testing.T) {
	tests := []struct {
		name string
		in   *Integer
		fits bool
	}{
		{"int8 max", NewInteger(127, 8), true},
		{"int8 overflow", NewInteger(128, 8), false},
		{"int8 min", NewInteger(-128, 8), true},
		{"int8 underflow", NewInteger(-129, 8), false},
		{"uint8 max", NewUInteger(255, 8), true},
		{"uint8 overflow", NewUInteger(256, 8), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be.Equal(t, tt.in.Fits(), tt.fits)
		})
	}
}

func TestParseInteger(t *testing.T) {
	v, err := ParseInteger("0b1011", 8, false)
	be.Equal(t, err, nil)
	be.Equal(t, v.Int64(), int64(11))
	be.True(t, v.Bit(0))
	be.Equal(t, v.Bit(2), false)

	_, err = ParseInteger("-3", 8, false)
	be.True(t, err != nil)
	_, err = ParseInteger("zz", 8, true)
	be.True(t, err != nil)
}

func TestDecimal(t *testing.T) {
	a := NewDecimal(1.5, 64)
	b := NewDecimal(0.25, 128)

	be.Equal(t, a.Add(b).Float64(), 1.75)
	be.Equal(t, a.Sub(b).Float64(), 1.25)
	be.Equal(t, a.Mul(b).Float64(), 0.375)
	be.Equal(t, a.Add(b).Bits(), 128)

	q, err := a.Div(b)
	be.Equal(t, err, nil)
	be.Equal(t, q.Float64(), 6.0)

	m, err := NewDecimal(7.5, 64).Mod(NewDecimal(2, 64))
	be.Equal(t, err, nil)
	be.Equal(t, m.Float64(), 1.5)

	be.Equal(t, NewDecimal(2, 64).Pow(-2).Float64(), 0.25)
	s, err := NewDecimal(2, 64).Sqrt()
	be.Equal(t, err, nil)
	be.True(t, math.Abs(s.Float64()-math.Sqrt2) < 1e-15)

	p, err := ParseDecimal("3.25", 64)
	be.Equal(t, err, nil)
	be.Equal(t, p.String(), "3.25")
	be.Equal(t, DecimalFromInteger(NewInteger(-4, 32), 64).Float64(), -4.0)
}

func TestComplex(t *testing.T) {
	a := NewComplex(1, 2, 64)
	b := NewComplex(3, -1, 64)
	p := a.Mul(b)
	be.Equal(t, p.Real.Float64(), 5.0)
	be.Equal(t, p.Imag.Float64(), 5.0)
	be.Equal(t, NewComplex(3, 4, 64).Abs(), 5.0)
	be.Equal(t, b.String(), "3 - 1im")
}
