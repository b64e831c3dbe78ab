// Package mp provides the arbitrary-precision numeric values behind the
// MPInteger, MPUInteger, MPDecimal and MPComplex kinds.
package mp

import (
	"fmt"
	"math"
	"math/big"

	"github.com/remyoudompheng/bigfft"
)

// Integer is a signed or unsigned integer of a declared bit width.
type Integer struct {
	v      *big.Int
	bits   int
	signed bool
}

func NewInteger(v int64, bits int) *Integer {
	return &Integer{v: big.NewInt(v), bits: bits, signed: true}
}

func NewUInteger(v uint64, bits int) *Integer {
	return &Integer{v: new(big.Int).SetUint64(v), bits: bits}
}

// ParseInteger reads a decimal, 0x, 0o or 0b literal.
func ParseInteger(s string, bits int, signed bool) (*Integer, error) {
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer literal '%s'", s)
	}
	if !signed && v.Sign() < 0 {
		return nil, fmt.Errorf("negative value '%s' for an unsigned integer", s)
	}
	return &Integer{v: v, bits: bits, signed: signed}, nil
}

func (i *Integer) Bits() int { return i.bits }
func (i *Integer) Signed() bool { return i.signed }
func (i *Integer) Sign() int { return i.v.Sign() }
func (i *Integer) BitLen() int { return i.v.BitLen() }
func (i *Integer) String() string { return i.v.String() }
func (i *Integer) Big() *big.Int { return new(big.Int).Set(i.v) }
func (i *Integer) IsInt64() bool { return i.v.IsInt64() }
func (i *Integer) Int64() int64 { return i.v.Int64() }
func (i *Integer) Cmp(o *Integer) int { return i.v.Cmp(o.v) }

// Fits reports whether the value is representable in the declared width.
func (i *Integer) Fits() bool {
	if i.signed {
		return i.v.BitLen() < i.bits || (i.v.Sign() < 0 && new(big.Int).Add(i.v, big.NewInt(1)).BitLen() < i.bits)
	}
	return i.v.Sign() >= 0 && i.v.BitLen() <= i.bits
}

func (i *Integer) derive(v *big.Int, o *Integer) *Integer {
	return &Integer{v: v, bits: max(i.bits, o.bits), signed: i.signed || o.signed}
}

func (i *Integer) Add(o *Integer) *Integer { return i.derive(new(big.Int).Add(i.v, o.v), o) }
func (i *Integer) Sub(o *Integer) *Integer { return i.derive(new(big.Int).Sub(i.v, o.v), o) }

// Mul uses FFT multiplication, which pays off for the very wide operands
// of MP literals.
func (i *Integer) Mul(o *Integer) *Integer { return i.derive(bigfft.Mul(i.v, o.v), o) }

func (i *Integer) Div(o *Integer) (*Integer, error) {
	if o.v.Sign() == 0 {
		return nil, fmt.Errorf("integer division by zero")
	}
	return i.derive(new(big.Int).Quo(i.v, o.v), o), nil
}

func (i *Integer) Mod(o *Integer) (*Integer, error) {
	if o.v.Sign() == 0 {
		return nil, fmt.Errorf("integer modulo by zero")
	}
	return i.derive(new(big.Int).Rem(i.v, o.v), o), nil
}

func (i *Integer) Pow(e uint) *Integer {
	r := big.NewInt(1)
	base := new(big.Int).Set(i.v)
	for ; e > 0; e >>= 1 {
		if e&1 == 1 {
			r = bigfft.Mul(r, base)
		}
		base = bigfft.Mul(base, base)
	}
	return &Integer{v: r, bits: i.bits, signed: i.signed}
}

// Sqrt is the integer square root. Negative operands are rejected.
func (i *Integer) Sqrt() (*Integer, error) {
	if i.v.Sign() < 0 {
		return nil, fmt.Errorf("square root of negative integer %s", i.v)
	}
	return &Integer{v: new(big.Int).Sqrt(i.v), bits: i.bits, signed: i.signed}, nil
}

// Bit reports bit n of the two's complement representation.
func (i *Integer) Bit(n int) bool { return i.v.Bit(n) == 1 }

// Decimal is an arbitrary-precision binary floating-point value whose
// mantissa precision follows its declared width.
type Decimal struct {
	v    *big.Float
	bits int
}

func precision(bits int) uint { return uint(max(bits, 64)) }

func NewDecimal(f float64, bits int) *Decimal {
	return &Decimal{v: new(big.Float).SetPrec(precision(bits)).SetFloat64(f), bits: bits}
}

func ParseDecimal(s string, bits int) (*Decimal, error) {
	v, _, err := big.ParseFloat(s, 10, precision(bits), big.ToNearestEven)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal literal '%s': %w", s, err)
	}
	return &Decimal{v: v, bits: bits}, nil
}

// DecimalFromInteger converts i exactly when the precision allows.
func DecimalFromInteger(i *Integer, bits int) *Decimal {
	return &Decimal{v: new(big.Float).SetPrec(precision(bits)).SetInt(i.v), bits: bits}
}

func (d *Decimal) Bits() int { return d.bits }

// WithBits returns a copy of d at another declared width.
func (d *Decimal) WithBits(bits int) *Decimal {
	return &Decimal{v: new(big.Float).SetPrec(precision(bits)).Set(d.v), bits: bits}
}
func (d *Decimal) Sign() int { return d.v.Sign() }
func (d *Decimal) IsInf() bool { return d.v.IsInf() }
func (d *Decimal) Cmp(o *Decimal) int { return d.v.Cmp(o.v) }

func (d *Decimal) Float64() float64 {
	f, _ := d.v.Float64()
	return f
}

func (d *Decimal) String() string { return d.v.Text('g', -1) }

func (d *Decimal) derive(o *Decimal) *big.Float {
	return new(big.Float).SetPrec(precision(max(d.bits, o.bits)))
}

func (d *Decimal) Add(o *Decimal) *Decimal {
	return &Decimal{v: d.derive(o).Add(d.v, o.v), bits: max(d.bits, o.bits)}
}

func (d *Decimal) Sub(o *Decimal) *Decimal {
	return &Decimal{v: d.derive(o).Sub(d.v, o.v), bits: max(d.bits, o.bits)}
}

func (d *Decimal) Mul(o *Decimal) *Decimal {
	return &Decimal{v: d.derive(o).Mul(d.v, o.v), bits: max(d.bits, o.bits)}
}

func (d *Decimal) Div(o *Decimal) (*Decimal, error) {
	if o.v.Sign() == 0 {
		return nil, fmt.Errorf("decimal division by zero")
	}
	return &Decimal{v: d.derive(o).Quo(d.v, o.v), bits: max(d.bits, o.bits)}, nil
}

func (d *Decimal) Sqrt() (*Decimal, error) {
	if d.v.Sign() < 0 {
		return nil, fmt.Errorf("square root of negative decimal %s", d)
	}
	return &Decimal{v: new(big.Float).SetPrec(precision(d.bits)).Sqrt(d.v), bits: d.bits}, nil
}

// Pow raises d to an integer power.
func (d *Decimal) Pow(e int) *Decimal {
	r := new(big.Float).SetPrec(precision(d.bits)).SetFloat64(1)
	base := new(big.Float).SetPrec(precision(d.bits)).Set(d.v)
	neg := e < 0
	if neg {
		e = -e
	}
	for ; e > 0; e >>= 1 {
		if e&1 == 1 {
			r.Mul(r, base)
		}
		base.Mul(base, base)
	}
	if neg {
		r.Quo(new(big.Float).SetPrec(r.Prec()).SetFloat64(1), r)
	}
	return &Decimal{v: r, bits: d.bits}
}

// Mod is the truncated remainder d - trunc(d/o)*o.
func (d *Decimal) Mod(o *Decimal) (*Decimal, error) {
	q, err := d.Div(o)
	if err != nil {
		return nil, err
	}
	t, _ := q.v.Int(nil)
	prod := d.derive(o).Mul(new(big.Float).SetInt(t), o.v)
	return &Decimal{v: d.derive(o).Sub(d.v, prod), bits: max(d.bits, o.bits)}, nil
}

// Complex pairs two decimals.
type Complex struct {
	Real, Imag *Decimal
}

func NewComplex(re, im float64, bits int) *Complex {
	return &Complex{Real: NewDecimal(re, bits), Imag: NewDecimal(im, bits)}
}

func (c *Complex) Bits() int { return max(c.Real.bits, c.Imag.bits) }

func (c *Complex) Add(o *Complex) *Complex {
	return &Complex{Real: c.Real.Add(o.Real), Imag: c.Imag.Add(o.Imag)}
}

func (c *Complex) Sub(o *Complex) *Complex {
	return &Complex{Real: c.Real.Sub(o.Real), Imag: c.Imag.Sub(o.Imag)}
}

func (c *Complex) Mul(o *Complex) *Complex {
	re := c.Real.Mul(o.Real).Sub(c.Imag.Mul(o.Imag))
	im := c.Real.Mul(o.Imag).Add(c.Imag.Mul(o.Real))
	return &Complex{Real: re, Imag: im}
}

// Abs is the modulus as a float64.
func (c *Complex) Abs() float64 { return math.Hypot(c.Real.Float64(), c.Imag.Float64()) }

func (c *Complex) String() string {
	if c.Imag.Sign() < 0 {
		return fmt.Sprintf("%s - %sim", c.Real, new(big.Float).Neg(c.Imag.v).Text('g', -1))
	}
	return fmt.Sprintf("%s + %sim", c.Real, c.Imag)
}
