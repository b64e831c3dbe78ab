// Package mangle builds the canonical names that identify declared entities
// and call sites. A mangled name encodes the kind, width and name of the
// entity followed by its parameter or argument list, so two entities with
// the same shape always share a name.
package mangle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/diag"
)

const (
	prefix      = "_Q"
	calibration = ":C:"
)

var tokens = map[ast.NodeType]string{
	ast.Undefined:           "none",
	ast.Void:                "v",
	ast.Bool:                "b",
	ast.Int:                 "i",
	ast.UInt:                "j",
	ast.Float:               "f",
	ast.Double:              "d",
	ast.MPInteger:           "II",
	ast.MPUInteger:          "JJ",
	ast.MPDecimal:           "DD",
	ast.MPComplex:           "C",
	ast.Angle:               "X",
	ast.Bitset:              "B",
	ast.Qubit:               "Q",
	ast.QubitContainer:      "QC",
	ast.QubitContainerAlias: "QCa",
	ast.GateQubitParam:      "GQP",
	ast.Gate:                "G",
	ast.GateCall:            "GC",
	ast.Defcal:              "D",
	ast.DefcalCall:          "DC",
	ast.Function:            "F",
	ast.FunctionCall:        "FC",
	ast.Cast:                "CXS",
	ast.ImplicitConversion:  "IXC",
	ast.Measure:             "Mj",
	ast.Return:              "Rt",
	ast.BinaryOp:            "BOp",
	ast.UnaryOp:             "UOp",
}

const (
	constToken   = "k"
	resultToken  = "R"
	grammarToken = "DGM"
	externToken  = "Y"
)

// Token returns the encoding of t, or "none" for node types that have none.
func Token(t ast.NodeType) string {
	if s, ok := tokens[t]; ok {
		return s
	}
	return tokens[ast.Undefined]
}

type vocabulary int

const (
	vocabNone vocabulary = iota
	vocabDeclaration
	vocabCall
)

func (v vocabulary) String() string {
	switch v {
	case vocabDeclaration:
		return "declaration"
	case vocabCall:
		return "call"
	}
	return "none"
}

// Mangler is a single-use name builder. Appends are positional; the result
// is only available once End has been called.
type Mangler struct {
	sb          strings.Builder
	calibration bool
	vocab       vocabulary
	started     bool
	ended       bool
	err         error
}

// New returns a Mangler. Names built in a calibration context carry a
// marker after the prefix.
func New(calibration bool) *Mangler { return &Mangler{calibration: calibration} }

func (m *Mangler) fail(format string, args ...any) {
	if m.err == nil {
		m.err = diag.Internalf(format, args...)
	}
}

func (m *Mangler) write(parts ...any) {
	if m.ended {
		m.fail("append to a mangled name after End")
		return
	}
	for _, p := range parts {
		fmt.Fprint(&m.sb, p)
	}
}

func (m *Mangler) use(v vocabulary) {
	if m.vocab == vocabNone {
		m.vocab = v
		return
	}
	if m.vocab != v {
		m.fail("%s append in a %s mangling", v, m.vocab)
	}
}

func (m *Mangler) Start() {
	m.sb.Reset()
	m.vocab = vocabNone
	m.ended = false
	m.started = true
	m.err = nil
	m.sb.WriteString(prefix)
	if m.calibration {
		m.sb.WriteString(calibration)
	}
}

func (m *Mangler) Underscore()    { m.write("_") }
func (m *Mangler) EndExpression() { m.write("E") }

func (m *Mangler) End() {
	m.write("E_")
	m.ended = true
}

func (m *Mangler) Type(t ast.NodeType) { m.write(Token(t)) }

func (m *Mangler) Const() { m.write(constToken) }

// typeSize is the sized encoding of t.
func typeSize(t ast.NodeType, bits int) (string, bool) {
	tok := Token(t)
	switch t {
	case ast.Bool, ast.Int, ast.UInt, ast.Float, ast.Double, ast.MPInteger, ast.MPUInteger:
		return tok + "_" + strconv.Itoa(bits) + "_", true
	case ast.MPDecimal:
		switch bits {
		case 32:
			return tok + "f_", true
		case 64:
			return tok + "d_", true
		case 128:
			return tok + "e_", true
		}
		return tok + "F" + strconv.Itoa(bits) + "_", true
	case ast.Angle, ast.Bitset, ast.QubitContainer, ast.QubitContainerAlias, ast.MPComplex:
		return tok + strconv.Itoa(bits) + "_", true
	}
	return tok, false
}

func (m *Mangler) TypeSize(t ast.NodeType, bits int) {
	s, ok := typeSize(t, bits)
	if !ok {
		m.fail("type %s does not require a size", t)
	}
	m.write(s)
}

func (m *Mangler) TypeIdentifier(t ast.NodeType, id string) {
	if id == "" {
		m.fail("empty identifier for %s", t)
	}
	m.write(Token(t), len(id), id)
}

// TypeSizeIdentifier encodes a sized value kind and its name.
func (m *Mangler) TypeSizeIdentifier(t ast.NodeType, bits int, id string) {
	if !ast.IsValueKind(t) || t == ast.Undefined || t == ast.Void {
		m.fail("type %s is not sizeable", t)
	}
	if id == "" {
		m.fail("empty identifier for %s", t)
	}
	m.write(Token(t), bits, "_", len(id), id)
}

// NumericLiteral encodes an integer literal of the given width.
func (m *Mangler) NumericLiteral(v int64, bits int, unsigned bool) {
	t := ast.Int
	if unsigned {
		t = ast.UInt
	}
	if v < 0 {
		m.write("L", Token(t), bits, "n_", -v, "E")
		return
	}
	m.write("L", Token(t), bits, "_", v, "E")
}

func (m *Mangler) Grammar(g string) { m.write(grammarToken, len(g), g) }
func (m *Mangler) Extern()          { m.write(externToken) }

func (m *Mangler) FuncReturn(t ast.Type) {
	if !ast.IsValueKind(t.Kind) || t.Bits == 0 {
		m.write("Fr", Token(t.Kind), "E")
		return
	}
	m.write("Fr", Token(t.Kind), t.Bits, "E")
}

// QubitTarget is allowed in both vocabularies.
func (m *Mangler) QubitTarget(ix int, id string) {
	m.write("Qt", ix, "_", len(id), id, "E")
}

// Result encodes the classical bit a measurement writes to.
func (m *Mangler) Result(id string) { m.write(resultToken, len(id), id) }

func (m *Mangler) param(tag string, ix int, t ast.Type, id string) {
	m.use(vocabDeclaration)
	if id == "" {
		m.fail("empty %s parameter identifier", tag)
	}
	m.write(tag, ix, "_", Token(t.Kind), t.Bits, "_", len(id), id, "E")
}

func (m *Mangler) FuncParam(ix int, t ast.Type, id string)   { m.param("Fp", ix, t, id) }
func (m *Mangler) GateParam(ix int, t ast.Type, id string)   { m.param("Gp", ix, t, id) }
func (m *Mangler) DefcalParam(ix int, t ast.Type, id string) { m.param("Dp", ix, t, id) }

// DefcalParamMangled appends an already mangled parameter, used for bound qubits.
func (m *Mangler) DefcalParamMangled(ix int, mangled string) {
	m.use(vocabDeclaration)
	m.write("Dp", ix, "_", mangled, "E")
}

func (m *Mangler) arg(tag string, ix int, t ast.Type, id string) {
	m.use(vocabCall)
	if id == "" {
		m.fail("empty %s argument identifier", tag)
	}
	m.write(tag, ix, "_", t.Bits, Token(t.Kind), len(id), id, "E")
}

func (m *Mangler) FuncArg(ix int, t ast.Type, id string) { m.arg("Fa", ix, t, id) }
func (m *Mangler) GateArg(ix int, t ast.Type, id string) { m.arg("Ga", ix, t, id) }

// GateArgMangled appends an argument by its own mangled name.
func (m *Mangler) GateArgMangled(ix int, mangled string) {
	m.use(vocabCall)
	m.write("Ga", ix, "_", mangled)
}

func (m *Mangler) DefcalArg(ix int, mangled string) {
	m.use(vocabCall)
	m.write("Da", ix, "_", mangled, "E")
}

// String returns the finished name.
func (m *Mangler) String() (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if !m.started {
		return "", diag.Internalf("mangled name was never started")
	}
	if !m.ended {
		return "", diag.Internalf("mangled name %q was not ended", m.sb.String())
	}
	return m.sb.String(), nil
}

func (m *Mangler) Err() error { return m.err }

// IsMangled reports whether s carries the mangling prefix.
func IsMangled(s string) bool { return strings.HasPrefix(s, prefix) }

// Sanitize strips the prefix and the calibration marker and cuts s at its
// first terminator.
func Sanitize(s string) string {
	s = strings.TrimPrefix(s, prefix)
	s = strings.TrimPrefix(s, calibration)
	if i := strings.IndexByte(s, 'E'); i >= 0 {
		s = s[:i]
	}
	return s
}

// Hash is the index key of a mangled name.
func Hash(s string) uint64 { return xxhash.Sum64String(s) }
