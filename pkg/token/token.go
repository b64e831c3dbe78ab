package token

type Type int

const (
	EOF Type = iota
	Comment
	Ident
	HardwareQubit
	Number
	FloatNumber
	ImagNumber
	BitString
	String

	// Keywords
	OpenQASM
	Include
	Qubit
	Bit
	Bool
	Int
	Uint
	Float
	Angle
	Complex
	Const
	Gate
	Defcal
	DefcalGrammar
	Cal
	Def
	Extern
	If
	Else
	For
	In
	While
	Do
	Switch
	Case
	Default
	Return
	Break
	Continue
	Measure
	Reset
	Barrier
	Ctrl
	NegCtrl
	Inv
	Pow
	True
	False
	Void

	// Punctuation
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semi
	Comma
	Colon
	Dot
	Arrow
	At

	// Operators
	Eq
	PlusEq
	MinusEq
	StarEq
	SlashEq
	RemEq
	AndEq
	OrEq
	XorEq
	ShlEq
	ShrEq
	Plus
	Minus
	Star
	StarStar
	Slash
	Rem
	And
	Or
	Xor
	Shl
	Shr
	EqEq
	Neq
	Lt
	Gt
	Gte
	Lte
	AndAnd
	OrOr
	Not
	Complement
	Inc
	Dec
)

var KeywordMap = map[string]Type{
	"OPENQASM":      OpenQASM,
	"include":       Include,
	"qubit":         Qubit,
	"bit":           Bit,
	"bool":          Bool,
	"int":           Int,
	"uint":          Uint,
	"float":         Float,
	"angle":         Angle,
	"complex":       Complex,
	"const":         Const,
	"gate":          Gate,
	"defcal":        Defcal,
	"defcalgrammar": DefcalGrammar,
	"cal":           Cal,
	"def":           Def,
	"extern":        Extern,
	"if":            If,
	"else":          Else,
	"for":           For,
	"in":            In,
	"while":         While,
	"do":            Do,
	"switch":        Switch,
	"case":          Case,
	"default":       Default,
	"return":        Return,
	"break":         Break,
	"continue":      Continue,
	"measure":       Measure,
	"reset":         Reset,
	"barrier":       Barrier,
	"ctrl":          Ctrl,
	"negctrl":       NegCtrl,
	"inv":           Inv,
	"pow":           Pow,
	"true":          True,
	"false":         False,
	"void":          Void,
}

// Reverse mapping from Type to the keyword string
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
}

// IsTypeKeyword reports whether t starts a classical or quantum type.
func IsTypeKeyword(t Type) bool {
	switch t {
	case Qubit, Bit, Bool, Int, Uint, Float, Angle, Complex:
		return true
	}
	return false
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}

// IsValid reports whether the token carries a real source position.
func (t Token) IsValid() bool { return t.Line > 0 }

var symbols = map[Type]string{
	EOF: "end of file", Comment: "comment", Ident: "identifier", HardwareQubit: "physical qubit",
	Number: "integer", FloatNumber: "float", ImagNumber: "imaginary", BitString: "bitstring", String: "string",
	LParen: "(", RParen: ")", LBrace: "{", RBrace: "}", LBracket: "[", RBracket: "]",
	Semi: ";", Comma: ",", Colon: ":", Dot: ".", Arrow: "->", At: "@",
	Eq: "=", PlusEq: "+=", MinusEq: "-=", StarEq: "*=", SlashEq: "/=", RemEq: "%=",
	AndEq: "&=", OrEq: "|=", XorEq: "^=", ShlEq: "<<=", ShrEq: ">>=",
	Plus: "+", Minus: "-", Star: "*", StarStar: "**", Slash: "/", Rem: "%",
	And: "&", Or: "|", Xor: "^", Shl: "<<", Shr: ">>",
	EqEq: "==", Neq: "!=", Lt: "<", Gt: ">", Gte: ">=", Lte: "<=",
	AndAnd: "&&", OrOr: "||", Not: "!", Complement: "~", Inc: "++", Dec: "--",
}

func (t Type) String() string {
	if s, ok := symbols[t]; ok {
		return s
	}
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	return "unknown"
}
