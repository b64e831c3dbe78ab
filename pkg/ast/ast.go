// Package ast defines the types used to represent the Abstract Syntax Tree (AST)
package ast

import (
	"fmt"
	"math/big"

	"github.com/xplshn/gqasm/pkg/mp"
	"github.com/xplshn/gqasm/pkg/scope"
	"github.com/xplshn/gqasm/pkg/token"
)

// NodeType is the immutable discriminant of a node. The value kinds double
// as the kinds of the type system.
type NodeType int

const (
	// Value kinds
	Undefined NodeType = iota
	Void
	Bool
	Int
	UInt
	Float
	Double
	MPInteger
	MPUInteger
	MPDecimal
	MPComplex
	Angle
	Bitset
	Qubit
	QubitContainer
	QubitContainerAlias
	GateQubitParam

	// Declarations
	Gate
	Defcal
	Function

	// Expressions
	Identifier
	BinaryOp
	UnaryOp
	Cast
	ImplicitConversion
	Measure
	FunctionCall
	GateCall
	DefcalCall

	// Statements
	Declaration
	ExprStmt
	Assign
	Reset
	Barrier
	Return
	If
	ElseIf
	Else
	For
	While
	DoWhile
	Switch
	Case
	Default
	Break
	Continue
	Block
	Calibration
	Program
	Version
	Include
	Grammar

	NodeTypeCount
)

var nodeTypeNames = [NodeTypeCount]string{
	Undefined:           "undefined",
	Void:                "void",
	Bool:                "bool",
	Int:                 "int",
	UInt:                "uint",
	Float:               "float",
	Double:              "double",
	MPInteger:           "mpinteger",
	MPUInteger:          "mpuinteger",
	MPDecimal:           "mpdecimal",
	MPComplex:           "complex",
	Angle:               "angle",
	Bitset:              "bit",
	Qubit:               "qubit",
	QubitContainer:      "qubit[]",
	QubitContainerAlias: "let",
	GateQubitParam:      "gate qubit",
	Gate:                "gate",
	Defcal:              "defcal",
	Function:            "def",
	Identifier:          "identifier",
	BinaryOp:            "binary operation",
	UnaryOp:             "unary operation",
	Cast:                "cast",
	ImplicitConversion:  "implicit conversion",
	Measure:             "measure",
	FunctionCall:        "function call",
	GateCall:            "gate call",
	DefcalCall:          "defcal call",
	Declaration:         "declaration",
	ExprStmt:            "expression statement",
	Assign:              "assignment",
	Reset:               "reset",
	Barrier:             "barrier",
	Return:              "return",
	If:                  "if",
	ElseIf:              "else if",
	Else:                "else",
	For:                 "for",
	While:               "while",
	DoWhile:             "do-while",
	Switch:              "switch",
	Case:                "case",
	Default:             "default",
	Break:               "break",
	Continue:            "continue",
	Block:               "block",
	Calibration:         "cal",
	Program:             "program",
	Version:             "OPENQASM",
	Include:             "include",
	Grammar:             "defcalgrammar",
}

// IsValueKind reports whether t is one of the kinds of the type system.
func IsValueKind(t NodeType) bool { return t >= Undefined && t < Gate }

func (t NodeType) String() string {
	if t < 0 || t >= NodeTypeCount || nodeTypeNames[t] == "" {
		return fmt.Sprintf("NodeType(%d)", int(t))
	}
	return nodeTypeNames[t]
}

// Handle is a generation-checked reference into the symbol arena. The zero
// Handle refers to nothing.
type Handle struct {
	Index uint32
	Gen   uint32
}

func (h Handle) IsValid() bool { return h.Gen != 0 }

func (h Handle) String() string { return fmt.Sprintf("#%d.%d", h.Index, h.Gen) }

// Type is a resolved kind and width.
type Type struct {
	Kind  NodeType
	Bits  int
	Const bool
}

func (t Type) String() string {
	s := t.Kind.String()
	switch t.Kind {
	case Int, UInt, Float, Angle, MPInteger, MPUInteger, MPDecimal, QubitContainer:
		if t.Kind == QubitContainer {
			s = "qubit"
		}
		s = fmt.Sprintf("%s[%d]", s, t.Bits)
	case Double:
		s = fmt.Sprintf("float[%d]", t.Bits)
	case Bitset:
		if t.Bits != 1 {
			s = fmt.Sprintf("bit[%d]", t.Bits)
		}
	case MPComplex:
		s = fmt.Sprintf("complex[float[%d]]", t.Bits)
	}
	if t.Const {
		s = "const " + s
	}
	return s
}

// Same reports whether t and o name the same kind and width, ignoring constness.
func (t Type) Same(o Type) bool { return t.Kind == o.Kind && t.Bits == o.Bits }

func (t Type) IsInteger() bool {
	switch t.Kind {
	case Int, UInt, MPInteger, MPUInteger:
		return true
	}
	return false
}

func (t Type) IsFloat() bool {
	return t.Kind == Float || t.Kind == Double || t.Kind == MPDecimal
}

func (t Type) IsNumeric() bool {
	return t.IsInteger() || t.IsFloat() || t.Kind == MPComplex || t.Kind == Angle
}

func (t Type) IsQuantum() bool {
	switch t.Kind {
	case Qubit, QubitContainer, QubitContainerAlias, GateQubitParam:
		return true
	}
	return false
}

// Pre-defined types
var (
	TypeUndefined = Type{Kind: Undefined}
	TypeVoid      = Type{Kind: Void}
	TypeBool      = Type{Kind: Bool, Bits: 1}
	TypeBit       = Type{Kind: Bitset, Bits: 1}
	TypeQubit     = Type{Kind: Qubit, Bits: 1}
)

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type    NodeType
	Tok     token.Token
	Parent  *Node
	Name    string
	Mangled string
	Ctx     *scope.Context
	Typ     *Type
	// Err is non-empty once a diagnostic has been attached to the node.
	Err string
	// Conversion is the implicit conversion node recorded for this node,
	// valid or not.
	Conversion *Node
	Data       Payload
}

// Named sets the declared name and returns n.
func (n *Node) Named(name string) *Node {
	n.Name = name
	return n
}

func (n *Node) SetError(msg string) { n.Err = msg }

func (n *Node) HasError() bool { return n.Err != "" }

// Attach records conv as n's implicit conversion.
func (n *Node) Attach(conv *Node) {
	n.Conversion = conv
	if conv != nil {
		conv.Parent = n
	}
}

// Kind is the resolved type of n, or Undefined.
func (n *Node) Kind() Type {
	if n == nil || n.Typ == nil {
		return TypeUndefined
	}
	return *n.Typ
}

func (n *Node) String() string {
	if n.Name != "" {
		return fmt.Sprintf("%s '%s'", n.Type, n.Name)
	}
	return n.Type.String()
}

// Modifier is a gate modifier: ctrl, negctrl, inv or pow.
type Modifier struct {
	Kind token.Type
	Arg  *Node
}

// --- Node Data Structs ---
type BoolNode struct{ Value bool }
type IntNode struct{ Value int64 }
type FloatNode struct{ Value float64 }
type MPIntegerNode struct{ Value *mp.Integer }
type MPDecimalNode struct{ Value *mp.Decimal }
type MPComplexNode struct{ Value *mp.Complex }
type AngleNode struct{ Value *mp.Decimal }

// BitsetNode holds Size bits; bit 0 is the least significant.
type BitsetNode struct {
	Value *big.Int
	Size  int
}

type QubitNode struct {
	Index int
	// Bound marks a physical $n qubit.
	Bound bool
}

type QubitContainerNode struct {
	Size int
	// Target is the aliased register of a QubitContainerAlias.
	Target Handle
}

type GateNode struct {
	Params []*Node
	Qubits []*Node
	Body   *Node
}

type DefcalNode struct {
	Grammar string
	Params  []*Node
	Qubits  []*Node
	// Result is nil for a defcal without a return type.
	Result *Type
	Body   *Node
}

type FunctionNode struct {
	Params []*Node
	Result Type
	Body   *Node
	Extern bool
}

type IdentifierNode struct {
	Ref   Handle
	Index *Node
}

type BinaryOpNode struct {
	Op          token.Type
	Left, Right *Node
}

type UnaryOpNode struct {
	Op   token.Type
	Expr *Node
}

type CastNode struct {
	Expr   *Node
	Target Type
}

type ImplicitConversionNode struct {
	From, To  Type
	Valid     bool
	Truncated bool
}

type MeasureNode struct {
	Target *Node
	// Result is the classical bit the outcome is written to.
	Result Handle
}

type CallNode struct {
	Ref       Handle
	Args      []*Node
	Qubits    []*Node
	Modifiers []Modifier
}

type DeclarationNode struct{ Value, Init *Node }
type ExprStmtNode struct{ Expr *Node }

type AssignNode struct {
	Op            token.Type
	Target, Value *Node
}

type QuantumStmtNode struct{ Qubits []*Node }
type ReturnNode struct{ Expr *Node }

type IfNode struct {
	Cond, Then *Node
	ElseIfs    []*Node
	Else       *Node
}

// CondBlockNode is a condition guarding a body. Else has no condition.
type CondBlockNode struct{ Cond, Body *Node }

type ForNode struct {
	Var               *Node
	Start, Step, Stop *Node
	Set               []*Node
	Body              *Node
}

type SwitchNode struct {
	Expr    *Node
	Cases   []*Node
	Default *Node
}

type CaseNode struct {
	Values []*Node
	Body   *Node
}

type BlockNode struct{ Stmts []*Node }
type MarkerNode struct{}
type DirectiveNode struct{ Value string }

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data Payload, children ...*Node) *Node {
	node := &Node{Type: nodeType, Tok: tok, Data: data}
	adopt(node, children...)
	return node
}

func adopt(parent *Node, children ...*Node) {
	for _, child := range children {
		if child != nil {
			child.Parent = parent
		}
	}
}

func typed(n *Node, t Type) *Node {
	n.Typ = &t
	return n
}

func NewBool(tok token.Token, value bool) *Node {
	return typed(newNode(tok, Bool, &BoolNode{Value: value}), TypeBool)
}
func NewInt(tok token.Token, value int64, bits int) *Node {
	return typed(newNode(tok, Int, &IntNode{Value: value}), Type{Kind: Int, Bits: bits})
}
func NewUInt(tok token.Token, value int64, bits int) *Node {
	return typed(newNode(tok, UInt, &IntNode{Value: value}), Type{Kind: UInt, Bits: bits})
}

// NewFloat builds a Float up to 32 bits and a Double above.
func NewFloat(tok token.Token, value float64, bits int) *Node {
	kind := Double
	if bits <= 32 {
		kind = Float
	}
	return typed(newNode(tok, kind, &FloatNode{Value: value}), Type{Kind: kind, Bits: bits})
}
func NewMPInteger(tok token.Token, value *mp.Integer) *Node {
	kind := MPInteger
	if !value.Signed() {
		kind = MPUInteger
	}
	return typed(newNode(tok, kind, &MPIntegerNode{Value: value}), Type{Kind: kind, Bits: value.Bits()})
}
func NewMPDecimal(tok token.Token, value *mp.Decimal) *Node {
	return typed(newNode(tok, MPDecimal, &MPDecimalNode{Value: value}), Type{Kind: MPDecimal, Bits: value.Bits()})
}
func NewMPComplex(tok token.Token, value *mp.Complex) *Node {
	return typed(newNode(tok, MPComplex, &MPComplexNode{Value: value}), Type{Kind: MPComplex, Bits: value.Bits()})
}
func NewAngle(tok token.Token, value *mp.Decimal, bits int) *Node {
	return typed(newNode(tok, Angle, &AngleNode{Value: value}), Type{Kind: Angle, Bits: bits})
}
func NewBitset(tok token.Token, value *big.Int, size int) *Node {
	if value == nil {
		value = new(big.Int)
	}
	return typed(newNode(tok, Bitset, &BitsetNode{Value: value, Size: size}), Type{Kind: Bitset, Bits: size})
}
func NewQubit(tok token.Token, index int, bound bool) *Node {
	return typed(newNode(tok, Qubit, &QubitNode{Index: index, Bound: bound}), TypeQubit)
}
func NewGateQubitParam(tok token.Token, index int) *Node {
	return typed(newNode(tok, GateQubitParam, &QubitNode{Index: index}), Type{Kind: GateQubitParam, Bits: 1})
}
func NewQubitContainer(tok token.Token, size int) *Node {
	return typed(newNode(tok, QubitContainer, &QubitContainerNode{Size: size}), Type{Kind: QubitContainer, Bits: size})
}
func NewQubitAlias(tok token.Token, size int, target Handle) *Node {
	return typed(newNode(tok, QubitContainerAlias, &QubitContainerNode{Size: size, Target: target}), Type{Kind: QubitContainerAlias, Bits: size})
}

// NewUndefined is the placeholder value for names that could not be resolved.
func NewUndefined(tok token.Token) *Node {
	return typed(newNode(tok, Undefined, &MarkerNode{}), TypeUndefined)
}

func NewGate(tok token.Token, name string, params, qubits []*Node, body *Node) *Node {
	node := newNode(tok, Gate, &GateNode{Params: params, Qubits: qubits, Body: body}, body)
	adopt(node, params...)
	adopt(node, qubits...)
	node.Name = name
	return typed(node, TypeVoid)
}
func NewDefcal(tok token.Token, name, grammar string, params, qubits []*Node, result *Type, body *Node) *Node {
	node := newNode(tok, Defcal, &DefcalNode{Grammar: grammar, Params: params, Qubits: qubits, Result: result, Body: body}, body)
	adopt(node, params...)
	adopt(node, qubits...)
	node.Name = name
	if result != nil {
		return typed(node, *result)
	}
	return typed(node, TypeVoid)
}
func NewFunction(tok token.Token, name string, params []*Node, result Type, body *Node, extern bool) *Node {
	node := newNode(tok, Function, &FunctionNode{Params: params, Result: result, Body: body, Extern: extern}, body)
	adopt(node, params...)
	node.Name = name
	return typed(node, result)
}

func NewIdentifier(tok token.Token, name string, index *Node) *Node {
	node := newNode(tok, Identifier, &IdentifierNode{Index: index}, index)
	node.Name = name
	return node
}
func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, BinaryOp, &BinaryOpNode{Op: op, Left: left, Right: right}, left, right)
}
func NewUnaryOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, UnaryOp, &UnaryOpNode{Op: op, Expr: expr}, expr)
}
func NewCast(tok token.Token, expr *Node, target Type) *Node {
	return typed(newNode(tok, Cast, &CastNode{Expr: expr, Target: target}, expr), target)
}
func NewImplicitConversion(tok token.Token, from, to Type, valid bool) *Node {
	return typed(newNode(tok, ImplicitConversion, &ImplicitConversionNode{From: from, To: to, Valid: valid}), to)
}
func NewMeasure(tok token.Token, target *Node) *Node {
	return newNode(tok, Measure, &MeasureNode{Target: target}, target)
}
func NewFunctionCall(tok token.Token, name string, args []*Node) *Node {
	node := newNode(tok, FunctionCall, &CallNode{Args: args})
	adopt(node, args...)
	node.Name = name
	return node
}
func NewGateCall(tok token.Token, name string, args, qubits []*Node, mods []Modifier) *Node {
	node := newNode(tok, GateCall, &CallNode{Args: args, Qubits: qubits, Modifiers: mods})
	adopt(node, args...)
	adopt(node, qubits...)
	for _, m := range mods {
		adopt(node, m.Arg)
	}
	node.Name = name
	return typed(node, TypeVoid)
}
func NewDefcalCall(tok token.Token, name string, args, qubits []*Node) *Node {
	node := newNode(tok, DefcalCall, &CallNode{Args: args, Qubits: qubits})
	adopt(node, args...)
	adopt(node, qubits...)
	node.Name = name
	return node
}

func NewDeclaration(tok token.Token, value, init *Node) *Node {
	return newNode(tok, Declaration, &DeclarationNode{Value: value, Init: init}, value, init)
}
func NewExprStmt(tok token.Token, expr *Node) *Node {
	return newNode(tok, ExprStmt, &ExprStmtNode{Expr: expr}, expr)
}
func NewAssign(tok token.Token, op token.Type, target, value *Node) *Node {
	return newNode(tok, Assign, &AssignNode{Op: op, Target: target, Value: value}, target, value)
}
func NewReset(tok token.Token, qubits []*Node) *Node {
	return newNode(tok, Reset, &QuantumStmtNode{Qubits: qubits}, qubits...)
}
func NewBarrier(tok token.Token, qubits []*Node) *Node {
	return newNode(tok, Barrier, &QuantumStmtNode{Qubits: qubits}, qubits...)
}
func NewReturn(tok token.Token, expr *Node) *Node {
	return newNode(tok, Return, &ReturnNode{Expr: expr}, expr)
}
func NewIf(tok token.Token, cond, then *Node, elseIfs []*Node, els *Node) *Node {
	node := newNode(tok, If, &IfNode{Cond: cond, Then: then, ElseIfs: elseIfs, Else: els}, cond, then, els)
	adopt(node, elseIfs...)
	return node
}
func NewElseIf(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, ElseIf, &CondBlockNode{Cond: cond, Body: body}, cond, body)
}
func NewElse(tok token.Token, body *Node) *Node {
	return newNode(tok, Else, &CondBlockNode{Body: body}, body)
}
func NewFor(tok token.Token, loopVar, start, step, stop *Node, set []*Node, body *Node) *Node {
	node := newNode(tok, For, &ForNode{Var: loopVar, Start: start, Step: step, Stop: stop, Set: set, Body: body}, loopVar, start, step, stop, body)
	adopt(node, set...)
	return node
}
func NewWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, While, &CondBlockNode{Cond: cond, Body: body}, cond, body)
}
func NewDoWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, DoWhile, &CondBlockNode{Cond: cond, Body: body}, cond, body)
}
func NewSwitch(tok token.Token, expr *Node, cases []*Node, def *Node) *Node {
	node := newNode(tok, Switch, &SwitchNode{Expr: expr, Cases: cases, Default: def}, expr, def)
	adopt(node, cases...)
	return node
}
func NewCase(tok token.Token, values []*Node, body *Node) *Node {
	node := newNode(tok, Case, &CaseNode{Values: values, Body: body}, body)
	adopt(node, values...)
	return node
}
func NewDefault(tok token.Token, body *Node) *Node {
	return newNode(tok, Default, &CaseNode{Body: body}, body)
}
func NewBreak(tok token.Token) *Node {
	return newNode(tok, Break, &MarkerNode{})
}
func NewContinue(tok token.Token) *Node {
	return newNode(tok, Continue, &MarkerNode{})
}
func NewBlock(tok token.Token, stmts []*Node) *Node {
	return newNode(tok, Block, &BlockNode{Stmts: stmts}, stmts...)
}
func NewCalibration(tok token.Token, stmts []*Node) *Node {
	return newNode(tok, Calibration, &BlockNode{Stmts: stmts}, stmts...)
}
func NewProgram(tok token.Token, stmts []*Node) *Node {
	return newNode(tok, Program, &BlockNode{Stmts: stmts}, stmts...)
}

// NewDirective builds a Version, Include or Grammar statement.
func NewDirective(tok token.Token, kind NodeType, value string) *Node {
	return newNode(tok, kind, &DirectiveNode{Value: value})
}
