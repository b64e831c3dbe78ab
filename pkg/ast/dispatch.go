package ast

import (
	"errors"

	"github.com/xplshn/gqasm/pkg/diag"
)

// Shape identifies the concrete payload a node of a given type carries.
type Shape int

const (
	// ShapeNone marks a node type nobody registered.
	ShapeNone Shape = iota
	// ShapeOpaque is the explicit decision that a node type downcasts to
	// nothing.
	ShapeOpaque
	ShapeBool
	ShapeInt
	ShapeFloat
	ShapeMPInteger
	ShapeMPDecimal
	ShapeMPComplex
	ShapeAngle
	ShapeBitset
	ShapeQubit
	ShapeQubitContainer
	ShapeGate
	ShapeDefcal
	ShapeFunction
	ShapeIdentifier
	ShapeBinaryOp
	ShapeUnaryOp
	ShapeCast
	ShapeImplicitConversion
	ShapeMeasure
	ShapeCall
	ShapeDeclaration
	ShapeExprStmt
	ShapeAssign
	ShapeQuantumStmt
	ShapeReturn
	ShapeIf
	ShapeCondBlock
	ShapeFor
	ShapeSwitch
	ShapeCase
	ShapeBlock
	ShapeMarker
	ShapeDirective
)

// Payload is the closed set of node data types.
type Payload interface {
	shape() Shape
}

func (*BoolNode) shape() Shape               { return ShapeBool }
func (*IntNode) shape() Shape                { return ShapeInt }
func (*FloatNode) shape() Shape              { return ShapeFloat }
func (*MPIntegerNode) shape() Shape          { return ShapeMPInteger }
func (*MPDecimalNode) shape() Shape          { return ShapeMPDecimal }
func (*MPComplexNode) shape() Shape          { return ShapeMPComplex }
func (*AngleNode) shape() Shape              { return ShapeAngle }
func (*BitsetNode) shape() Shape             { return ShapeBitset }
func (*QubitNode) shape() Shape              { return ShapeQubit }
func (*QubitContainerNode) shape() Shape     { return ShapeQubitContainer }
func (*GateNode) shape() Shape               { return ShapeGate }
func (*DefcalNode) shape() Shape             { return ShapeDefcal }
func (*FunctionNode) shape() Shape           { return ShapeFunction }
func (*IdentifierNode) shape() Shape         { return ShapeIdentifier }
func (*BinaryOpNode) shape() Shape           { return ShapeBinaryOp }
func (*UnaryOpNode) shape() Shape            { return ShapeUnaryOp }
func (*CastNode) shape() Shape               { return ShapeCast }
func (*ImplicitConversionNode) shape() Shape { return ShapeImplicitConversion }
func (*MeasureNode) shape() Shape            { return ShapeMeasure }
func (*CallNode) shape() Shape               { return ShapeCall }
func (*DeclarationNode) shape() Shape        { return ShapeDeclaration }
func (*ExprStmtNode) shape() Shape           { return ShapeExprStmt }
func (*AssignNode) shape() Shape             { return ShapeAssign }
func (*QuantumStmtNode) shape() Shape        { return ShapeQuantumStmt }
func (*ReturnNode) shape() Shape             { return ShapeReturn }
func (*IfNode) shape() Shape                 { return ShapeIf }
func (*CondBlockNode) shape() Shape          { return ShapeCondBlock }
func (*ForNode) shape() Shape                { return ShapeFor }
func (*SwitchNode) shape() Shape             { return ShapeSwitch }
func (*CaseNode) shape() Shape               { return ShapeCase }
func (*BlockNode) shape() Shape              { return ShapeBlock }
func (*MarkerNode) shape() Shape             { return ShapeMarker }
func (*DirectiveNode) shape() Shape          { return ShapeDirective }

// shapes is the dispatch table. Every node type has an entry.
var shapes = [NodeTypeCount]Shape{
	Undefined:           ShapeOpaque,
	Void:                ShapeOpaque,
	Bool:                ShapeBool,
	Int:                 ShapeInt,
	UInt:                ShapeInt,
	Float:               ShapeFloat,
	Double:              ShapeFloat,
	MPInteger:           ShapeMPInteger,
	MPUInteger:          ShapeMPInteger,
	MPDecimal:           ShapeMPDecimal,
	MPComplex:           ShapeMPComplex,
	Angle:               ShapeAngle,
	Bitset:              ShapeBitset,
	Qubit:               ShapeQubit,
	QubitContainer:      ShapeQubitContainer,
	QubitContainerAlias: ShapeQubitContainer,
	GateQubitParam:      ShapeQubit,
	Gate:                ShapeGate,
	Defcal:              ShapeDefcal,
	Function:            ShapeFunction,
	Identifier:          ShapeIdentifier,
	BinaryOp:            ShapeBinaryOp,
	UnaryOp:             ShapeUnaryOp,
	Cast:                ShapeCast,
	ImplicitConversion:  ShapeImplicitConversion,
	Measure:             ShapeMeasure,
	FunctionCall:        ShapeCall,
	GateCall:            ShapeCall,
	DefcalCall:          ShapeCall,
	Declaration:         ShapeDeclaration,
	ExprStmt:            ShapeExprStmt,
	Assign:              ShapeAssign,
	Reset:               ShapeQuantumStmt,
	Barrier:             ShapeQuantumStmt,
	Return:              ShapeReturn,
	If:                  ShapeIf,
	ElseIf:              ShapeCondBlock,
	Else:                ShapeCondBlock,
	For:                 ShapeFor,
	While:               ShapeCondBlock,
	DoWhile:             ShapeCondBlock,
	Switch:              ShapeSwitch,
	Case:                ShapeCase,
	Default:             ShapeCase,
	Break:               ShapeMarker,
	Continue:            ShapeMarker,
	Block:               ShapeBlock,
	Calibration:         ShapeBlock,
	Program:             ShapeBlock,
	Version:             ShapeDirective,
	Include:             ShapeDirective,
	Grammar:             ShapeDirective,
}

// ErrNotConvertible is the ordinary downcast failure.
var ErrNotConvertible = errors.New("node is not convertible to the requested shape")

// ShapeOf looks t up in the dispatch table. A type outside the table is an
// internal error.
func ShapeOf(t NodeType) (Shape, error) {
	if t < 0 || t >= NodeTypeCount {
		return ShapeNone, diag.Internalf("node type %d is outside the dispatch table", int(t))
	}
	s := shapes[t]
	if s == ShapeNone {
		return ShapeNone, diag.Internalf("node type %s is not registered in the dispatch table", t)
	}
	return s, nil
}

// Convertible reports whether nodes of type t downcast to shape s.
func Convertible(t NodeType, s Shape) (bool, error) {
	got, err := ShapeOf(t)
	if err != nil {
		return false, err
	}
	return got != ShapeOpaque && got == s, nil
}

// Downcast returns n's payload as T when the table maps n.Type to T.
func Downcast[T Payload](n *Node) (T, error) {
	var zero T
	if n == nil {
		return zero, ErrNotConvertible
	}
	ok, err := Convertible(n.Type, zero.shape())
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, ErrNotConvertible
	}
	v, ok := n.Data.(T)
	if !ok {
		return zero, diag.Internalf("%s node carries a %T payload, not the registered shape", n.Type, n.Data)
	}
	return v, nil
}

// As is Downcast without the error detail.
func As[T Payload](n *Node) (T, bool) {
	v, err := Downcast[T](n)
	return v, err == nil
}
