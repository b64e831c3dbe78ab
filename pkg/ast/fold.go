package ast

import (
	"fmt"
	"math"

	"github.com/xplshn/gqasm/pkg/token"
)

// FoldConstants performs compile-time evaluation of integer and float
// literal arithmetic. Designators such as qubit[2*n] need it before any
// symbol can be declared.
func FoldConstants(node *Node) (*Node, error) {
	if node == nil {
		return nil, nil
	}

	var err error
	switch d := node.Data.(type) {
	case *BinaryOpNode:
		if d.Left, err = FoldConstants(d.Left); err != nil {
			return node, err
		}
		if d.Right, err = FoldConstants(d.Right); err != nil {
			return node, err
		}
		adopt(node, d.Left, d.Right)
	case *UnaryOpNode:
		if d.Expr, err = FoldConstants(d.Expr); err != nil {
			return node, err
		}
		adopt(node, d.Expr)
	}

	switch node.Type {
	case BinaryOp:
		d := node.Data.(*BinaryOpNode)
		l, lok := As[*IntNode](d.Left)
		r, rok := As[*IntNode](d.Right)
		if lok && rok {
			return foldInt(node, d.Op, l.Value, r.Value, max(d.Left.Kind().Bits, d.Right.Kind().Bits))
		}
		lf, lok := constFloat(d.Left)
		rf, rok := constFloat(d.Right)
		if lok && rok {
			return foldFloat(node, d.Op, lf, rf, max(d.Left.Kind().Bits, d.Right.Kind().Bits))
		}
	case UnaryOp:
		d := node.Data.(*UnaryOpNode)
		if v, ok := As[*IntNode](d.Expr); ok {
			var res int64
			switch d.Op {
			case token.Minus:
				res = -v.Value
			case token.Complement:
				res = ^v.Value
			case token.Plus:
				res = v.Value
			default:
				return node, nil
			}
			return NewInt(node.Tok, res, d.Expr.Kind().Bits), nil
		}
		if v, ok := As[*FloatNode](d.Expr); ok && d.Op == token.Minus {
			return NewFloat(node.Tok, -v.Value, d.Expr.Kind().Bits), nil
		}
	}
	return node, nil
}

func constFloat(n *Node) (float64, bool) {
	if v, ok := As[*FloatNode](n); ok {
		return v.Value, true
	}
	if v, ok := As[*IntNode](n); ok {
		return float64(v.Value), true
	}
	return 0, false
}

func foldInt(node *Node, op token.Type, l, r int64, bits int) (*Node, error) {
	var res int64
	switch op {
	case token.Plus:
		res = l + r
	case token.Minus:
		res = l - r
	case token.Star:
		res = l * r
	case token.And:
		res = l & r
	case token.Or:
		res = l | r
	case token.Xor:
		res = l ^ r
	case token.Shl:
		res = l << uint64(r)
	case token.Shr:
		res = l >> uint64(r)
	case token.StarStar:
		if r < 0 {
			return node, nil
		}
		res = 1
		for i := int64(0); i < r; i++ {
			res *= l
		}
	case token.Slash:
		if r == 0 {
			return node, fmt.Errorf("compile-time division by zero")
		}
		res = l / r
	case token.Rem:
		if r == 0 {
			return node, fmt.Errorf("compile-time modulo by zero")
		}
		res = l % r
	default:
		return node, nil
	}
	return NewInt(node.Tok, res, bits), nil
}

func foldFloat(node *Node, op token.Type, l, r float64, bits int) (*Node, error) {
	var res float64
	switch op {
	case token.Plus:
		res = l + r
	case token.Minus:
		res = l - r
	case token.Star:
		res = l * r
	case token.StarStar:
		res = math.Pow(l, r)
	case token.Slash:
		if r == 0 {
			return node, fmt.Errorf("compile-time division by zero")
		}
		res = l / r
	default:
		return node, nil
	}
	return NewFloat(node.Tok, res, bits), nil
}

// Inspect walks the tree rooted at n in depth-first order. It stops
// descending into a node when fn returns false.
func Inspect(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range Children(n) {
		Inspect(c, fn)
	}
}

// Children lists the nodes n owns, in source order.
func Children(n *Node) []*Node {
	var out []*Node
	add := func(ns ...*Node) {
		for _, c := range ns {
			if c != nil {
				out = append(out, c)
			}
		}
	}
	switch d := n.Data.(type) {
	case *GateNode:
		add(d.Params...)
		add(d.Qubits...)
		add(d.Body)
	case *DefcalNode:
		add(d.Params...)
		add(d.Qubits...)
		add(d.Body)
	case *FunctionNode:
		add(d.Params...)
		add(d.Body)
	case *IdentifierNode:
		add(d.Index)
	case *BinaryOpNode:
		add(d.Left, d.Right)
	case *UnaryOpNode:
		add(d.Expr)
	case *CastNode:
		add(d.Expr)
	case *MeasureNode:
		add(d.Target)
	case *CallNode:
		for _, m := range d.Modifiers {
			add(m.Arg)
		}
		add(d.Args...)
		add(d.Qubits...)
	case *DeclarationNode:
		add(d.Value, d.Init)
	case *ExprStmtNode:
		add(d.Expr)
	case *AssignNode:
		add(d.Target, d.Value)
	case *QuantumStmtNode:
		add(d.Qubits...)
	case *ReturnNode:
		add(d.Expr)
	case *IfNode:
		add(d.Cond, d.Then)
		add(d.ElseIfs...)
		add(d.Else)
	case *CondBlockNode:
		add(d.Cond, d.Body)
	case *ForNode:
		add(d.Var, d.Start, d.Step, d.Stop)
		add(d.Set...)
		add(d.Body)
	case *SwitchNode:
		add(d.Expr)
		add(d.Cases...)
		add(d.Default)
	case *CaseNode:
		add(d.Values...)
		add(d.Body)
	case *BlockNode:
		add(d.Stmts...)
	}
	return out
}
