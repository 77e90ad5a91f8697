package grammar

import (
	"encoding/json"
	"fmt"
)

// This file implements the on-disk JSON representation of a parsed
// Command and BoolExpr tree, used by internal/world to persist
// memory/wake/<entity>.json (a stored condition) and the embedded
// commands inside it. The format is a tagged dict rather than a
// re-parseable string: each node carries its own "kind" field, so a
// reader never has to re-invoke the parser to recover structure.
//
// Callers that read these files back (internal/world) are expected to
// treat a decode failure as an absent condition rather than a fatal
// error — a wake registration with a corrupt condition should not wake
// on every tick, nor crash the scheduler.

type jsonNode struct {
	Kind  string    `json:"kind"`
	Text  string    `json:"text,omitempty"`
	Name  string    `json:"name,omitempty"`
	Expr  *jsonExpr `json:"expr,omitempty"`
	Query *jsonCmd  `json:"query,omitempty"`
}

type jsonExpr struct {
	Kind  string    `json:"kind"`
	Left  *jsonExpr `json:"left,omitempty"`
	Right *jsonExpr `json:"right,omitempty"`
	Op    string    `json:"op,omitempty"`
	Leaf  *jsonNode `json:"leaf,omitempty"`
}

type jsonCmd struct {
	Name    string     `json:"name"`
	Content []jsonNode `json:"content,omitempty"`
}

func nodeToJSON(n Node) jsonNode {
	jn := jsonNode{Kind: n.Kind.String(), Text: n.Text, Name: n.Name}
	if n.Expr != nil {
		e := exprToJSON(*n.Expr)
		jn.Expr = &e
	}
	if n.Query != nil {
		c := cmdToJSON(*n.Query)
		jn.Query = &c
	}
	return jn
}

func nodeFromJSON(jn jsonNode) (Node, error) {
	var n Node
	switch jn.Kind {
	case "Text":
		n.Kind = NodeText
		n.Text = jn.Text
	case "EntityRef":
		n.Kind = NodeEntityRef
		n.Name = jn.Name
	case "SpaceRef":
		n.Kind = NodeSpaceRef
		n.Name = jn.Name
	case "Condition":
		n.Kind = NodeCondition
		if jn.Expr == nil {
			return Node{}, fmt.Errorf("grammar: condition node missing expr")
		}
		expr, err := exprFromJSON(*jn.Expr)
		if err != nil {
			return Node{}, err
		}
		n.Expr = expr
	case "Query":
		n.Kind = NodeQuery
		if jn.Query == nil {
			return Node{}, fmt.Errorf("grammar: query node missing query")
		}
		cmd, err := cmdFromJSON(*jn.Query)
		if err != nil {
			return Node{}, err
		}
		n.Query = cmd
	default:
		return Node{}, fmt.Errorf("grammar: unknown node kind %q", jn.Kind)
	}
	return n, nil
}

func exprKindName(k ExprKind) string {
	switch k {
	case ExprOr:
		return "or"
	case ExprAnd:
		return "and"
	case ExprNot:
		return "not"
	case ExprCompare:
		return "compare"
	case ExprLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

func exprToJSON(e BoolExpr) jsonExpr {
	je := jsonExpr{Kind: exprKindName(e.Kind), Op: e.Op}
	if e.Left != nil {
		l := exprToJSON(*e.Left)
		je.Left = &l
	}
	if e.Right != nil {
		r := exprToJSON(*e.Right)
		je.Right = &r
	}
	if e.Leaf != nil {
		leaf := nodeToJSON(*e.Leaf)
		je.Leaf = &leaf
	}
	return je
}

func exprFromJSON(je jsonExpr) (*BoolExpr, error) {
	e := &BoolExpr{Op: je.Op}
	switch je.Kind {
	case "or":
		e.Kind = ExprOr
	case "and":
		e.Kind = ExprAnd
	case "not":
		e.Kind = ExprNot
	case "compare":
		e.Kind = ExprCompare
	case "leaf":
		e.Kind = ExprLeaf
	default:
		return nil, fmt.Errorf("grammar: unknown expr kind %q", je.Kind)
	}

	if je.Left != nil {
		left, err := exprFromJSON(*je.Left)
		if err != nil {
			return nil, err
		}
		e.Left = left
	}
	if je.Right != nil {
		right, err := exprFromJSON(*je.Right)
		if err != nil {
			return nil, err
		}
		e.Right = right
	}
	if je.Leaf != nil {
		leaf, err := nodeFromJSON(*je.Leaf)
		if err != nil {
			return nil, err
		}
		e.Leaf = &leaf
	}

	switch e.Kind {
	case ExprOr, ExprAnd, ExprCompare:
		if e.Left == nil || e.Right == nil {
			return nil, fmt.Errorf("grammar: %s expr missing left/right", je.Kind)
		}
	case ExprNot:
		if e.Left == nil {
			return nil, fmt.Errorf("grammar: not expr missing operand")
		}
	case ExprLeaf:
		if e.Leaf == nil {
			return nil, fmt.Errorf("grammar: leaf expr missing leaf")
		}
	}
	return e, nil
}

func cmdToJSON(c Command) jsonCmd {
	jc := jsonCmd{Name: c.Name}
	if len(c.Content) > 0 {
		jc.Content = make([]jsonNode, len(c.Content))
		for i, n := range c.Content {
			jc.Content[i] = nodeToJSON(n)
		}
	}
	return jc
}

func cmdFromJSON(jc jsonCmd) (*Command, error) {
	if jc.Name == "" {
		return nil, fmt.Errorf("grammar: command missing name")
	}
	cmd := &Command{Name: jc.Name}
	if len(jc.Content) > 0 {
		cmd.Content = make([]Node, len(jc.Content))
		for i, jn := range jc.Content {
			n, err := nodeFromJSON(jn)
			if err != nil {
				return nil, err
			}
			cmd.Content[i] = n
		}
	}
	return cmd, nil
}

// EncodeCondition renders a BoolExpr to its tagged-dict JSON form, as
// stored in memory/wake/<entity>.json's "condition" field.
func EncodeCondition(e *BoolExpr) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("grammar: cannot encode nil condition")
	}
	return json.Marshal(exprToJSON(*e))
}

// DecodeCondition parses a condition back from its tagged-dict JSON
// form. Callers persisting wake registrations should treat a non-nil
// error as "no condition stored" rather than propagating it as a fatal
// error, per the wake-registration durability contract.
func DecodeCondition(data []byte) (*BoolExpr, error) {
	var je jsonExpr
	if err := json.Unmarshal(data, &je); err != nil {
		return nil, err
	}
	return exprFromJSON(je)
}

// EncodeCommand renders a Command to its tagged-dict JSON form.
func EncodeCommand(c *Command) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("grammar: cannot encode nil command")
	}
	return json.Marshal(cmdToJSON(*c))
}

// DecodeCommand parses a Command back from its tagged-dict JSON form.
func DecodeCommand(data []byte) (*Command, error) {
	var jc jsonCmd
	if err := json.Unmarshal(data, &jc); err != nil {
		return nil, err
	}
	return cmdFromJSON(jc)
}
