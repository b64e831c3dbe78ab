// Package scope tracks declaration contexts: the stack of global, function,
// gate, defcal and block scopes that is pushed and popped as a program's
// bodies are opened and closed.
package scope

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/xplshn/gqasm/pkg/diag"
)

type Kind int

const (
	Global Kind = iota
	Function
	Gate
	Defcal
	Calibration
	Block
)

func (k Kind) String() string {
	switch k {
	case Global:
		return "global"
	case Function:
		return "function"
	case Gate:
		return "gate"
	case Defcal:
		return "defcal"
	case Calibration:
		return "calibration"
	case Block:
		return "block"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

type State int

const (
	Alive State = iota
	Dead
)

// Context is a single scope identity. Every symbol and node records the
// context that was current when it was created.
type Context struct {
	index  uint32
	name   string
	hash   uint64
	kind   Kind
	state  State
	parent *Context
}

func (c *Context) Index() uint32 { return c.index }
func (c *Context) Name() string { return c.name }
func (c *Context) Hash() uint64 { return c.hash }
func (c *Context) Kind() Kind { return c.kind }
func (c *Context) Alive() bool { return c.state == Alive }
func (c *Context) Parent() *Context { return c.parent }
func (c *Context) IsGlobal() bool { return c.kind == Global }

// Encloses reports whether other is c or nested somewhere inside c.
func (c *Context) Encloses(other *Context) bool {
	for o := other; o != nil; o = o.parent {
		if o == c {
			return true
		}
	}
	return false
}

// Nearest returns the innermost context of kind k starting at c.
func (c *Context) Nearest(k Kind) (*Context, bool) {
	for o := c; o != nil; o = o.parent {
		if o.kind == k {
			return o, true
		}
	}
	return nil, false
}

func (c *Context) String() string {
	return fmt.Sprintf("%s#%d", c.kind, c.index)
}

// Tracker owns the context stack of one compilation.
type Tracker struct {
	stack []*Context
	all   []*Context
}

// NewTracker returns a tracker whose current context is the global one.
func NewTracker() *Tracker {
	t := &Tracker{}
	g := t.newContext(Global, nil)
	t.stack = append(t.stack, g)
	return t
}

func (t *Tracker) newContext(k Kind, parent *Context) *Context {
	name := uuid.NewString()
	c := &Context{
		index:  uint32(len(t.all)),
		name:   name,
		hash:   xxhash.Sum64String(name),
		kind:   k,
		state:  Alive,
		parent: parent,
	}
	t.all = append(t.all, c)
	return c
}

// PushContext creates a context of kind k nested in the current one and
// makes it current.
func (t *Tracker) PushContext(k Kind) (*Context, error) {
	if k == Global {
		return nil, diag.Internalf("cannot push a second global context")
	}
	c := t.newContext(k, t.Current())
	t.stack = append(t.stack, c)
	return c, nil
}

// PopContext deactivates the current context. The global context is never
// popped.
func (t *Tracker) PopContext() error {
	if len(t.stack) <= 1 {
		return diag.Internalf("declaration context stack underflow: cannot pop the global context")
	}
	top := t.stack[len(t.stack)-1]
	top.state = Dead
	t.stack = t.stack[:len(t.stack)-1]
	return nil
}

// Leave pops c, which must be the most recently pushed live context.
func (t *Tracker) Leave(c *Context) error {
	if c == nil {
		return diag.Internalf("cannot leave a nil declaration context")
	}
	if top := t.Current(); top != c {
		if c.Alive() && c.Encloses(top) {
			return diag.Internalf("cannot pop %s while child context %s is still live", c, top)
		}
		return diag.Internalf("cannot pop %s: the current context is %s", c, top)
	}
	return t.PopContext()
}

// Current returns the active context. It is never nil.
func (t *Tracker) Current() *Context { return t.stack[len(t.stack)-1] }

func (t *Tracker) Global() *Context { return t.stack[0] }

func (t *Tracker) InGlobal() bool { return len(t.stack) == 1 }

// InCalibration reports whether a defcal or cal body is open.
func (t *Tracker) InCalibration() bool {
	for _, c := range t.stack {
		if c.kind == Defcal || c.kind == Calibration {
			return true
		}
	}
	return false
}

// InKind reports whether a context of kind k is open.
func (t *Tracker) InKind(k Kind) bool {
	_, ok := t.Current().Nearest(k)
	return ok
}

// Get returns the context with the given index, live or dead.
func (t *Tracker) Get(index uint32) (*Context, bool) {
	if int(index) >= len(t.all) {
		return nil, false
	}
	return t.all[index], true
}

// Depth is the number of open contexts, the global one included.
func (t *Tracker) Depth() int { return len(t.stack) }
