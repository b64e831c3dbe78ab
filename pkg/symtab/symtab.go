// Package symtab is the symbol store of a compilation. Entries live in a
// generation-checked arena and are made visible through four tables:
// global, local, gate qubit parameter and angle. Local and gate qubit
// parameter tables are partitioned by declaration context.
package symtab

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/diag"
	"github.com/xplshn/gqasm/pkg/mp"
	"github.com/xplshn/gqasm/pkg/scope"
)

type TableKind int

const (
	Global TableKind = iota
	Local
	GateQubitParam
	Angle
	tableCount
)

func (t TableKind) String() string {
	switch t {
	case Global:
		return "global"
	case Local:
		return "local"
	case GateQubitParam:
		return "gate-qubit-param"
	case Angle:
		return "angle"
	default:
		return fmt.Sprintf("TableKind(%d)", int(t))
	}
}

func (t TableKind) partitioned() bool { return t == Local || t == GateQubitParam }

var (
	ErrRedefinition = errors.New("redefinition")
	ErrNotFound     = errors.New("symbol not found")
	ErrBoundQubit   = errors.New("bound qubits cannot be erased")
)

// Key identifies an entry within one table.
type Key struct {
	Name string
	Bits int
	Kind ast.NodeType
}

func (k Key) String() string { return fmt.Sprintf("%s (%s, %d bits)", k.Name, k.Kind, k.Bits) }

// Entry binds an identifier to its value node.
type Entry struct {
	Name    string
	Bits    int
	Kind    ast.NodeType
	Ctx     *scope.Context
	Mangled string
	// Bound marks a physical $n qubit, which is never moved between scopes.
	Bound bool

	value  *ast.Node
	handle ast.Handle
	// group is the compound parent of a generated sub-symbol.
	group  ast.Handle
	parts  []ast.Handle
	tables [tableCount]bool
}

func (e *Entry) Key() Key { return Key{Name: e.Name, Bits: e.Bits, Kind: e.Kind} }

func (e *Entry) Handle() ast.Handle { return e.handle }

func (e *Entry) Value() *ast.Node { return e.value }

// Parent returns the compound symbol e was generated for.
func (e *Entry) Parent() (ast.Handle, bool) { return e.group, e.group.IsValid() }

// Parts returns the sub-symbols generated for a compound symbol.
func (e *Entry) Parts() []ast.Handle { return append([]ast.Handle(nil), e.parts...) }

// SetValue re-targets the entry. The node's shape must match the entry's kind.
func (e *Entry) SetValue(n *ast.Node) error {
	if n == nil {
		return diag.Internalf("nil value for symbol '%s'", e.Name)
	}
	want, err := ast.ShapeOf(e.Kind)
	if err != nil {
		return err
	}
	ok, err := ast.Convertible(n.Type, want)
	if err != nil {
		return err
	}
	if !ok && !(want == ast.ShapeOpaque && n.Type == e.Kind) {
		return diag.Internalf("symbol '%s' of kind %s cannot hold a %s node", e.Name, e.Kind, n.Type)
	}
	e.value = n
	return nil
}

// ResetValue clears the value so the entry can be re-targeted.
func (e *Entry) ResetValue() { e.value = nil }

type table struct {
	byKey  map[Key]ast.Handle
	byName map[string][]ast.Handle
}

func newTable() *table {
	return &table{byKey: make(map[Key]ast.Handle), byName: make(map[string][]ast.Handle)}
}

func (t *table) add(k Key, h ast.Handle) {
	t.byKey[k] = h
	t.byName[k.Name] = append(t.byName[k.Name], h)
}

func (t *table) remove(k Key, h ast.Handle) {
	if t.byKey[k] == h {
		delete(t.byKey, k)
	}
	hs := t.byName[k.Name]
	for i, x := range hs {
		if x == h {
			hs = append(hs[:i:i], hs[i+1:]...)
			break
		}
	}
	if len(hs) == 0 {
		delete(t.byName, k.Name)
	} else {
		t.byName[k.Name] = hs
	}
}

func (t *table) len() int { return len(t.byKey) }

type slot struct {
	gen   uint32
	entry *Entry
}

// Symbols owns every symbol of a compilation. Operations that touch more
// than one table run under a single lock.
type Symbols struct {
	mu      sync.Mutex
	slots   []slot
	free    []uint32
	global  *table
	angle   *table
	local   map[uint32]*table
	gqp     map[uint32]*table
	mangled map[uint64][]ast.Handle
}

func New() *Symbols {
	return &Symbols{
		global:  newTable(),
		angle:   newTable(),
		local:   make(map[uint32]*table),
		gqp:     make(map[uint32]*table),
		mangled: make(map[uint64][]ast.Handle),
	}
}

// tableFor returns the table of kind tk for the partition of ctx, creating
// partitions on demand when create is set.
func (s *Symbols) tableFor(tk TableKind, ctx *scope.Context, create bool) *table {
	switch tk {
	case Global:
		return s.global
	case Angle:
		return s.angle
	}
	parts := s.local
	if tk == GateQubitParam {
		parts = s.gqp
	}
	if ctx == nil {
		return nil
	}
	t, ok := parts[ctx.Index()]
	if !ok && create {
		t = newTable()
		parts[ctx.Index()] = t
	}
	return t
}

func (s *Symbols) get(h ast.Handle) (*Entry, bool) {
	if !h.IsValid() || int(h.Index) >= len(s.slots) {
		return nil, false
	}
	sl := s.slots[h.Index]
	if sl.gen != h.Gen || sl.entry == nil {
		return nil, false
	}
	return sl.entry, true
}

func (s *Symbols) alloc(e *Entry) ast.Handle {
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = uint32(len(s.slots))
		s.slots = append(s.slots, slot{})
	}
	sl := &s.slots[idx]
	sl.gen++
	sl.entry = e
	e.handle = ast.Handle{Index: idx, Gen: sl.gen}
	return e.handle
}

func (s *Symbols) release(e *Entry) {
	sl := &s.slots[e.handle.Index]
	if sl.entry != e {
		return
	}
	sl.entry = nil
	sl.gen++
	s.free = append(s.free, e.handle.Index)
	for _, hs := range s.mangled {
		for i, h := range hs {
			if h == e.handle {
				hs[i] = ast.Handle{}
			}
		}
	}
}

// Get returns the live entry behind h.
func (s *Symbols) Get(h ast.Handle) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(h)
}

// members returns the root of e's compound group followed by its parts.
func (s *Symbols) members(e *Entry) []*Entry {
	root := e
	if p, ok := s.get(e.group); ok {
		root = p
	}
	out := []*Entry{root}
	for _, h := range root.parts {
		if p, ok := s.get(h); ok {
			out = append(out, p)
		}
	}
	return out
}

// compoundParts generates the sub-symbols a compound entry owns.
func compoundParts(e *Entry) []*Entry {
	if e.Bound {
		return nil
	}
	var parts []*Entry
	tok := e.value.Tok
	switch e.Kind {
	case ast.QubitContainer, ast.QubitContainerAlias:
		for i := 0; i < e.Bits; i++ {
			for _, name := range []string{fmt.Sprintf("%s[%d]", e.Name, i), fmt.Sprintf("%%%s:%d", e.Name, i)} {
				v := ast.NewQubit(tok, i, false).Named(name)
				v.Ctx = e.Ctx
				parts = append(parts, &Entry{Name: name, Bits: 1, Kind: ast.Qubit, Ctx: e.Ctx, value: v})
			}
		}
	case ast.Angle:
		for i := 0; i < 4; i++ {
			name := fmt.Sprintf("%s[%d]", e.Name, i)
			v := ast.NewAngle(tok, mp.NewDecimal(0, e.Bits), e.Bits).Named(name)
			v.Ctx = e.Ctx
			parts = append(parts, &Entry{Name: name, Bits: e.Bits, Kind: ast.Angle, Ctx: e.Ctx, value: v})
		}
	}
	return parts
}

// NewEntry builds an entry for value, stamped with ctx.
func NewEntry(value *ast.Node, ctx *scope.Context) *Entry {
	bits := 0
	if ast.IsValueKind(value.Type) {
		bits = value.Kind().Bits
	}
	e := &Entry{Name: value.Name, Bits: bits, Kind: value.Type, Ctx: ctx, Mangled: value.Mangled, value: value}
	if q, ok := ast.As[*ast.QubitNode](value); ok {
		e.Bound = q.Bound
	}
	return e
}

// Insert adds e and its generated sub-symbols to table tk. It fails without
// side effects if any of them collides with an existing entry there.
func (s *Symbols) Insert(tk TableKind, e *Entry) (ast.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tk < 0 || tk >= tableCount {
		return ast.Handle{}, diag.Internalf("insert into unknown table %d", int(tk))
	}
	if e == nil || e.value == nil {
		return ast.Handle{}, diag.Internalf("insert of a symbol without a value")
	}
	if tk.partitioned() && e.Ctx == nil {
		return ast.Handle{}, diag.Internalf("insert of '%s' into the %s table without a context", e.Name, tk)
	}
	if e.handle.IsValid() {
		return ast.Handle{}, diag.Internalf("symbol '%s' is already in the arena as %s", e.Name, e.handle)
	}
	group := append([]*Entry{e}, compoundParts(e)...)
	t := s.tableFor(tk, e.Ctx, true)
	for _, m := range group {
		if _, dup := t.byKey[m.Key()]; dup {
			return ast.Handle{}, fmt.Errorf("%w of '%s' in the %s table", ErrRedefinition, m.Name, tk)
		}
	}
	h := s.alloc(e)
	e.value.Ctx = e.Ctx
	for _, m := range group[1:] {
		ph := s.alloc(m)
		m.group = h
		e.parts = append(e.parts, ph)
	}
	for _, m := range group {
		t.add(m.Key(), m.handle)
		m.tables[tk] = true
	}
	return h, nil
}

// Share makes the symbol behind h, with its group, visible in tk as well.
func (s *Symbols) Share(h ast.Handle, tk TableKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(h)
	if !ok {
		return diag.Internalf("share of stale symbol handle %s", h)
	}
	if tk.partitioned() && e.Ctx == nil {
		return diag.Internalf("share of '%s' into the %s table without a context", e.Name, tk)
	}
	group := s.members(e)
	t := s.tableFor(tk, e.Ctx, true)
	for _, m := range group {
		if other, dup := t.byKey[m.Key()]; dup && other != m.handle {
			return fmt.Errorf("%w of '%s' in the %s table", ErrRedefinition, m.Name, tk)
		}
	}
	for _, m := range group {
		if !m.tables[tk] {
			t.add(m.Key(), m.handle)
			m.tables[tk] = true
		}
	}
	return nil
}

// TransferToScope moves the symbol behind h, with every sub-symbol of its
// compound group, into table target under ctx. Afterwards each member is
// visible in target and nowhere else. Either every member moves or none does.
func (s *Symbols) TransferToScope(h ast.Handle, target TableKind, ctx *scope.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if target < 0 || target >= tableCount {
		return diag.Internalf("transfer into unknown table %d", int(target))
	}
	if target.partitioned() && ctx == nil {
		return diag.Internalf("transfer into the %s table without a context", target)
	}
	e, ok := s.get(h)
	if !ok {
		return diag.Internalf("transfer of stale symbol handle %s", h)
	}
	group := s.members(e)
	for _, m := range group {
		if !m.inAny() {
			return diag.Internalf("transfer of '%s': the symbol is in no source table", m.Name)
		}
	}
	if group[0].Bound {
		return nil
	}

	dst := s.tableFor(target, ctx, true)
	settled := true
	for _, m := range group {
		if other, dup := dst.byKey[m.Key()]; dup && other != m.handle {
			return fmt.Errorf("%w of '%s': the %s table already holds it", ErrRedefinition, m.Name, target)
		}
		if !m.onlyIn(target) || (target.partitioned() && m.Ctx != ctx) {
			settled = false
		}
	}
	if settled {
		return nil
	}

	for _, m := range group {
		s.unlink(m)
		dst.add(m.Key(), m.handle)
		m.tables[target] = true
		if ctx != nil {
			m.Ctx = ctx
			if m.value != nil {
				m.value.Ctx = ctx
			}
		}
	}
	return nil
}

func (e *Entry) inAny() bool {
	for _, in := range e.tables {
		if in {
			return true
		}
	}
	return false
}

func (e *Entry) onlyIn(tk TableKind) bool {
	for k, in := range e.tables {
		if in != (TableKind(k) == tk) {
			return false
		}
	}
	return true
}

// unlink removes m from every table it is visible in.
func (s *Symbols) unlink(m *Entry) {
	for k, in := range m.tables {
		if !in {
			continue
		}
		tk := TableKind(k)
		if t := s.tableFor(tk, m.Ctx, false); t != nil {
			t.remove(m.Key(), m.handle)
		}
		m.tables[k] = false
	}
}

// eraseFrom drops e's group from t and returns how many entries left it.
// Members left in no table are released.
func (s *Symbols) eraseFrom(t *table, tk TableKind, e *Entry, force bool) (int, error) {
	if e.Bound && !force {
		return 0, fmt.Errorf("%w: '%s'", ErrBoundQubit, e.Name)
	}
	n := 0
	for _, m := range s.members(e) {
		if !m.tables[tk] {
			continue
		}
		t.remove(m.Key(), m.handle)
		m.tables[tk] = false
		n++
		if !m.inAny() {
			s.release(m)
		}
	}
	return n, nil
}

// EraseLocal removes a symbol declared in ctx's local table. Outer
// contexts and other tables are left untouched.
func (s *Symbols) EraseLocal(ctx *scope.Context, name string, bits int, kind ast.NodeType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableFor(Local, ctx, false)
	if t == nil {
		return fmt.Errorf("%w: '%s' in the local table", ErrNotFound, name)
	}
	h, ok := t.byKey[Key{Name: name, Bits: bits, Kind: kind}]
	if !ok {
		return fmt.Errorf("%w: '%s' in the local table", ErrNotFound, name)
	}
	e, ok := s.get(h)
	if !ok {
		return diag.Internalf("local table holds stale handle %s for '%s'", h, name)
	}
	_, err := s.eraseFrom(t, Local, e, false)
	return err
}

// EraseGlobal removes a symbol from the global table only.
func (s *Symbols) EraseGlobal(name string, bits int, kind ast.NodeType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.global.byKey[Key{Name: name, Bits: bits, Kind: kind}]
	if !ok {
		return fmt.Errorf("%w: '%s' in the global table", ErrNotFound, name)
	}
	e, ok := s.get(h)
	if !ok {
		return diag.Internalf("global table holds stale handle %s for '%s'", h, name)
	}
	_, err := s.eraseFrom(s.global, Global, e, false)
	return err
}

// EraseContext drops every local and gate qubit parameter symbol declared in
// ctx. It is called when the body that owns ctx closes.
func (s *Symbols) EraseContext(ctx *scope.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tk := range []TableKind{Local, GateQubitParam} {
		t := s.tableFor(tk, ctx, false)
		if t == nil {
			continue
		}
		for _, h := range t.handles() {
			e, ok := s.get(h)
			if !ok || !e.tables[tk] {
				continue
			}
			erased, _ := s.eraseFrom(t, tk, e, true)
			n += erased
		}
		if tk == Local {
			delete(s.local, ctx.Index())
		} else {
			delete(s.gqp, ctx.Index())
		}
	}
	return n
}

func (t *table) handles() []ast.Handle {
	out := make([]ast.Handle, 0, len(t.byKey))
	for _, h := range t.byKey {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Lookup searches outward from ctx: the local then gate qubit parameter
// tables of every enclosing context, then the angle table, then the
// global table.
func (s *Symbols) Lookup(ctx *scope.Context, name string, bits int, kind ast.NodeType) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := Key{Name: name, Bits: bits, Kind: kind}
	var found *Entry
	s.search(ctx, func(t *table) bool {
		if h, ok := t.byKey[k]; ok {
			found, ok = s.get(h)
			return ok
		}
		return false
	})
	return found, found != nil
}

// Resolve is Lookup by name alone. Within one table the most recent
// insertion wins.
func (s *Symbols) Resolve(ctx *scope.Context, name string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *Entry
	s.search(ctx, func(t *table) bool {
		hs := t.byName[name]
		for i := len(hs) - 1; i >= 0; i-- {
			if e, ok := s.get(hs[i]); ok {
				found = e
				return true
			}
		}
		return false
	})
	return found, found != nil
}

func (s *Symbols) search(ctx *scope.Context, hit func(*table) bool) {
	for c := ctx; c != nil; c = c.Parent() {
		for _, tk := range []TableKind{Local, GateQubitParam} {
			if t := s.tableFor(tk, c, false); t != nil && hit(t) {
				return
			}
		}
	}
	if hit(s.angle) {
		return
	}
	hit(s.global)
}

// Find looks (name, bits, kind) up in table tk alone. ctx selects the
// partition of Local and GateQubitParam and is ignored otherwise.
func (s *Symbols) Find(tk TableKind, ctx *scope.Context, name string, bits int, kind ast.NodeType) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableFor(tk, ctx, false)
	if t == nil {
		return nil, false
	}
	h, ok := t.byKey[Key{Name: name, Bits: bits, Kind: kind}]
	if !ok {
		return nil, false
	}
	return s.get(h)
}

// TablesOf lists the tables the symbol behind h is visible in.
func (s *Symbols) TablesOf(h ast.Handle) []TableKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(h)
	if !ok {
		return nil
	}
	var out []TableKind
	for k, in := range e.tables {
		if in {
			out = append(out, TableKind(k))
		}
	}
	return out
}

// Len counts the entries of table tk across every partition.
func (s *Symbols) Len(tk TableKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch tk {
	case Global:
		return s.global.len()
	case Angle:
		return s.angle.len()
	}
	parts := s.local
	if tk == GateQubitParam {
		parts = s.gqp
	}
	n := 0
	for _, t := range parts {
		n += t.len()
	}
	return n
}

// IndexMangled records the mangled name of the symbol behind h.
func (s *Symbols) IndexMangled(h ast.Handle, mangled string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(h)
	if !ok {
		return diag.Internalf("index of stale symbol handle %s", h)
	}
	e.Mangled = mangled
	if e.value != nil {
		e.value.Mangled = mangled
	}
	sum := xxhash.Sum64String(mangled)
	s.mangled[sum] = append(s.mangled[sum], h)
	return nil
}

// FindMangled returns the live symbol indexed under mangled.
func (s *Symbols) FindMangled(mangled string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.mangled[xxhash.Sum64String(mangled)] {
		if e, ok := s.get(h); ok && e.Mangled == mangled {
			return e, true
		}
	}
	return nil, false
}

// Row is one line of a Snapshot.
type Row struct {
	Table   string
	Context string
	Name    string
	Kind    string
	Bits    int
	Mangled string
}

// Snapshot lists every visible entry, sorted by table, context and name.
func (s *Symbols) Snapshot() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []Row
	emit := func(tk TableKind, t *table) {
		for _, h := range t.byKey {
			e, ok := s.get(h)
			if !ok {
				continue
			}
			ctx := ""
			if e.Ctx != nil {
				ctx = e.Ctx.String()
			}
			rows = append(rows, Row{Table: tk.String(), Context: ctx, Name: e.Name, Kind: e.Kind.String(), Bits: e.Bits, Mangled: e.Mangled})
		}
	}
	emit(Global, s.global)
	emit(Angle, s.angle)
	for _, t := range s.local {
		emit(Local, t)
	}
	for _, t := range s.gqp {
		emit(GateQubitParam, t)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		if a.Context != b.Context {
			return a.Context < b.Context
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Bits < b.Bits
	})
	return rows
}
