// Package session owns the state of one compilation: configuration,
// diagnostics, the context stack, the symbol tables and the resolvers that
// operate on them. Every pass receives the Session explicitly.
package session

import (
	"errors"

	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/config"
	"github.com/xplshn/gqasm/pkg/convert"
	"github.com/xplshn/gqasm/pkg/diag"
	"github.com/xplshn/gqasm/pkg/mangle"
	"github.com/xplshn/gqasm/pkg/retcheck"
	"github.com/xplshn/gqasm/pkg/scope"
	"github.com/xplshn/gqasm/pkg/symtab"
	"github.com/xplshn/gqasm/pkg/token"
)

type Session struct {
	Config      *config.Config
	Diags       *diag.Bag
	Contexts    *scope.Tracker
	Symbols     *symtab.Symbols
	Conversions *convert.Resolver
	Returns     *retcheck.Checker

	stats Stats
}

// Stats counts the work done by a session.
type Stats struct {
	Declared    int
	Erased      int
	Contexts    int
	Conversions int
	Mangled     int
}

func New(cfg *config.Config) *Session {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	s := &Session{
		Config:   cfg,
		Diags:    diag.NewBag(),
		Contexts: scope.NewTracker(),
		Symbols:  symtab.New(),
	}
	s.Conversions = convert.New(cfg, s.Diags)
	s.Conversions.Calibration = s.Contexts.InCalibration
	s.Returns = retcheck.New(s.Conversions, s.Diags, cfg)
	return s
}

func (s *Session) Stats() Stats { return s.stats }

// Trusted is false once an internal compiler error has been reported.
func (s *Session) Trusted() bool { return !s.Diags.HasICE() }

// Report turns err into a diagnostic at tok. Internal errors become ICEs,
// anything else an Error.
func (s *Session) Report(tok token.Token, err error) {
	if err == nil {
		return
	}
	s.Diags.Emit(diag.FromError(tok, err))
}

func (s *Session) Errorf(tok token.Token, format string, args ...any) {
	s.Diags.Emit(diag.Errorf(tok, format, args...))
}

// Warnf reports a warning controlled by wt, if it is enabled.
func (s *Session) Warnf(tok token.Token, wt config.Warning, format string, args ...any) {
	if !s.Config.IsWarningEnabled(wt) {
		return
	}
	s.Diags.Emit(diag.Warnf(tok, s.Config.WarningName(wt), format, args...))
}

func (s *Session) Current() *scope.Context { return s.Contexts.Current() }

func (s *Session) PushContext(k scope.Kind, tok token.Token) (*scope.Context, bool) {
	c, err := s.Contexts.PushContext(k)
	if err != nil {
		s.Report(tok, err)
		return nil, false
	}
	s.stats.Contexts++
	return c, true
}

// PopContext closes the current context and erases every symbol still
// owned by it.
func (s *Session) PopContext(tok token.Token) bool {
	c := s.Current()
	if c.IsGlobal() {
		s.Report(tok, s.Contexts.PopContext())
		return false
	}
	s.stats.Erased += s.Symbols.EraseContext(c)
	if err := s.Contexts.PopContext(); err != nil {
		s.Report(tok, err)
		return false
	}
	return true
}

// Declare mangles value and inserts it into table tk under the current
// context.
func (s *Session) Declare(tk symtab.TableKind, value *ast.Node) (ast.Handle, bool) {
	ctx := s.Current()
	if tk == symtab.Global && !ctx.IsGlobal() {
		ctx = s.Contexts.Global()
	}
	value.Ctx = ctx
	mangled, ok := s.Mangle(value)
	if !ok {
		return ast.Handle{}, false
	}
	switch value.Type {
	case ast.Gate, ast.Defcal, ast.Function:
		if _, dup := s.Symbols.FindMangled(mangled); dup {
			s.Errorf(value.Tok, "redefinition of %s '%s'", kindName(value.Type), value.Name)
			return ast.Handle{}, false
		}
	}

	e := symtab.NewEntry(value, ctx)
	if value.Type == ast.Defcal {
		// Defcals overload on their operands; the mangled name is the key.
		e.Name = mangled
	}
	if tk == symtab.Local {
		if g, found := s.Symbols.Lookup(nil, e.Name, e.Bits, e.Kind); found && g.Ctx != nil && g.Ctx.IsGlobal() {
			s.Warnf(value.Tok, config.WarnShadow, "declaration of '%s' shadows a global declaration", value.Name)
		}
	}

	h, err := s.Symbols.Insert(tk, e)
	if err != nil {
		if errors.Is(err, symtab.ErrRedefinition) {
			s.Errorf(value.Tok, "redefinition of '%s'", value.Name)
		} else {
			s.Report(value.Tok, err)
		}
		return ast.Handle{}, false
	}
	if err := s.Symbols.IndexMangled(h, mangled); err != nil {
		s.Report(value.Tok, err)
		return h, false
	}
	s.stats.Declared++
	return h, true
}

func kindName(t ast.NodeType) string {
	switch t {
	case ast.Gate:
		return "gate"
	case ast.Defcal:
		return "defcal"
	case ast.Function:
		return "function"
	}
	return t.String()
}

// Lookup finds the entry named name with the given width and kind, as seen
// from the current context.
func (s *Session) Lookup(name string, bits int, kind ast.NodeType) (*symtab.Entry, bool) {
	return s.Symbols.Lookup(s.Current(), name, bits, kind)
}

// Resolve finds the innermost entry named name.
func (s *Session) Resolve(name string) (*symtab.Entry, bool) {
	return s.Symbols.Resolve(s.Current(), name)
}

// Transfer moves the symbol behind h into tk under the current context.
func (s *Session) Transfer(h ast.Handle, tk symtab.TableKind, tok token.Token) bool {
	var ctx *scope.Context
	if tk == symtab.Local || tk == symtab.GateQubitParam {
		ctx = s.Current()
	}
	if err := s.Symbols.TransferToScope(h, tk, ctx); err != nil {
		if errors.Is(err, symtab.ErrRedefinition) {
			s.Errorf(tok, "%v", err)
		} else {
			s.Report(tok, err)
		}
		return false
	}
	return true
}

// Share makes the global symbol behind h visible in tk as well.
func (s *Session) Share(h ast.Handle, tk symtab.TableKind, tok token.Token) bool {
	if err := s.Symbols.Share(h, tk); err != nil {
		if errors.Is(err, symtab.ErrRedefinition) {
			s.Errorf(tok, "%v", err)
		} else {
			s.Report(tok, err)
		}
		return false
	}
	return true
}

func (s *Session) EraseLocal(name string, bits int, kind ast.NodeType, tok token.Token) bool {
	err := s.Symbols.EraseLocal(s.Current(), name, bits, kind)
	s.Report(tok, err)
	return err == nil
}

func (s *Session) EraseGlobal(name string, bits int, kind ast.NodeType, tok token.Token) bool {
	err := s.Symbols.EraseGlobal(name, bits, kind)
	s.Report(tok, err)
	return err == nil
}

// Convert converts the value of entry into target, reporting through the
// session's diagnostics.
func (s *Session) Convert(entry *symtab.Entry, target ast.Type) convert.Descriptor {
	s.stats.Conversions++
	return s.Conversions.Convert(entry, target)
}

func (s *Session) ConvertValue(n *ast.Node, target ast.Type) convert.Descriptor {
	s.stats.Conversions++
	return s.Conversions.ConvertValue(n, target)
}

func (s *Session) CheckReturns(fn *ast.Node) retcheck.Result {
	return s.Returns.Check(fn)
}

// Mangle computes and stores the canonical name of n.
func (s *Session) Mangle(n *ast.Node) (string, bool) {
	cal := s.Contexts.InCalibration()
	var (
		m   string
		err error
	)
	switch n.Type {
	case ast.FunctionCall, ast.GateCall, ast.DefcalCall:
		m, err = mangle.Call(n, cal)
	case ast.Cast, ast.ImplicitConversion, ast.Measure, ast.Return:
		m, err = mangle.Expression(n, cal)
	default:
		m, err = mangle.Declaration(n, cal)
	}
	if err != nil {
		s.Report(n.Tok, err)
		return "", false
	}
	n.Mangled = m
	s.stats.Mangled++
	return m, true
}
