package diag

import "sync"

// SourceFile tracks the name and content of a single source file.
type SourceFile struct {
	Name    string
	Content []rune
}

// Bag collects the diagnostics of one compilation.
type Bag struct {
	mu      sync.Mutex
	list    []Diagnostic
	counts  [ICE + 1]int
	sources []SourceFile
}

func NewBag() *Bag { return &Bag{} }

// Emit implements Sink.
func (b *Bag) Emit(d Diagnostic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.list = append(b.list, d)
	if d.Level >= Warning && d.Level <= ICE {
		b.counts[d.Level]++
	}
}

// AddSource registers a file so emitted diagnostics can show its lines.
// It returns the file index used by tokens of that file.
func (b *Bag) AddSource(name string, content []rune) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sources = append(b.sources, SourceFile{Name: name, Content: content})
	return len(b.sources) - 1
}

func (b *Bag) Sources() []SourceFile {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]SourceFile, len(b.sources))
	copy(out, b.sources)
	return out
}

// Diagnostics returns a copy of everything emitted so far.
func (b *Bag) Diagnostics() []Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Diagnostic, len(b.list))
	copy(out, b.list)
	return out
}

func (b *Bag) Count(l Level) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l < Warning || l > ICE {
		return 0
	}
	return b.counts[l]
}

// HasErrors is true when any Error or ICE was emitted.
func (b *Bag) HasErrors() bool { return b.Count(Error) > 0 || b.Count(ICE) > 0 }

func (b *Bag) HasICE() bool { return b.Count(ICE) > 0 }

// First returns the first diagnostic at level l.
func (b *Bag) First(l Level) (Diagnostic, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.list {
		if d.Level == l {
			return d, true
		}
	}
	return Diagnostic{}, false
}

// Reset drops every diagnostic but keeps registered sources.
func (b *Bag) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.list = nil
	b.counts = [ICE + 1]int{}
}
