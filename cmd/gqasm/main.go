package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goforj/godump"

	"github.com/xplshn/gqasm/pkg/ast"
	"github.com/xplshn/gqasm/pkg/cli"
	"github.com/xplshn/gqasm/pkg/config"
	"github.com/xplshn/gqasm/pkg/diag"
	"github.com/xplshn/gqasm/pkg/lexer"
	"github.com/xplshn/gqasm/pkg/parser"
	"github.com/xplshn/gqasm/pkg/sema"
	"github.com/xplshn/gqasm/pkg/session"
)

type options struct {
	std         string
	target      string
	pedantic    bool
	dumpSymbols bool
	dumpMangled bool
	stats       bool
	iceTrace    bool
}

func main() {
	app := cli.NewApp("gqasm")
	app.Synopsis = "[options] <input.qasm> ..."
	app.Description = "Resolves OpenQASM 3 programs: scopes, symbols, implicit conversions and canonical (mangled) names for every declaration and call."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/gqasm>"

	var opts options
	fs := app.FlagSet
	fs.String(&opts.std, "std", "", "3.1", "Specify language standard (3.0, 3.1)", "std")
	fs.String(&opts.target, "target", "t", "", "Set the target whose word size gives default widths.", "target")
	fs.Bool(&opts.pedantic, "pedantic", "", false, "Issue all warnings demanded by the current std.")
	fs.Bool(&opts.dumpSymbols, "dump-symbols", "s", false, "Print the symbol tables after resolution.")
	fs.Bool(&opts.dumpMangled, "dump-mangled", "m", false, "Print every mangled name in source order.")
	fs.Bool(&opts.stats, "stats", "", false, "Print resolver statistics.")
	fs.Bool(&opts.iceTrace, "ice-trace", "", false, "Print the stack trace of internal compiler errors.")

	cfg := config.NewConfig()
	cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		if opts.pedantic {
			cfg.SetWarning(config.WarnPedantic, true)
		}
		if err := cfg.ApplyStd(opts.std); err != nil {
			fmt.Fprintf(os.Stderr, "gqasm: error: %v\n", err)
			return err
		}
		cfg.ProcessFlags(config.VisitGroupFlags(fs))
		cfg.SetTarget(runtime.GOOS, runtime.GOARCH, opts.target)

		if len(inputFiles) == 0 {
			fmt.Fprintln(os.Stderr, "gqasm: error: no input files specified.")
			return fmt.Errorf("no input files")
		}

		failed := 0
		for _, path := range inputFiles {
			if !compileFile(path, cfg, opts, os.Stdout, os.Stderr) {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d file(s) failed", failed, len(inputFiles))
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// compileFile runs one file through the front end and the resolver. It
// reports whether the file is free of errors.
func compileFile(path string, cfg *config.Config, opts options, stdout, stderr io.Writer) bool {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "gqasm: error: could not read file '%s': %v\n", path, err)
		return false
	}
	start := time.Now()

	s := session.New(cfg)
	src := []rune(string(content))
	idx := s.Diags.AddSource(path, src)
	toks := lexer.NewLexer(src, idx, cfg, s.Diags).Tokenize()
	prog := parser.NewParser(toks, cfg, s.Diags).Parse()
	if s.Trusted() {
		sema.NewTypeChecker(s).Check(prog)
	}
	elapsed := time.Since(start)

	emitter := diag.NewEmitter(stderr, s.Diags.Sources())
	emitter.Trace = opts.iceTrace
	emitter.EmitAll(s.Diags)

	if opts.dumpMangled {
		dumpMangled(stdout, prog)
	}
	if opts.dumpSymbols {
		godump.Dump(s.Symbols.Snapshot())
	}
	if opts.stats {
		writeStats(stdout, path, len(content), len(toks), s.Stats(), elapsed)
	}
	return !s.Diags.HasErrors()
}

func dumpMangled(w io.Writer, prog *ast.Node) {
	ast.Inspect(prog, func(n *ast.Node) bool {
		if n.Mangled == "" {
			return true
		}
		name := n.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%d:%d\t%-16s %-12s %s\n", n.Tok.Line, n.Tok.Column, n.Type, name, n.Mangled)
		if c := n.Conversion; c != nil && c.Mangled != "" {
			fmt.Fprintf(w, "%d:%d\t%-16s %-12s %s\n", c.Tok.Line, c.Tok.Column, c.Type, name, c.Mangled)
		}
		return true
	})
}

func writeStats(w io.Writer, path string, size, tokens int, st session.Stats, elapsed time.Duration) {
	rows := [][2]string{
		{"source", humanize.Bytes(uint64(size))},
		{"tokens", humanize.Comma(int64(tokens))},
		{"declared", humanize.Comma(int64(st.Declared))},
		{"erased", humanize.Comma(int64(st.Erased))},
		{"contexts", humanize.Comma(int64(st.Contexts))},
		{"conversions", humanize.Comma(int64(st.Conversions))},
		{"mangled", humanize.Comma(int64(st.Mangled))},
		{"time", elapsed.String()},
	}
	fmt.Fprintf(w, "%s\n%s\n", path, strings.Repeat("-", len(path)))
	for _, r := range rows {
		fmt.Fprintf(w, "  %-12s %s\n", r[0], r[1])
	}
}
