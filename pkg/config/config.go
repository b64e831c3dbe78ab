package config

import (
	"fmt"
	"os"
	"strings"

	"modernc.org/libqbe"

	"github.com/xplshn/gqasm/pkg/cli"
)

type Feature int

const (
	FeatSwitch Feature = iota
	FeatDefcal
	FeatExtern
	FeatBoundQubits
	FeatImplicitAngle
	FeatMPNumerics
	FeatCount
)

type Warning int

const (
	WarnTruncation Warning = iota
	WarnSwitchDefault
	WarnAngleOverflow
	WarnImplicitAngle
	WarnShadow
	WarnUnusedResult
	WarnPedantic
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning
	StdName    string
	TargetArch string
	Target     string
	WordSize   int

	// Widths given to declarations that carry no explicit designator.
	IntBits   int
	FloatBits int
	AngleBits int
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
		StdName:    "3.1",
		WordSize:   8,
		IntBits:    32,
		FloatBits:  64,
		AngleBits:  64,
	}

	features := map[Feature]Info{
		FeatSwitch:        {"switch", true, "Allow OpenQASM 3.1 `switch` statements."},
		FeatDefcal:        {"defcal", true, "Allow `defcal` calibration definitions."},
		FeatExtern:        {"extern", true, "Allow `extern` function declarations."},
		FeatBoundQubits:   {"bound-qubits", true, "Allow physical qubits such as `$0`."},
		FeatImplicitAngle: {"implicit-angle", true, "Allow implicit conversion of classical values into `angle`."},
		FeatMPNumerics:    {"mp-numerics", true, "Give integer and float declarations wider than 64 bits arbitrary-precision kinds."},
	}

	warnings := map[Warning]Info{
		WarnTruncation:    {"truncation", true, "Warn when a conversion drops significant bits."},
		WarnSwitchDefault: {"switch-default", true, "Warn about `switch` statements without a `default` label."},
		WarnAngleOverflow: {"angle-overflow", true, "Warn when an angle exceeds one full turn."},
		WarnImplicitAngle: {"implicit-angle", false, "Note every implicit conversion into `angle`."},
		WarnShadow:        {"shadow", false, "Warn when a local declaration hides a global one."},
		WarnUnusedResult:  {"unused-result", false, "Warn when the result of a function call is discarded."},
		WarnPedantic:      {"pedantic", false, "Issue all warnings demanded by the strict standard."},
		WarnExtra:         {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// SetTarget picks the host target when none is given and derives the
// default widths from its word size.
func (c *Config) SetTarget(goos, goarch, target string) {
	if target == "" {
		c.Target = libqbe.DefaultTarget(goos, goarch)
		fmt.Fprintf(os.Stderr, "gqasm: info: no target specified, defaulting to host target '%s'\n", c.Target)
	} else {
		c.Target = target
	}

	c.TargetArch = goarch

	switch c.Target {
	case "amd64_sysv", "amd64_apple", "arm64", "arm64_apple", "rv64":
		c.WordSize = 8
	case "arm", "rv32":
		c.WordSize = 4
	default:
		fmt.Fprintf(os.Stderr, "gqasm: warning: unrecognized target '%s', defaulting to 64-bit widths.\n", c.Target)
		c.WordSize = 8
	}

	c.IntBits = 32
	c.FloatBits = c.WordSize * 8
	c.AngleBits = c.WordSize * 8
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// WarningName is the -W spelling of wt.
func (c *Config) WarningName(wt Warning) string { return c.Warnings[wt].Name }

// ApplyStd selects the language revision. Version 3.0 predates `switch`.
func (c *Config) ApplyStd(stdName string) error {
	isPedantic := c.IsWarningEnabled(WarnPedantic)

	switch stdName {
	case "3", "3.0":
		c.StdName = "3.0"
		c.SetFeature(FeatSwitch, false)
	case "3.1", "":
		c.StdName = "3.1"
		c.SetFeature(FeatSwitch, true)
	default:
		return fmt.Errorf("unsupported standard '%s'. Supported: '3.0', '3.1'", stdName)
	}

	if isPedantic {
		c.SetWarning(WarnShadow, true)
		c.SetWarning(WarnImplicitAngle, true)
		c.SetWarning(WarnUnusedResult, true)
	}
	return nil
}

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			if i != WarnPedantic {
				c.SetWarning(i, enable)
			}
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else {
		if f, ok := c.FeatureMap[name]; ok {
			c.SetFeature(f, enable)
		}
	}
}

// ProcessFlags applies -W/-F flags, `-Wall` and `-Wno-all` first so that
// the specific flags override them.
func (c *Config) ProcessFlags(visitFlag func(fn func(name string))) {
	visitFlag(func(name string) {
		if name == "Wall" || name == "Wno-all" {
			c.applyFlag("-" + name)
		}
	})
	visitFlag(func(name string) {
		if name != "Wall" && name != "Wno-all" {
			c.applyFlag("-" + name)
		}
	})
}

// SetupFlagGroups registers one enable/disable flag pair per warning and
// feature on fs, plus -Wall and -Wno-all.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) {
	warningFlags := make([]cli.FlagGroupEntry, WarnCount)
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		enabled, disabled := false, false
		warningFlags[i] = cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description,
			Enabled: &enabled, Disabled: &disabled, Default: info.Enabled,
		}
	}

	featureFlags := make([]cli.FlagGroupEntry, FeatCount)
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		enabled, disabled := false, false
		featureFlags[i] = cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description,
			Enabled: &enabled, Disabled: &disabled, Default: info.Enabled,
		}
	}

	var all, noAll bool
	fs.Bool(&all, "Wall", "", false, "Enable all warnings except pedantic.")
	fs.Bool(&noAll, "Wno-all", "", false, "Disable all warnings.")
	fs.AddFlagGroup("Warning Flags", "Enable or disable specific warnings", "warning flag", "Available Warning Flags:", warningFlags)
	fs.AddFlagGroup("Feature Flags", "Enable or disable specific features", "feature flag", "Available feature flags:", featureFlags)
}

// VisitGroupFlags calls fn with the name of every -W/-F flag that was given
// on the command line. It is the visitor ProcessFlags expects.
func VisitGroupFlags(fs *cli.FlagSet) func(fn func(name string)) {
	return func(fn func(name string)) {
		fs.Visit(func(f *cli.Flag) {
			if !strings.HasPrefix(f.Name, "W") && !strings.HasPrefix(f.Name, "F") {
				return
			}
			if on, _ := f.Value.Get().(bool); on {
				fn(f.Name)
			}
		})
	}
}
