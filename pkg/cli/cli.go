package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"
)

const indentUnit = "    "

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	FlagSet     *FlagSet
	Action      func(args []string) error
	// Width overrides the detected terminal width when non-zero.
	Width int
}

func NewApp(name string) *App {
	return &App{
		Name:    name,
		FlagSet: NewFlagSet(name),
	}
}

// Run parses arguments, prints help on -h/--help and otherwise calls
// Action with the positional arguments.
func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", a.Name, err)
		fmt.Fprintf(os.Stderr, "Run '%s --help' for all available options and flags.\n", a.Name)
		return err
	}
	if help {
		a.WriteHelp(os.Stdout)
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

func (a *App) width() int {
	if a.Width > 0 {
		return a.Width
	}
	return terminalWidth()
}

// WriteHelp renders the full help page.
func (a *App) WriteHelp(w io.Writer) {
	var sb strings.Builder
	width := a.width()
	left := a.leftColumnWidth()

	if len(a.Authors) > 0 {
		fmt.Fprintf(&sb, "\n%s%s, by %s\n", indentUnit, a.Name, strings.Join(a.Authors, ", "))
	}
	if a.Repository != "" {
		fmt.Fprintf(&sb, "%sFor more details refer to %s\n", indentUnit, a.Repository)
	}
	if a.Synopsis != "" {
		fmt.Fprintf(&sb, "\n%sSynopsis\n%s%s %s\n", indentUnit, indentUnit+indentUnit, a.Name, a.Synopsis)
	}
	if a.Description != "" {
		fmt.Fprintf(&sb, "\n%sDescription\n", indentUnit)
		for _, line := range wrapText(a.Description, width-2*len(indentUnit)) {
			fmt.Fprintf(&sb, "%s%s\n", indentUnit+indentUnit, line)
		}
	}

	if opts := a.optionFlags(); len(opts) > 0 {
		fmt.Fprintf(&sb, "\n%sOptions\n", indentUnit)
		for _, flag := range opts {
			right := ""
			if !flag.isBool() && flag.DefValue != "" {
				right = "|" + flag.DefValue + "|"
			}
			writeEntry(&sb, width, left, flagString(flag), flag.Usage, right)
		}
	}

	groups := append([]FlagGroup(nil), a.FlagSet.flagGroups...)
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	for _, group := range groups {
		a.writeGroup(&sb, group, width, left)
	}
	fmt.Fprint(w, sb.String())
}

func (a *App) writeGroup(sb *strings.Builder, group FlagGroup, width, left int) {
	if len(group.Flags) == 0 {
		return
	}
	prefix := group.Flags[0].Prefix
	fmt.Fprintf(sb, "\n%s%s\n", indentUnit, group.Name)
	writeEntry(sb, width, left, fmt.Sprintf("-%s<name>", prefix), "Enable a specific "+group.GroupType, "")
	writeEntry(sb, width, left, fmt.Sprintf("-%sno-<name>", prefix), "Disable a specific "+group.GroupType, "")
	if group.AvailableFlagsHeader != "" {
		fmt.Fprintf(sb, "%s%s\n", indentUnit, group.AvailableFlagsHeader)
	}

	entries := append([]FlagGroupEntry(nil), group.Flags...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	for _, e := range entries {
		state := "|-|"
		if e.Default {
			state = "|x|"
		}
		writeEntry(sb, width, left, e.Name, e.Usage, state)
	}
}

func (a *App) optionFlags() []*Flag {
	var out []*Flag
	a.FlagSet.Visit(func(f *Flag) {
		if !a.isGroupFlag(f.Name) {
			out = append(out, f)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (a *App) isGroupFlag(name string) bool {
	for _, group := range a.FlagSet.flagGroups {
		for _, e := range group.Flags {
			if name == e.Prefix+e.Name || name == e.Prefix+"no-"+e.Name {
				return true
			}
		}
	}
	return false
}

func (a *App) leftColumnWidth() int {
	widest := 0
	for _, f := range a.optionFlags() {
		widest = max(widest, len(flagString(f)))
	}
	for _, group := range a.FlagSet.flagGroups {
		for _, e := range group.Flags {
			widest = max(widest, len(e.Name), len(e.Prefix)+len("no-<name>")+1)
		}
	}
	return widest
}

func flagString(f *Flag) string {
	var sb strings.Builder
	if f.Shorthand != "" {
		fmt.Fprintf(&sb, "-%s, ", f.Shorthand)
	}
	fmt.Fprintf(&sb, "--%s", f.Name)
	if !f.isBool() && f.ExpectedType != "" {
		fmt.Fprintf(&sb, " <%s>", f.ExpectedType)
	}
	return sb.String()
}

func writeEntry(sb *strings.Builder, width, left int, leftPart, usage, right string) {
	indent := indentUnit + indentUnit
	avail := width - len(indent) - left - 1 - len(right) - 2
	if avail < 10 {
		avail = 10
	}
	lines := wrapText(usage, avail)
	first := ""
	if len(lines) > 0 {
		first = lines[0]
	}
	if right != "" {
		fmt.Fprintf(sb, "%s%-*s %-*s  %s\n", indent, left, leftPart, avail, first, right)
	} else {
		fmt.Fprintf(sb, "%s%-*s %s\n", indent, left, leftPart, first)
	}
	for _, line := range lines[min(1, len(lines)):] {
		fmt.Fprintf(sb, "%s%s %s\n", indent, strings.Repeat(" ", left), line)
	}
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return max(width, 20)
}

func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if maxWidth <= 0 || len(words) == 0 {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var lines []string
	var line strings.Builder
	for _, word := range words {
		if line.Len() > 0 && line.Len()+1+len(word) > maxWidth {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
