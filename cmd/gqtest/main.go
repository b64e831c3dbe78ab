// gqtest runs the resolver over a set of OpenQASM files and compares its
// diagnostics and exit code with a golden JSON file stored next to each
// source.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/ncruces/go-strftime"
)

type Execution struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// Golden is the recorded outcome for one source file.
type Golden struct {
	Hash   string    `json:"hash"`
	Args   []string  `json:"args,omitempty"`
	Result Execution `json:"result"`
}

type FileTestResult struct {
	File    string     `json:"file"`
	Status  string     `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message string     `json:"message,omitempty"`
	Diff    string     `json:"diff,omitempty"`
	Target  *Execution `json:"target,omitempty"`
}

type Report struct {
	Generated string            `json:"generated"`
	Compiler  string            `json:"compiler"`
	Results   []*FileTestResult `json:"results"`
}

var (
	compiler       = flag.String("compiler", "./gqasm", "Path to the gqasm binary to test.")
	compilerArgs   = flag.String("args", "--target amd64_sysv", "Arguments passed before each source file (space-separated).")
	testFiles      = flag.String("test-files", "testdata/*.qasm", "Glob pattern(s) for files to test (space-separated).")
	skipFiles      = flag.String("skip-files", "", "Files to skip (space-separated).")
	update         = flag.Bool("update", false, "Rewrite the golden files with the current output.")
	outputJSON     = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	timeout        = flag.Duration("timeout", 5*time.Second, "Timeout for each compiler run.")
	jobs           = flag.Int("j", 4, "Number of parallel test jobs.")
	verbose        = flag.Bool("v", false, "Enable verbose logging.")
	ignoreLines    = flag.String("ignore-lines", "", "Comma-separated substrings to ignore during output comparison.")
	reportTimeSpec = "%Y-%m-%d %H:%M:%S"
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	results := runSuite(files)
	printSummary(results)
	writeJSONReport(results)
	if hasFailures(results) {
		os.Exit(1)
	}
}

func goldenPath(sourceFile string) string {
	return filepath.Join(filepath.Dir(sourceFile), "."+filepath.Base(sourceFile)+".json")
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

func runSuite(files []string) []*FileTestResult {
	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		skipList[f] = true
	}

	type task struct{ file, hash string }
	tasks := make(chan task, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < max(*jobs, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				resultsChan <- testFile(t.file, t.hash)
			}
		}()
	}

	// Files with identical content are tested once.
	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] || skipList[filepath.Base(file)] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		h, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if original, seen := seenHashes[h]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", original)}
			continue
		}
		seenHashes[h] = file
		tasks <- task{file, h}
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var all []*FileTestResult
	for r := range resultsChan {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].File < all[j].File })
	return all
}

func testFile(file, hash string) *FileTestResult {
	args := append(strings.Fields(*compilerArgs), file)
	got := run(*compiler, args...)
	// Paths differ between machines; goldens record the base name.
	got.Stdout = strings.ReplaceAll(got.Stdout, file, filepath.Base(file))
	got.Stderr = strings.ReplaceAll(got.Stderr, file, filepath.Base(file))

	golden := goldenPath(file)
	if *update {
		data, err := json.MarshalIndent(Golden{Hash: hash, Args: strings.Fields(*compilerArgs), Result: got}, "", "  ")
		if err == nil {
			err = os.WriteFile(golden, data, 0644)
		}
		if err != nil {
			return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not write golden file %s: %v", golden, err)}
		}
		return &FileTestResult{File: file, Status: "PASS", Message: "Golden file updated", Target: &got}
	}

	data, err := os.ReadFile(golden)
	if err != nil {
		return &FileTestResult{File: file, Status: "SKIP", Message: "Cannot test without a corresponding .json golden file", Target: &got}
	}
	var want Golden
	if err := json.Unmarshal(data, &want); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", golden, err)}
	}

	res := compare(file, want.Result, got)
	if want.Hash != hash {
		res.Message += " (source changed since the golden file was written)"
	}
	return res
}

func compare(file string, want, got Execution) *FileTestResult {
	var diffs strings.Builder
	if got.TimedOut {
		fmt.Fprintf(&diffs, "Compiler timed out after %s\n", *timeout)
	}
	if want.ExitCode != got.ExitCode {
		fmt.Fprintf(&diffs, "Exit code mismatch:\n  - Golden: %d\n  - Target: %d\n", want.ExitCode, got.ExitCode)
	}

	var ignored []string
	if *ignoreLines != "" {
		ignored = strings.Split(*ignoreLines, ",")
	}
	if filterOutput(want.Stdout, ignored) != filterOutput(got.Stdout, ignored) {
		fmt.Fprintf(&diffs, "STDOUT mismatch:\n%s", cmp.Diff(want.Stdout, got.Stdout))
	}
	if filterOutput(want.Stderr, ignored) != filterOutput(got.Stderr, ignored) {
		fmt.Fprintf(&diffs, "STDERR mismatch:\n%s", cmp.Diff(want.Stderr, got.Stderr))
	}

	if diffs.Len() > 0 {
		return &FileTestResult{File: file, Status: "FAIL", Message: "Diagnostics or exit code mismatch", Diff: diffs.String(), Target: &got}
	}
	return &FileTestResult{File: file, Status: "PASS", Message: "Output matches the golden file", Target: &got}
}

// run executes command with a timeout and captures its output.
func run(command string, args ...string) Execution {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	res := Execution{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(start)}
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		res.TimedOut = true
		res.ExitCode = -1
	case err != nil:
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -2
			res.Stderr += "\nExecution error: " + err.Error()
		}
	}
	if *verbose {
		log.Printf("[%s] %s %s -> %d (%s)", filepath.Base(args[len(args)-1]), command, strings.Join(args, " "), res.ExitCode, res.Duration)
	}
	return res
}

// filterOutput removes lines containing any of the given substrings.
func filterOutput(output string, ignored []string) string {
	if len(ignored) == 0 || output == "" {
		return output
	}
	lines := strings.Split(output, "\n")
	kept := lines[:0]
	for _, line := range lines {
		drop := false
		for _, sub := range ignored {
			if sub != "" && strings.Contains(line, sub) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	var total time.Duration
	for _, r := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, r.File, cNone)
		switch r.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, r.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, r.Message)
			fmt.Println(formatDiff(r.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, r.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, r.Message)
		}
		if r.Target != nil {
			total += r.Target.Duration
			if *verbose {
				fmt.Printf("  %s: %s\n", filepath.Base(*compiler), r.Target.Duration)
			}
		}
	}
	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total (%s)\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results), total)
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "-"):
			b.WriteString(cRed)
		case strings.HasPrefix(trimmed, "+"):
			b.WriteString(cGreen)
		}
		b.WriteString("    " + line + cNone + "\n")
	}
	return b.String()
}

func writeJSONReport(results []*FileTestResult) {
	report := Report{
		Generated: strftime.Format(reportTimeSpec, time.Now()),
		Compiler:  *compiler,
		Results:   results,
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return
	}
	if err := os.WriteFile(*outputJSON, data, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, *outputJSON, err)
		return
	}
	fmt.Printf("Full test report saved to %s\n", *outputJSON)
}

func hasFailures(results []*FileTestResult) bool {
	for _, r := range results {
		if r.Status == "FAIL" || r.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var all []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			if seen[file] {
				continue
			}
			if info, err := os.Stat(file); err == nil && info.Mode().IsRegular() {
				all = append(all, file)
				seen[file] = true
			}
		}
	}
	return all, nil
}
