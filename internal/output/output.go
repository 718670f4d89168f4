// Package output prints the correction report: one FIX/OK row per record,
// the closing totals of a table or a directory, and an in-place progress
// line while a directory is walked on a terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/classifier"
)

// progressWidth bounds the progress line so long table names do not wrap.
const progressWidth = 72

// Config holds output configuration.
type Config struct {
	Verbose   bool      // Print per-step detail; disables the progress line
	Writer    io.Writer // Report destination (default: os.Stdout)
	ErrWriter io.Writer // Errors and warnings (default: os.Stderr)
	IsTTY     bool      // Writer is a terminal; enables the progress line
}

// DefaultConfig writes to the standard streams and detects a terminal.
func DefaultConfig() Config {
	return Config{
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		IsTTY:     term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// TableTotals describes the outcome for one table.
type TableTotals struct {
	Table        string
	Destination  string
	Records      int // Live records examined
	Fixes        int
	BytesWritten int64
	Encoding     string
	DryRun       bool
}

// BatchTotals describes the outcome for a directory of tables.
type BatchTotals struct {
	Tables    int
	Patched   int
	Unchanged int
	Failed    int
	Fields    int
	Bytes     int64
	Reasons   map[classifier.Reason]int // Rewritten fields by how they were matched
}

// Output is the console of one command. It is safe for concurrent use.
type Output struct {
	config Config

	mu     sync.Mutex
	tables int // Tables in the directory being walked; 0 when no progress line
	drawn  int // Width of the progress line on screen
}

// New creates an Output, filling in the standard streams where unset.
func New(config Config) *Output {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	if config.ErrWriter == nil {
		config.ErrWriter = os.Stderr
	}
	return &Output{config: config}
}

// Verbose prints only in verbose mode.
func (o *Output) Verbose(format string, args ...interface{}) {
	if o.config.Verbose {
		o.println(o.config.Writer, format, args...)
	}
}

// Info prints to the report stream.
func (o *Output) Info(format string, args ...interface{}) {
	o.println(o.config.Writer, format, args...)
}

// Error prints to the error stream.
func (o *Output) Error(format string, args ...interface{}) {
	o.println(o.config.ErrWriter, format, args...)
}

// Warn prints a warning to the error stream.
func (o *Output) Warn(format string, args ...interface{}) {
	o.println(o.config.ErrWriter, "warning: "+format, args...)
}

// println erases the progress line, then writes one newline-terminated line.
func (o *Output) println(w io.Writer, format string, args ...interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.erase()
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	fmt.Fprint(w, msg)
}

// erase blanks the progress line. The caller holds mu.
func (o *Output) erase() {
	if o.drawn == 0 {
		return
	}
	fmt.Fprint(o.config.Writer, "\r"+strings.Repeat(" ", o.drawn)+"\r")
	o.drawn = 0
}

func (o *Output) showsProgress() bool {
	return o.config.IsTTY && !o.config.Verbose
}

// BeginTables starts the progress line for a directory of total tables.
// Nothing is drawn off a terminal or in verbose mode.
func (o *Output) BeginTables(total int) {
	if !o.showsProgress() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tables = total
}

// AtTable redraws the progress line for the n-th table (1-based).
func (o *Output) AtTable(n int, name string) {
	if !o.showsProgress() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tables == 0 {
		return
	}
	line := fmt.Sprintf("Correcting %d/%d: %s", n, o.tables, name)
	if runes := []rune(line); len(runes) > progressWidth {
		line = string(runes[:progressWidth-3]) + "..."
	}
	o.erase()
	fmt.Fprint(o.config.Writer, "\r"+line)
	o.drawn = len([]rune(line))
}

// EndTables erases the progress line.
func (o *Output) EndTables() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.erase()
	o.tables = 0
}

// FormatDecision renders one report row:
//
//	FIX  | KARS       | 'KAGIZMN' -> 'KAĞIZMAN'
//	OK   | KARS       | 'SARIKAMIŞ'
func FormatDecision(d *classifier.Decision) string {
	if d.NeedsUpdate() {
		return fmt.Sprintf("FIX  | %-10s | '%s' -> '%s'", d.Region, d.Current, d.Replacement)
	}
	return fmt.Sprintf("OK   | %-10s | '%s'", d.Region, d.Current)
}

// Preview prints the report row of every record of a table.
func (o *Output) Preview(decisions []*classifier.Decision) {
	o.Info("Preview:")
	for _, d := range decisions {
		o.Info("%s", FormatDecision(d))
	}
}

// NothingToChange reports a table that needs no rewrite.
func (o *Output) NothingToChange(table string) {
	o.Info("No records to change in %s; no output written.", table)
}

// TableSummary prints the closing line for one table.
func (o *Output) TableSummary(t TableTotals) {
	if t.DryRun {
		o.Info("Dry run: %s of %s records in %s would be updated (%s)",
			humanize.Comma(int64(t.Fixes)), humanize.Comma(int64(t.Records)), t.Table, t.Encoding)
		return
	}
	o.Info("\nWritten: %s (%s records updated, %s, %s)",
		t.Destination, humanize.Comma(int64(t.Fixes)), t.Encoding, humanize.Bytes(uint64(t.BytesWritten)))
}

// BatchSummary prints the closing line for a directory run. Verbose mode
// adds how the rewritten fields were matched.
func (o *Output) BatchSummary(t BatchTotals) {
	o.Info("Processed %s tables: %s patched, %s unchanged, %s failed (%s fields, %s written)",
		humanize.Comma(int64(t.Tables)), humanize.Comma(int64(t.Patched)),
		humanize.Comma(int64(t.Unchanged)), humanize.Comma(int64(t.Failed)),
		humanize.Comma(int64(t.Fields)), humanize.Bytes(uint64(t.Bytes)))

	if len(t.Reasons) == 0 {
		return
	}
	reasons := make([]string, 0, len(t.Reasons))
	for reason := range t.Reasons {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	parts := make([]string, len(reasons))
	for i, reason := range reasons {
		parts[i] = fmt.Sprintf("%s %s", reason, humanize.Comma(int64(t.Reasons[classifier.Reason(reason)])))
	}
	o.Verbose("By match: %s", strings.Join(parts, ", "))
}
