package format

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// table formats columnar output using tabwriter, adapted from the
// teacher's internal/formatter.Table.
type table struct {
	w             *tabwriter.Writer
	headers       []string
	maxWidth      map[int]int
	headerWritten bool
	colorize      bool
}

func newTable(w io.Writer, headers ...string) *table {
	return &table{
		w:        tabwriter.NewWriter(w, 0, 0, 2, ' ', 0),
		headers:  headers,
		maxWidth: make(map[int]int),
		colorize: isTTY(w),
	}
}

// isTTY reports whether w is a terminal, so color escapes are emitted only
// when a human is watching (spec A.2/domain-stack: TTY-only coloring).
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (t *table) addRow(values ...string) {
	if !t.headerWritten {
		t.headerWritten = true
		t.writeHeaderAndSeparator()
	}

	cells := make([]string, len(t.headers))
	for i := range cells {
		if i < len(values) {
			cells[i] = t.truncate(i, values[i])
		}
	}

	for i, cell := range cells {
		if i > 0 {
			fmt.Fprint(t.w, "\t") //nolint:errcheck // tabwriter output
		}
		fmt.Fprint(t.w, cell) //nolint:errcheck // tabwriter output
	}
	fmt.Fprintln(t.w) //nolint:errcheck // tabwriter output
}

func (t *table) render() error {
	return t.w.Flush()
}

func (t *table) writeHeaderAndSeparator() {
	for i, h := range t.headers {
		if i > 0 {
			fmt.Fprint(t.w, "\t") //nolint:errcheck // tabwriter output
		}
		fmt.Fprint(t.w, h) //nolint:errcheck // tabwriter output
	}
	fmt.Fprintln(t.w) //nolint:errcheck // tabwriter output

	for i, h := range t.headers {
		if i > 0 {
			fmt.Fprint(t.w, "\t") //nolint:errcheck // tabwriter output
		}
		fmt.Fprint(t.w, dashes(len(h))) //nolint:errcheck // tabwriter output
	}
	fmt.Fprintln(t.w) //nolint:errcheck // tabwriter output
}

func (t *table) truncate(col int, s string) string {
	max, ok := t.maxWidth[col]
	if !ok || max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func dashes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}

// statusColor renders a gate/verdict status with TTY-only color: green for
// an accepted/passing outcome, red for a rejection or failing verdict,
// plain otherwise.
func (t *table) statusColor(status string) string {
	if !t.colorize {
		return status
	}
	switch status {
	case "accepted", "pass", "true":
		return color.GreenString(status)
	case "rejected", "fail", "false":
		return color.RedString(status)
	default:
		return status
	}
}

// TableFormatter renders an Envelope as a tabwriter-aligned table, the
// default -o format.
type TableFormatter struct{}

// NewTableFormatter creates a table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Extension returns the file extension for table output.
func (tf *TableFormatter) Extension() string {
	return ".txt"
}

// Format writes env as a table, choosing columns by whichever result
// section the envelope carries.
func (tf *TableFormatter) Format(w io.Writer, env Envelope) error {
	switch {
	case env.Err != nil:
		t := newTable(w, "CODE", "PHASE", "MESSAGE")
		t.addRow(string(env.Err.Code), string(env.Err.Phase), env.Err.Message)
		return t.render()

	case env.WriteOutcome != nil:
		o := env.WriteOutcome
		t := newTable(w, "STATUS", "PLAN", "ROLE", "PATH", "PREFLIGHT_OK", "EXIT")
		t.addRow(t.statusColor(o.Status), o.PlanHash, o.Role, o.Path,
			strconv.FormatBool(o.Preflight.Success), strconv.Itoa(o.Preflight.ExitCode))
		return t.render()

	case env.AuditRecords != nil:
		t := newTable(w, "SEQ", "TOOL", "INTENT", "PLAN", "ERROR")
		for _, r := range env.AuditRecords {
			t.addRow(strconv.FormatUint(r.Seq, 10), r.Tool, r.Intent, r.PlanHash, r.ErrorCode)
		}
		return t.render()

	case env.Plans != nil:
		t := newTable(w, "HASH", "STATUS", "VERIFIED", "FILE")
		for _, p := range env.Plans {
			t.addRow(p.Hash, string(p.Entry.Status), strconv.FormatBool(p.Entry.Verified), p.Entry.FilePath)
		}
		return t.render()

	case env.Verdict != nil:
		t := newTable(w, "PASS", "KIND", "SEQS", "DETAIL")
		t.addRow(t.statusColor(strconv.FormatBool(env.Verdict.Pass)), "", "", "")
		for _, f := range env.Verdict.Findings {
			t.addRow("", string(f.Kind), fmt.Sprint(f.Seqs), f.Detail)
		}
		return t.render()

	default:
		t := newTable(w, "COMMAND")
		t.addRow(env.Command)
		return t.render()
	}
}
