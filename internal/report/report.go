// Package report renders pass results for an operator's terminal.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/user/connwatch/internal/aggregate"
	"github.com/user/connwatch/internal/monitor"
)

// Writer prints the alert block and the summary of every completed pass.
// It implements monitor.Hook.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriter returns a Writer on out, or stdout when out is nil.
func NewWriter(out io.Writer) *Writer {
	if out == nil {
		out = os.Stdout
	}
	return &Writer{out: out}
}

// CycleCompleted prints r. Findings are printed whenever the pass has any;
// a pass that failed before classifying prints nothing, the monitor logs it.
func (w *Writer) CycleCompleted(r *monitor.CycleReport) {
	if r == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(r.Findings) > 0 {
		WriteFindings(w.out, r.Findings)
	}
	switch {
	case r.Summary != nil:
		WriteSummary(w.out, r.Summary)
	case r.SummaryError != "":
		fmt.Fprintf(w.out, "Connection summary unavailable: %s\n", r.SummaryError)
	}
}

// WriteFindings prints one block per suspicious connection.
func WriteFindings(out io.Writer, findings []monitor.Finding) {
	fmt.Fprintf(out, "\nWARNING: %d suspicious connection(s) detected\n", len(findings))
	for _, f := range findings {
		fmt.Fprintf(out, "  Process: %s\n", f.Process)
		fmt.Fprintf(out, "    Local:  %s\n", f.Local)
		fmt.Fprintf(out, "    Remote: %s\n", f.Remote)
		fmt.Fprintf(out, "    Status: %s\n", f.Status)
		if len(f.Rules) > 0 {
			fmt.Fprintf(out, "    Rules:  %s\n", strings.Join(f.Rules, ", "))
		}
		fmt.Fprintln(out)
	}
}

// WriteSummary prints the lifetime counters and the top processes.
func WriteSummary(out io.Writer, s *aggregate.Summary) {
	fmt.Fprintln(out, "Connection summary:")
	fmt.Fprintf(out, "  Total connections:      %d\n", s.TotalCount)
	fmt.Fprintf(out, "  Suspicious connections: %d\n", s.SuspiciousCount)
	if len(s.TopProcesses) == 0 {
		return
	}
	fmt.Fprintln(out, "  Top processes:")
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, p := range s.TopProcesses {
		fmt.Fprintf(tw, "    %s\t%d connections\n", p.ProcessName, p.Count)
	}
	tw.Flush()
}
