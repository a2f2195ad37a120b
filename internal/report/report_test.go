package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/user/connwatch/internal/aggregate"
	"github.com/user/connwatch/internal/monitor"
	"github.com/user/connwatch/internal/store"
)

func TestWriterPrintsFindingsAndSummary(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	w.CycleCompleted(&monitor.CycleReport{
		Findings: []monitor.Finding{{
			Local:   "0.0.0.0:22",
			Remote:  "N/A",
			Status:  "LISTEN",
			Process: "sshd",
			Rules:   []string{"watched_port", "unexpected_listener"},
		}},
		Summary: &aggregate.Summary{
			TotalCount:      12,
			SuspiciousCount: 3,
			TopProcesses:    []store.ProcessCount{{ProcessName: "sshd", Count: 7}, {ProcessName: "chrome", Count: 5}},
		},
	})

	out := buf.String()
	for _, want := range []string{
		"1 suspicious connection(s) detected",
		"Process: sshd",
		"Local:  0.0.0.0:22",
		"Remote: N/A",
		"Status: LISTEN",
		"Rules:  watched_port, unexpected_listener",
		"Total connections:      12",
		"Suspicious connections: 3",
		"7 connections",
		"chrome",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "WARNING") > strings.Index(out, "Connection summary") {
		t.Error("findings should be printed before the summary")
	}
}

func TestWriterSummaryOnlyWhenBenign(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf).CycleCompleted(&monitor.CycleReport{
		Summary: &aggregate.Summary{TotalCount: 1},
	})

	out := buf.String()
	if strings.Contains(out, "WARNING") {
		t.Errorf("benign pass should not print an alert block:\n%s", out)
	}
	if !strings.Contains(out, "Total connections:      1") {
		t.Errorf("summary missing:\n%s", out)
	}
	if strings.Contains(out, "Top processes") {
		t.Error("empty top list should be omitted")
	}
}

func TestWriterSkipsFailedPass(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf).CycleCompleted(&monitor.CycleReport{Err: errors.New("permission denied")})
	if buf.Len() != 0 {
		t.Errorf("expected no output for failed pass, got %q", buf.String())
	}
}

func TestWriterPrintsFindingsWhenSummaryFails(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf).CycleCompleted(&monitor.CycleReport{
		Findings: []monitor.Finding{{
			Local: "10.0.0.2:40000", Remote: "8.8.8.8:443",
			Status: "ESTABLISHED", Process: "curl",
		}},
		SummaryError: "database is locked",
	})

	out := buf.String()
	if !strings.Contains(out, "Process: curl") || !strings.Contains(out, "Remote: 8.8.8.8:443") {
		t.Errorf("findings missing:\n%s", out)
	}
	if !strings.Contains(out, "Connection summary unavailable: database is locked") {
		t.Errorf("summary error missing:\n%s", out)
	}
}
