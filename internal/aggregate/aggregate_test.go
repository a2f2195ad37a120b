package aggregate

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/user/connwatch/internal/store"
)

func newLog(t *testing.T) store.Log {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "agg.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func add(t *testing.T, l store.Log, process string, suspicious bool) {
	t.Helper()
	err := l.AppendObservation(context.Background(), store.Observation{
		Timestamp:     time.Now(),
		LocalAddress:  "10.0.0.2",
		LocalPort:     40000,
		RemoteAddress: store.NoRemoteAddress,
		Status:        "ESTABLISHED",
		ProcessName:   process,
		IsSuspicious:  suspicious,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	a := New(newLog(t))
	s, err := a.Summarize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalCount != 0 || s.SuspiciousCount != 0 || len(s.TopProcesses) != 0 {
		t.Errorf("expected empty summary, got %+v", s)
	}
	if s.TopProcesses == nil {
		t.Error("TopProcesses should be an empty slice, not nil")
	}
}

func TestSummarize(t *testing.T) {
	l := newLog(t)
	for i, name := range []string{"chrome", "sshd", "chrome", "curl", "chrome", "sshd", "nginx", "dns", "ntpd"} {
		add(t, l, name, i%3 == 0)
	}

	s, err := New(l).Summarize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalCount != 9 {
		t.Errorf("expected 9 total, got %d", s.TotalCount)
	}
	if s.SuspiciousCount != 3 {
		t.Errorf("expected 3 suspicious, got %d", s.SuspiciousCount)
	}
	want := []store.ProcessCount{{ProcessName: "chrome", Count: 3}, {ProcessName: "sshd", Count: 2}, {ProcessName: "curl", Count: 1}, {ProcessName: "nginx", Count: 1}, {ProcessName: "dns", Count: 1}}
	if !reflect.DeepEqual(s.TopProcesses, want) {
		t.Errorf("top processes = %+v, want %+v", s.TopProcesses, want)
	}
}

func TestSummarizeIsIdempotent(t *testing.T) {
	l := newLog(t)
	add(t, l, "a", true)
	add(t, l, "b", false)

	a := New(l)
	first, err := a.Summarize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Summarize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("summaries differ without new observations: %+v vs %+v", first, second)
	}
}

func TestSummarizeIsLifetime(t *testing.T) {
	l := newLog(t)
	a := New(l)

	add(t, l, "a", true)
	before, err := a.Summarize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	add(t, l, "a", true)
	after, err := a.Summarize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if after.TotalCount != before.TotalCount+1 || after.SuspiciousCount != before.SuspiciousCount+1 {
		t.Errorf("counts should accumulate: before %+v after %+v", before, after)
	}
}
