package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/user/connwatch/internal/aggregate"
	"github.com/user/connwatch/internal/monitor"
	"github.com/user/connwatch/internal/store"
)

type fakeConn struct {
	subject string
	data    [][]byte
	err     error
	drained bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subject = subject
	c.data = append(c.data, data)
	return nil
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func TestPublishEncodesReport(t *testing.T) {
	fc := &fakeConn{}
	p := &Publisher{nc: fc, subject: "connwatch.cycles"}

	r := &monitor.CycleReport{
		PassID:     "f47ac10b-58cc-4372-a567-0e02b2c3d479",
		Timestamp:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Observed:   3,
		Suspicious: 1,
		Findings: []monitor.Finding{{
			Local: "192.168.1.5:51000", Remote: "8.8.8.8:443",
			Status: "ESTABLISHED", Process: "chrome", Rules: []string{"external_peer"},
		}},
		Summary: &aggregate.Summary{
			TotalCount: 3, SuspiciousCount: 1,
			TopProcesses: []store.ProcessCount{{ProcessName: "chrome", Count: 3}},
		},
	}
	p.CycleCompleted(r)

	if fc.subject != "connwatch.cycles" || len(fc.data) != 1 {
		t.Fatalf("expected one message on connwatch.cycles, got %d on %q", len(fc.data), fc.subject)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(fc.data[0], &got); err != nil {
		t.Fatalf("message is not JSON: %v", err)
	}
	if got["pass_id"] != r.PassID {
		t.Errorf("pass_id = %v", got["pass_id"])
	}
	if got["suspicious"] != float64(1) {
		t.Errorf("suspicious = %v", got["suspicious"])
	}
	if _, ok := got["error"]; ok {
		t.Error("error should be omitted for a successful pass")
	}
	summary, ok := got["summary"].(map[string]interface{})
	if !ok || summary["total_connections"] != float64(3) {
		t.Errorf("summary = %v", got["summary"])
	}
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	fc := &fakeConn{err: errors.New("nats: connection closed")}
	p := &Publisher{nc: fc, subject: "connwatch.cycles"}

	p.CycleCompleted(&monitor.CycleReport{PassID: "x"})
	if err := p.Publish(&monitor.CycleReport{}); err == nil {
		t.Error("expected Publish to return the connection error")
	}
}

func TestFailedPassCarriesError(t *testing.T) {
	data, err := Encode(&monitor.CycleReport{Error: "permission denied", Err: errors.New("permission denied")})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["error"] != "permission denied" {
		t.Errorf("error = %v", got["error"])
	}
	if _, ok := got["Err"]; ok {
		t.Error("Err should not be encoded")
	}
}

func TestCloseDrains(t *testing.T) {
	fc := &fakeConn{}
	(&Publisher{nc: fc}).Close()
	if !fc.drained {
		t.Error("Close should drain the connection")
	}
}
