package logger

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func initTemp(t *testing.T, level Level, echo *bytes.Buffer) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "connwatch.log")
	opts := Options{Path: path, Level: level}
	if echo != nil {
		opts.Echo = echo
	}
	if err := Init(opts); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(Close)
	return path
}

func TestLevelFiltering(t *testing.T) {
	var echo bytes.Buffer
	path := initTemp(t, LevelWarning, &echo)

	Info("hidden %d", 1)
	Debug("hidden %d", 2)
	Warning("shown %d", 3)
	Error("shown %d", 4)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below the minimum level were written: %q", out)
	}
	if !strings.Contains(out, "WARN: shown 3") || !strings.Contains(out, "ERROR: shown 4") {
		t.Errorf("expected warning and error lines, got %q", out)
	}
	if echo.String() != out {
		t.Errorf("echo sink should mirror the file, got %q vs %q", echo.String(), out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warn":    LevelWarning,
		"warning": LevelWarning,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRecoverInto(t *testing.T) {
	path := initTemp(t, LevelInfo, nil)

	run := func() (err error) {
		defer RecoverInto("cycle", &err)
		panic(errors.New("boom"))
	}

	err := run()
	if err == nil || !strings.Contains(err.Error(), "panic in cycle: boom") {
		t.Fatalf("expected recovered error, got %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "PANIC in cycle: boom") {
		t.Errorf("expected panic to be logged, got %q", string(data))
	}
}

func TestGetLogPath(t *testing.T) {
	path := initTemp(t, LevelInfo, nil)
	if GetLogPath() != path {
		t.Errorf("GetLogPath() = %q, want %q", GetLogPath(), path)
	}
}

func TestSafeGoRecoversPanic(t *testing.T) {
	path := initTemp(t, LevelInfo, nil)

	done := make(chan struct{})
	SafeGo("worker", func() {
		defer close(done)
		panic("worker failed")
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("goroutine did not finish")
	}

	// the deferred Recover runs after close(done)
	deadline := time.Now().Add(5 * time.Second)
	for {
		data, _ := os.ReadFile(path)
		if strings.Contains(string(data), "PANIC in worker: worker failed") {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected panic to be logged, got %q", string(data))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestCaptureStderr redirects stderr in a child process so the test
// binary's own stderr is left alone.
func TestCaptureStderr(t *testing.T) {
	if path := os.Getenv("CONNWATCH_CAPTURE_LOG"); path != "" {
		if err := Init(Options{Path: path, Level: LevelInfo, CaptureStderr: true}); err != nil {
			fmt.Println("init:", err)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "written to stderr")
		Close()
		os.Exit(0)
	}

	path := filepath.Join(t.TempDir(), "captured.log")
	cmd := exec.Command(os.Args[0], "-test.run=^TestCaptureStderr$")
	cmd.Env = append(os.Environ(), "CONNWATCH_CAPTURE_LOG="+path)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("child failed: %v\n%s", err, out)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "written to stderr") {
		t.Errorf("stderr was not captured into the log file, got %q", string(data))
	}
}
