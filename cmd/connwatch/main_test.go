package main

import (
	"os"
	"testing"

	"github.com/user/connwatch/internal/config"
	"github.com/user/connwatch/internal/logger"
)

func TestLogOptions(t *testing.T) {
	opts := logOptions(config.Logging{File: "/tmp/connwatch.log", Level: "debug"})
	if opts.Echo != os.Stderr {
		t.Error("log lines should be mirrored to stderr by default")
	}
	if opts.CaptureStderr {
		t.Error("stderr capture should be off by default")
	}
	if opts.Level != logger.LevelDebug || opts.Path != "/tmp/connwatch.log" {
		t.Errorf("unexpected options: %+v", opts)
	}

	opts = logOptions(config.Logging{Level: "info", CaptureStderr: true})
	if !opts.CaptureStderr {
		t.Error("capture_stderr should be passed through")
	}
	if opts.Echo != nil {
		t.Error("echo must be off while stderr is captured")
	}
}
