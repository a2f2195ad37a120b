// Package logger provides centralized logging for connwatch
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

// ParseLevel maps a config string to a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarning
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Options configures Init.
type Options struct {
	Path  string    // log file, empty = connwatch.log in the default log dir
	Level Level     // minimum level written
	Echo  io.Writer // optional second sink, usually os.Stderr

	// CaptureStderr redirects the process stderr into the log file so
	// runtime panics end up there. Echo must not be os.Stderr in that case.
	CaptureStderr bool
}

var (
	logFile  *os.File
	logMutex sync.Mutex
	logPath  string
	echo     io.Writer
	minLevel = LevelInfo
)

// Init initializes the logger
func Init(opts Options) error {
	logMutex.Lock()
	defer logMutex.Unlock()

	logPath = opts.Path
	if logPath == "" {
		logPath = filepath.Join(getLogDir(), "connwatch.log")
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	logFile = f
	echo = opts.Echo
	minLevel = opts.Level

	if opts.CaptureStderr {
		redirectStderr(f)
	}

	return nil
}

// Close closes the log file
func Close() {
	logMutex.Lock()
	defer logMutex.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	echo = nil
}

// Log writes a log message regardless of level
func Log(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%s] %s", timestamp, message)

	logMutex.Lock()
	if logFile != nil {
		logFile.WriteString(line + "\n")
		logFile.Sync()
	}
	if echo != nil {
		io.WriteString(echo, line+"\n")
	}
	logMutex.Unlock()
}

func logAt(level Level, prefix, format string, args ...interface{}) {
	logMutex.Lock()
	skip := level < minLevel
	logMutex.Unlock()
	if skip {
		return
	}
	Log(prefix+format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	logAt(LevelInfo, "INFO: ", format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	logAt(LevelError, "ERROR: ", format, args...)
}

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	logAt(LevelDebug, "DEBUG: ", format, args...)
}

// Warning logs a warning message
func Warning(format string, args ...interface{}) {
	logAt(LevelWarning, "WARN: ", format, args...)
}

// GetLogPath returns the path to the log file
func GetLogPath() string {
	return logPath
}

// Recover should be deferred at the top of every goroutine to catch panics.
// Usage: go func() { defer logger.Recover("myGoroutine"); ... }()
func Recover(name string) {
	if r := recover(); r != nil {
		logPanic(name, r)
	}
}

// RecoverInto is like Recover but also stores the panic as an error in *errp.
// It must be deferred directly.
func RecoverInto(name string, errp *error) {
	if r := recover(); r != nil {
		logPanic(name, r)
		if errp != nil {
			*errp = fmt.Errorf("panic in %s: %v", name, r)
		}
	}
}

func logPanic(name string, r interface{}) {
	stack := string(debug.Stack())
	msg := fmt.Sprintf("PANIC in %s: %v\n%s", name, r, stack)
	Error("%s", msg)
	// Also write directly to file in case Log() is broken
	logMutex.Lock()
	if logFile != nil {
		logFile.WriteString(fmt.Sprintf("[%s] FATAL PANIC: %s\n",
			time.Now().Format("2006-01-02 15:04:05"), msg))
		logFile.Sync()
	}
	logMutex.Unlock()
}

// SafeGo launches a goroutine with panic recovery.
func SafeGo(name string, fn func()) {
	go func() {
		defer Recover(name)
		fn()
	}()
}
