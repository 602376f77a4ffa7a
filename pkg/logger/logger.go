// Package logger provides component-tagged leveled logging for VoxBill.
// Every subsystem logs through a short component name ("bot", "api", "flow")
// so multi-bot output stays greppable.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level controls which messages are emitted.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu       sync.RWMutex
	minLevel = LevelInfo
	out      = log.New(os.Stdout, "", log.Ldate|log.Ltime)
)

// Init configures the log level and an optional log directory. When logDir is
// non-empty a daily log file is opened and output goes to both stdout and the
// file.
func Init(level Level, logDir string) error {
	mu.Lock()
	defer mu.Unlock()

	minLevel = level

	if logDir == "" {
		return nil
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	name := filepath.Join(logDir, fmt.Sprintf("voxbill_%s.log", time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	out = log.New(io.MultiWriter(os.Stdout, f), "", log.Ldate|log.Ltime)
	return nil
}

// ParseLevel maps a config string to a Level. Unknown strings default to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func emit(level Level, tag, component, msg string, fields map[string]interface{}) {
	mu.RLock()
	logger := out
	min := minLevel
	mu.RUnlock()

	if level < min {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", tag, component, msg)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	logger.Output(3, b.String())
}

// DebugC logs a debug message for a component.
func DebugC(component, msg string) { emit(LevelDebug, "DEBUG", component, msg, nil) }

// DebugCF logs a debug message with structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	emit(LevelDebug, "DEBUG", component, msg, fields)
}

// InfoC logs an info message for a component.
func InfoC(component, msg string) { emit(LevelInfo, "INFO", component, msg, nil) }

// InfoCF logs an info message with structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	emit(LevelInfo, "INFO", component, msg, fields)
}

// WarnC logs a warning for a component.
func WarnC(component, msg string) { emit(LevelWarn, "WARN", component, msg, nil) }

// WarnCF logs a warning with structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	emit(LevelWarn, "WARN", component, msg, fields)
}

// ErrorC logs an error for a component.
func ErrorC(component, msg string) { emit(LevelError, "ERROR", component, msg, nil) }

// ErrorCF logs an error with structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	emit(LevelError, "ERROR", component, msg, fields)
}
