package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestProperty_LogsAreStructured(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every entry is a JSON object with level, timestamp and message", prop.ForAll(
		func(message string, level string) bool {
			var buf bytes.Buffer
			logger := NewWithWriter(&buf, zapcore.DebugLevel)

			switch level {
			case "debug":
				logger.Debug(message)
			case "warn":
				logger.Warn(message)
			case "error":
				logger.Error(message)
			default:
				logger.Info(message)
			}
			_ = logger.Sync()

			var entry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				return false
			}
			for _, key := range []string{"level", "timestamp", "message"} {
				if _, ok := entry[key]; !ok {
					return false
				}
			}
			return entry["message"] == message && entry["level"] == level
		},
		gen.AnyString(),
		gen.OneConstOf("debug", "info", "warn", "error"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_CheckoutFieldsAreKept(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("structured fields survive encoding", prop.ForAll(
		func(principal string, quantity int) bool {
			var buf bytes.Buffer
			logger := NewWithWriter(&buf, zapcore.InfoLevel)

			logger.Info("Order committed",
				zap.String("principal", principal),
				zap.Int("quantity", quantity),
			)

			var entry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				return false
			}
			return entry["principal"] == principal && entry["quantity"] == float64(quantity)
		},
		gen.AlphaString(),
		gen.IntRange(1, 10000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestErrorLogsIncludeStacktrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zapcore.DebugLevel)

	logger.Error("reservation release failed", zap.String("product_id", "p-1"))

	out := buf.String()
	if !strings.Contains(out, `"stacktrace"`) {
		t.Fatalf("expected stacktrace in error entry, got %s", out)
	}
	if !strings.Contains(out, `"product_id":"p-1"`) {
		t.Fatalf("expected product_id field, got %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zapcore.WarnLevel)

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info entry should be filtered at warn level, got %s", buf.String())
	}
}

func TestNewBuildsForEveryEnv(t *testing.T) {
	for _, env := range []string{"production", "development", "staging"} {
		logger, err := New(env)
		if err != nil {
			t.Fatalf("New(%q) failed: %v", env, err)
		}
		if logger == nil {
			t.Fatalf("New(%q) returned nil logger", env)
		}
	}
}
