package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestNamedAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(LoggingConfig{Level: "debug", Format: "json"})
	log.Logger.SetOutput(&buf)

	log.Named("drills").Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["component"] != "drills" {
		t.Fatalf("expected component field, got %v", line["component"])
	}
}

func TestFromContextCarriesIDs(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithUser(ctx, "user-1", "admin")

	entry := Discard().FromContext(ctx)
	if entry.Data["trace_id"] != "trace-1" || entry.Data["user_id"] != "user-1" {
		t.Fatalf("unexpected fields: %v", entry.Data)
	}
	if Role(ctx) != "admin" {
		t.Fatalf("expected admin role, got %q", Role(ctx))
	}
}

func TestLogRequestLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(LoggingConfig{Level: "info", Format: "json"})
	log.Logger.SetOutput(&buf)

	log.LogRequest(context.Background(), http.MethodGet, "/drills", 503, time.Millisecond)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["level"] != logrus.ErrorLevel.String() {
		t.Fatalf("expected error level, got %v", line["level"])
	}
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	log := New(LoggingConfig{Level: "loud"})
	if log.Logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", log.Logger.GetLevel())
	}
}
