package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "debug", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("decision changed", "service", "checkout", "environment", "prod")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "decision changed" || entry["service"] != "checkout" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("suppressed")
	logger.Warn("emitted")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Errorf("info line leaked through warn level: %s", out)
	}
	if !strings.Contains(out, "emitted") {
		t.Errorf("warn line missing: %s", out)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(Config{Level: "verbose"}); err == nil {
		t.Error("New accepted an unknown level")
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("New accepted an unknown format")
	}
}

func TestNew_Defaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("New with defaults failed: %v", err)
	}
	logger.Debug("below default level")
	if buf.Len() != 0 {
		t.Errorf("default level is not info: %s", buf.String())
	}
}
