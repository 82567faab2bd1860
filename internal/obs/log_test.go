package obs

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerFiltersAndFormats(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json", Output: &buf}, "module", "gateway")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept", "store", "shop-assets-v1")

	var line map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected one json line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "kept" || line["store"] != "shop-assets-v1" || line["module"] != "gateway" {
		t.Fatalf("unexpected line %v", line)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(LogConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
