package logging

import (
	"bytes"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestNewWithOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOutput(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("NewWithOutput: %v", err)
	}
	if logger.GetLevel() != log.DebugLevel {
		t.Errorf("level = %v, want debug", logger.GetLevel())
	}
	logger.WithFields(log.Fields{"market": "carrefour"}).Info("processed")
	if !strings.Contains(buf.String(), `"market":"carrefour"`) {
		t.Errorf("json output missing field: %s", buf.String())
	}
}

func TestNewDefaults(t *testing.T) {
	logger, err := NewWithOutput(&bytes.Buffer{}, "", "")
	if err != nil {
		t.Fatalf("NewWithOutput: %v", err)
	}
	if logger.GetLevel() != log.InfoLevel {
		t.Errorf("level = %v, want info", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*log.TextFormatter); !ok {
		t.Errorf("formatter = %T, want *TextFormatter", logger.Formatter)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := NewWithOutput(&bytes.Buffer{}, "loud", "text"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := NewWithOutput(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
