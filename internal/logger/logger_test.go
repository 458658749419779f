package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("New() level = %v, want info", log.GetLevel())
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Str("build_id", "b-1").Msg("index built")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "index built" || entry["build_id"] != "b-1" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantLevel zerolog.Level
		wantJSON  bool
		wantErr   bool
	}{
		{"defaults", "", "", zerolog.InfoLevel, false, false},
		{"debug console", "DEBUG", "console", zerolog.DebugLevel, false, false},
		{"warn json", "warn", "json", zerolog.WarnLevel, true, false},
		{"bad level", "loud", "json", 0, false, true},
		{"bad format", "info", "xml", 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			log, err := NewFromConfig(tt.level, tt.format, buf)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if log.GetLevel() != tt.wantLevel {
				t.Errorf("level = %v, want %v", log.GetLevel(), tt.wantLevel)
			}
			log.Error().Msg("probe")
			isJSON := strings.HasPrefix(strings.TrimSpace(buf.String()), "{")
			if isJSON != tt.wantJSON {
				t.Errorf("JSON output = %v, want %v: %q", isJSON, tt.wantJSON, buf.String())
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestFromContextOr(t *testing.T) {
	fromCtx := &bytes.Buffer{}
	fallback := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(fromCtx))

	log := FromContextOr(ctx, NewWithWriter(fallback))
	log.Info().Msg("scoped")
	log = FromContextOr(context.Background(), NewWithWriter(fallback))
	log.Info().Msg("fallback")

	if !bytes.Contains(fromCtx.Bytes(), []byte("scoped")) {
		t.Error("Expected context logger to receive the first line")
	}
	if !bytes.Contains(fallback.Bytes(), []byte("fallback")) || bytes.Contains(fallback.Bytes(), []byte("scoped")) {
		t.Errorf("Unexpected fallback output: %s", fallback.String())
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]any{
		"user_id": "user_1",
		"records": 200,
	})
	log.Info().Msg("search")

	out := buf.String()
	if !strings.Contains(out, `"user_id":"user_1"`) || !strings.Contains(out, `"records":200`) {
		t.Errorf("Expected fields in output, got: %s", out)
	}
}
