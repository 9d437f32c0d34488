package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestFromContext_PrefersRequestLogger(t *testing.T) {
	var reqBuf, rootBuf bytes.Buffer
	root := zerolog.New(&rootBuf)
	reqLogger := zerolog.New(&reqBuf).With().Str("request_id", "abc").Logger()

	ctx := reqLogger.WithContext(context.Background())
	FromContext(ctx, root).Info().Msg("hello")

	if rootBuf.Len() != 0 {
		t.Fatalf("expected root logger untouched")
	}
	var line map[string]interface{}
	if err := json.Unmarshal(reqBuf.Bytes(), &line); err != nil {
		t.Fatalf("invalid json log line: %v", err)
	}
	if line["request_id"] != "abc" {
		t.Fatalf("expected request_id in line, got %v", line)
	}
}

func TestFromContext_FallsBackWithoutLogger(t *testing.T) {
	var buf bytes.Buffer
	FromContext(context.Background(), zerolog.New(&buf)).Info().Msg("hello")
	if buf.Len() == 0 {
		t.Fatalf("expected fallback logger to be used")
	}
}
