package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func decode(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("invalid json %q: %v", b, err)
	}
	return m
}

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapterWithLogger(zerolog.New(&buf))

	l.Info("metrics",
		String("sock", "/tmp/x.sock"),
		Int("clients", 3),
		Uint64("n", 100),
		Float64("qps", 12.5),
		Bool("pinned", true),
		Duration("wait", 500*time.Millisecond),
		Err(errors.New("boom")),
		Any("dims", []int{1, 4}),
	)

	m := decode(t, buf.Bytes())
	want := map[string]any{
		"level":   "info",
		"message": "metrics",
		"sock":    "/tmp/x.sock",
		"clients": float64(3),
		"n":       float64(100),
		"qps":     12.5,
		"pinned":  true,
		"error":   "boom",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %v, want %v", k, m[k], v)
		}
	}
	if _, ok := m["wait"]; !ok {
		t.Error("duration field missing")
	}
	if _, ok := m["dims"]; !ok {
		t.Error("any field missing")
	}
}

func TestZerologAdapter_With(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapterWithLogger(zerolog.New(&buf))

	child := l.With(String("client", "abc"))
	child.Warn("read failed")

	m := decode(t, buf.Bytes())
	if m["client"] != "abc" || m["level"] != "warn" {
		t.Errorf("child entry = %v", m)
	}

	buf.Reset()
	l.Info("parent")
	if _, ok := decode(t, buf.Bytes())["client"]; ok {
		t.Error("With leaked fields into parent")
	}
}

func TestZerologAdapter_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapterWithLogger(zerolog.New(&buf).Level(zerolog.WarnLevel))

	l.Debug("hidden")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("entries below level written: %q", buf.String())
	}
	l.Error("shown")
	if decode(t, buf.Bytes())["message"] != "shown" {
		t.Error("error entry missing")
	}
}

func TestNoopLogger(t *testing.T) {
	var l Logger = NewNoopLogger()
	l.Info("x", String("k", "v"))
	if l.With(Int("n", 1)) == nil {
		t.Error("With returned nil")
	}
}
