package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"", slog.LevelInfo, true},
		{"INFO", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"loud", slog.LevelInfo, false},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q: expected %v, got %v (err=%v)", tc.in, tc.want, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q: expected error", tc.in)
		}
	}
}

func TestJSONLoggerCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: FormatJSON, Component: ComponentBudget, Output: &buf})
	l.Info("hello", FieldMeal, "lunch")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if rec[FieldComponent] != ComponentBudget || rec[FieldMeal] != "lunch" {
		t.Fatalf("unexpected record %v", rec)
	}
	if l.Component() != ComponentBudget {
		t.Fatalf("unexpected component %q", l.Component())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelWarn, Format: FormatText, Output: &buf})
	l.Info("dropped")
	l.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestPrettyHandler(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: FormatPretty, Output: &buf})
	l.Info("colored")
	if !strings.Contains(buf.String(), "colored") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestFieldsBuilder(t *testing.T) {
	f := NewFields().
		WithExpense("e1", "2024-03-04", "lunch", 120, "u1").
		WithError(errors.New("boom")).
		WithRequestID("")
	if f[FieldAmount] != int64(120) || f[FieldError] != "boom" {
		t.Fatalf("unexpected fields %v", f)
	}
	if _, ok := f[FieldRequestID]; ok {
		t.Fatal("empty request id should be omitted")
	}
	if len(f.ToSlice()) != 2*len(f) {
		t.Fatal("slice length mismatch")
	}
}
