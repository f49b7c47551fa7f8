package util

import (
	"log/slog"
	"reflect"
	"testing"
)

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("VANTALOOP_TEST_BOOL", "yes")
	if !ParseBoolEnv("VANTALOOP_TEST_BOOL", false) {
		t.Error("expected true for yes")
	}
	t.Setenv("VANTALOOP_TEST_BOOL", "maybe")
	if ParseBoolEnv("VANTALOOP_TEST_BOOL", false) {
		t.Error("invalid value should fall back to default")
	}
}

func TestGetEnvDefault(t *testing.T) {
	t.Setenv("VANTALOOP_TEST_VALUE", "  ")
	if got := GetEnvDefault("VANTALOOP_TEST_VALUE", "fallback"); got != "fallback" {
		t.Errorf("GetEnvDefault() = %q", got)
	}
	t.Setenv("VANTALOOP_TEST_VALUE", "set")
	if got := GetEnvDefault("VANTALOOP_TEST_VALUE", "fallback"); got != "set" {
		t.Errorf("GetEnvDefault() = %q", got)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList("+1555, +1666;\n+1777 ,,")
	want := []string{"+1555", "+1666", "+1777"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitList() = %v, want %v", got, want)
	}
	if len(SplitList("")) != 0 {
		t.Error("empty input should yield no entries")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
