package configutil

import (
	"strings"
	"testing"
	"time"
)

type sampleSettings struct {
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	TimeoutMS int           `mapstructure:"timeout_ms"`
	TTL       time.Duration `mapstructure:"ttl"`
}

func TestLoadDecodesLooseKeys(t *testing.T) {
	var out sampleSettings
	err := Load(map[string]any{
		"API-Key":    "secret",
		"model":      "gemini-2.0-flash",
		"timeout_ms": "1500",
		"ttl":        "5m",
	}, Schema{Required: []string{"api_key"}, Optional: []string{"model", "timeout_ms", "ttl"}}, &out)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if out.APIKey != "secret" || out.Model != "gemini-2.0-flash" {
		t.Fatalf("unexpected decode: %+v", out)
	}
	if out.TimeoutMS != 1500 {
		t.Fatalf("expected weakly typed int, got %d", out.TimeoutMS)
	}
	if out.TTL != 5*time.Minute {
		t.Fatalf("expected duration hook, got %s", out.TTL)
	}
}

func TestValidateSettingsReportsMissingAndUnknown(t *testing.T) {
	err := ValidateSettings(map[string]any{"api_key": "  ", "colour": "red"},
		Schema{Required: []string{"api_key", "model"}})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "missing: api_key, model") {
		t.Fatalf("unexpected missing list: %s", msg)
	}
	if !strings.Contains(msg, "unknown: colour") {
		t.Fatalf("unexpected unknown list: %s", msg)
	}
}

func TestMillisAndStringOr(t *testing.T) {
	if Millis(0, time.Second) != time.Second {
		t.Fatalf("expected fallback")
	}
	if Millis(250, time.Second) != 250*time.Millisecond {
		t.Fatalf("expected 250ms")
	}
	if StringOr(" ", "en") != "en" || StringOr(" tw ", "en") != "tw" {
		t.Fatalf("unexpected StringOr result")
	}
}
