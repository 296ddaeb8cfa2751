package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yeganesereshgi/Demo-Experiment/internal/coords"
)

func TestEmptyConfigGetters(t *testing.T) {
	cfg := EmptyExperimentConfig()

	if cfg.GetWindowUnits() != coords.Norm {
		t.Errorf("GetWindowUnits() = %q, want norm", cfg.GetWindowUnits())
	}
	if cfg.GetShrinkSpeed() != 1.5 {
		t.Errorf("GetShrinkSpeed() = %f, want 1.5", cfg.GetShrinkSpeed())
	}
	if cfg.GetSettleDelay() != 500*time.Millisecond {
		t.Errorf("GetSettleDelay() = %v, want 500ms", cfg.GetSettleDelay())
	}
	if cfg.GetDecisionKey() != "space" || cfg.GetAbortKey() != "escape" {
		t.Errorf("keys = %q/%q", cfg.GetDecisionKey(), cfg.GetAbortKey())
	}
	if cfg.GetTimeDecimals() != 1 || cfg.GetValueDecimals() != 4 {
		t.Errorf("decimals = %d/%d", cfg.GetTimeDecimals(), cfg.GetValueDecimals())
	}
	if cfg.GetNaNToken() != "nan" {
		t.Errorf("GetNaNToken() = %q", cfg.GetNaNToken())
	}
	if cfg.GetFrameInterval() != time.Second/60 {
		t.Errorf("GetFrameInterval() = %v", cfg.GetFrameInterval())
	}
}

func TestDefaultsFileMatchesBuiltins(t *testing.T) {
	fromFile := MustLoadDefaultConfig()
	builtin := DefaultExperimentConfig()

	if diff := cmp.Diff(builtin, fromFile); diff != "" {
		t.Errorf("defaults file drifted from built-in defaults (-builtin +file):\n%s", diff)
	}
}

func TestDefaultExperimentConfigValidates(t *testing.T) {
	if err := DefaultExperimentConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestLoadExperimentConfig_Partial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	body := `{"window_units": "pix", "shrink_speed": 1.0, "settle_delay": "250ms"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadExperimentConfig(path)
	if err != nil {
		t.Fatalf("LoadExperimentConfig() error = %v", err)
	}
	if cfg.GetWindowUnits() != coords.Pix {
		t.Errorf("GetWindowUnits() = %q", cfg.GetWindowUnits())
	}
	if cfg.GetShrinkSpeed() != 1.0 {
		t.Errorf("GetShrinkSpeed() = %f", cfg.GetShrinkSpeed())
	}
	if cfg.GetSettleDelay() != 250*time.Millisecond {
		t.Errorf("GetSettleDelay() = %v", cfg.GetSettleDelay())
	}
	// Unset fields keep their defaults.
	if cfg.GetDisplayWidthPx() != 1920 {
		t.Errorf("GetDisplayWidthPx() = %d", cfg.GetDisplayWidthPx())
	}
}

func TestLoadExperimentConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("cfg.yaml", "{}"), ".json extension"},
		{"missing", filepath.Join(dir, "missing.json"), "failed to stat"},
		{"bad json", write("bad.json", "{"), "failed to parse"},
		{"bad units", write("units.json", `{"window_units": "furlong"}`), "window_units"},
		{"bad speed", write("speed.json", `{"shrink_speed": 0}`), "shrink_speed"},
		{"bad duration", write("dur.json", `{"min_away": "soon"}`), "min_away"},
		{"bad decimals", write("dec.json", `{"value_decimals": 12}`), "value_decimals"},
		{"too large", write("big.json", `{"data_file": "`+strings.Repeat("x", 1<<20)+`"}`), "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadExperimentConfig(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultExperimentConfigRoundTripsThroughJSON(t *testing.T) {
	data, err := json.Marshal(DefaultExperimentConfig())
	if err != nil {
		t.Fatal(err)
	}
	var back ExperimentConfig
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.GetTargetMinFraction() != 0.2 || back.GetToleranceRingPx() != 76.8 {
		t.Errorf("unexpected values after round trip: %+v", back)
	}
}
