package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsFile(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	if cfg.WarmupEvents == nil {
		t.Fatal("WarmupEvents must be set")
	}
	if cfg.TimebaseHz == nil {
		t.Fatal("TimebaseHz must be set")
	}
	if cfg.EmitConfidenceThreshold == nil {
		t.Fatal("EmitConfidenceThreshold must be set")
	}

	if *cfg.WarmupEvents < 0 {
		t.Errorf("WarmupEvents must be non-negative, got %d", *cfg.WarmupEvents)
	}
	if *cfg.TimebaseHz <= 0 {
		t.Errorf("TimebaseHz must be positive, got %d", *cfg.TimebaseHz)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must pass Validate(): %v", err)
	}
}

func TestEmptyTuningConfig(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.WarmupEvents != nil {
		t.Error("Expected WarmupEvents to be nil")
	}
	if cfg.TimebaseHz != nil {
		t.Error("Expected TimebaseHz to be nil")
	}

	// Getters must still return the spec defaults on a nil-everything config.
	if cfg.GetWarmupEvents() != 200 {
		t.Errorf("GetWarmupEvents() = %d, want 200", cfg.GetWarmupEvents())
	}
	if cfg.GetTimebaseHz() != 48_000_000 {
		t.Errorf("GetTimebaseHz() = %d, want 48000000", cfg.GetTimebaseHz())
	}
	if cfg.GetEmitConfidenceThreshold() != 80 {
		t.Errorf("GetEmitConfidenceThreshold() = %d, want 80", cfg.GetEmitConfidenceThreshold())
	}
	if cfg.GetConfidenceCap() != 100 {
		t.Errorf("GetConfidenceCap() = %d, want 100", cfg.GetConfidenceCap())
	}
	if cfg.GetLossOfLockFloor() != 3 {
		t.Errorf("GetLossOfLockFloor() = %d, want 3", cfg.GetLossOfLockFloor())
	}
	if cfg.GetLengthErrorThreshold() != 1250 {
		t.Errorf("GetLengthErrorThreshold() = %d, want 1250", cfg.GetLengthErrorThreshold())
	}
	if cfg.GetDriftWarnThreshold() != 100 {
		t.Errorf("GetDriftWarnThreshold() = %d, want 100", cfg.GetDriftWarnThreshold())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "warmup_events": 50,
  "failure_warn_every": 500,
  "timebase_hz": 24000000,
  "emit_confidence_threshold": 90
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.WarmupEvents == nil || *cfg.WarmupEvents != 50 {
		t.Errorf("Expected WarmupEvents 50, got %v", cfg.WarmupEvents)
	}
	if cfg.FailureWarnEvery == nil || *cfg.FailureWarnEvery != 500 {
		t.Errorf("Expected FailureWarnEvery 500, got %v", cfg.FailureWarnEvery)
	}
	if cfg.GetTimebaseHz() != 24_000_000 {
		t.Errorf("Expected TimebaseHz 24000000, got %d", cfg.GetTimebaseHz())
	}
	// Fields omitted from the partial JSON fall back to spec defaults.
	if cfg.GetLossOfLockFloor() != 3 {
		t.Errorf("Expected fallback LossOfLockFloor 3, got %d", cfg.GetLossOfLockFloor())
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	invalidJSON := `{
  "warmup_events": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "valid config from defaults file",
			cfg:     MustLoadDefaultConfig(),
			wantErr: false,
		},
		{
			name:    "empty config is valid",
			cfg:     &TuningConfig{},
			wantErr: false,
		},
		{
			name: "negative warmup events",
			cfg: &TuningConfig{
				WarmupEvents: ptrInt(-1),
			},
			wantErr: true,
		},
		{
			name: "zero failure warn every",
			cfg: &TuningConfig{
				FailureWarnEvery: ptrInt(0),
			},
			wantErr: true,
		},
		{
			name: "non-positive timebase",
			cfg: &TuningConfig{
				TimebaseHz: ptrInt64(0),
			},
			wantErr: true,
		},
		{
			name: "emit threshold above confidence cap",
			cfg: &TuningConfig{
				EmitConfidenceThreshold: ptrInt(150),
				ConfidenceCap:           ptrInt(100),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("/some/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")

	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.defaults.json")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	if cfg.GetWarmupEvents() != 200 {
		t.Errorf("WarmupEvents = %d, want 200", cfg.GetWarmupEvents())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must pass Validate(): %v", err)
	}
}
