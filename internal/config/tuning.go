// Package config loads the tunable parameters that govern confidence
// decay, warm-up, and silence handling in the disambiguator. The
// schedule geometry and protocol constants (cycle length, acode bucket
// widths) are not here: those are bit-exact with the hardware and live
// as constants in the schedule and pulse packages. What's here is the
// handful of values the design notes call out as genuinely tunable.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the disambiguator's runtime-tunable parameters.
// Every field is a pointer so a partial JSON document only overrides
// what it mentions; the Get* accessors fall back to the hardware
// defaults documented in the spec for anything left nil.
type TuningConfig struct {
	// WarmupEvents is how many capture events are discarded at startup
	// while the upstream USB stream stabilises.
	WarmupEvents *int `json:"warmup_events,omitempty"`

	// FailureWarnEvery logs a warning and resets the failure counter
	// after this many consecutive failed lock attempts.
	FailureWarnEvery *int `json:"failure_warn_every,omitempty"`

	// TimebaseHz is the tick rate of the monotonic counter, used to
	// convert a silence gap in ticks into seconds for confidence decay.
	TimebaseHz *int64 `json:"timebase_hz,omitempty"`

	// SilencePenaltyPerSecond is charged against confidence per whole
	// second of silence once a gap exceeds one timebase period.
	SilencePenaltyPerSecond *int `json:"silence_penalty_per_second,omitempty"`

	// LengthErrorConfidencePenalty is charged against confidence when a
	// sync's decoded length error exceeds LengthErrorThreshold.
	LengthErrorConfidencePenalty *int `json:"length_error_confidence_penalty,omitempty"`

	// LengthErrorThreshold is the tick error above which a sync is
	// considered inconsistent with its expected acode length.
	LengthErrorThreshold *int `json:"length_error_threshold,omitempty"`

	// LossOfLockFloor is the confidence value below which the tracker
	// gives up and reverts to UNKNOWN.
	LossOfLockFloor *int `json:"loss_of_lock_floor,omitempty"`

	// EmitConfidenceThreshold is the confidence value a tracker must
	// exceed before lightproc records are emitted downstream.
	EmitConfidenceThreshold *int `json:"emit_confidence_threshold,omitempty"`

	// ConfidenceCap is the maximum value confidence is clamped to.
	ConfidenceCap *int `json:"confidence_cap,omitempty"`

	// DriftWarnThreshold is the tick delta between a sync re-anchor and
	// the previous mod_offset above which a drift warning is logged.
	DriftWarnThreshold *int `json:"drift_warn_threshold,omitempty"`

	// SweepConfidencePenalty is charged against confidence when a sweep
	// phase sees a pulse longer than SweepConfidencePenaltyLength.
	SweepConfidencePenalty *int `json:"sweep_confidence_penalty,omitempty"`

	// SweepConfidencePenaltyLength is the tick length above which a
	// sweep-phase pulse is implausibly long for a sweep crossing.
	SweepConfidencePenaltyLength *int `json:"sweep_confidence_penalty_length,omitempty"`
}

// Helper functions to create pointers.
func ptrInt(v int) *int     { return &v }
func ptrInt64(v int64) *int64 { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and be under the max file size. Fields omitted
// from the JSON retain their default values, so partial configs are
// safe to hand-write.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching from the current directory up through
// common parent directories. Panics if the file cannot be found;
// intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that set fields hold structurally sane values.
func (c *TuningConfig) Validate() error {
	if c.WarmupEvents != nil && *c.WarmupEvents < 0 {
		return fmt.Errorf("warmup_events must be non-negative, got %d", *c.WarmupEvents)
	}
	if c.FailureWarnEvery != nil && *c.FailureWarnEvery <= 0 {
		return fmt.Errorf("failure_warn_every must be positive, got %d", *c.FailureWarnEvery)
	}
	if c.TimebaseHz != nil && *c.TimebaseHz <= 0 {
		return fmt.Errorf("timebase_hz must be positive, got %d", *c.TimebaseHz)
	}
	if c.ConfidenceCap != nil && *c.ConfidenceCap <= 0 {
		return fmt.Errorf("confidence_cap must be positive, got %d", *c.ConfidenceCap)
	}
	if c.EmitConfidenceThreshold != nil && c.ConfidenceCap != nil && *c.EmitConfidenceThreshold > *c.ConfidenceCap {
		return fmt.Errorf("emit_confidence_threshold (%d) must not exceed confidence_cap (%d)", *c.EmitConfidenceThreshold, *c.ConfidenceCap)
	}
	return nil
}

// GetWarmupEvents returns the warmup_events value or the spec default.
func (c *TuningConfig) GetWarmupEvents() int {
	if c.WarmupEvents == nil {
		return 200
	}
	return *c.WarmupEvents
}

// GetFailureWarnEvery returns the failure_warn_every value or the spec default.
func (c *TuningConfig) GetFailureWarnEvery() int {
	if c.FailureWarnEvery == nil {
		return 1000
	}
	return *c.FailureWarnEvery
}

// GetTimebaseHz returns the timebase_hz value or the spec default (48MHz).
func (c *TuningConfig) GetTimebaseHz() int64 {
	if c.TimebaseHz == nil {
		return 48_000_000
	}
	return *c.TimebaseHz
}

// GetSilencePenaltyPerSecond returns the silence_penalty_per_second value or the spec default.
func (c *TuningConfig) GetSilencePenaltyPerSecond() int {
	if c.SilencePenaltyPerSecond == nil {
		return 10
	}
	return *c.SilencePenaltyPerSecond
}

// GetLengthErrorConfidencePenalty returns the length_error_confidence_penalty value or the spec default.
func (c *TuningConfig) GetLengthErrorConfidencePenalty() int {
	if c.LengthErrorConfidencePenalty == nil {
		return 3
	}
	return *c.LengthErrorConfidencePenalty
}

// GetLengthErrorThreshold returns the length_error_threshold value or the spec default.
func (c *TuningConfig) GetLengthErrorThreshold() int {
	if c.LengthErrorThreshold == nil {
		return 1250
	}
	return *c.LengthErrorThreshold
}

// GetLossOfLockFloor returns the loss_of_lock_floor value or the spec default.
func (c *TuningConfig) GetLossOfLockFloor() int {
	if c.LossOfLockFloor == nil {
		return 3
	}
	return *c.LossOfLockFloor
}

// GetEmitConfidenceThreshold returns the emit_confidence_threshold value or the spec default.
func (c *TuningConfig) GetEmitConfidenceThreshold() int {
	if c.EmitConfidenceThreshold == nil {
		return 80
	}
	return *c.EmitConfidenceThreshold
}

// GetConfidenceCap returns the confidence_cap value or the spec default.
func (c *TuningConfig) GetConfidenceCap() int {
	if c.ConfidenceCap == nil {
		return 100
	}
	return *c.ConfidenceCap
}

// GetDriftWarnThreshold returns the drift_warn_threshold value or the spec default.
func (c *TuningConfig) GetDriftWarnThreshold() int {
	if c.DriftWarnThreshold == nil {
		return 100
	}
	return *c.DriftWarnThreshold
}

// GetSweepConfidencePenalty returns the sweep_confidence_penalty value or the spec default.
func (c *TuningConfig) GetSweepConfidencePenalty() int {
	if c.SweepConfidencePenalty == nil {
		return 1
	}
	return *c.SweepConfidencePenalty
}

// GetSweepConfidencePenaltyLength returns the sweep_confidence_penalty_length value or the spec default.
func (c *TuningConfig) GetSweepConfidencePenaltyLength() int {
	if c.SweepConfidencePenaltyLength == nil {
		return 3000
	}
	return *c.SweepConfidencePenaltyLength
}
