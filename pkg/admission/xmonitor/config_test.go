package xmonitor

import (
	"errors"
	"testing"
	"time"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg, err := Config{}.withDefaults()
	if err != nil {
		t.Fatalf("withDefaults failed: %v", err)
	}

	if len(cfg.Thresholds) != 3 {
		t.Fatalf("thresholds = %d, want 3 defaults", len(cfg.Thresholds))
	}
	if cfg.Thresholds[0].Ratio != 0.70 || cfg.Thresholds[2].Ratio != 0.95 {
		t.Errorf("default thresholds not in ascending order: %+v", cfg.Thresholds)
	}
	if cfg.Cooldown != 5*time.Minute {
		t.Errorf("Cooldown = %v, want 5m", cfg.Cooldown)
	}
	if cfg.EventBufferSize != 10_000 || cfg.AlertBufferSize != 1_000 {
		t.Errorf("buffer sizes = %d/%d", cfg.EventBufferSize, cfg.AlertBufferSize)
	}
	if cfg.RapidCount != 10 || cfg.RapidWindow != time.Minute {
		t.Errorf("rapid defaults = %d/%v", cfg.RapidCount, cfg.RapidWindow)
	}
	if cfg.ProbeClasses != 5 || cfg.ProbeWindow != 5*time.Minute {
		t.Errorf("probe defaults = %d/%v", cfg.ProbeClasses, cfg.ProbeWindow)
	}
	if cfg.AuthEvents != 3 || cfg.AuthWindow != 5*time.Minute {
		t.Errorf("auth defaults = %d/%v", cfg.AuthEvents, cfg.AuthWindow)
	}
}

func TestConfig_ThresholdsSorted(t *testing.T) {
	cfg, err := Config{
		Thresholds: []ThresholdRule{
			{Ratio: 0.95, Severity: SeverityHigh},
			{Ratio: 0.50, Severity: SeverityLow},
			{Ratio: 0.80, Severity: SeverityMedium},
		},
	}.withDefaults()
	if err != nil {
		t.Fatalf("withDefaults failed: %v", err)
	}

	for i := 1; i < len(cfg.Thresholds); i++ {
		if cfg.Thresholds[i-1].Ratio > cfg.Thresholds[i].Ratio {
			t.Fatalf("thresholds not sorted: %+v", cfg.Thresholds)
		}
	}
}

func TestConfig_InvalidThreshold(t *testing.T) {
	for _, ratio := range []float64{0, -0.5, 1.5} {
		_, err := Config{Thresholds: []ThresholdRule{{Ratio: ratio, Severity: SeverityLow}}}.withDefaults()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("ratio %v: err = %v, want ErrInvalidConfig", ratio, err)
		}
	}
}
