package cfg

import (
	"errors"
	"testing"
	"time"
)

type driverSettings struct {
	Addr    string        `mapstructure:"addr"`
	PoolMax int           `mapstructure:"pool_max"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func (s *driverSettings) ApplyDefaults() {
	if s.PoolMax == 0 {
		s.PoolMax = 4
	}
}

func (s *driverSettings) Validate() error {
	if s.Addr == "" {
		return errors.New("addr is required")
	}
	return nil
}

func TestDecode_AppliesDefaultsAndHooks(t *testing.T) {
	input := map[string]any{
		"addr":    "localhost:6379",
		"timeout": "250ms",
	}

	var s driverSettings
	if err := Decode(input, &s); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if s.PoolMax != 4 {
		t.Errorf("PoolMax = %d, want default 4", s.PoolMax)
	}
	if s.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v, want 250ms", s.Timeout)
	}
}

func TestDecode_WeakTyping(t *testing.T) {
	// TOML integers arrive as int64, env-style values as strings.
	input := map[string]any{
		"addr":     "x",
		"pool_max": "9",
	}
	var s driverSettings
	if err := Decode(input, &s); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if s.PoolMax != 9 {
		t.Errorf("PoolMax = %d, want 9", s.PoolMax)
	}
}

func TestDecode_ValidateRuns(t *testing.T) {
	var s driverSettings
	if err := Decode(nil, &s); err == nil {
		t.Fatal("expected validation error for missing addr")
	}
}

func TestDecodeWithUnused_ReportsSortedKeys(t *testing.T) {
	input := map[string]any{
		"addr":  "x",
		"zeta":  1,
		"alpha": 2,
	}
	var s driverSettings
	unused, err := DecodeWithUnused(input, &s)
	if err != nil {
		t.Fatalf("DecodeWithUnused failed: %v", err)
	}
	if len(unused) != 2 || unused[0] != "alpha" || unused[1] != "zeta" {
		t.Errorf("unused = %v, want [alpha zeta]", unused)
	}
}

func TestSubMap(t *testing.T) {
	m := map[string]any{
		"redis": map[string]any{"addr": "x"},
		"bad":   "string",
	}
	if got := SubMap(m, "redis"); got["addr"] != "x" {
		t.Errorf("SubMap(redis) = %v", got)
	}
	if got := SubMap(m, "bad"); got != nil {
		t.Errorf("SubMap(bad) = %v, want nil", got)
	}
	if got := SubMap(nil, "redis"); got != nil {
		t.Errorf("SubMap(nil) = %v, want nil", got)
	}
}
