package ksched

import (
	"errors"
	"io/ioutil"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ksched.json")
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `{"mlfqs": true, "timer_freq": 50, "log_level": "trace"}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.MLFQS || cfg.TimerFreq != 50 || cfg.LogLevel != "trace" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.TimeSlice != DefaultTimeSlice {
		t.Errorf("time_slice = %d, want default %d", cfg.TimeSlice, DefaultTimeSlice)
	}
	if cfg.CheckDeadlock {
		t.Errorf("check_deadlock on by default")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		bad     bool
	}{
		{"slow timer", `{"timer_freq": 10}`, true},
		{"fast timer", `{"timer_freq": 5000}`, true},
		{"no slice", `{"time_slice": 0}`, true},
		{"not json", `mlfqs = true`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatalf("LoadConfig(%s) = nil error", tt.content)
			}
			if got := errors.Is(err, ErrBadConfig); got != tt.bad {
				t.Errorf("errors.Is(%v, ErrBadConfig) = %v, want %v", err, got, tt.bad)
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Errorf("LoadConfig(missing) = nil error")
	}
}

func TestNewOSBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeSlice = -1
	if _, err := NewOS(cfg); !errors.Is(err, ErrBadConfig) {
		t.Errorf("NewOS = %v, want ErrBadConfig", err)
	}
}

func TestSchedulerFromConfig(t *testing.T) {
	for _, mlfqs := range []bool{false, true} {
		os := newTestOS(t, mlfqs)
		want := "priority"
		if mlfqs {
			want = "mlfqs"
		}
		if got := os.Scheduler.Name(); got != want {
			t.Errorf("MLFQS=%v: scheduler %q, want %q", mlfqs, got, want)
		}
		if got := os.Scheduler.donation(); got == mlfqs {
			t.Errorf("MLFQS=%v: donation = %v", mlfqs, got)
		}
	}
}
