package config

import (
	"os"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv("taskd", ":8081")

	if cfg.AppName != "taskd" {
		t.Errorf("AppName = %q, want taskd", cfg.AppName)
	}
	if cfg.HTTPPort != ":8081" {
		t.Errorf("HTTPPort = %q, want :8081", cfg.HTTPPort)
	}
	if cfg.NSQ.NsqdTCPAddr != "nsqd:4150" {
		t.Errorf("NsqdTCPAddr = %q, want nsqd:4150", cfg.NSQ.NsqdTCPAddr)
	}
	if cfg.Sweep.Interval != 24*time.Hour {
		t.Errorf("Sweep.Interval = %v, want 24h", cfg.Sweep.Interval)
	}
	if cfg.Sweep.ApproachDays != 3 {
		t.Errorf("Sweep.ApproachDays = %d, want 3", cfg.Sweep.ApproachDays)
	}
	if cfg.Resolution.Timeout != 5*time.Second {
		t.Errorf("Resolution.Timeout = %v, want 5s", cfg.Resolution.Timeout)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	envs := map[string]string{
		"HTTP_PORT":           ":9999",
		"DB_HOST":             "db.internal",
		"NSQD_TCP_ADDR":       "broker:4150",
		"SWEEP_INTERVAL":      "1h",
		"SWEEP_APPROACH_DAYS": "7",
	}
	for k, v := range envs {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range envs {
			os.Unsetenv(k)
		}
	}()

	cfg := FromEnv("taskd", ":8081")

	if cfg.HTTPPort != ":9999" {
		t.Errorf("HTTPPort = %q, want :9999", cfg.HTTPPort)
	}
	if cfg.DB.Host != "db.internal" {
		t.Errorf("DB.Host = %q, want db.internal", cfg.DB.Host)
	}
	if cfg.NSQ.NsqdTCPAddr != "broker:4150" {
		t.Errorf("NsqdTCPAddr = %q, want broker:4150", cfg.NSQ.NsqdTCPAddr)
	}
	if cfg.Sweep.Interval != time.Hour {
		t.Errorf("Sweep.Interval = %v, want 1h", cfg.Sweep.Interval)
	}
	if cfg.Sweep.ApproachDays != 7 {
		t.Errorf("Sweep.ApproachDays = %d, want 7", cfg.Sweep.ApproachDays)
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := Config{DB: DB{
		User: "app",
		Pass: "s3cret",
		Host: "db",
		Port: "5433",
		Name: "taskman",
	}}

	want := "postgres://app:s3cret@db:5433/taskman?sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestGetenvDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{"unset returns default", "", time.Minute, time.Minute},
		{"valid duration", "90s", time.Minute, 90 * time.Second},
		{"invalid returns default", "ninety", time.Minute, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				os.Setenv("TEST_DURATION", tt.value)
				defer os.Unsetenv("TEST_DURATION")
			}
			if got := getenvDuration("TEST_DURATION", tt.def); got != tt.expected {
				t.Errorf("getenvDuration = %v, want %v", got, tt.expected)
			}
		})
	}
}
