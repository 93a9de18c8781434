package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/d4l3k/messagediff"
)

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	data := "listen: \":9000\"\nmaxBufferSize: 2048\nmaxSendKiBps: 512\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultConfig()
	want.Listen = ":9000"
	want.MaxBufferSize = 2048
	want.MaxSendKiBps = 512
	if diff, equal := messagediff.PrettyDiff(want, cfg); !equal {
		t.Fatalf("config:\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("maxBufferSize: [1, 2]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("bad yaml accepted")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*Config)
	}{
		{"no listen", func(c *Config) { c.Listen = "" }},
		{"no data dir", func(c *Config) { c.DataDir = "" }},
		{"zero buffer", func(c *Config) { c.MaxBufferSize = 0 }},
		{"zero chunk", func(c *Config) { c.MinChunkSize = 0 }},
		{"inverted chunks", func(c *Config) { c.MinChunkSize, c.MaxChunkSize = 10, 5 }},
		{"zero line", func(c *Config) { c.MaxLineLength = 0 }},
		{"zero queue", func(c *Config) { c.PushQueueSize = 0 }},
		{"cost", func(c *Config) { c.PasswordCost = 1 }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.modify(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: accepted", tc.name)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
}

func TestCLIOverrides(t *testing.T) {
	params := cli{Listen: ":7000", DataDir: "/tmp/x", NoAPI: true}
	cfg, err := params.config()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":7000" || cfg.DataDir != "/tmp/x" || cfg.APIListen != "" {
		t.Fatalf("config %+v", cfg)
	}
	if cfg.MaxChunkSize != 100<<10 {
		t.Fatalf("max chunk size %d", cfg.MaxChunkSize)
	}
}
