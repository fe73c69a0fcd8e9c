package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-gesture/pkg/interaction"
)

func TestLoad_Defaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Expected port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Engine.WindowSize != 5 || cfg.Engine.MinStableFrames != 3 {
		t.Errorf("Unexpected stabilizer defaults %+v", cfg.Engine)
	}
	if cfg.Commands.Cooldown != 500*time.Millisecond {
		t.Errorf("Expected 500ms command cooldown, got %v", cfg.Commands.Cooldown)
	}

	ec := cfg.EngineConfig()
	if ec.InitialContext != interaction.Casual {
		t.Errorf("Expected casual context, got %q", ec.InitialContext)
	}
	if ec.Announce.BaseCooldown != time.Second {
		t.Errorf("Expected 1s cooldown, got %v", ec.Announce.BaseCooldown)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gesture.yaml")
	yaml := `
server:
  port: "9000"
engine:
  window_size: 7
  min_stable_frames: 4
  context: gaming
announce:
  cooldown: 2s
relay:
  port: /dev/ttyACM0
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GESTURE_SERVER_PORT", "9100")
	t.Setenv("GESTURE_COMMANDS_COOLDOWN", "250ms")

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9100" {
		t.Errorf("Env should override file, got port %q", cfg.Server.Port)
	}
	if cfg.Commands.Cooldown != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", cfg.Commands.Cooldown)
	}

	ec := cfg.EngineConfig()
	if ec.Stabilizer.WindowSize != 7 || ec.Stabilizer.MinStableFrames != 4 {
		t.Errorf("Unexpected stabilizer config %+v", ec.Stabilizer)
	}
	if ec.InitialContext != interaction.Gaming {
		t.Errorf("Expected gaming, got %q", ec.InitialContext)
	}
	if ec.Announce.BaseCooldown != 2*time.Second {
		t.Errorf("Expected 2s, got %v", ec.Announce.BaseCooldown)
	}

	rc := cfg.RelayConfig()
	if rc.Port != "/dev/ttyACM0" || rc.BaudRate != 9600 {
		t.Errorf("Unexpected relay config %+v", rc)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero window", func(c *Config) { c.Engine.WindowSize = 0 }},
		{"frames above window", func(c *Config) { c.Engine.MinStableFrames = 9 }},
		{"unknown context", func(c *Config) { c.Engine.Context = "party" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			if err := New().Unmarshal(&cfg); err != nil {
				t.Fatal(err)
			}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Defaults should validate: %v", err)
			}
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestSpeechConfig(t *testing.T) {
	cfg := Config{Speech: SpeechConfig{URL: "ws://stt.local/stream", MaxBackoff: 3 * time.Second}}
	sc := cfg.SpeechConfig()
	if sc.URL != "ws://stt.local/stream" || sc.MaxBackoff != 3*time.Second {
		t.Errorf("Unexpected speech config %+v", sc)
	}
	if sc.MinBackoff != 500*time.Millisecond {
		t.Errorf("Expected default min backoff, got %v", sc.MinBackoff)
	}
}
