// Package config loads go-gesture settings from gesture.yaml, GESTURE_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teslashibe/go-gesture/pkg/engine"
	"github.com/teslashibe/go-gesture/pkg/hardware"
	"github.com/teslashibe/go-gesture/pkg/interaction"
	"github.com/teslashibe/go-gesture/pkg/store"
	"github.com/teslashibe/go-gesture/pkg/transcript"
)

// EnvPrefix prefixes every environment override, e.g. GESTURE_SERVER_PORT.
const EnvPrefix = "GESTURE"

// Config is the full process configuration.
type Config struct {
	LogLevel  string         `mapstructure:"log_level"`
	Server    ServerConfig   `mapstructure:"server"`
	Store     StoreConfig    `mapstructure:"store"`
	Relay     RelayConfig    `mapstructure:"relay"`
	Speech    SpeechConfig   `mapstructure:"speech"`
	Bridge    BridgeConfig   `mapstructure:"bridge"`
	Responses string         `mapstructure:"responses"` // YAML gesture response library
	Engine    EngineConfig   `mapstructure:"engine"`
	Commands  CommandsConfig `mapstructure:"commands"`
	Announce  AnnounceConfig `mapstructure:"announce"`
	Modes     ModesConfig    `mapstructure:"modes"`
}

// ServerConfig configures the operator API.
type ServerConfig struct {
	Port      string `mapstructure:"port"`
	StaticDir string `mapstructure:"static_dir"`
}

// StoreConfig configures preference persistence. An empty path disables it.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// RelayConfig configures the serial relay board. An empty port disables it.
type RelayConfig struct {
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`
}

// SpeechConfig configures the speech-to-text collaborator.
type SpeechConfig struct {
	URL        string        `mapstructure:"url"`
	MinBackoff time.Duration `mapstructure:"min_backoff"`
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
}

// BridgeConfig configures the HTTP device bridge. Without a URL speech is
// only logged.
type BridgeConfig struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// EngineConfig holds stabilization and session parameters.
type EngineConfig struct {
	WindowSize      int           `mapstructure:"window_size"`
	MinStableFrames int           `mapstructure:"min_stable_frames"`
	StabilityFactor float64       `mapstructure:"stability_factor"`
	ComboTimeout    time.Duration `mapstructure:"combo_timeout"`
	Context         string        `mapstructure:"context"`
	DetectContext   bool          `mapstructure:"detect_context"`
}

// CommandsConfig holds the voice command gates.
type CommandsConfig struct {
	MinConfidence float64       `mapstructure:"min_confidence"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
}

// AnnounceConfig holds the announcement gates.
type AnnounceConfig struct {
	Cooldown           time.Duration `mapstructure:"cooldown"`
	MinConfidence      float64       `mapstructure:"min_confidence"`
	OverrideConfidence float64       `mapstructure:"override_confidence"`
}

// ModesConfig holds the mode switching gate.
type ModesConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence"`
}

// New returns a viper instance with defaults and environment binding set.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the stock values.
func SetDefaults(v *viper.Viper) {
	d := engine.DefaultConfig()
	relay := hardware.DefaultConfig()
	speech := transcript.DefaultWSConfig("")

	v.SetDefault("log_level", "info")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.static_dir", "")
	v.SetDefault("store.path", store.DefaultPath())
	v.SetDefault("relay.port", "")
	v.SetDefault("relay.baud_rate", relay.BaudRate)
	v.SetDefault("speech.url", "")
	v.SetDefault("speech.min_backoff", speech.MinBackoff)
	v.SetDefault("speech.max_backoff", speech.MaxBackoff)
	v.SetDefault("bridge.url", "")
	v.SetDefault("bridge.timeout", 5*time.Second)
	v.SetDefault("bridge.max_retries", 1)
	v.SetDefault("responses", "")

	v.SetDefault("engine.window_size", d.Stabilizer.WindowSize)
	v.SetDefault("engine.min_stable_frames", d.Stabilizer.MinStableFrames)
	v.SetDefault("engine.stability_factor", d.Stabilizer.StabilityFactor)
	v.SetDefault("engine.combo_timeout", d.ComboTimeout)
	v.SetDefault("engine.context", string(d.InitialContext))
	v.SetDefault("engine.detect_context", false)

	v.SetDefault("commands.min_confidence", d.Command.MinConfidence)
	v.SetDefault("commands.cooldown", d.Command.Cooldown)

	v.SetDefault("announce.cooldown", d.Announce.BaseCooldown)
	v.SetDefault("announce.min_confidence", d.Announce.MinConfidence)
	v.SetDefault("announce.override_confidence", d.Announce.OverrideConfidence)

	v.SetDefault("modes.min_confidence", d.Mode.MinConfidence)
}

// Load reads the config file at path, or searches ./gesture.yaml and
// $HOME/.gesture/gesture.yaml when path is empty. A missing file is not an
// error; environment variables and defaults still apply.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gesture")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".gesture"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a component.
func (c Config) Validate() error {
	if c.Engine.WindowSize < 1 {
		return fmt.Errorf("config: engine.window_size must be positive, got %d", c.Engine.WindowSize)
	}
	if c.Engine.MinStableFrames < 1 || c.Engine.MinStableFrames > c.Engine.WindowSize {
		return fmt.Errorf("config: engine.min_stable_frames must be within [1, %d], got %d",
			c.Engine.WindowSize, c.Engine.MinStableFrames)
	}
	if _, err := interaction.ParseContext(c.Engine.Context); err != nil {
		return fmt.Errorf("config: engine.context: %w", err)
	}
	return nil
}

// EngineConfig converts the settings into an engine configuration.
func (c Config) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Stabilizer.WindowSize = c.Engine.WindowSize
	cfg.Stabilizer.MinStableFrames = c.Engine.MinStableFrames
	cfg.Stabilizer.StabilityFactor = c.Engine.StabilityFactor
	cfg.ComboTimeout = c.Engine.ComboTimeout
	if ic, err := interaction.ParseContext(c.Engine.Context); err == nil {
		cfg.InitialContext = ic
	}
	cfg.DetectContext = c.Engine.DetectContext

	cfg.Command.MinConfidence = c.Commands.MinConfidence
	cfg.Command.Cooldown = c.Commands.Cooldown

	cfg.Announce.BaseCooldown = c.Announce.Cooldown
	cfg.Announce.MinConfidence = c.Announce.MinConfidence
	cfg.Announce.OverrideConfidence = c.Announce.OverrideConfidence

	cfg.Mode.MinConfidence = c.Modes.MinConfidence
	return cfg
}

// RelayConfig returns the serial settings for the relay board.
func (c Config) RelayConfig() hardware.Config {
	cfg := hardware.DefaultConfig()
	cfg.Port = c.Relay.Port
	if c.Relay.BaudRate > 0 {
		cfg.BaudRate = c.Relay.BaudRate
	}
	return cfg
}

// SpeechConfig returns the speech-to-text client settings.
func (c Config) SpeechConfig() transcript.WSConfig {
	cfg := transcript.DefaultWSConfig(c.Speech.URL)
	if c.Speech.MinBackoff > 0 {
		cfg.MinBackoff = c.Speech.MinBackoff
	}
	if c.Speech.MaxBackoff > 0 {
		cfg.MaxBackoff = c.Speech.MaxBackoff
	}
	return cfg
}
