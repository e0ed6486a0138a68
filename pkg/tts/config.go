package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Default Gemini speech settings
const (
	DefaultModel = "gemini-2.5-flash-preview-tts"
	DefaultVoice = "Zephyr"
)

// Config represents the narration configuration
type Config struct {
	// Speech synthesis service settings
	Gemini GeminiConfig `yaml:"gemini" mapstructure:"gemini"`

	// Playback settings
	Playback PlaybackConfig `yaml:"playback" mapstructure:"playback"`

	// Audio output settings
	Audio AudioConfig `yaml:"audio" mapstructure:"audio"`

	// Synthesis cache settings
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Reading progress settings
	Progress ProgressConfig `yaml:"progress" mapstructure:"progress"`

	// Metrics settings
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// GeminiConfig holds speech service configuration. The API key is read
// from the environment only.
type GeminiConfig struct {
	Model string `yaml:"model" mapstructure:"model"`
	Voice string `yaml:"voice" mapstructure:"voice"`

	// Requests per minute sent to the service, 0 for unlimited
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`

	// Per-segment request timeout
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// Override of the API endpoint, mostly for testing
	BaseURL string `yaml:"base_url,omitempty" mapstructure:"base_url"`
}

// PlaybackConfig holds playback-related settings
type PlaybackConfig struct {
	// Soft segment length cap in characters
	SegmentLimit int `yaml:"segment_limit" mapstructure:"segment_limit"`

	// Emit the first sentence as its own segment
	FastStart bool `yaml:"fast_start" mapstructure:"fast_start"`

	// Segments synthesized ahead of playback
	Lookahead int `yaml:"lookahead" mapstructure:"lookahead"`

	// Delay before the first segment of a narration
	StartDelay time.Duration `yaml:"start_delay" mapstructure:"start_delay"`
}

// AudioConfig holds audio output settings
type AudioConfig struct {
	// auto, oto or mock
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Device buffer size, 0 for the platform default
	BufferSize time.Duration `yaml:"buffer_size" mapstructure:"buffer_size"`
}

// CacheConfig holds cache-related settings
type CacheConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Cache directory (defaults to the user cache dir)
	Dir string `yaml:"dir" mapstructure:"dir"`

	MemoryMB int `yaml:"memory_mb" mapstructure:"memory_mb"`
	DiskMB   int `yaml:"disk_mb" mapstructure:"disk_mb"`

	// zstd level, 1 (fastest) to 4 (best)
	CompressionLevel int `yaml:"compression_level" mapstructure:"compression_level"`

	// Entries older than this many days are removed
	TTLDays int `yaml:"ttl_days" mapstructure:"ttl_days"`
}

// ProgressConfig holds reading progress settings
type ProgressConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// SQLite database path (defaults to the user data dir)
	Path string `yaml:"path" mapstructure:"path"`
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	// Address for the Prometheus endpoint, empty to disable
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Gemini: GeminiConfig{
			Model:             DefaultModel,
			Voice:             DefaultVoice,
			RequestsPerMinute: 0,
			Timeout:           30 * time.Second,
		},
		Playback: PlaybackConfig{
			SegmentLimit: DefaultSegmentLimit,
			FastStart:    false,
			Lookahead:    0,
			StartDelay:   DefaultSchedulerConfig().StartDelay,
		},
		Audio: AudioConfig{
			Backend: "auto",
		},
		Cache: CacheConfig{
			Enabled:          true,
			MemoryMB:         32,
			DiskMB:           512,
			CompressionLevel: 2,
			TTLDays:          30,
		},
		Progress: ProgressConfig{
			Enabled: true,
		},
	}
}

// LoadConfig reads the configuration from v on top of the defaults.
// Relative and ~ paths are expanded.
func LoadConfig(v *viper.Viper) (*Config, error) {
	config := DefaultConfig()
	if v != nil {
		if err := v.UnmarshalKey("tts", config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	var err error
	if config.Cache.Dir, err = expandPath(config.Cache.Dir); err != nil {
		return nil, err
	}
	if config.Progress.Path, err = expandPath(config.Progress.Path); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	log.Debug("Loaded narration configuration", "model", config.Gemini.Model, "voice", config.Gemini.Voice)
	return config, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("failed to expand %q: %w", p, err)
	}
	return filepath.Clean(expanded), nil
}

// Validate checks the configuration for values the pipeline cannot use
func (c *Config) Validate() error {
	switch {
	case c.Gemini.Model == "":
		return fmt.Errorf("%w: gemini.model is empty", ErrInvalidConfig)
	case c.Gemini.Voice == "":
		return fmt.Errorf("%w: gemini.voice is empty", ErrInvalidConfig)
	case c.Gemini.RequestsPerMinute < 0:
		return fmt.Errorf("%w: gemini.requests_per_minute must not be negative", ErrInvalidConfig)
	case c.Gemini.Timeout < 0:
		return fmt.Errorf("%w: gemini.timeout must not be negative", ErrInvalidConfig)
	case c.Playback.SegmentLimit <= 0:
		return fmt.Errorf("%w: playback.segment_limit must be positive", ErrInvalidConfig)
	case c.Playback.Lookahead < 0:
		return fmt.Errorf("%w: playback.lookahead must not be negative", ErrInvalidConfig)
	case c.Playback.StartDelay < 0:
		return fmt.Errorf("%w: playback.start_delay must not be negative", ErrInvalidConfig)
	case c.Cache.MemoryMB < 0 || c.Cache.DiskMB < 0:
		return fmt.Errorf("%w: cache sizes must not be negative", ErrInvalidConfig)
	case c.Cache.CompressionLevel < 1 || c.Cache.CompressionLevel > 4:
		return fmt.Errorf("%w: cache.compression_level must be between 1 and 4", ErrInvalidConfig)
	}

	if _, err := ParseAudioContextType(c.Audio.Backend); err != nil {
		return err
	}
	return nil
}

// SegmenterConfig returns the segmenter settings
func (c *Config) SegmenterConfig() SegmenterConfig {
	return SegmenterConfig{Limit: c.Playback.SegmentLimit, FastStart: c.Playback.FastStart}
}

// SchedulerConfig returns the scheduler settings
func (c *Config) SchedulerConfig() SchedulerConfig {
	return SchedulerConfig{StartDelay: c.Playback.StartDelay}
}

// SaveConfig writes the configuration as YAML under a top-level tts key
func SaveConfig(config *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(map[string]*Config{"tts": config})
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info("Saved narration configuration", "path", path)
	return nil
}
