// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/voxtest/fauxmic/internal/wav"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Fixture   FixtureConfig   `mapstructure:"fixture" yaml:"fixture"`
	Harness   HarnessConfig   `mapstructure:"harness" yaml:"harness"`
	Recovery  RecoveryConfig  `mapstructure:"recovery" yaml:"recovery"`
	Selectors SelectorsConfig `mapstructure:"selectors" yaml:"selectors"`
}

// LoggerConfig controls structured logging output.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// FixtureConfig selects what the synthetic microphone plays. An empty Path
// means the synthesized tone.
type FixtureConfig struct {
	Path            string  `mapstructure:"path" yaml:"path"`
	MIMEType        string  `mapstructure:"mime_type" yaml:"mime_type"`
	SampleRate      int     `mapstructure:"sample_rate" yaml:"sample_rate"`
	DurationSeconds float64 `mapstructure:"duration_seconds" yaml:"duration_seconds"`
	ToneHz          float64 `mapstructure:"tone_hz" yaml:"tone_hz"`
	Amplitude       float64 `mapstructure:"amplitude" yaml:"amplitude"`
}

// HarnessConfig drives the walkthrough itself.
type HarnessConfig struct {
	Engines         []string      `mapstructure:"engines" yaml:"engines"`
	Target          string        `mapstructure:"target" yaml:"target"`
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	RecordFor       time.Duration `mapstructure:"record_for" yaml:"record_for"`
	PauseFor        time.Duration `mapstructure:"pause_for" yaml:"pause_for"`
	InstallRecorder bool          `mapstructure:"install_recorder" yaml:"install_recorder"`
	ArtifactDir     string        `mapstructure:"artifact_dir" yaml:"artifact_dir"`
}

// RecoveryConfig tunes the recovery loop. The phrase lists exist because the
// page under test rewords its error copy from release to release.
type RecoveryConfig struct {
	Budget             int      `mapstructure:"budget" yaml:"budget"`
	DeniedPhrases      []string `mapstructure:"denied_phrases" yaml:"denied_phrases"`
	InterruptedPhrases []string `mapstructure:"interrupted_phrases" yaml:"interrupted_phrases"`
}

// SelectorsConfig locates the recording UI's controls.
type SelectorsConfig struct {
	Record         string `mapstructure:"record" yaml:"record"`
	Stop           string `mapstructure:"stop" yaml:"stop"`
	Retry          string `mapstructure:"retry" yaml:"retry"`
	UploadComplete string `mapstructure:"upload_complete" yaml:"upload_complete"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "fauxmic")
	v.SetDefault("logger.log_file", "fauxmic.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Fixture --
	v.SetDefault("fixture.path", "")
	v.SetDefault("fixture.mime_type", "audio/wav")
	v.SetDefault("fixture.sample_rate", wav.DefaultSampleRate)
	v.SetDefault("fixture.duration_seconds", wav.DefaultDuration)
	v.SetDefault("fixture.tone_hz", wav.DefaultFrequency)
	v.SetDefault("fixture.amplitude", wav.DefaultAmplitude)

	// -- Harness --
	v.SetDefault("harness.engines", []string{"chromium"})
	v.SetDefault("harness.target", "")
	v.SetDefault("harness.headless", true)
	v.SetDefault("harness.record_for", "2s")
	v.SetDefault("harness.pause_for", "0s")
	v.SetDefault("harness.install_recorder", false)
	v.SetDefault("harness.artifact_dir", "")

	// -- Recovery --
	v.SetDefault("recovery.budget", 3)
	v.SetDefault("recovery.denied_phrases", []string{"microphone access was denied"})
	v.SetDefault("recovery.interrupted_phrases", []string{"recording interrupted", "reconnect"})

	// -- Selectors --
	v.SetDefault("selectors.record", "#record")
	v.SetDefault("selectors.stop", "#stop")
	v.SetDefault("selectors.retry", "#retry")
	v.SetDefault("selectors.upload_complete", ".upload-complete")
}

// NewConfigFromViper creates a configuration instance from a viper object,
// layering FAUXMIC_* environment variables over file values.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("FAUXMIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Fixture.Validate(); err != nil {
		return fmt.Errorf("fixture configuration invalid: %w", err)
	}
	if err := c.Harness.Validate(); err != nil {
		return fmt.Errorf("harness configuration invalid: %w", err)
	}
	if c.Recovery.Budget < 0 {
		return fmt.Errorf("recovery.budget must not be negative")
	}
	return nil
}

// Validate checks the fixture parameters.
func (f *FixtureConfig) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be a positive integer")
	}
	if f.DurationSeconds <= 0 {
		return fmt.Errorf("duration_seconds must be positive")
	}
	if f.Amplitude < 0.0 || f.Amplitude > 1.0 {
		return fmt.Errorf("amplitude must be between 0.0 and 1.0")
	}
	return nil
}

// Validate checks the walkthrough parameters.
func (h *HarnessConfig) Validate() error {
	if len(h.Engines) == 0 {
		return fmt.Errorf("at least one engine is required")
	}
	if h.RecordFor <= 0 {
		return fmt.Errorf("record_for must be a positive duration")
	}
	if h.PauseFor < 0 {
		return fmt.Errorf("pause_for must not be negative")
	}
	return nil
}
