// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Runner    RunnerConfig    `mapstructure:"runner" yaml:"runner"`
	Generator GeneratorConfig `mapstructure:"generator" yaml:"generator"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// LoggerConfig holds all the configuration for the logger.
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
	// Color paints console levels with ANSI codes.
	Color bool `mapstructure:"color" yaml:"color"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	DisableCache    bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	// ScreenshotQuality is the JPEG quality passed to CDP; 100 yields lossless PNG.
	ScreenshotQuality int `mapstructure:"screenshot_quality" yaml:"screenshot_quality"`
}

// NetworkConfig tunes navigation behavior.
type NetworkConfig struct {
	NavigationTimeout  time.Duration     `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	NetworkIdleQuiet   time.Duration     `mapstructure:"network_idle_quiet" yaml:"network_idle_quiet"`
	NetworkIdleTimeout time.Duration     `mapstructure:"network_idle_timeout" yaml:"network_idle_timeout"`
	Headers            map[string]string `mapstructure:"headers" yaml:"headers"`
}

// RunnerConfig configures scenario execution.
type RunnerConfig struct {
	StepTimeout       time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	RunTimeout        time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
	MaxStepsPerSecond float64       `mapstructure:"max_steps_per_second" yaml:"max_steps_per_second"`
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency"`
	FailOnError       bool          `mapstructure:"fail_on_error" yaml:"fail_on_error"`
	// Iterations overrides the scenario's own iteration count when non-negative.
	Iterations int `mapstructure:"iterations" yaml:"iterations"`
}

// GeneratorConfig bounds the constrained value generator.
type GeneratorConfig struct {
	// Seed makes runs reproducible; zero picks a time-based seed.
	Seed        int64 `mapstructure:"seed" yaml:"seed"`
	MaxRepeat   int   `mapstructure:"max_repeat" yaml:"max_repeat"`
	MaxLength   int   `mapstructure:"max_length" yaml:"max_length"`
	MaxAttempts int   `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// ArtifactsConfig sets where screenshots land.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// MetricsConfig enables the Prometheus textfile export.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
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

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scenario-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.color", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.disable_cache", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 800})
	v.SetDefault("browser.screenshot_quality", 100)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "60s")
	v.SetDefault("network.network_idle_quiet", "500ms")
	v.SetDefault("network.network_idle_timeout", "30s")

	// -- Runner --
	v.SetDefault("runner.step_timeout", "30s")
	v.SetDefault("runner.run_timeout", "0s")
	v.SetDefault("runner.max_steps_per_second", 0.0)
	v.SetDefault("runner.concurrency", 1)
	v.SetDefault("runner.fail_on_error", false)
	v.SetDefault("runner.iterations", -1)

	// -- Generator --
	v.SetDefault("generator.seed", 0)
	v.SetDefault("generator.max_repeat", 10)
	v.SetDefault("generator.max_length", 4096)
	v.SetDefault("generator.max_attempts", 8)

	// -- Artifacts --
	v.SetDefault("artifacts.dir", "artifacts")

	// -- Metrics --
	v.SetDefault("metrics.textfile_path", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
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
	if c.Runner.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be a positive integer")
	}
	if c.Runner.StepTimeout < 0 || c.Runner.RunTimeout < 0 {
		return fmt.Errorf("runner timeouts must not be negative")
	}
	if c.Runner.MaxStepsPerSecond < 0 {
		return fmt.Errorf("runner.max_steps_per_second must not be negative")
	}
	if c.Artifacts.Dir == "" {
		return fmt.Errorf("artifacts.dir is required")
	}
	if c.Browser.ScreenshotQuality < 1 || c.Browser.ScreenshotQuality > 100 {
		return fmt.Errorf("browser.screenshot_quality must be between 1 and 100")
	}
	if err := c.Generator.Validate(); err != nil {
		return fmt.Errorf("generator configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the generator bounds.
func (g *GeneratorConfig) Validate() error {
	if g.MaxRepeat <= 0 {
		return fmt.Errorf("max_repeat must be greater than 0")
	}
	if g.MaxLength <= 0 {
		return fmt.Errorf("max_length must be greater than 0")
	}
	if g.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be greater than 0")
	}
	return nil
}
