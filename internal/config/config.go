// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Session() SessionConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserIgnoreTLSErrors(bool)
	SetBrowserProxyServer(string)

	// Session Setters
	SetSessionMaxWait(time.Duration)
	SetSessionAppHost(string)
	SetSessionRaiseJSErrors(bool)
}

// Config holds the entire application configuration. Fields are exported
// for unmarshaling; callers go through the Interface accessors.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	SessionCfg SessionConfig `mapstructure:"session" yaml:"session"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Session() SessionConfig { return c.SessionCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)        { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserIgnoreTLSErrors(b bool) { c.BrowserCfg.IgnoreTLSErrors = b }
func (c *Config) SetBrowserProxyServer(s string)   { c.BrowserCfg.ProxyServer = s }

func (c *Config) SetSessionMaxWait(d time.Duration) { c.SessionCfg.MaxWait = d }
func (c *Config) SetSessionAppHost(h string)        { c.SessionCfg.AppHost = h }
func (c *Config) SetSessionRaiseJSErrors(b bool)    { c.SessionCfg.RaiseJSErrors = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds the launch-time settings of the browser process.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	WindowWidth     int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int           `mapstructure:"window_height" yaml:"window_height"`
	RemoteHost      string        `mapstructure:"remote_host" yaml:"remote_host"`
	RemotePort      int           `mapstructure:"remote_port" yaml:"remote_port"`
	ProxyServer     string        `mapstructure:"proxy_server" yaml:"proxy_server"`
	Extensions      []string      `mapstructure:"extensions" yaml:"extensions"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	LaunchTimeout   time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
}

// SessionConfig tunes per-session behavior of the bridge.
type SessionConfig struct {
	MaxWait       time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	AppHost       string        `mapstructure:"app_host" yaml:"app_host"`
	RaiseJSErrors bool          `mapstructure:"raise_js_errors" yaml:"raise_js_errors"`
	InspectorURL  string        `mapstructure:"inspector_url" yaml:"inspector_url"`
	ScreenWidth   int           `mapstructure:"screen_width" yaml:"screen_width"`
	ScreenHeight  int           `mapstructure:"screen_height" yaml:"screen_height"`
	URLAllowlist  []string      `mapstructure:"url_allowlist" yaml:"url_allowlist"`
	URLBlocklist  []string      `mapstructure:"url_blocklist" yaml:"url_blocklist"`
}

// NewDefaultConfig creates a new configuration struct populated with
// default values.
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

// SetDefaults initializes default values for various configuration
// parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "cicerone")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.window_width", 1024)
	v.SetDefault("browser.window_height", 768)
	v.SetDefault("browser.launch_timeout", "30s")

	// -- Session --
	v.SetDefault("session.max_wait", "2s")
	v.SetDefault("session.raise_js_errors", false)
	v.SetDefault("session.screen_width", 0)
	v.SetDefault("session.screen_height", 0)
}

// NewConfigFromViper creates a new configuration instance from a viper
// object.
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
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.SessionCfg.Validate(); err != nil {
		return fmt.Errorf("session configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the browser launch settings.
func (b *BrowserConfig) Validate() error {
	if b.WindowWidth < 0 || b.WindowHeight < 0 {
		return fmt.Errorf("window dimensions must not be negative")
	}
	if b.RemotePort < 0 || b.RemotePort > 65535 {
		return fmt.Errorf("remote_port must be a valid port number")
	}
	return nil
}

// Validate checks the session settings.
func (s *SessionConfig) Validate() error {
	if s.MaxWait < 0 {
		return fmt.Errorf("max_wait must not be negative")
	}
	if s.AppHost != "" {
		if _, err := url.Parse(s.AppHost); err != nil {
			return fmt.Errorf("app_host is not a valid URL: %w", err)
		}
	}
	if s.InspectorURL != "" {
		u, err := url.Parse(s.InspectorURL)
		if err != nil || u.Scheme == "" {
			return fmt.Errorf("inspector_url must be an absolute URL")
		}
	}
	return nil
}
