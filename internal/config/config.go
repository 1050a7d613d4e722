// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Network() NetworkConfig
	Browser() BrowserConfig
	Discovery() DiscoveryConfig
	Registry() RegistryConfig
	Scan() ScanConfig
	Telegram() TelegramConfig
	SetScanConfig(sc ScanConfig)

	SetNetworkIgnoreTLSErrors(bool)
	SetBrowserHeadless(bool)
	SetDiscoveryMaxDepth(int)
	SetDiscoveryMaxScripts(int)
	SetRegistryRateLimit(float64)
}

// Config holds the entire application configuration. It uses private fields
// to enforce access through the Interface's getter methods.
type Config struct {
	logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	discovery DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	registry  RegistryConfig  `mapstructure:"registry" yaml:"registry"`
	telegram  TelegramConfig  `mapstructure:"telegram" yaml:"telegram"`
	// scan gets its marching orders from CLI flags, not the config file.
	scan ScanConfig `mapstructure:"-" yaml:"-"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.logger }
func (c *Config) Network() NetworkConfig     { return c.network }
func (c *Config) Browser() BrowserConfig     { return c.browser }
func (c *Config) Discovery() DiscoveryConfig { return c.discovery }
func (c *Config) Registry() RegistryConfig   { return c.registry }
func (c *Config) Telegram() TelegramConfig   { return c.telegram }
func (c *Config) Scan() ScanConfig           { return c.scan }

func (c *Config) SetScanConfig(sc ScanConfig) { c.scan = sc }

func (c *Config) SetNetworkIgnoreTLSErrors(b bool) { c.network.IgnoreTLSErrors = b }
func (c *Config) SetBrowserHeadless(b bool)        { c.browser.Headless = b }
func (c *Config) SetDiscoveryMaxDepth(d int)       { c.discovery.MaxDepth = d }
func (c *Config) SetDiscoveryMaxScripts(n int)     { c.discovery.MaxScripts = n }
func (c *Config) SetRegistryRateLimit(rps float64) { c.registry.RateLimit = rps }

// LoggerConfig configures the structured logger.
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

// ProxyConfig defines the configuration for an outbound proxy.
type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// NetworkConfig tunes the HTTP transport shared by the registry client,
// source-map fetcher, and script re-fetcher.
type NetworkConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	Proxy           ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
}

// BrowserConfig holds settings for the headless browser session pool.
type BrowserConfig struct {
	Headless      bool          `mapstructure:"headless" yaml:"headless"`
	ChromePath    string        `mapstructure:"chrome_path" yaml:"chrome_path"`
	NavTimeout    time.Duration `mapstructure:"nav_timeout" yaml:"nav_timeout"`
	SettleDebounce time.Duration `mapstructure:"settle_debounce" yaml:"settle_debounce"`
	FastSettleDebounce time.Duration `mapstructure:"fast_settle_debounce" yaml:"fast_settle_debounce"`
	Args          []string      `mapstructure:"args" yaml:"args"`
}

// DiscoveryConfig bounds the chunk-discovery and script-capture fan-out.
type DiscoveryConfig struct {
	MaxDepth   int `mapstructure:"max_depth" yaml:"max_depth"`
	MaxScripts int `mapstructure:"max_scripts" yaml:"max_scripts"`
}

// RegistryConfig tunes the package-registry client.
type RegistryConfig struct {
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// TelegramConfig configures the optional alert forwarder.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Token   string `mapstructure:"token" yaml:"token"`
	ChatID  string `mapstructure:"chat_id" yaml:"chat_id"`
}

// ScanConfig carries the per-invocation flags a scan command line sets; it
// is never persisted to a config file.
type ScanConfig struct {
	Targets       []string
	TargetFile    string
	Output        string
	JSON          bool
	Quiet         bool
	Fast          bool
	Parallel      int
	ScopedOnly    bool
	SkipNpmCheck  bool
	MinConfidence string
	Verbose       bool
	Timeout       time.Duration
	MaxRetries    int
}

// NewDefaultConfig builds a Config populated with SetDefaults via a fresh
// viper instance, for callers that do not need CLI/env layering.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration domain.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scalpeldep")
	v.SetDefault("logger.log_file", "scalpeldep.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.max_retries", 3)
	v.SetDefault("network.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("network.proxy.enabled", false)
	v.SetDefault("network.ignore_tls_errors", false)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout", "30s")
	v.SetDefault("browser.settle_debounce", "2s")
	v.SetDefault("browser.fast_settle_debounce", "400ms")

	// -- Discovery --
	v.SetDefault("discovery.max_depth", 3)
	v.SetDefault("discovery.max_scripts", 512)

	// -- Registry --
	v.SetDefault("registry.base_url", "https://registry.npmjs.org")
	v.SetDefault("registry.rate_limit", 10.0)
	v.SetDefault("registry.cache_ttl", "1h")

	// -- Telegram --
	v.SetDefault("telegram.enabled", false)
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

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.discovery.MaxDepth <= 0 {
		return fmt.Errorf("discovery.max_depth must be a positive integer")
	}
	if c.discovery.MaxScripts <= 0 {
		return fmt.Errorf("discovery.max_scripts must be a positive integer")
	}
	if c.registry.RateLimit <= 0 {
		return fmt.Errorf("registry.rate_limit must be a positive number")
	}
	return nil
}
