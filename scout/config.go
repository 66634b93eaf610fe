// CLAUDE:SUMMARY Configuration structs (browser, pool, search, sites, server) and YAML loader for torscout.
package scout

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/torscout/scout/internal/site"
)

// Config holds all torscout configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Pool    PoolConfig    `yaml:"pool"`
	Search  SearchConfig  `yaml:"search"`
	Sites   []SiteConfig  `yaml:"sites"`
	Server  ServerConfig  `yaml:"server"`
}

// BrowserConfig controls how sessions are provisioned.
type BrowserConfig struct {
	Stealth           string        `yaml:"stealth"` // http | headless | headful
	Remote            string        `yaml:"remote"`  // ws:// URL of an external Chrome
	MemoryLimit       int64         `yaml:"memory_limit"`
	RecycleInterval   time.Duration `yaml:"recycle_interval"`
	ResourceBlocking  []string      `yaml:"resource_blocking"`
	XvfbDisplay       string        `yaml:"xvfb_display"`
	UserAgent         string        `yaml:"user_agent"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
}

// PoolConfig sizes the session pool.
type PoolConfig struct {
	Size           int           `yaml:"size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	MaxSessionAge  time.Duration `yaml:"max_session_age"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
}

// SearchConfig bounds a query.
type SearchConfig struct {
	PerSourceTimeout time.Duration `yaml:"per_source_timeout"`
	GlobalTimeout    time.Duration `yaml:"global_timeout"`
	DefaultLimit     int           `yaml:"default_limit"`
	MaxLimit         int           `yaml:"max_limit"`
	Attempts         int           `yaml:"attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`

	// BreakerThreshold > 0 skips a site after that many consecutive failed
	// queries, for BreakerCooldown. BreakerHalfOpen successful queries close
	// the breaker again (default 1).
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	BreakerHalfOpen  int           `yaml:"breaker_half_open"`
}

// ServerConfig is read by cmd/torscout.
type ServerConfig struct {
	Transport string `yaml:"transport"` // stdio | http
	Addr      string `yaml:"addr"`
}

// DefaultConfig returns a configuration with every default applied and the
// built-in site list.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

func (c *Config) defaults() {
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Pool.Size <= 0 {
		c.Pool.Size = 2
	}
	if c.Search.PerSourceTimeout <= 0 {
		c.Search.PerSourceTimeout = 20 * time.Second
	}
	if c.Search.GlobalTimeout <= 0 {
		c.Search.GlobalTimeout = 30 * time.Second
	}
	if c.Pool.AcquireTimeout <= 0 {
		c.Pool.AcquireTimeout = c.Search.PerSourceTimeout
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 50
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 200
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		c.Search.DefaultLimit = c.Search.MaxLimit
	}
	if c.Search.Attempts <= 0 {
		c.Search.Attempts = 2
	}
	if c.Search.BreakerCooldown <= 0 {
		c.Search.BreakerCooldown = 2 * time.Minute
	}
	if len(c.Sites) == 0 {
		c.Sites = site.DefaultConfigs()
	}
	if c.Server.Transport == "" {
		c.Server.Transport = "stdio"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8765"
	}
}

// LoadConfigFile reads a YAML config file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("scout: parse %s: %w", path, err)
	}
	cfg.defaults()
	return cfg, nil
}
