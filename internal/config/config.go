package config

import (
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultInterval   = time.Hour
	configPathEnv     = "RELEASEWATCH_CONFIG"
	githubTokenEnv    = "GITHUB_TOKEN"
	customRepoEnv     = "DOCKERHUB_REPOSITORY_NAME"
	customRegistryEnv = "CUSTOM_REGISTRY"
	databaseDSNEnv    = "DATABASE_DSN"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	BaseImage  BaseImageConfig  `yaml:"baseImage"`
	Platforms  []string         `yaml:"platforms"`
	Registries []RegistryConfig `yaml:"registries"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Status     StatusConfig     `yaml:"status"`
	Database   DatabaseConfig   `yaml:"database"`
	Docker     DockerConfig     `yaml:"docker"`
}

// LoggingConfig controls slog verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// UpstreamConfig describes the authoritative release feed.
type UpstreamConfig struct {
	Repo         string `yaml:"repo"`
	APIURL       string `yaml:"apiUrl"`
	PageURL      string `yaml:"pageUrl"`
	Token        string `yaml:"token"`
	FallbackHTML bool   `yaml:"fallbackHtml"`
	PageSize     int    `yaml:"pageSize"`
}

// BaseImageConfig names the official upstream image whose readiness
// gates the downstream build. An empty repository disables the gate.
type BaseImageConfig struct {
	Repository string `yaml:"repository"`
}

// RegistryConfig describes one artifact registry hosting already
// published downstream builds.
type RegistryConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Repository string `yaml:"repository"`
	Optional   bool   `yaml:"optional"`
}

// SchedulerConfig defines how often daemon mode re-runs the check.
type SchedulerConfig struct {
	Interval string `yaml:"interval"`
}

// IntervalDuration resolves the configured interval string, falling
// back to the default when unset or unparseable.
func (s SchedulerConfig) IntervalDuration() time.Duration {
	if s.Interval == "" {
		return defaultInterval
	}
	d, err := time.ParseDuration(s.Interval)
	if err != nil || d <= 0 {
		log.Printf("config: invalid scheduler interval %q, reverting to %s", s.Interval, defaultInterval)
		return defaultInterval
	}
	return d
}

// StatusConfig wires the daemon-mode status endpoint.
type StatusConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig describes the optional run-history store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// DockerConfig points at the Docker CLI config directory used to pick
// up registry credentials. Empty means unauthenticated queries.
type DockerConfig struct {
	ConfigDir string `yaml:"configDir"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	if len(cfg.Registries) == 0 {
		cfg.Registries = defaultConfig().Registries
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(githubTokenEnv); v != "" {
		c.Upstream.Token = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(customRepoEnv); v != "" {
		for i := range c.Registries {
			c.Registries[i].Repository = v
		}
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv(customRegistryEnv))); v != "" {
		filtered := make([]RegistryConfig, 0, len(c.Registries))
		for _, reg := range c.Registries {
			if reg.Type == v {
				filtered = append(filtered, reg)
			}
		}
		if len(filtered) == 0 {
			log.Printf("config: no registry of type %q configured, keeping full set", v)
		} else {
			c.Registries = filtered
		}
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Upstream.Repo != "" {
		base.Upstream.Repo = override.Upstream.Repo
	}
	if override.Upstream.APIURL != "" {
		base.Upstream.APIURL = override.Upstream.APIURL
	}
	if override.Upstream.PageURL != "" {
		base.Upstream.PageURL = override.Upstream.PageURL
	}
	if override.Upstream.Token != "" {
		base.Upstream.Token = override.Upstream.Token
	}
	if override.Upstream.FallbackHTML {
		base.Upstream.FallbackHTML = true
	}
	if override.Upstream.PageSize > 0 {
		base.Upstream.PageSize = override.Upstream.PageSize
	}

	if override.BaseImage.Repository != "" {
		base.BaseImage = override.BaseImage
	}

	if len(override.Platforms) > 0 {
		base.Platforms = override.Platforms
	}

	if len(override.Registries) > 0 {
		base.Registries = override.Registries
	}

	if override.Scheduler.Interval != "" {
		base.Scheduler.Interval = override.Scheduler.Interval
	}

	if override.Status.Addr != "" {
		base.Status.Addr = override.Status.Addr
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Docker.ConfigDir != "" {
		base.Docker = override.Docker
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Upstream: UpstreamConfig{
			Repo:     "caddyserver/caddy",
			APIURL:   "https://api.github.com",
			PageURL:  "https://github.com",
			PageSize: 100,
		},
		BaseImage: BaseImageConfig{Repository: "library/caddy"},
		Platforms: []string{"linux/amd64", "linux/arm64"},
		Registries: []RegistryConfig{
			{
				Name:       "ghcr-custom",
				Type:       "ghcr",
				Repository: "caddybuilds/caddy-cloudflare",
			},
			{
				Name:       "hub-custom",
				Type:       "dockerhub",
				Repository: "caddybuilds/caddy-cloudflare",
				Optional:   true,
			},
		},
		Scheduler: SchedulerConfig{Interval: "1h"},
		Status:    StatusConfig{Addr: ":8080"},
	}
}
