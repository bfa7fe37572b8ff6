package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		RateLimit      float64  `yaml:"rateLimit"`
		RateBurst      int      `yaml:"rateBurst"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`
	Backend string `yaml:"backend"`
	Redis   struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Firestore struct {
		ProjectID       string `yaml:"projectId"`
		CredentialsFile string `yaml:"credentialsFile"`
	} `yaml:"firestore"`
	Streak struct {
		Timezone            string `yaml:"timezone"`
		MaxFreezes          *int   `yaml:"maxFreezes"`
		MaxRevives          *int   `yaml:"maxRevives"`
		ReviveWindow        string `yaml:"reviveWindow"`
		ResetRevivesMonthly *bool  `yaml:"resetRevivesMonthly"`
		StoreTimeout        string `yaml:"storeTimeout"`
		MaxAttempts         int    `yaml:"maxAttempts"`
	} `yaml:"streak"`
	Sweep struct {
		Schedule string `yaml:"schedule"`
		Limit    int    `yaml:"limit"`
	} `yaml:"sweep"`
}

// Load reads YAML config from path and fills in defaults for anything left unset.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, cfg.validate()
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 5
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 30
	}
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Streak.Timezone == "" {
		c.Streak.Timezone = "Local"
	}
	if c.Streak.MaxFreezes == nil {
		c.Streak.MaxFreezes = intPtr(3)
	}
	if c.Streak.MaxRevives == nil {
		c.Streak.MaxRevives = intPtr(1)
	}
	if c.Streak.ResetRevivesMonthly == nil {
		monthly := true
		c.Streak.ResetRevivesMonthly = &monthly
	}
	if c.Streak.MaxAttempts == 0 {
		c.Streak.MaxAttempts = 3
	}
	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = "5 0 * * *"
	}
	if c.Sweep.Limit == 0 {
		c.Sweep.Limit = 100
	}
}

func (c Config) validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("backend %q needs redis.addr", c.Backend)
		}
	case BackendPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("backend %q needs postgres.url", c.Backend)
		}
	case BackendFirestore:
		if c.Firestore.ProjectID == "" {
			return fmt.Errorf("backend %q needs firestore.projectId", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if *c.Streak.MaxFreezes < 0 || *c.Streak.MaxRevives < 0 {
		return fmt.Errorf("streak limits must not be negative")
	}
	return nil
}

func intPtr(v int) *int {
	return &v
}

// Duration parses a duration string or returns the fallback if empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
