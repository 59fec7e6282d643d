package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type REST struct {
	BaseURL string `yaml:"baseUrl"`
	Timeout string `yaml:"timeout"` // duration, default 5s
}

type WS struct {
	URL string `yaml:"url"`
}

type Auth struct {
	Token  string `yaml:"token"`
	UserID int64  `yaml:"userId"`
}

type Logging struct {
	Env       string `yaml:"env"`     // dev|stage|prod
	Service   string `yaml:"service"` // skillsync-realtime
	Version   string `yaml:"version"`
	Backend   string `yaml:"backend"` // std|zap
	AddSource bool   `yaml:"addSource"`
	Debug     bool   `yaml:"debug"`
}

type DevServer struct {
	Addr      string `yaml:"addr"`
	SqliteDSN string `yaml:"sqliteDsn"`
}

type Config struct {
	REST      REST      `yaml:"rest"`
	WS        WS        `yaml:"ws"`
	Auth      Auth      `yaml:"auth"`
	Logging   Logging   `yaml:"logging"`
	DevServer DevServer `yaml:"devserver"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.REST.BaseURL == "" {
		return errors.New("rest.baseUrl is required")
	}
	if c.WS.URL == "" {
		return errors.New("ws.url is required")
	}
	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "skillsync-realtime"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.DevServer.Addr == "" {
		c.DevServer.Addr = ":8087"
	}
	if c.DevServer.SqliteDSN == "" {
		c.DevServer.SqliteDSN = "file:skillsync-dev.db?_busy_timeout=5000"
	}
	return nil
}

// RESTTimeout — таймаут REST-вызовов (default 5s).
func (c *Config) RESTTimeout() time.Duration {
	return parseDurationOr(5*time.Second, c.REST.Timeout)
}

func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
