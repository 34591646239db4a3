package config

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Cfg struct {
	Server struct {
		Port         int `yaml:"port"`
		ReadTimeout  int `yaml:"read_timeout,omitempty"`  // seconds
		WriteTimeout int `yaml:"write_timeout,omitempty"` // seconds
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Payman struct {
		BaseURL string `yaml:"base_url"`
		Timeout int    `yaml:"timeout,omitempty"` // seconds, per provider call
	} `yaml:"payman"`

	Evaluator struct {
		Model   string `yaml:"model"`
		Timeout int    `yaml:"timeout,omitempty"` // seconds, per evaluation
	} `yaml:"evaluator"`

	GitHub struct {
		Timeout int `yaml:"timeout,omitempty"` // seconds, per fetch
	} `yaml:"github"`

	LogLevel string `yaml:"log_level,omitempty"`

	// Secrets come from the environment, never from the YAML file.
	Secrets Secrets `yaml:"-"`
}

type Secrets struct {
	JWTSecret     string
	EncryptionKey string // 32 bytes, hex encoded
	GeminiAPIKey  string
	GitHubToken   string // optional, raises the API rate limit
}

// LoadConfig loads the configuration from the given path and pulls secrets
// from the environment.
func LoadConfig(path string) (*Cfg, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration file %s: %w", path, err)
	}

	var cfg Cfg
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	cfg.Secrets = Secrets{
		JWTSecret:     os.Getenv("JWT_SECRET"),
		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GitHubToken:   os.Getenv("GITHUB_TOKEN"),
	}
	if cfg.Secrets.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable not set")
	}
	if cfg.Secrets.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY environment variable not set")
	}

	log.Infof("loaded configuration file %s", path)
	return &cfg, nil
}

func (c *Cfg) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10
	}
	if c.Database.Path == "" {
		c.Database.Path = "patchpay.db"
	}
	if c.Payman.BaseURL == "" {
		c.Payman.BaseURL = "https://agent.payman.ai/api"
	}
	if c.Payman.Timeout == 0 {
		c.Payman.Timeout = 15
	}
	if c.Evaluator.Model == "" {
		c.Evaluator.Model = "gemini-2.0-flash"
	}
	if c.Evaluator.Timeout == 0 {
		c.Evaluator.Timeout = 30
	}
	if c.GitHub.Timeout == 0 {
		c.GitHub.Timeout = 10
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
