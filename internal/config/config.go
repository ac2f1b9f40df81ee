package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models albumline.yml.
type Config struct {
	Server struct {
		Addr      string `yaml:"addr"`
		BasePath  string `yaml:"base_path"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
	Bot struct {
		Enabled            bool   `yaml:"enabled"`
		Token              string `yaml:"token"`
		PollTimeoutSeconds int    `yaml:"poll_timeout_seconds"`
	} `yaml:"bot"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
	Site struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"site"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it or run alb config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Bot.Enabled && c.Bot.Token == "" {
		return fmt.Errorf("config.bot.token is required when the bot is enabled")
	}
	if c.Bot.PollTimeoutSeconds < 0 {
		return fmt.Errorf("config.bot.poll_timeout_seconds must not be negative")
	}
	if c.SMTP.Host != "" {
		if c.SMTP.Port <= 0 {
			return fmt.Errorf("config.smtp.port is required when smtp.host is set")
		}
		if c.SMTP.From == "" {
			return fmt.Errorf("config.smtp.from is required when smtp.host is set")
		}
	}
	return nil
}

// MailEnabled reports whether outbound email is configured at all.
func (c *Config) MailEnabled() bool {
	return c.SMTP.Host != ""
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "albumline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0
  jwt_secret: ""

bot:
  enabled: false
  token: ""
  poll_timeout_seconds: 25

smtp:
  host: ""
  port: 587
  username: ""
  password: ""
  from: ""

site:
  base_url: http://127.0.0.1:8080
`
