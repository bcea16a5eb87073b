package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"backstage/internal/models"
	"backstage/shared/ai"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	AI      AIConfig      `yaml:"ai"`
	YouTube YouTubeConfig `yaml:"youtube"`
	Search  SearchConfig  `yaml:"search"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// RequestTimeout bounds control requests; zero means no limit.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

type StorageConfig struct {
	Backend   string `yaml:"backend"`
	DataDir   string `yaml:"data_dir"`
	RedisAddr string `yaml:"redis_addr"`
}

type APIKeysConfig struct {
	OpenAI    string `yaml:"openai"`
	Anthropic string `yaml:"anthropic"`
	Google    string `yaml:"google"`
	DeepSeek  string `yaml:"deepseek"`
	Tavily    string `yaml:"tavily"`
}

type AIConfig struct {
	SelectedModel string        `yaml:"selected_model"`
	APIKeys       APIKeysConfig `yaml:"api_keys"`
	BaseURLs      ai.BaseURLs   `yaml:"base_urls"`
}

// YouTubeConfig enables title/channel lookups through the Data API. Either an
// API key or an OAuth client is enough.
type YouTubeConfig struct {
	APIKey       string `yaml:"api_key"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenFile    string `yaml:"token_file"`
}

// Enabled reports whether any Data API credential is configured.
func (y YouTubeConfig) Enabled() bool {
	return y.APIKey != "" || (y.ClientID != "" && y.ClientSecret != "")
}

type SearchConfig struct {
	TavilyURL string `yaml:"tavily_url"`
}

type CacheConfig struct {
	// SweepSchedule is a cron spec with a seconds field. Empty disables the
	// periodic sweep; the startup sweep always runs.
	SweepSchedule string `yaml:"sweep_schedule"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads .env, then the YAML file named by CONFIG_FILE (config.yaml by
// default, optional), then fills blanks from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}

	return LoadFile(configFile)
}

// LoadFile is Load with an explicit file path. A missing file is not an error.
func LoadFile(configFile string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(configFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func envDefault(dst *string, names ...string) {
	if *dst != "" {
		return
	}
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			*dst = v
			return
		}
	}
}

func (c *Config) applyEnv() {
	envDefault(&c.AI.APIKeys.OpenAI, "OPENAI_API_KEY")
	envDefault(&c.AI.APIKeys.Anthropic, "ANTHROPIC_API_KEY")
	envDefault(&c.AI.APIKeys.Google, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	envDefault(&c.AI.APIKeys.DeepSeek, "DEEPSEEK_API_KEY")
	envDefault(&c.AI.APIKeys.Tavily, "TAVILY_API_KEY")

	envDefault(&c.YouTube.APIKey, "YOUTUBE_API_KEY")
	envDefault(&c.YouTube.ClientID, "GOOGLE_CLIENT_ID")
	envDefault(&c.YouTube.ClientSecret, "GOOGLE_CLIENT_SECRET")

	envDefault(&c.Storage.RedisAddr, "REDIS_ADDR", "REDIS_URL")
	envDefault(&c.Logging.Level, "LOG_LEVEL")

	if c.Server.Addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			c.Server.Addr = ":" + port
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendFile
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.AI.SelectedModel == "" {
		c.AI.SelectedModel = models.DefaultModel
	}
	if c.YouTube.TokenFile == "" {
		c.YouTube.TokenFile = "youtube_token.json"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// CronParser accepts the seconds-field specs used by the sweep schedule.
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendFile:
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("Redis address is required for the redis backend (set REDIS_ADDR or storage.redis_addr)")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (want %q or %q)", c.Storage.Backend, BackendFile, BackendRedis)
	}

	if _, ok := ai.ResolveProvider(c.AI.SelectedModel); !ok {
		return fmt.Errorf("unknown model %q in ai.selected_model", c.AI.SelectedModel)
	}

	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("server.request_timeout must not be negative")
	}

	if c.Cache.SweepSchedule != "" {
		if _, err := CronParser.Parse(c.Cache.SweepSchedule); err != nil {
			return fmt.Errorf("invalid cache.sweep_schedule %q: %w", c.Cache.SweepSchedule, err)
		}
	}
	return nil
}

// Keys converts the configured credentials to the settings shape.
func (c *Config) Keys() models.APIKeys {
	k := c.AI.APIKeys
	return models.APIKeys{
		OpenAI:    k.OpenAI,
		Anthropic: k.Anthropic,
		Google:    k.Google,
		DeepSeek:  k.DeepSeek,
		Tavily:    k.Tavily,
	}
}

// SettingsSeed is what the settings store starts from when nothing is saved.
func (c *Config) SettingsSeed() models.Settings {
	s := models.DefaultSettings()
	s.APIKeys = c.Keys()
	s.SelectedModel = c.AI.SelectedModel
	return s
}
