package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Sink      SinkConfig
	Scheduler SchedulerConfig
	Scraper   ScraperConfig
	Server    ServerConfig
	DBPath    string
	DBURL     string
	LogLevel  string
	Markets   map[string]*MarketConfig
}

type SinkConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Configured reports whether the ingestion sink can be used. Absence is a
// deliberate no-op, not an error.
func (s *SinkConfig) Configured() bool {
	return s.URL != "" && s.Token != ""
}

type SchedulerConfig struct {
	Cron        string
	Interval    time.Duration
	BatchLimit  int
	SleepJitter time.Duration
}

type ScraperConfig struct {
	GlobalTimeout   time.Duration
	BrowserFallback bool
}

type ServerConfig struct {
	Port       int
	AdminToken string
}

type MarketConfig struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Endpoints   map[string]string `yaml:"endpoints"`
	RateLimitMS int               `yaml:"rate_limit_ms"`
	MaxCards    int               `yaml:"max_cards"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Sink: SinkConfig{
			URL:     os.Getenv("SINK_URL"),
			Token:   os.Getenv("SINK_TOKEN"),
			Timeout: time.Duration(getEnvInt("SINK_TIMEOUT_SECS", 20)) * time.Second,
		},
		Scheduler: SchedulerConfig{
			Cron:        os.Getenv("SCRAPE_CRON"),
			BatchLimit:  getEnvInt("BATCH_LIMIT", 20),
			SleepJitter: time.Duration(getEnvInt("SLEEP_JITTER_MS", 2000)) * time.Millisecond,
		},
		Scraper: ScraperConfig{
			GlobalTimeout:   time.Duration(getEnvInt("PIPELINE_TIMEOUT_SECS", 120)) * time.Second,
			BrowserFallback: os.Getenv("BROWSER_FALLBACK") == "true",
		},
		Server: ServerConfig{
			Port:       getEnvInt("PORT", 8000),
			AdminToken: os.Getenv("ADMIN_TOKEN"),
		},
		DBPath:   getEnv("DB_PATH", "scraper.db"),
		DBURL:    os.Getenv("DATABASE_URL"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Markets:  make(map[string]*MarketConfig),
	}

	if interval := os.Getenv("SCRAPE_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	if err := cfg.loadMarketConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadMarketConfigs() error {
	configDir := "config/markets"
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var market MarketConfig
		if err := yaml.Unmarshal(data, &market); err != nil {
			return err
		}

		c.Markets[market.ID] = &market
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
