package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/mempirate/delver/log"
)

// Scraper providers.
const (
	ProviderHTTP      = "http"
	ProviderFirecrawl = "firecrawl"
)

const DEFAULT_MODEL = "gpt-4o-mini"

var logger = log.NewLogger("config")

// Config is the full configuration, merged from defaults, an optional YAML
// file and environment overrides. Environment wins. Secrets only ever come
// from the environment.
type Config struct {
	LLM      LLMConfig    `yaml:"llm"`
	Search   SearchConfig `yaml:"search"`
	Scrape   ScrapeConfig `yaml:"scrape"`
	Plan     PlanConfig   `yaml:"plan"`
	Report   ReportConfig `yaml:"report"`
	Cache    CacheConfig  `yaml:"cache"`
	Server   ServerConfig `yaml:"server"`
	Slack    SlackConfig  `yaml:"slack"`
	LogLevel string       `yaml:"logLevel"`
}

type LLMConfig struct {
	APIKey string `yaml:"-"`
	Model  string `yaml:"model"`
}

type SearchConfig struct {
	// MaxResults caps the hits scraped per query.
	MaxResults int           `yaml:"maxResults"`
	Timeout    time.Duration `yaml:"timeout"`
}

type ScrapeConfig struct {
	// Provider selects the scraper implementation: http or firecrawl.
	Provider        string        `yaml:"provider"`
	APIKey          string        `yaml:"-"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxContentRunes int           `yaml:"maxContentRunes"`
}

type PlanConfig struct {
	MaxQueries int `yaml:"maxQueries"`
}

type ReportConfig struct {
	// Dir is where finished reports are stored.
	Dir string `yaml:"dir"`
}

type CacheConfig struct {
	// Path of the page cache database. Empty disables caching.
	Path string        `yaml:"path"`
	TTL  time.Duration `yaml:"ttl"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// RequestsPerMinute rate-limits report creation per client IP.
	RequestsPerMinute int `yaml:"requestsPerMinute"`
}

type SlackConfig struct {
	AppToken string `yaml:"-"`
	BotToken string `yaml:"-"`
}

func Default() Config {
	dataDir := defaultDataDir()

	return Config{
		LLM: LLMConfig{
			Model: DEFAULT_MODEL,
		},
		Search: SearchConfig{
			MaxResults: 3,
			Timeout:    10 * time.Second,
		},
		Scrape: ScrapeConfig{
			Provider:        ProviderHTTP,
			Timeout:         15 * time.Second,
			MaxContentRunes: 8000,
		},
		Plan: PlanConfig{
			MaxQueries: 3,
		},
		Report: ReportConfig{
			Dir: filepath.Join(dataDir, "reports"),
		},
		Cache: CacheConfig{
			Path: filepath.Join(dataDir, "pages.db"),
			TTL:  24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:              ":8080",
			RequestsPerMinute: 10,
		},
		LogLevel: "info",
	}
}

// Load merges defaults, the YAML file at path (optional, pass "") and
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return cfg, err
		}
		logger.Info().Str("path", path).Msg("Loaded config file")
	}

	applyEnv(&cfg)

	return cfg, nil
}

// ValidateResearch checks everything a research run needs.
func (c *Config) ValidateResearch() error {
	if c.LLM.APIKey == "" {
		return errors.New("OPENAI_API_KEY is not set")
	}

	switch c.Scrape.Provider {
	case ProviderHTTP:
	case ProviderFirecrawl:
		if c.Scrape.APIKey == "" {
			return errors.New("FIRECRAWL_API_KEY is not set but the firecrawl scraper is selected")
		}
	default:
		return errors.Errorf("unknown scrape provider: %q", c.Scrape.Provider)
	}

	if c.Plan.MaxQueries <= 0 {
		return errors.New("plan.maxQueries must be positive")
	}
	if c.Search.MaxResults <= 0 {
		return errors.New("search.maxResults must be positive")
	}

	return nil
}

// ValidateSlack checks the tokens the Slack bot needs.
func (c *Config) ValidateSlack() error {
	if c.Slack.AppToken == "" || c.Slack.BotToken == "" {
		return errors.New("SLACK_APP_TOKEN and SLACK_BOT_TOKEN must be set")
	}

	return nil
}

func loadFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open config file")
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	// Unknown keys are config typos, not forward compatibility.
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}

	return nil
}

func applyEnv(cfg *Config) {
	cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Scrape.APIKey = os.Getenv("FIRECRAWL_API_KEY")
	cfg.Slack.AppToken = os.Getenv("SLACK_APP_TOKEN")
	cfg.Slack.BotToken = os.Getenv("SLACK_BOT_TOKEN")

	envString("DELVER_MODEL", &cfg.LLM.Model)
	envInt("DELVER_SEARCH_MAX_RESULTS", &cfg.Search.MaxResults)
	envDuration("DELVER_SEARCH_TIMEOUT", &cfg.Search.Timeout)
	envString("DELVER_SCRAPER", &cfg.Scrape.Provider)
	envDuration("DELVER_SCRAPE_TIMEOUT", &cfg.Scrape.Timeout)
	envInt("DELVER_SCRAPE_MAX_CONTENT_RUNES", &cfg.Scrape.MaxContentRunes)
	envInt("DELVER_PLAN_MAX_QUERIES", &cfg.Plan.MaxQueries)
	envString("DELVER_REPORT_DIR", &cfg.Report.Dir)
	envString("DELVER_CACHE_PATH", &cfg.Cache.Path)
	envDuration("DELVER_CACHE_TTL", &cfg.Cache.TTL)
	envString("DELVER_LISTEN_ADDR", &cfg.Server.Addr)
	envInt("DELVER_RATE_LIMIT", &cfg.Server.RequestsPerMinute)
	envString("LOG_LEVEL", &cfg.LogLevel)
}

func envString(key string, dst *string) {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		*dst = val
		logger.Debug().Str("key", key).Msg("Environment override applied")
	}
}

func envInt(key string, dst *int) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return
	}

	n, err := strconv.Atoi(val)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", val).Msg("Ignoring invalid integer override")
		return
	}

	*dst = n
	logger.Debug().Str("key", key).Msg("Environment override applied")
}

func envDuration(key string, dst *time.Duration) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", val).Msg("Ignoring invalid duration override")
		return
	}

	*dst = d
	logger.Debug().Str("key", key).Msg("Environment override applied")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}

	return filepath.Join(home, ".local", "share", "delver")
}
