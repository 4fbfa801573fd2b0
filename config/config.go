package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	CacheDir string `json:"cache_dir"`
	DBPath   string `json:"db_path"`

	LLMProvider string  `json:"llm_provider"`
	Model       string  `json:"model"`
	BaseURL     string  `json:"base_url"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`

	// false drops a phase's working conversation once its candidate is accepted
	KeepHistory       bool `json:"keep_history"`
	MaxLoops          int  `json:"max_loops"`
	MaxSearchResults  int  `json:"max_search_results"`
	OrderbookDepth    int  `json:"orderbook_depth"`
	TradesLimit       int  `json:"trades_limit"`
	ParallelToolCalls bool `json:"parallel_tool_calls"`
	// seconds
	CallTimeout    int     `json:"call_timeout"`
	AvailableFunds float64 `json:"available_funds"`

	GammaBaseURL string `json:"gamma_base_url"`
	ClobBaseURL  string `json:"clob_base_url"`
	DataBaseURL  string `json:"data_base_url"`
	NewsBaseURL  string `json:"news_base_url"`
	TavilyURL    string `json:"tavily_url"`
	ExaURL       string `json:"exa_url"`

	CacheEnabled bool `json:"cache_enabled"`
	// minutes
	CacheTTL int `json:"cache_ttl"`

	Debug     bool   `json:"debug"`
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	// Eino Debug configuration
	EinoDebugEnabled bool `json:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port"`

	// AI Model API Keys
	DeepSeekAPIKey string `json:"deepseek_api_key,omitempty"`
	OpenAIAPIKey   string `json:"openai_api_key,omitempty"`

	// Search API keys
	TavilyAPIKey string `json:"tavily_api_key,omitempty"`
	ExaAPIKey    string `json:"exa_api_key,omitempty"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	return DefaultConfigWithRoot(currentDir)
}

// DefaultConfigWithRoot builds the defaults with every path under root, then
// applies .env and environment overrides.
func DefaultConfigWithRoot(root string) *Config {
	cfg := &Config{
		DataDir:  filepath.Join(root, "data"),
		CacheDir: filepath.Join(root, "data", "cache"),
		DBPath:   filepath.Join(root, "data", "polycortex.db"),

		LLMProvider: "deepseek",
		Model:       "deepseek-chat",
		Temperature: 0,
		MaxTokens:   4096,

		MaxLoops:         6,
		KeepHistory:      true,
		MaxSearchResults: 10,
		OrderbookDepth:   10,
		TradesLimit:      50,
		CallTimeout:      60,
		AvailableFunds:   10,

		GammaBaseURL: "https://gamma-api.polymarket.com",
		ClobBaseURL:  "https://clob.polymarket.com",
		DataBaseURL:  "https://data-api.polymarket.com",
		NewsBaseURL:  "https://news.google.com",
		TavilyURL:    "https://api.tavily.com",
		ExaURL:       "https://api.exa.ai",

		CacheEnabled: true,
		CacheTTL:     5,

		LogLevel:  "info",
		LogFormat: "auto",

		EinoDebugEnabled: false,
		EinoDebugPort:    52538,
	}

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()
	return cfg
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("POLYCORTEX_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("POLYCORTEX_CACHE_DIR"); val != "" {
		c.CacheDir = val
	}
	if val := os.Getenv("POLYCORTEX_DB_PATH"); val != "" {
		c.DBPath = val
	}

	if val := os.Getenv("POLYCORTEX_LLM_PROVIDER"); val != "" {
		c.LLMProvider = val
	}
	if val := os.Getenv("POLYCORTEX_MODEL"); val != "" {
		c.Model = val
	}
	if val := os.Getenv("POLYCORTEX_BASE_URL"); val != "" {
		c.BaseURL = val
	}
	if val := os.Getenv("POLYCORTEX_TEMPERATURE"); val != "" {
		if v, err := strconv.ParseFloat(val, 32); err == nil {
			c.Temperature = float32(v)
		}
	}
	if val := os.Getenv("POLYCORTEX_MAX_TOKENS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxTokens = v
		}
	}

	if val := os.Getenv("POLYCORTEX_MAX_LOOPS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxLoops = v
		}
	}
	if val := os.Getenv("POLYCORTEX_MAX_SEARCH_RESULTS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxSearchResults = v
		}
	}
	if val := os.Getenv("POLYCORTEX_CALL_TIMEOUT"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.CallTimeout = v
		}
	}
	if val := os.Getenv("POLYCORTEX_AVAILABLE_FUNDS"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.AvailableFunds = v
		}
	}
	if val := os.Getenv("POLYCORTEX_KEEP_HISTORY"); val != "" {
		if keep, err := strconv.ParseBool(val); err == nil {
			c.KeepHistory = keep
		}
	}
	if val := os.Getenv("POLYCORTEX_PARALLEL_TOOL_CALLS"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.ParallelToolCalls = enabled
		}
	}

	if val := os.Getenv("POLYCORTEX_CACHE_ENABLED"); val != "" {
		if cache, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = cache
		}
	}
	if val := os.Getenv("POLYCORTEX_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
	if val := os.Getenv("POLYCORTEX_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("POLYCORTEX_LOG_FORMAT"); val != "" {
		c.LogFormat = val
	}

	if val := os.Getenv("EINO_DEBUG_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.EinoDebugEnabled = enabled
		}
	}
	if val := os.Getenv("EINO_DEBUG_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.EinoDebugPort = port
		}
	}

	c.applySecretsFromEnv()
}

func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "deepseek", "openai":
	default:
		return fmt.Errorf("unsupported llm_provider %q (want deepseek or openai)", c.LLMProvider)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxLoops < 1 {
		return fmt.Errorf("max_loops must be at least 1, got %d", c.MaxLoops)
	}
	if c.MaxSearchResults < 1 {
		return fmt.Errorf("max_search_results must be at least 1, got %d", c.MaxSearchResults)
	}
	if c.OrderbookDepth < 1 {
		return fmt.Errorf("orderbook_depth must be at least 1, got %d", c.OrderbookDepth)
	}
	if c.TradesLimit < 1 {
		return fmt.Errorf("trades_limit must be at least 1, got %d", c.TradesLimit)
	}
	if c.CallTimeout < 1 {
		return fmt.Errorf("call_timeout must be at least 1 second, got %d", c.CallTimeout)
	}
	if math.IsNaN(c.AvailableFunds) || math.IsInf(c.AvailableFunds, 0) || c.AvailableFunds < 0 {
		return fmt.Errorf("available_funds must be a finite non-negative number, got %v", c.AvailableFunds)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %v", c.Temperature)
	}
	for name, u := range map[string]string{
		"gamma_base_url": c.GammaBaseURL,
		"clob_base_url":  c.ClobBaseURL,
		"data_base_url":  c.DataBaseURL,
	} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%s must be an http(s) url, got %q", name, u)
		}
	}
	return nil
}

// APIKey returns the key of the configured chat model provider.
func (c *Config) APIKey() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.DeepSeekAPIKey
}

// RequireCredentials checks the keys needed to talk to the model. Search keys
// are optional: a missing key only disables that search tool.
func (c *Config) RequireCredentials() error {
	if c.APIKey() == "" {
		return fmt.Errorf("%s api key is required (set %s_API_KEY)", c.LLMProvider, strings.ToUpper(c.LLMProvider))
	}
	return nil
}

func (c *Config) CallTimeoutDuration() time.Duration {
	return time.Duration(c.CallTimeout) * time.Second
}

func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Minute
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.CacheDir}
	if c.DBPath != "" {
		dirs = append(dirs, filepath.Dir(c.DBPath))
	}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if len(s) <= 8 {
			if s == "" {
				return ""
			}
			return "****"
		}
		return s[:4] + "****" + s[len(s)-4:]
	}
	c.DeepSeekAPIKey = mask(c.DeepSeekAPIKey)
	c.OpenAIAPIKey = mask(c.OpenAIAPIKey)
	c.TavilyAPIKey = mask(c.TavilyAPIKey)
	c.ExaAPIKey = mask(c.ExaAPIKey)
	return c
}
