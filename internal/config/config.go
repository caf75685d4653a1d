package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. The core only ever sees a
// resolved Config; file and environment parsing stays here.
type Config struct {
	General       GeneralConfig       `toml:"general" yaml:"general"`
	Site          SiteConfig          `toml:"site" yaml:"site"`
	Accounts      []AccountConfig     `toml:"accounts" yaml:"accounts"`
	AI            AIConfig            `toml:"ai" yaml:"ai"`
	Bot           BotConfig           `toml:"bot" yaml:"bot"`
	Browser       BrowserConfig       `toml:"browser" yaml:"browser"`
	Notifications NotificationsConfig `toml:"notifications" yaml:"notifications"`
	Web           WebConfig           `toml:"web" yaml:"web"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath string `toml:"database_path" yaml:"database_path"`
	MaxWorkers   int    `toml:"max_workers" yaml:"max_workers"`
	LogKeep      int    `toml:"log_keep" yaml:"log_keep"`
}

// SiteConfig holds target site settings
type SiteConfig struct {
	BaseURL                string   `toml:"base_url" yaml:"base_url"`
	MirrorURLs             []string `toml:"mirror_urls" yaml:"mirror_urls"`
	UserAgent              string   `toml:"user_agent" yaml:"user_agent"`
	TimeoutSeconds         int      `toml:"timeout_seconds" yaml:"timeout_seconds"`
	Retries                int      `toml:"retries" yaml:"retries"`
	Proxy                  string   `toml:"proxy" yaml:"proxy"`
	ReloginOnCookieFailure bool     `toml:"relogin_on_cookie_failure" yaml:"relogin_on_cookie_failure"`
}

// AccountConfig describes one account seeded into the store on first run
type AccountConfig struct {
	Label      string   `toml:"label" yaml:"label"`
	Username   string   `toml:"username" yaml:"username"`
	Password   string   `toml:"password" yaml:"password"`
	Cookie     string   `toml:"cookie" yaml:"cookie"`
	BaseURL    string   `toml:"base_url" yaml:"base_url"`
	MirrorURLs []string `toml:"mirror_urls" yaml:"mirror_urls"`
	UserAgent  string   `toml:"user_agent" yaml:"user_agent"`
}

// AIConfig holds chat-completion backend settings
type AIConfig struct {
	APIKey      string  `toml:"api_key" yaml:"api_key"`
	BaseURL     string  `toml:"base_url" yaml:"base_url"`
	Model       string  `toml:"model" yaml:"model"`
	Temperature float32 `toml:"temperature" yaml:"temperature"`
	MaxTokens   int     `toml:"max_tokens" yaml:"max_tokens"`
}

// BotConfig holds behavior flags
type BotConfig struct {
	DryRun       bool   `toml:"dry_run" yaml:"dry_run"`
	ReplyEnabled bool   `toml:"reply_enabled" yaml:"reply_enabled"`
	ReplyForums  []int  `toml:"reply_forums" yaml:"reply_forums"`
	Signature    string `toml:"signature" yaml:"signature"`
	DailyCheckin bool   `toml:"daily_checkin" yaml:"daily_checkin"`
	CheckinCron  string `toml:"checkin_cron" yaml:"checkin_cron"`
}

// BrowserConfig holds headless browser settings
type BrowserConfig struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	Headless       bool   `toml:"headless" yaml:"headless"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
	ExecPath       string `toml:"exec_path" yaml:"exec_path"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook" yaml:"slack_webhook"`
	Desktop      bool   `toml:"desktop" yaml:"desktop"`
}

// WebConfig holds web dashboard settings
type WebConfig struct {
	Host      string `toml:"host" yaml:"host"`
	Port      int    `toml:"port" yaml:"port"`
	StaticDir string `toml:"static_dir" yaml:"static_dir"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath: filepath.Join(home, ".discuzbot", "discuzbot.db"),
			MaxWorkers:   1,
			LogKeep:      500,
		},
		Site: SiteConfig{
			UserAgent:              "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0 Safari/537.36",
			TimeoutSeconds:         20,
			Retries:                3,
			ReloginOnCookieFailure: true,
		},
		AI: AIConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.5,
			MaxTokens:   200,
		},
		Bot: BotConfig{
			DryRun:       true,
			DailyCheckin: true,
			CheckinCron:  "30 8 * * *",
		},
		Browser: BrowserConfig{
			Headless:       true,
			TimeoutSeconds: 45,
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// Load reads configuration from a TOML or YAML file, falling back to
// defaults when the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	return cfg, cfg.Validate()
}

// Validate checks settings the core depends on
func (c *Config) Validate() error {
	if c.General.MaxWorkers < 1 {
		c.General.MaxWorkers = 1
	}
	if c.Site.TimeoutSeconds <= 0 {
		c.Site.TimeoutSeconds = 20
	}
	if c.Site.Retries < 0 {
		c.Site.Retries = 0
	}
	if c.Browser.TimeoutSeconds <= 0 {
		c.Browser.TimeoutSeconds = 45
	}
	for i, a := range c.Accounts {
		if a.Username == "" && a.Cookie == "" {
			return fmt.Errorf("account %d (%q): needs a username/password or a cookie", i, a.Label)
		}
	}
	return nil
}

// applyEnv overlays environment variables on top of file values.
// Secrets are the main use case; the names mirror the config sections.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SITE_BASE_URL"); v != "" {
		cfg.Site.BaseURL = v
	}
	if v := os.Getenv("SITE_MIRROR_URLS"); v != "" {
		cfg.Site.MirrorURLs = splitList(v)
	}
	if v := os.Getenv("SITE_USER_AGENT"); v != "" {
		cfg.Site.UserAgent = v
	}
	if v := os.Getenv("SITE_PROXY"); v != "" {
		cfg.Site.Proxy = v
	}
	if v := os.Getenv("AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("AI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
	if v := os.Getenv("AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("BOT_DRY_RUN"); v != "" {
		cfg.Bot.DryRun = parseBool(v)
	}
	if v := os.Getenv("BOT_REPLY_ENABLED"); v != "" {
		cfg.Bot.ReplyEnabled = parseBool(v)
	}
	if v := os.Getenv("BOT_SIGNATURE"); v != "" {
		cfg.Bot.Signature = v
	}
	if v := os.Getenv("BROWSER_ENABLED"); v != "" {
		cfg.Browser.Enabled = parseBool(v)
	}
	if v := os.Getenv("SLACK_WEBHOOK"); v != "" {
		cfg.Notifications.SlackWebhook = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return s == "yes" || s == "on"
	}
	return b
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "discuzbot", "config.toml")
}
