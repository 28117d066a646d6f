package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"TopicNewsletter/internal/domain"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "NEWSLETTER_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	redisAddrEnv      = "REDIS_ADDR"
	redisPasswordEnv  = "REDIS_PASSWORD"
	chatGPTAPIKeyEnv  = "CHATGPT_API_KEY"
	chatGPTModelEnv   = "CHATGPT_MODEL"
	serperAPIKeyEnv   = "SERPER_API_KEY"
	tavilyAPIKeyEnv   = "TAVILY_API_KEY"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Newsletter    NewsletterConfig   `yaml:"newsletter"`
	Workflow      WorkflowConfig     `yaml:"workflow"`
	Search        SearchConfig       `yaml:"search"`
	ML            MLConfig           `yaml:"ml"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	Database      DatabaseConfig     `yaml:"database"`
	Redis         RedisConfig        `yaml:"redis"`
	Notifications NotificationConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Output        OutputConfig       `yaml:"output"`
	HTTP          HTTPConfig         `yaml:"http"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// NewsletterConfig names what the newsletter is about.
type NewsletterConfig struct {
	MainTopic string             `yaml:"mainTopic"`
	SubTopics []domain.TopicSpec `yaml:"subTopics"`
	// SelectedTopics restricts the assembled newsletter; empty means all.
	SelectedTopics []string `yaml:"selectedTopics"`
}

// WorkflowConfig carries the engine tunables.
type WorkflowConfig struct {
	RelevanceThreshold  float64 `yaml:"relevanceThreshold"`
	MaxArticlesPerTopic int     `yaml:"maxArticlesPerTopic"`
	MaxLoopIterations   int     `yaml:"maxLoopIterations"`
	StageTimeoutSeconds int     `yaml:"stageTimeoutSeconds"`
	MaxSearchResults    int     `yaml:"maxSearchResults"`
	RecencyDays         int     `yaml:"recencyDays"`
	Parallelism         int     `yaml:"parallelism"`
	DefaultQualityScore float64 `yaml:"defaultQualityScore"`
	FeedbackThreshold   float64 `yaml:"feedbackThreshold"`
	MinAverageQuality   float64 `yaml:"minAverageQuality"`
	LockTTLMinutes      int     `yaml:"lockTtlMinutes"`
}

// StageTimeout converts the configured seconds.
func (w WorkflowConfig) StageTimeout() time.Duration {
	return time.Duration(w.StageTimeoutSeconds) * time.Second
}

// LockTTL converts the configured minutes.
func (w WorkflowConfig) LockTTL() time.Duration {
	return time.Duration(w.LockTTLMinutes) * time.Minute
}

// SearchConfig groups settings for article sources.
type SearchConfig struct {
	// Providers lists provider names in fallback order (serper, tavily, arxiv).
	Providers      []string     `yaml:"providers"`
	EnrichSnippets bool         `yaml:"enrichSnippets"`
	UserAgent      string       `yaml:"userAgent"`
	Serper         SerperConfig `yaml:"serper"`
	Tavily         TavilyConfig `yaml:"tavily"`
	Arxiv          ArxivConfig  `yaml:"arxiv"`
}

// SerperConfig configures the Serper news API.
type SerperConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// TavilyConfig configures the Tavily search API.
type TavilyConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// ArxivConfig configures the arXiv search scraper.
type ArxivConfig struct {
	BaseURL string `yaml:"baseUrl"`
}

// MLConfig describes neural-service integration parameters.
type MLConfig struct {
	InferenceURL string `yaml:"inferenceUrl"`
	APIKey       string `yaml:"apiKey"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig describes the snapshot store and run lock backend.
type RedisConfig struct {
	Addr             string `yaml:"addr"`
	Password         string `yaml:"password"`
	DB               int    `yaml:"db"`
	KeyPrefix        string `yaml:"keyPrefix"`
	SnapshotTTLHours int    `yaml:"snapshotTtlHours"`
}

// SnapshotTTL converts the configured hours.
func (r RedisConfig) SnapshotTTL() time.Duration {
	return time.Duration(r.SnapshotTTLHours) * time.Hour
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	BaseURL  string `yaml:"baseUrl"`
}

// SchedulerConfig defines when runs start.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// OutputConfig says where rendered artifacts go.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// HTTPConfig configures the run API.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// MetricsConfig configures the standalone metrics listener used by the scheduler.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig sets the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads the YAML file at path (or $NEWSLETTER_CONFIG when path is empty)
// over the defaults and applies environment overrides. A missing path is not
// an error; an unreadable or malformed file is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{databaseDSNEnv, &c.Database.DSN},
		{redisAddrEnv, &c.Redis.Addr},
		{redisPasswordEnv, &c.Redis.Password},
		{chatGPTAPIKeyEnv, &c.ChatGPT.APIKey},
		{chatGPTModelEnv, &c.ChatGPT.Model},
		{serperAPIKeyEnv, &c.Search.Serper.APIKey},
		{tavilyAPIKeyEnv, &c.Search.Tavily.APIKey},
		{telegramTokenEnv, &c.Notifications.Telegram.BotToken},
		{telegramChatIDEnv, &c.Notifications.Telegram.ChatID},
		{logLevelEnv, &c.Logging.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("scheduler timezone %q: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

// Validate checks the run configuration. Every problem is a ConfigurationError.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Newsletter.MainTopic) == "" {
		return domain.ConfigError("newsletter.mainTopic is empty")
	}
	if len(c.Newsletter.SubTopics) == 0 {
		return domain.ConfigError("newsletter.subTopics is empty")
	}
	seen := make(map[string]struct{}, len(c.Newsletter.SubTopics))
	for i, topic := range c.Newsletter.SubTopics {
		name := strings.TrimSpace(topic.Name)
		if name == "" {
			return domain.ConfigError("newsletter.subTopics[%d] has no name", i)
		}
		if _, dup := seen[name]; dup {
			return domain.ConfigError("newsletter.subTopics has duplicate topic %q", name)
		}
		seen[name] = struct{}{}
	}
	for _, selected := range c.Newsletter.SelectedTopics {
		if _, ok := seen[strings.TrimSpace(selected)]; !ok {
			return domain.ConfigError("newsletter.selectedTopics names unknown topic %q", selected)
		}
	}

	w := c.Workflow
	for name, v := range map[string]float64{
		"relevanceThreshold":  w.RelevanceThreshold,
		"defaultQualityScore": w.DefaultQualityScore,
		"feedbackThreshold":   w.FeedbackThreshold,
		"minAverageQuality":   w.MinAverageQuality,
	} {
		if !(v >= 0 && v <= 1) {
			return domain.ConfigError("workflow.%s %.2f outside [0,1]", name, v)
		}
	}
	for name, v := range map[string]int{
		"maxArticlesPerTopic": w.MaxArticlesPerTopic,
		"stageTimeoutSeconds": w.StageTimeoutSeconds,
		"maxSearchResults":    w.MaxSearchResults,
		"recencyDays":         w.RecencyDays,
		"parallelism":         w.Parallelism,
	} {
		if v <= 0 {
			return domain.ConfigError("workflow.%s must be positive, got %d", name, v)
		}
	}
	if w.MaxLoopIterations < 0 {
		return domain.ConfigError("workflow.maxLoopIterations must not be negative")
	}
	if len(c.Search.Providers) == 0 {
		return domain.ConfigError("search.providers is empty")
	}
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Workflow: WorkflowConfig{
			RelevanceThreshold:  0.5,
			MaxArticlesPerTopic: 10,
			StageTimeoutSeconds: 120,
			MaxSearchResults:    15,
			RecencyDays:         7,
			Parallelism:         1,
			DefaultQualityScore: 0.5,
			FeedbackThreshold:   0.7,
			MinAverageQuality:   0,
			LockTTLMinutes:      30,
		},
		Search: SearchConfig{
			Providers:      []string{"serper", "tavily", "arxiv"},
			EnrichSnippets: true,
			UserAgent:      "TopicNewsletter/1.0",
			Serper:         SerperConfig{Endpoint: "https://google.serper.dev/news"},
			Tavily:         TavilyConfig{Endpoint: "https://api.tavily.com/search"},
			Arxiv:          ArxivConfig{BaseURL: "https://arxiv.org"},
		},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a research analyst who writes concise, factual newsletter content.",
		},
		Redis:         RedisConfig{KeyPrefix: "newsletter", SnapshotTTLHours: 24 * 7},
		Notifications: NotificationConfig{Telegram: TelegramConfig{BaseURL: "https://api.telegram.org"}},
		Scheduler:     SchedulerConfig{CronExpression: "0 6 * * 1", Timezone: defaultTimezone, location: tz},
		Output:        OutputConfig{Dir: "outputs"},
		HTTP:          HTTPConfig{Addr: ":8080"},
		Logging:       LoggingConfig{Level: "info"},
	}
}
