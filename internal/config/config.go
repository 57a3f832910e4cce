package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
	Scoring       ScoringConfig       `yaml:"scoring" mapstructure:"scoring"`
	Qualification QualificationConfig `yaml:"qualification" mapstructure:"qualification"`
	Workflow      WorkflowConfig      `yaml:"workflow" mapstructure:"workflow"`
	Dispatch      DispatchConfig      `yaml:"dispatch" mapstructure:"dispatch"`
	Alerting      AlertingConfig      `yaml:"alerting" mapstructure:"alerting"`
	Monitoring    MonitoringConfig    `yaml:"monitoring" mapstructure:"monitoring"`
	Resilience    ResilienceConfig    `yaml:"resilience" mapstructure:"resilience"`
	Schedule      ScheduleConfig      `yaml:"schedule" mapstructure:"schedule"`
	Perplexity    PerplexityConfig    `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic     AnthropicConfig     `yaml:"anthropic" mapstructure:"anthropic"`
	Notion        NotionConfig        `yaml:"notion" mapstructure:"notion"`
	Salesforce    SalesforceConfig    `yaml:"salesforce" mapstructure:"salesforce"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres, memory
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the operator API and dispatcher webhooks.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	WebhookSecret  string   `yaml:"webhook_secret" mapstructure:"webhook_secret"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ScoringConfig holds the versioned component weights of the lead scorer.
// Weights sum to 1.
type ScoringConfig struct {
	Version          string  `yaml:"version" mapstructure:"version"`
	ProfileWeight    float64 `yaml:"profile_weight" mapstructure:"profile_weight"`
	EnrichmentWeight float64 `yaml:"enrichment_weight" mapstructure:"enrichment_weight"`
	TitleWeight      float64 `yaml:"title_weight" mapstructure:"title_weight"`
	CompanyWeight    float64 `yaml:"company_weight" mapstructure:"company_weight"`
	EngagementWeight float64 `yaml:"engagement_weight" mapstructure:"engagement_weight"`
	ResearchWeight   float64 `yaml:"research_weight" mapstructure:"research_weight"`
	NeutralScore     float64 `yaml:"neutral_score" mapstructure:"neutral_score"`
}

// SourceProfile selects how a lead source is classified.
type SourceProfile struct {
	Mode               string  `yaml:"mode" mapstructure:"mode"` // composite or combined
	QualifiedThreshold float64 `yaml:"qualified_threshold" mapstructure:"qualified_threshold"`
	CompositeWeight    float64 `yaml:"composite_weight" mapstructure:"composite_weight"`
	EngagementWeight   float64 `yaml:"engagement_weight" mapstructure:"engagement_weight"`
}

// QualificationConfig configures tiering and opportunity matching.
type QualificationConfig struct {
	HotThreshold        float64                  `yaml:"hot_threshold" mapstructure:"hot_threshold"`
	PotentialThreshold  float64                  `yaml:"potential_threshold" mapstructure:"potential_threshold"`
	DevelopingThreshold float64                  `yaml:"developing_threshold" mapstructure:"developing_threshold"`
	OpportunityMinScore float64                  `yaml:"opportunity_min_score" mapstructure:"opportunity_min_score"`
	StaleAfterDays      int                      `yaml:"stale_after_days" mapstructure:"stale_after_days"`
	ResearchStaleDays   int                      `yaml:"research_stale_days" mapstructure:"research_stale_days"`
	BatchConcurrency    int                      `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
	Sources             map[string]SourceProfile `yaml:"sources" mapstructure:"sources"`

	// CompositeQualifiedThreshold applies when a combined-mode source is
	// judged on composite alone because the lead has no engagement yet.
	CompositeQualifiedThreshold float64 `yaml:"composite_qualified_threshold" mapstructure:"composite_qualified_threshold"`
}

// WorkflowConfig configures the orchestrator.
type WorkflowConfig struct {
	TemplateDir            string        `yaml:"template_dir" mapstructure:"template_dir"`
	TickLimit              int           `yaml:"tick_limit" mapstructure:"tick_limit"`
	Concurrency            int           `yaml:"concurrency" mapstructure:"concurrency"`
	MaxStepsPerTick        int           `yaml:"max_steps_per_tick" mapstructure:"max_steps_per_tick"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`
	StepRetryDelay         time.Duration `yaml:"step_retry_delay" mapstructure:"step_retry_delay"`
	DefaultTopic           string        `yaml:"default_topic" mapstructure:"default_topic"`
}

// DispatchConfig configures the outreach dispatcher webhook.
type DispatchConfig struct {
	WebhookURL string        `yaml:"webhook_url" mapstructure:"webhook_url"`
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`
	RateLimit  float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// AlertingConfig configures alert generation and delivery.
type AlertingConfig struct {
	DedupWindow    time.Duration `yaml:"dedup_window" mapstructure:"dedup_window"`
	ResponseWindow time.Duration `yaml:"response_window" mapstructure:"response_window"`
	WebhookURL     string        `yaml:"webhook_url" mapstructure:"webhook_url"`
	MinSeverity    string        `yaml:"min_severity" mapstructure:"min_severity"`
}

// MonitoringConfig configures the pipeline metrics checker.
type MonitoringConfig struct {
	Enabled              bool          `yaml:"enabled" mapstructure:"enabled"`
	CheckInterval        time.Duration `yaml:"check_interval" mapstructure:"check_interval"`
	StalledPausedMaxAge  time.Duration `yaml:"stalled_paused_max_age" mapstructure:"stalled_paused_max_age"`
	ResponseRateFloorPct float64       `yaml:"response_rate_floor_pct" mapstructure:"response_rate_floor_pct"`
}

// ResilienceConfig configures retry and circuit breaking for gateways.
type ResilienceConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ScheduleConfig configures the serve-mode background loops.
type ScheduleConfig struct {
	TickInterval  time.Duration `yaml:"tick_interval" mapstructure:"tick_interval"`
	RequalifyCron string        `yaml:"requalify_cron" mapstructure:"requalify_cron"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// NotionConfig holds Notion API credentials and database IDs.
type NotionConfig struct {
	Token        string `yaml:"token" mapstructure:"token"`
	LeadDB       string `yaml:"lead_db" mapstructure:"lead_db"`
	EnrichmentDB string `yaml:"enrichment_db" mapstructure:"enrichment_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// Enabled reports whether Salesforce sync has credentials.
func (c SalesforceConfig) Enabled() bool {
	return c.ClientID != "" && c.Username != "" && c.KeyPath != ""
}

// Load reads configuration from .env, file, and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "outreach.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("scoring.version", "v1")
	v.SetDefault("scoring.profile_weight", 0.15)
	v.SetDefault("scoring.enrichment_weight", 0.20)
	v.SetDefault("scoring.title_weight", 0.25)
	v.SetDefault("scoring.company_weight", 0.20)
	v.SetDefault("scoring.engagement_weight", 0.10)
	v.SetDefault("scoring.research_weight", 0.10)
	v.SetDefault("scoring.neutral_score", 50)

	v.SetDefault("qualification.hot_threshold", 90)
	v.SetDefault("qualification.potential_threshold", 60)
	v.SetDefault("qualification.developing_threshold", 40)
	v.SetDefault("qualification.opportunity_min_score", 60)
	v.SetDefault("qualification.stale_after_days", 7)
	v.SetDefault("qualification.research_stale_days", 30)
	v.SetDefault("qualification.batch_concurrency", 8)
	v.SetDefault("qualification.composite_qualified_threshold", 75)
	v.SetDefault("qualification.sources", map[string]any{
		"linkedin": map[string]any{"mode": "composite", "qualified_threshold": 75},
		"email":    map[string]any{"mode": "combined", "qualified_threshold": 80, "composite_weight": 0.6, "engagement_weight": 0.4},
		"default":  map[string]any{"mode": "combined", "qualified_threshold": 80, "composite_weight": 0.6, "engagement_weight": 0.4},
	})

	v.SetDefault("workflow.tick_limit", 200)
	v.SetDefault("workflow.concurrency", 8)
	v.SetDefault("workflow.max_steps_per_tick", 10)
	v.SetDefault("workflow.max_consecutive_failures", 3)
	v.SetDefault("workflow.step_retry_delay", "15m")
	v.SetDefault("workflow.default_topic", "board and advisory opportunities")

	v.SetDefault("dispatch.rate_limit", 5)
	v.SetDefault("dispatch.timeout", "30s")

	v.SetDefault("alerting.dedup_window", "24h")
	v.SetDefault("alerting.response_window", "2h")
	v.SetDefault("alerting.min_severity", "high")

	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.check_interval", "5m")
	v.SetDefault("monitoring.stalled_paused_max_age", "72h")
	v.SetDefault("monitoring.response_rate_floor_pct", 5)

	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 30000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)

	v.SetDefault("schedule.tick_interval", "1m")
	v.SetDefault("schedule.requalify_cron", "0 0 2 * * *")

	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
