package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/web-pentest/agent"
	"github.com/hairizuanbinnoorazman/web-pentest/browser"
	"github.com/hairizuanbinnoorazman/web-pentest/cmd/backend/handlers"
	"github.com/hairizuanbinnoorazman/web-pentest/database"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/storage"
	"github.com/hairizuanbinnoorazman/web-pentest/toolset"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	Log       LogConfig
	Agent     agent.Config
	Registry  RegistryConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Tracker   TrackerConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// SSEPollInterval is how often event streams look for new events.
	SSEPollInterval time.Duration
}

// DatabaseConfig holds database connection configuration. The archive is
// only used when Enabled is set.
type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Connection returns the database package settings.
func (c DatabaseConfig) Connection() database.Config {
	return database.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Database,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

// StorageConfig holds blob storage configuration.
type StorageConfig struct {
	Enabled bool
	storage.Config
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Options returns the logger settings.
func (c LogConfig) Options() logger.Options {
	return logger.Options{
		Level:      c.Level,
		Format:     c.Format,
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Stdout:     true,
	}
}

// RegistryConfig controls how long finished runs stay in memory.
type RegistryConfig struct {
	Retention       time.Duration
	CleanupInterval time.Duration
}

// AuthConfig lists the accepted API tokens. An empty list disables auth.
type AuthConfig struct {
	Tokens []handlers.Token
}

// RateLimitConfig limits how fast new tests can be started.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

// CORSConfig holds cross-origin settings for browser clients.
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         int
}

// TrackerConfig selects the issue tracker findings are exported to.
type TrackerConfig struct {
	// Provider is "github", "jira" or empty for none.
	Provider    string
	MinSeverity string
	Labels      []string
	// AutoExport files issues as soon as a run completes.
	AutoExport bool

	GitHubToken      string
	GitHubBaseURL    string
	GitHubRepository string

	JiraURL       string
	JiraEmail     string
	JiraAPIToken  string
	JiraProject   string
	JiraIssueType string
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults
	}

	return parseConfig(v)
}

func setDefaults(v *viper.Viper) {
	agentDefaults := agent.DefaultConfig()
	browserDefaults := browser.DefaultConfig()
	toolDefaults := toolset.DefaultConfig()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "15s")
	// Event streams stay open for the whole run.
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.sse_poll_interval", "1s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "web_pentest")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.type", storage.TypeLocal)
	v.SetDefault("storage.base_dir", "./reports")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.presign_expiry", "15m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("agent.planner", agentDefaults.Planner)
	v.SetDefault("agent.max_iterations", agentDefaults.MaxIterations)
	v.SetDefault("agent.time_limit", agentDefaults.TimeLimit.String())
	v.SetDefault("agent.max_concurrent_workers", agentDefaults.MaxConcurrentWorkers)
	v.SetDefault("agent.queue_size", agentDefaults.QueueSize)
	v.SetDefault("agent.capture_screenshot", agentDefaults.CaptureScreenshot)
	v.SetDefault("agent.openai_api_key", "")
	v.SetDefault("agent.openai_base_url", "")
	v.SetDefault("agent.openai_model", agentDefaults.OpenAIModel)
	v.SetDefault("agent.bedrock_region", "us-east-1")
	v.SetDefault("agent.bedrock_model", "anthropic.claude-sonnet-4-6")
	v.SetDefault("agent.bedrock_max_tokens", agentDefaults.BedrockMaxTokens)

	v.SetDefault("browser.headless", browserDefaults.Headless)
	v.SetDefault("browser.timeout", browserDefaults.Timeout.String())
	v.SetDefault("browser.viewport_width", browserDefaults.ViewportWidth)
	v.SetDefault("browser.viewport_height", browserDefaults.ViewportHeight)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.headers", map[string]string{})
	v.SetDefault("browser.ignore_https_errors", false)
	v.SetDefault("browser.install_driver", false)

	v.SetDefault("toolset.input_settle", toolDefaults.InputSettle.String())
	v.SetDefault("toolset.field_settle", toolDefaults.FieldSettle.String())
	v.SetDefault("toolset.navigation_wait", toolDefaults.NavigationWait.String())
	v.SetDefault("toolset.network_idle_wait", toolDefaults.NetworkIdleWait.String())
	v.SetDefault("toolset.click_settle", toolDefaults.ClickSettle.String())
	v.SetDefault("toolset.trigger_settle", toolDefaults.TriggerSettle.String())
	v.SetDefault("toolset.action_timeout", toolDefaults.ActionTimeout.String())
	v.SetDefault("toolset.poll_interval", toolDefaults.PollInterval.String())
	v.SetDefault("toolset.content_preview_limit", toolDefaults.ContentPreviewLimit)
	v.SetDefault("toolset.sqli_username", toolDefaults.SQLIUsername)
	v.SetDefault("toolset.sqli_payload", toolDefaults.SQLIPayload)
	v.SetDefault("toolset.submit_signals", toolDefaults.SubmitSignals)
	v.SetDefault("toolset.success_indicators", toolDefaults.SuccessIndicators)
	v.SetDefault("toolset.xss_payloads", toolDefaults.XSSPayloads)
	v.SetDefault("toolset.dangerous_chars", toolDefaults.DangerousChars)

	v.SetDefault("registry.retention", "24h")
	v.SetDefault("registry.cleanup_interval", "5m")

	v.SetDefault("auth.tokens", []map[string]string{})

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_second", 1.0)
	v.SetDefault("ratelimit.burst", 5)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.max_age", 300)

	v.SetDefault("tracker.provider", "")
	v.SetDefault("tracker.min_severity", "MEDIUM")
	v.SetDefault("tracker.labels", []string{"web-pentest"})
	v.SetDefault("tracker.auto_export", false)
	v.SetDefault("tracker.github.token", "")
	v.SetDefault("tracker.github.base_url", "")
	v.SetDefault("tracker.github.repository", "")
	v.SetDefault("tracker.jira.url", "")
	v.SetDefault("tracker.jira.email", "")
	v.SetDefault("tracker.jira.api_token", "")
	v.SetDefault("tracker.jira.project", "")
	v.SetDefault("tracker.jira.issue_type", "Bug")
}

func parseConfig(v *viper.Viper) (*Config, error) {
	var config Config

	config.Server.Host = v.GetString("server.host")
	config.Server.Port = v.GetInt("server.port")
	config.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	config.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	config.Server.SSEPollInterval = v.GetDuration("server.sse_poll_interval")

	config.Database.Enabled = v.GetBool("database.enabled")
	config.Database.Host = v.GetString("database.host")
	config.Database.Port = v.GetInt("database.port")
	config.Database.User = v.GetString("database.user")
	config.Database.Password = v.GetString("database.password")
	config.Database.Database = v.GetString("database.database")
	config.Database.MaxOpenConns = v.GetInt("database.max_open_conns")
	config.Database.MaxIdleConns = v.GetInt("database.max_idle_conns")
	config.Database.ConnMaxLifetime = v.GetDuration("database.conn_max_lifetime")

	config.Storage.Enabled = v.GetBool("storage.enabled")
	config.Storage.Type = v.GetString("storage.type")
	config.Storage.BaseDir = v.GetString("storage.base_dir")
	config.Storage.Bucket = v.GetString("storage.bucket")
	config.Storage.Region = v.GetString("storage.region")
	config.Storage.Endpoint = v.GetString("storage.endpoint")
	config.Storage.AccessKey = v.GetString("storage.access_key")
	config.Storage.SecretKey = v.GetString("storage.secret_key")
	config.Storage.UseSSL = v.GetBool("storage.use_ssl")
	config.Storage.PresignExpiry = v.GetDuration("storage.presign_expiry")

	config.Log.Level = v.GetString("log.level")
	config.Log.Format = v.GetString("log.format")
	config.Log.File = v.GetString("log.file")
	config.Log.MaxSizeMB = v.GetInt("log.max_size_mb")
	config.Log.MaxBackups = v.GetInt("log.max_backups")
	config.Log.MaxAgeDays = v.GetInt("log.max_age_days")

	config.Agent.Planner = v.GetString("agent.planner")
	config.Agent.MaxIterations = v.GetInt("agent.max_iterations")
	config.Agent.TimeLimit = v.GetDuration("agent.time_limit")
	config.Agent.MaxConcurrentWorkers = v.GetInt("agent.max_concurrent_workers")
	config.Agent.QueueSize = v.GetInt("agent.queue_size")
	config.Agent.CaptureScreenshot = v.GetBool("agent.capture_screenshot")
	config.Agent.OpenAIAPIKey = v.GetString("agent.openai_api_key")
	config.Agent.OpenAIBaseURL = v.GetString("agent.openai_base_url")
	config.Agent.OpenAIModel = v.GetString("agent.openai_model")
	config.Agent.BedrockRegion = v.GetString("agent.bedrock_region")
	config.Agent.BedrockModel = v.GetString("agent.bedrock_model")
	config.Agent.BedrockMaxTokens = v.GetInt("agent.bedrock_max_tokens")

	config.Agent.Browser = browser.Config{
		Headless:          v.GetBool("browser.headless"),
		Timeout:           v.GetDuration("browser.timeout"),
		ViewportWidth:     v.GetInt("browser.viewport_width"),
		ViewportHeight:    v.GetInt("browser.viewport_height"),
		UserAgent:         v.GetString("browser.user_agent"),
		Headers:           v.GetStringMapString("browser.headers"),
		IgnoreHTTPSErrors: v.GetBool("browser.ignore_https_errors"),
		InstallDriver:     v.GetBool("browser.install_driver"),
	}

	config.Agent.Toolset = toolset.Config{
		InputSettle:         v.GetDuration("toolset.input_settle"),
		FieldSettle:         v.GetDuration("toolset.field_settle"),
		NavigationWait:      v.GetDuration("toolset.navigation_wait"),
		NetworkIdleWait:     v.GetDuration("toolset.network_idle_wait"),
		ClickSettle:         v.GetDuration("toolset.click_settle"),
		TriggerSettle:       v.GetDuration("toolset.trigger_settle"),
		ActionTimeout:       v.GetDuration("toolset.action_timeout"),
		PollInterval:        v.GetDuration("toolset.poll_interval"),
		ContentPreviewLimit: v.GetInt("toolset.content_preview_limit"),
		SQLIUsername:        v.GetString("toolset.sqli_username"),
		SQLIPayload:         v.GetString("toolset.sqli_payload"),
		SubmitSignals:       v.GetStringSlice("toolset.submit_signals"),
		SuccessIndicators:   v.GetStringSlice("toolset.success_indicators"),
		XSSPayloads:         v.GetStringSlice("toolset.xss_payloads"),
		DangerousChars:      v.GetStringSlice("toolset.dangerous_chars"),
	}

	config.Registry.Retention = v.GetDuration("registry.retention")
	config.Registry.CleanupInterval = v.GetDuration("registry.cleanup_interval")
	if config.Registry.Retention < 0 || config.Registry.CleanupInterval < 0 {
		return nil, fmt.Errorf("registry.retention and registry.cleanup_interval must not be negative")
	}

	var tokens []struct {
		Name  string `mapstructure:"name"`
		Hash  string `mapstructure:"hash"`
		Scope string `mapstructure:"scope"`
	}
	if err := v.UnmarshalKey("auth.tokens", &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse auth.tokens: %w", err)
	}
	for _, t := range tokens {
		if t.Hash == "" {
			return nil, fmt.Errorf("auth token %q has no hash", t.Name)
		}
		config.Auth.Tokens = append(config.Auth.Tokens, handlers.Token{
			Name:  t.Name,
			Hash:  t.Hash,
			Scope: t.Scope,
		})
	}

	config.RateLimit.Enabled = v.GetBool("ratelimit.enabled")
	config.RateLimit.RequestsPerSecond = v.GetFloat64("ratelimit.requests_per_second")
	config.RateLimit.Burst = v.GetInt("ratelimit.burst")

	config.CORS.AllowedOrigins = v.GetStringSlice("cors.allowed_origins")
	config.CORS.MaxAge = v.GetInt("cors.max_age")

	config.Tracker.Provider = v.GetString("tracker.provider")
	config.Tracker.MinSeverity = v.GetString("tracker.min_severity")
	config.Tracker.Labels = v.GetStringSlice("tracker.labels")
	config.Tracker.AutoExport = v.GetBool("tracker.auto_export")
	config.Tracker.GitHubToken = v.GetString("tracker.github.token")
	config.Tracker.GitHubBaseURL = v.GetString("tracker.github.base_url")
	config.Tracker.GitHubRepository = v.GetString("tracker.github.repository")
	config.Tracker.JiraURL = v.GetString("tracker.jira.url")
	config.Tracker.JiraEmail = v.GetString("tracker.jira.email")
	config.Tracker.JiraAPIToken = v.GetString("tracker.jira.api_token")
	config.Tracker.JiraProject = v.GetString("tracker.jira.project")
	config.Tracker.JiraIssueType = v.GetString("tracker.jira.issue_type")

	return &config, nil
}
