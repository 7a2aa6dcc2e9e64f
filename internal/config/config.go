// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface is the read-only view of the application configuration handed to
// components. Nothing downstream of startup can mutate it.
type Interface interface {
	Logger() LoggerConfig
	Server() ServerConfig
	Agent() AgentConfig
	Automation() AutomationConfig
	LLM() LLMConfig
	Metrics() MetricsConfig
}

// Config holds the complete application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	ServerCfg     ServerConfig     `mapstructure:"server" yaml:"server"`
	AgentCfg      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	AutomationCfg AutomationConfig `mapstructure:"automation" yaml:"automation"`
	LLMCfg        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	MetricsCfg    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Server() ServerConfig         { return c.ServerCfg }
func (c *Config) Agent() AgentConfig           { return c.AgentCfg }
func (c *Config) Automation() AutomationConfig { return c.AutomationCfg }
func (c *Config) LLM() LLMConfig               { return c.LLMCfg }
func (c *Config) Metrics() MetricsConfig       { return c.MetricsCfg }

// LoggerConfig defines the logging configuration.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ServerConfig configures the operator-facing HTTP and WebSocket listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	WSPath          string        `mapstructure:"ws_path" yaml:"ws_path"`
	ReadLimit       int64         `mapstructure:"read_limit" yaml:"read_limit"`
	WriteWait       time.Duration `mapstructure:"write_wait" yaml:"write_wait"`
	PongWait        time.Duration `mapstructure:"pong_wait" yaml:"pong_wait"`
	SendBuffer      int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	TaskQueue       int           `mapstructure:"task_queue" yaml:"task_queue"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// PingPeriod is the keep-alive interval, kept below PongWait.
func (s ServerConfig) PingPeriod() time.Duration {
	return (s.PongWait * 9) / 10
}

// AgentConfig configures the perceive-reason-act loop.
type AgentConfig struct {
	// MaxIterations bounds the reasoning calls spent on a single task.
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	// Instruction accompanies every screenshot sent to the model.
	Instruction      string `mapstructure:"instruction" yaml:"instruction"`
	SystemPrompt     string `mapstructure:"system_prompt" yaml:"system_prompt"`
	SystemPromptFile string `mapstructure:"system_prompt_file" yaml:"system_prompt_file"`
}

// AutomationConfig points at the remote browser-automation service.
type AutomationConfig struct {
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	ExecuteTimeout    time.Duration `mapstructure:"execute_timeout" yaml:"execute_timeout"`
	ScreenshotTimeout time.Duration `mapstructure:"screenshot_timeout" yaml:"screenshot_timeout"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
)

// LLMConfig defines the reasoning backend.
type LLMConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Path      string `mapstructure:"path" yaml:"path"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// DefaultInstruction is sent alongside every screenshot.
const DefaultInstruction = "This is the current state of the browser. Your task is to continue progress on the user's request."

// NewDefaultConfig creates a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; a failure here is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Server --
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.read_limit", 64*1024)
	v.SetDefault("server.write_wait", "10s")
	v.SetDefault("server.pong_wait", "60s")
	v.SetDefault("server.send_buffer", 256)
	v.SetDefault("server.task_queue", 8)
	v.SetDefault("server.shutdown_timeout", "15s")

	// -- Agent --
	v.SetDefault("agent.max_iterations", 15)
	v.SetDefault("agent.instruction", DefaultInstruction)
	v.SetDefault("agent.system_prompt", "")
	v.SetDefault("agent.system_prompt_file", "")

	// -- Automation --
	v.SetDefault("automation.base_url", "http://playwright-service:3000")
	v.SetDefault("automation.execute_timeout", "10s")
	v.SetDefault("automation.screenshot_timeout", "30s")

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderGemini))
	v.SetDefault("llm.model", "gemini-2.5-pro")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.api_timeout", "120s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 2048)

	// -- Metrics --
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "webpilot")
}

// NewConfigFromViper unmarshals, resolves secrets and validates a configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	_ = v.BindEnv("llm.api_key", "WEBPILOT_LLM_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Fall back to the provider's conventional variable.
	if cfg.LLMCfg.APIKey == "" {
		cfg.LLMCfg.APIKey = providerKeyFromEnv(cfg.LLMCfg.Provider)
	}

	if err := cfg.resolveSystemPrompt(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func providerKeyFromEnv(p LLMProvider) string {
	switch p {
	case ProviderGemini:
		return os.Getenv("GOOGLE_API_KEY")
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// resolveSystemPrompt loads agent.system_prompt_file when no inline prompt is set.
func (c *Config) resolveSystemPrompt() error {
	if c.AgentCfg.SystemPrompt != "" || c.AgentCfg.SystemPromptFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.AgentCfg.SystemPromptFile)
	if err != nil {
		return fmt.Errorf("failed to read agent.system_prompt_file: %w", err)
	}
	c.AgentCfg.SystemPrompt = strings.TrimSpace(string(data))
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.ServerCfg.Addr == "" {
		return fmt.Errorf("server.addr is a required configuration field")
	}
	if !strings.HasPrefix(c.ServerCfg.WSPath, "/") {
		return fmt.Errorf("server.ws_path must start with '/'")
	}
	if c.ServerCfg.PongWait <= 0 || c.ServerCfg.WriteWait <= 0 {
		return fmt.Errorf("server.pong_wait and server.write_wait must be positive durations")
	}
	if c.ServerCfg.SendBuffer <= 0 || c.ServerCfg.TaskQueue <= 0 {
		return fmt.Errorf("server.send_buffer and server.task_queue must be positive integers")
	}
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.AutomationCfg.Validate(); err != nil {
		return fmt.Errorf("automation configuration invalid: %w", err)
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if c.MetricsCfg.Enabled && !strings.HasPrefix(c.MetricsCfg.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/'")
	}
	return nil
}

// Validate checks the agent loop settings.
func (a *AgentConfig) Validate() error {
	if a.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be a positive integer")
	}
	if strings.TrimSpace(a.Instruction) == "" {
		return fmt.Errorf("instruction must not be empty")
	}
	return nil
}

// Validate checks the automation backend settings.
func (a *AutomationConfig) Validate() error {
	u, err := url.Parse(a.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL, got %q", a.BaseURL)
	}
	if a.ExecuteTimeout <= 0 {
		return fmt.Errorf("execute_timeout must be a positive duration")
	}
	if a.ScreenshotTimeout <= 0 {
		return fmt.Errorf("screenshot_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the reasoning backend settings. The API key is not required
// here so that commands which never contact the model can still run.
func (l *LLMConfig) Validate() error {
	switch l.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported provider %q", l.Provider)
	}
	if l.Model == "" {
		return fmt.Errorf("model is required")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	if l.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be a positive duration")
	}
	return nil
}
