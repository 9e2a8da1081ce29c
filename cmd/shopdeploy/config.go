package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/artpar/shopdeploy/internal/core/command"
	"github.com/artpar/shopdeploy/internal/core/deployment"
	"github.com/artpar/shopdeploy/internal/core/shop"
	"github.com/artpar/shopdeploy/internal/core/shopconfig"
	"github.com/artpar/shopdeploy/internal/core/validation"
	"github.com/artpar/shopdeploy/internal/pipeline"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Layout   LayoutConfig   `mapstructure:"layout"`
	Registry RegistryConfig `mapstructure:"registry"`
	Source   SourceConfig   `mapstructure:"source"`
	Deploy   DeployConfig   `mapstructure:"deploy"`
	Lint     LintConfig     `mapstructure:"lint"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Configs  ConfigsConfig  `mapstructure:"configs"`
	History  HistoryConfig  `mapstructure:"history"`
	Server   ServerConfig   `mapstructure:"server"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LayoutConfig describes where shop themes live in the repository.
type LayoutConfig struct {
	ContentRoot   string `mapstructure:"content_root"`
	DefaultTheme  string `mapstructure:"default_theme"`
	ShopDelimiter string `mapstructure:"shop_delimiter"`
}

// RegistryConfig locates the shop registry file.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// SourceConfig selects how changed files are listed.
type SourceConfig struct {
	// Kind is "cli" (run git) or "gogit" (in-process).
	Kind    string `mapstructure:"kind"`
	RepoDir string `mapstructure:"repo_dir"`
	From    string `mapstructure:"from"`
	To      string `mapstructure:"to"`
}

// DeployConfig configures the theme upload tool.
type DeployConfig struct {
	Program    string   `mapstructure:"program"`
	Subcommand []string `mapstructure:"subcommand"`
	Flags      []string `mapstructure:"flags"`
	EnvFlag    string   `mapstructure:"env_flag"`
}

// LintConfig configures the theme lint tool.
type LintConfig struct {
	Program string   `mapstructure:"program"`
	Args    []string `mapstructure:"args"`
}

// DispatchConfig configures external command dispatch.
type DispatchConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// EnvFile is a dotenv file whose variables are passed to child processes.
	EnvFile string `mapstructure:"env_file"`
}

// ConfigsConfig configures write-configs.
type ConfigsConfig struct {
	// Mode is "append" or "replace".
	Mode string `mapstructure:"mode"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	// DSN is the SQLite database path. Empty disables history.
	DSN string `mapstructure:"dsn"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// Token, when set, is required to trigger deploys over HTTP.
	// Set via SHOPDEPLOY_SERVER_TOKEN environment variable.
	Token string `mapstructure:"token"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// =============================================================================
// Config Loading
// =============================================================================

// ErrInvalidConfig is returned when configuration values are unusable.
var ErrInvalidConfig = errors.New("invalid configuration")

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	deployTool := command.DefaultDeployTool()
	lintTool := command.DefaultLintTool()

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("layout.content_root", "shops")
	v.SetDefault("layout.default_theme", shop.DefaultTheme)
	v.SetDefault("layout.shop_delimiter", shop.DefaultDelimiter)
	v.SetDefault("registry.path", "config.yml")
	v.SetDefault("source.kind", "cli")
	v.SetDefault("source.repo_dir", ".")
	v.SetDefault("source.from", "HEAD^")
	v.SetDefault("source.to", "HEAD")
	v.SetDefault("deploy.program", deployTool.Program)
	v.SetDefault("deploy.subcommand", deployTool.Subcommand)
	v.SetDefault("deploy.flags", deployTool.Flags)
	v.SetDefault("deploy.env_flag", deployTool.EnvFlag)
	v.SetDefault("lint.program", lintTool.Program)
	v.SetDefault("lint.args", []string{})
	v.SetDefault("dispatch.max_concurrent", 4)
	v.SetDefault("dispatch.env_file", "")
	v.SetDefault("configs.mode", string(shopconfig.ModeAppend))
	v.SetDefault("history.dsn", "")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30m") // deploys run inside the request
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.token", "")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("SHOPDEPLOY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Layout.ContentRoot) == "" {
		return fmt.Errorf("%w: layout.content_root is empty", ErrInvalidConfig)
	}
	if c.Layout.ShopDelimiter == "" {
		return fmt.Errorf("%w: layout.shop_delimiter is empty", ErrInvalidConfig)
	}
	if c.Registry.Path == "" {
		return fmt.Errorf("%w: registry.path is empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.Source.Kind) {
	case "cli", "gogit", "go-git":
	default:
		return fmt.Errorf("%w: source.kind %q (want cli or gogit)", ErrInvalidConfig, c.Source.Kind)
	}
	if field, msg := validation.ValidateRevisions(c.Source.From, c.Source.To); field != "" {
		return fmt.Errorf("%w: source.%s", ErrInvalidConfig, msg)
	}
	if c.Deploy.Program == "" {
		return fmt.Errorf("%w: deploy.program is empty", ErrInvalidConfig)
	}
	if c.Lint.Program == "" {
		return fmt.Errorf("%w: lint.program is empty", ErrInvalidConfig)
	}
	if c.Dispatch.MaxConcurrent < 1 {
		return fmt.Errorf("%w: dispatch.max_concurrent must be at least 1", ErrInvalidConfig)
	}
	if _, err := shopconfig.ParseMode(c.Configs.Mode); err != nil {
		return fmt.Errorf("%w: configs.mode: %w", ErrInvalidConfig, err)
	}
	return nil
}

// PipelineConfig converts the loaded configuration into pipeline settings.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Layout: deployment.Layout{
			ContentRoot:  c.Layout.ContentRoot,
			DefaultTheme: c.Layout.DefaultTheme,
		},
		DeployTool: command.DeployTool{
			Program:    c.Deploy.Program,
			Subcommand: c.Deploy.Subcommand,
			Flags:      c.Deploy.Flags,
			EnvFlag:    c.Deploy.EnvFlag,
		},
		LintTool: command.LintTool{
			Program: c.Lint.Program,
			Args:    c.Lint.Args,
		},
		From: c.Source.From,
		To:   c.Source.To,
	}
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
// "json" writes slog JSON; anything else uses the terminal-friendly text handler.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if strings.ToLower(cfg.Log.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}

	handler := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmlog.Level(level),
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
	return slog.New(handler)
}
