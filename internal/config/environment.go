// Package config reads process configuration from the environment and .env
// files and builds the logger.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// DefaultEnvFiles are loaded from the working directory, in order. A variable
// already set in the environment, or by an earlier file, is never overridden.
var DefaultEnvFiles = []string{".env", ".env.local"}

var singleton = sync.OnceValues(func() (*Configuration, error) {
	return Load(DefaultEnvFiles...)
})

// Use returns the process-wide configuration, loading it on first call.
func Use() (*Configuration, error) {
	return singleton()
}

// LoadEnv loads the env files that exist and reports how many were found.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Configuration holds settings that come from the environment rather than
// from a scenario file. Command-line flags override them.
type Configuration struct {
	// LogLevel is silent, error, warn, info or debug
	LogLevel string `env:"STRESSLINE_LOG_LEVEL" envDefault:"info"`

	// LogFormat is text or json
	LogFormat string `env:"STRESSLINE_LOG_FORMAT" envDefault:"text"`

	// MetricsAddr enables the Prometheus endpoint when set, e.g. :9090
	MetricsAddr string `env:"STRESSLINE_METRICS_ADDR"`
	MetricsPath string `env:"STRESSLINE_METRICS_PATH" envDefault:"/metrics"`

	// SummaryExport is a path the end-of-run summary is written to
	SummaryExport string `env:"STRESSLINE_SUMMARY_EXPORT"`

	NoColor bool `env:"STRESSLINE_NO_COLOR" envDefault:"false"`

	// EnvFilesLoaded is how many .env files were read
	EnvFilesLoaded int `env:"-"`

	logger *logrus.Logger
}

// Load reads envFiles into the process environment, then parses it.
func Load(envFiles ...string) (*Configuration, error) {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}

	c := &Configuration{}
	if err := env.Parse(c); err != nil {
		return nil, err
	}
	c.EnvFilesLoaded = n

	if err := c.init(os.Stderr); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse reads configuration from environ instead of the process environment.
// Logs go to w.
func Parse(environ map[string]string, w io.Writer) (*Configuration, error) {
	c := &Configuration{}
	if err := env.ParseWithOptions(c, env.Options{Environment: environ}); err != nil {
		return nil, err
	}
	if err := c.init(w); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Configuration) init(w io.Writer) error {
	if err := c.Validate(); err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(c.LogrusLogLevel())
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			DisableColors:   c.NoColor,
			TimestampFormat: "15:04:05.000",
		})
	}
	c.logger = logger
	return nil
}

// Validate checks enumerated settings.
func (c *Configuration) Validate() error {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "silent", "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("invalid STRESSLINE_LOG_LEVEL=%q (expected silent|error|warn|info|debug)", c.LogLevel)
	}

	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid STRESSLINE_LOG_FORMAT=%q (expected text|json)", c.LogFormat)
	}

	if c.MetricsPath == "" || !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("invalid STRESSLINE_METRICS_PATH=%q (must start with /)", c.MetricsPath)
	}
	return nil
}

// Logger returns the configured logger.
func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

// SetLogLevel changes the level of the configured logger.
func (c *Configuration) SetLogLevel(level string) error {
	prev := c.LogLevel
	c.LogLevel = level
	if err := c.Validate(); err != nil {
		c.LogLevel = prev
		return err
	}
	if c.logger != nil {
		c.logger.SetLevel(c.LogrusLogLevel())
	}
	return nil
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}
