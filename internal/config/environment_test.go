package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	var buf bytes.Buffer
	c, err := Parse(map[string]string{}, &buf)
	require.NoError(t, err)

	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "text", c.LogFormat)
	assert.Equal(t, "/metrics", c.MetricsPath)
	assert.Empty(t, c.MetricsAddr)
	assert.Empty(t, c.SummaryExport)
	assert.False(t, c.NoColor)
	assert.Equal(t, logrus.InfoLevel, c.Logger().GetLevel())
}

func TestParse_Overrides(t *testing.T) {
	var buf bytes.Buffer
	c, err := Parse(map[string]string{
		"STRESSLINE_LOG_LEVEL":      "DEBUG",
		"STRESSLINE_LOG_FORMAT":     "json",
		"STRESSLINE_METRICS_ADDR":   ":9090",
		"STRESSLINE_METRICS_PATH":   "/prom",
		"STRESSLINE_SUMMARY_EXPORT": "out.json",
		"STRESSLINE_NO_COLOR":       "true",
	}, &buf)
	require.NoError(t, err)

	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, ":9090", c.MetricsAddr)
	assert.Equal(t, "/prom", c.MetricsPath)
	assert.Equal(t, "out.json", c.SummaryExport)
	assert.True(t, c.NoColor)

	c.Logger().WithField("run_id", "abc").Info("hello")
	assert.Contains(t, buf.String(), `"run_id":"abc"`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"log level":    {"STRESSLINE_LOG_LEVEL": "verbose"},
		"log format":   {"STRESSLINE_LOG_FORMAT": "xml"},
		"metrics path": {"STRESSLINE_METRICS_PATH": "metrics"},
		"bool":         {"STRESSLINE_NO_COLOR": "maybe"},
	}
	for name, environ := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(environ, &bytes.Buffer{})
			assert.Error(t, err)
		})
	}
}

func TestLogrusLogLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"silent":  logrus.PanicLevel,
		"error":   logrus.ErrorLevel,
		"warn":    logrus.WarnLevel,
		"info":    logrus.InfoLevel,
		"debug":   logrus.DebugLevel,
		"unknown": logrus.InfoLevel,
	}
	for level, want := range tests {
		c := &Configuration{LogLevel: level}
		assert.Equal(t, want, c.LogrusLogLevel(), level)
	}
}

func TestSetLogLevel(t *testing.T) {
	c, err := Parse(map[string]string{}, &bytes.Buffer{})
	require.NoError(t, err)

	require.NoError(t, c.SetLogLevel("warn"))
	assert.Equal(t, logrus.WarnLevel, c.Logger().GetLevel())

	assert.Error(t, c.SetLogLevel("loud"))
	assert.Equal(t, "warn", c.LogLevel)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	localFile := filepath.Join(dir, ".env.local")
	require.NoError(t, os.WriteFile(envFile, []byte("STRESSLINE_TEST_A=from-env\nSTRESSLINE_TEST_B=from-env\n"), 0o600))
	require.NoError(t, os.WriteFile(localFile, []byte("STRESSLINE_TEST_B=from-local\nSTRESSLINE_TEST_C=from-local\n"), 0o600))

	t.Setenv("STRESSLINE_TEST_A", "from-process")
	// Registers cleanup for variables the files set.
	t.Setenv("STRESSLINE_TEST_B", "")
	os.Unsetenv("STRESSLINE_TEST_B")
	t.Setenv("STRESSLINE_TEST_C", "")
	os.Unsetenv("STRESSLINE_TEST_C")

	n, err := LoadEnv([]string{envFile, localFile, filepath.Join(dir, "missing.env")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, "from-process", os.Getenv("STRESSLINE_TEST_A"))
	assert.Equal(t, "from-env", os.Getenv("STRESSLINE_TEST_B"))
	assert.Equal(t, "from-local", os.Getenv("STRESSLINE_TEST_C"))
}

func TestLoadEnv_NoFiles(t *testing.T) {
	n, err := LoadEnv([]string{filepath.Join(t.TempDir(), ".env")})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("STRESSLINE_LOG_LEVEL=warn\n"), 0o600))

	t.Setenv("STRESSLINE_LOG_LEVEL", "")
	os.Unsetenv("STRESSLINE_LOG_LEVEL")

	c, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, 1, c.EnvFilesLoaded)
	assert.Equal(t, "warn", c.LogLevel)
	assert.Equal(t, logrus.WarnLevel, c.Logger().GetLevel())
}
