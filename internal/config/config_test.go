package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, BackendSurrealDB, cfg.Backend)
	assert.Equal(t, 8, cfg.MatchCount)
	assert.Equal(t, "7-9", cfg.GradeLevel)
	assert.Equal(t, 10*time.Second, cfg.EmbedTimeout)
	assert.Equal(t, 30*time.Second, cfg.LLMAttemptTimeout)
	assert.Equal(t, time.Second, cfg.LLMBackoffUnit)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 100, cfg.QueueSize)
	assert.Equal(t, 15*time.Minute, cfg.StaleAfter)
	assert.Empty(t, cfg.SweepSchedule)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadFile_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kursgen.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[store]
backend = "sqlite"
sqlite_path = "/var/lib/kursgen/jobs.db"

[retrieval]
match_count = 12

[jobs]
workers = 2
sweep_schedule = "@every 5m"
stale_after = "30m"

[log]
level = "debug"
`), 0o644))

	t.Setenv("KURSGEN_WORKERS", "6")
	t.Setenv("KURSGEN_GRADE_LEVEL", "4-6")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "/var/lib/kursgen/jobs.db", cfg.SQLitePath)
	assert.Equal(t, 12, cfg.MatchCount)
	assert.Equal(t, 6, cfg.Workers, "env wins over file")
	assert.Equal(t, "4-6", cfg.GradeLevel)
	assert.Equal(t, "@every 5m", cfg.SweepSchedule)
	assert.Equal(t, 30*time.Minute, cfg.StaleAfter)
	assert.Equal(t, 100, cfg.QueueSize, "untouched keys keep defaults")
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad int", map[string]string{"KURSGEN_WORKERS": "many"}, "KURSGEN_WORKERS"},
		{"bad duration", map[string]string{"KURSGEN_STALE_AFTER": "soon"}, "KURSGEN_STALE_AFTER"},
		{"bad float", map[string]string{"KURSGEN_LLM_RPS": "fast"}, "KURSGEN_LLM_RPS"},
		{"unknown backend", map[string]string{"KURSGEN_BACKEND": "mongo"}, "unknown backend"},
		{"postgres without dsn", map[string]string{"KURSGEN_BACKEND": "postgres"}, "KURSGEN_POSTGRES_DSN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFile("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[store\nbackend="), 0o644))
	_, err = LoadFile(bad)
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.in), tt.in)
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("job created", "job_id", "abc")

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "job_id=abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(file.String())), &entry))
	assert.Equal(t, "job created", entry["msg"])
	assert.Equal(t, "kursgen", entry["app"])
}

func TestSetupLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "kursgen.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("started")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"started"`)
}
