// Package config loads kursgen settings from an optional TOML file and the
// environment. Environment variables override file values.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Backend names a job and chunk store implementation.
type Backend string

const (
	BackendSurrealDB Backend = "surrealdb"
	BackendPostgres  Backend = "postgres"
	BackendSQLite    Backend = "sqlite"
)

// Config holds all configuration values.
type Config struct {
	Backend Backend

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	PostgresDSN string
	SQLitePath  string

	// Embedding
	EmbeddingProvider  string
	EmbeddingModel     string
	EmbeddingDimension int

	// Generation
	LLMProvider          string
	LLMModel             string
	LLMRequestsPerSecond float64
	LLMBurst             int
	LLMAttemptTimeout    time.Duration
	LLMBackoffUnit       time.Duration

	// Credentials and endpoints
	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaHost      string
	AWSRegion       string

	// Retrieval
	MatchCount   int
	GradeLevel   string
	EmbedTimeout time.Duration

	// Jobs
	Workers       int
	QueueSize     int
	SweepSchedule string
	StaleAfter    time.Duration

	// Curriculum data
	SubjectsFile string
	DataDir      string

	// HTTP
	ServerPort string
	ServerURL  string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// fileConfig mirrors the TOML layout. Pointer-free: decoding over the
// defaults leaves absent keys untouched.
type fileConfig struct {
	Store struct {
		Backend     string `toml:"backend"`
		PostgresDSN string `toml:"postgres_dsn"`
		SQLitePath  string `toml:"sqlite_path"`
		SurrealDB   struct {
			URL       string `toml:"url"`
			Namespace string `toml:"namespace"`
			Database  string `toml:"database"`
			User      string `toml:"user"`
			Pass      string `toml:"pass"`
			AuthLevel string `toml:"auth_level"`
		} `toml:"surrealdb"`
	} `toml:"store"`

	Embedding struct {
		Provider  string `toml:"provider"`
		Model     string `toml:"model"`
		Dimension int    `toml:"dimension"`
	} `toml:"embedding"`

	LLM struct {
		Provider          string  `toml:"provider"`
		Model             string  `toml:"model"`
		RequestsPerSecond float64 `toml:"requests_per_second"`
		Burst             int     `toml:"burst"`
		AttemptTimeout    string  `toml:"attempt_timeout"`
		BackoffUnit       string  `toml:"backoff_unit"`
	} `toml:"llm"`

	Keys struct {
		Gemini    string `toml:"gemini"`
		OpenAI    string `toml:"openai"`
		Anthropic string `toml:"anthropic"`
	} `toml:"keys"`

	OllamaHost string `toml:"ollama_host"`
	AWSRegion  string `toml:"aws_region"`

	Retrieval struct {
		MatchCount   int    `toml:"match_count"`
		GradeLevel   string `toml:"grade_level"`
		EmbedTimeout string `toml:"embed_timeout"`
	} `toml:"retrieval"`

	Jobs struct {
		Workers       int    `toml:"workers"`
		QueueSize     int    `toml:"queue_size"`
		SweepSchedule string `toml:"sweep_schedule"`
		StaleAfter    string `toml:"stale_after"`
	} `toml:"jobs"`

	Data struct {
		Dir          string `toml:"dir"`
		SubjectsFile string `toml:"subjects_file"`
	} `toml:"data"`

	Server struct {
		Port string `toml:"port"`
		URL  string `toml:"url"`
	} `toml:"server"`

	Log struct {
		File  string `toml:"file"`
		Level string `toml:"level"`
	} `toml:"log"`
}

func defaults() fileConfig {
	var f fileConfig
	f.Store.Backend = string(BackendSurrealDB)
	f.Store.SQLitePath = "kursgen.db"
	f.Store.SurrealDB.URL = "ws://localhost:8000/rpc"
	f.Store.SurrealDB.Namespace = "kursgen"
	f.Store.SurrealDB.Database = "kursgen"
	f.Store.SurrealDB.User = "root"
	f.Store.SurrealDB.Pass = "root"
	f.Store.SurrealDB.AuthLevel = "root"
	f.Embedding.Provider = "gemini"
	f.LLM.Provider = "gemini"
	f.LLM.AttemptTimeout = "30s"
	f.LLM.BackoffUnit = "1s"
	f.OllamaHost = "http://localhost:11434"
	f.Retrieval.MatchCount = 8
	f.Retrieval.GradeLevel = "7-9"
	f.Retrieval.EmbedTimeout = "10s"
	f.Jobs.Workers = 4
	f.Jobs.QueueSize = 100
	f.Jobs.StaleAfter = "15m"
	f.Data.Dir = "data"
	f.Server.Port = "8080"
	f.Server.URL = "http://localhost:8080"
	f.Log.File = "/tmp/kursgen.log"
	f.Log.Level = "INFO"
	return f
}

// Load reads the file named by KURSGEN_CONFIG, if set, and applies
// environment overrides.
func Load() (Config, error) {
	return LoadFile(os.Getenv("KURSGEN_CONFIG"))
}

// LoadFile is Load with an explicit config file path. An empty path skips
// the file.
func LoadFile(path string) (Config, error) {
	f := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &f); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	p := &envParser{}
	cfg := Config{
		Backend: Backend(strings.ToLower(getEnv("KURSGEN_BACKEND", f.Store.Backend))),

		SurrealDBURL:       getEnv("SURREALDB_URL", f.Store.SurrealDB.URL),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", f.Store.SurrealDB.Namespace),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", f.Store.SurrealDB.Database),
		SurrealDBUser:      getEnv("SURREALDB_USER", f.Store.SurrealDB.User),
		SurrealDBPass:      getEnv("SURREALDB_PASS", f.Store.SurrealDB.Pass),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", f.Store.SurrealDB.AuthLevel),

		PostgresDSN: getEnv("KURSGEN_POSTGRES_DSN", f.Store.PostgresDSN),
		SQLitePath:  getEnv("KURSGEN_SQLITE_PATH", f.Store.SQLitePath),

		EmbeddingProvider:  getEnv("KURSGEN_EMBEDDING_PROVIDER", f.Embedding.Provider),
		EmbeddingModel:     getEnv("KURSGEN_EMBEDDING_MODEL", f.Embedding.Model),
		EmbeddingDimension: p.int("KURSGEN_EMBEDDING_DIMENSION", f.Embedding.Dimension),

		LLMProvider:          getEnv("KURSGEN_LLM_PROVIDER", f.LLM.Provider),
		LLMModel:             getEnv("KURSGEN_LLM_MODEL", f.LLM.Model),
		LLMRequestsPerSecond: p.float("KURSGEN_LLM_RPS", f.LLM.RequestsPerSecond),
		LLMBurst:             p.int("KURSGEN_LLM_BURST", f.LLM.Burst),
		LLMAttemptTimeout:    p.duration("KURSGEN_LLM_TIMEOUT", f.LLM.AttemptTimeout),
		LLMBackoffUnit:       p.duration("KURSGEN_LLM_BACKOFF", f.LLM.BackoffUnit),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", f.Keys.Gemini),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", f.Keys.OpenAI),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", f.Keys.Anthropic),
		OllamaHost:      getEnv("OLLAMA_HOST", f.OllamaHost),
		AWSRegion:       getEnv("AWS_REGION", f.AWSRegion),

		MatchCount:   p.int("KURSGEN_MATCH_COUNT", f.Retrieval.MatchCount),
		GradeLevel:   getEnv("KURSGEN_GRADE_LEVEL", f.Retrieval.GradeLevel),
		EmbedTimeout: p.duration("KURSGEN_EMBED_TIMEOUT", f.Retrieval.EmbedTimeout),

		Workers:       p.int("KURSGEN_WORKERS", f.Jobs.Workers),
		QueueSize:     p.int("KURSGEN_QUEUE_SIZE", f.Jobs.QueueSize),
		SweepSchedule: getEnv("KURSGEN_SWEEP_SCHEDULE", f.Jobs.SweepSchedule),
		StaleAfter:    p.duration("KURSGEN_STALE_AFTER", f.Jobs.StaleAfter),

		SubjectsFile: getEnv("KURSGEN_SUBJECTS_FILE", f.Data.SubjectsFile),
		DataDir:      getEnv("KURSGEN_DATA_DIR", f.Data.Dir),

		ServerPort: getEnv("KURSGEN_PORT", f.Server.Port),
		ServerURL:  getEnv("KURSGEN_URL", f.Server.URL),

		LogFile:  getEnv("KURSGEN_LOG_FILE", f.Log.File),
		LogLevel: parseLogLevel(getEnv("KURSGEN_LOG_LEVEL", f.Log.Level)),
	}
	if p.err != nil {
		return Config{}, p.err
	}

	switch cfg.Backend {
	case BackendSurrealDB, BackendPostgres, BackendSQLite:
	default:
		return Config{}, fmt.Errorf("unknown backend %q (want surrealdb, postgres or sqlite)", cfg.Backend)
	}
	if cfg.Backend == BackendPostgres && cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("postgres backend needs KURSGEN_POSTGRES_DSN")
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// envParser reads typed values and keeps the first parse error.
type envParser struct {
	err error
}

func (p *envParser) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" || p.err != nil {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
		return def
	}
	return v
}

func (p *envParser) float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" || p.err != nil {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
		return def
	}
	return v
}

// duration parses the environment value, or def when unset. def comes from
// the file or built-in defaults and may be empty.
func (p *envParser) duration(key, def string) time.Duration {
	raw := getEnv(key, def)
	if raw == "" || p.err != nil {
		return 0
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
		return 0
	}
	return v
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
