package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the advisor service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	LLM       LLMConfig       `yaml:"llm"`
	Index     IndexConfig     `yaml:"index"`
	Profiles  ProfilesConfig  `yaml:"profiles"`
	Grounding GroundingConfig `yaml:"grounding"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// TelemetryConfig configures access to the telemetry collector APIs.
type TelemetryConfig struct {
	BaseURL    string        `yaml:"baseURL"`
	PlanPath   string        `yaml:"planPath"`
	AuditPath  string        `yaml:"auditPath"`
	BackupPath string        `yaml:"backupPath"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LLMConfig configures the generative backend shared by the classifier and
// the generator.
type LLMConfig struct {
	BaseURL        string        `yaml:"baseURL"`
	APIKey         string        `yaml:"apiKey"`
	Model          string        `yaml:"model"`
	EmbeddingModel string        `yaml:"embeddingModel"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"maxRetries"`
	RetryBaseDelay time.Duration `yaml:"retryBaseDelay"`
	RatePerSecond  float64       `yaml:"ratePerSecond"`
	RateBurst      int           `yaml:"rateBurst"`
}

// IndexConfig configures the retrieval index.
type IndexConfig struct {
	Dimensions    int     `yaml:"dimensions"`
	Path          string  `yaml:"path"`
	MinSimilarity float64 `yaml:"minSimilarity"`
	TopK          int     `yaml:"topK"`
}

// ProfilesConfig controls scoring rule-pack loading.
type ProfilesConfig struct {
	Dir string `yaml:"dir"`
}

// GroundingConfig controls narrative fact-checking.
type GroundingConfig struct {
	Mode string `yaml:"mode"`
}

// CacheConfig controls recommendation caching. Backend is one of noop,
// memory or sqlite.
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	Path    string        `yaml:"path"`
	TTL     time.Duration `yaml:"ttl"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ORACLE_ADVISOR_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			PlanPath:   "/api/v1/records/query_plan",
			AuditPath:  "/api/v1/records/audit_event",
			BackupPath: "/api/v1/records/backup_config",
			Timeout:    5 * time.Second,
		},
		LLM: LLMConfig{
			Model:          "llama-3.3-70b-versatile",
			EmbeddingModel: "all-minilm-l6-v2",
			Timeout:        60 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
			RatePerSecond:  1,
			RateBurst:      2,
		},
		Index: IndexConfig{
			Dimensions:    384,
			Path:          "data/index.db",
			MinSimilarity: 0.3,
			TopK:          5,
		},
		Profiles:  ProfilesConfig{Dir: "configs/profiles"},
		Grounding: GroundingConfig{Mode: "tolerant"},
		Cache: CacheConfig{
			Backend: "memory",
			Path:    "data/cache.db",
			TTL:     5 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORACLE_ADVISOR_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("ORACLE_ADVISOR_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("ORACLE_ADVISOR_TELEMETRY_URL"); v != "" {
		cfg.Telemetry.BaseURL = v
	}
	if v := os.Getenv("ORACLE_ADVISOR_TELEMETRY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Telemetry.Timeout = d
		}
	}
	if v := os.Getenv("ORACLE_ADVISOR_LLM_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("ORACLE_ADVISOR_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("ORACLE_ADVISOR_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("ORACLE_ADVISOR_EMBEDDING_MODEL"); v != "" {
		cfg.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("ORACLE_ADVISOR_LLM_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxRetries = n
		}
	}
	if v := os.Getenv("ORACLE_ADVISOR_INDEX_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.Dimensions = n
		}
	}
	if v := os.Getenv("ORACLE_ADVISOR_INDEX_PATH"); v != "" {
		cfg.Index.Path = v
	}
	if v := os.Getenv("ORACLE_ADVISOR_PROFILES_DIR"); v != "" {
		cfg.Profiles.Dir = v
	}
	if v := os.Getenv("ORACLE_ADVISOR_GROUNDING_MODE"); v != "" {
		cfg.Grounding.Mode = v
	}
	if v := os.Getenv("ORACLE_ADVISOR_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("ORACLE_ADVISOR_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("ORACLE_ADVISOR_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("ORACLE_ADVISOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ORACLE_ADVISOR_LOG_FORMAT"); strings.EqualFold(v, "json") {
		cfg.Logging.JSON = true
	}
}
