package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const defaultBackendBindAddress = "0.0.0.0:8000"

// Web holds the settings shared by both HTTP servers.
type Web struct {
	BindAddress     string        `split_words:"true" default:"0.0.0.0:8080"`
	ReadTimeout     time.Duration `split_words:"true" default:"30s"`
	WriteTimeout    time.Duration `split_words:"true" default:"60s"`
	IdleTimeout     time.Duration `split_words:"true" default:"5s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
}

// Telemetry toggles the metrics pipeline.
type Telemetry struct {
	Enabled      bool   `default:"true"`
	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
}

// ViewerConfig struct for environment variables of the viewer process.
type ViewerConfig struct {
	APIBaseURL     string `envconfig:"API_BASE_URL" default:"http://localhost:8000/api"`
	APIKey         string `envconfig:"API_KEY" default:"changeme-in-production"`
	APIBearerToken string `envconfig:"API_BEARER_TOKEN"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"INFO"`

	Web       Web
	Telemetry Telemetry
}

// BackendConfig struct for environment variables of the reference backend.
type BackendConfig struct {
	APIKey      string   `envconfig:"API_KEY" default:"changeme-in-production"`
	Storage     string   `envconfig:"STORAGE" default:"local"`
	StorageDir  string   `envconfig:"STORAGE_DIR" default:"reports"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:8080,http://localhost:5173"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"INFO"`

	Minio struct {
		Endpoint  string `split_words:"true" default:"localhost:9000"`
		AccessKey string `split_words:"true"`
		SecretKey string `split_words:"true"`
		UseSSL    bool   `envconfig:"USE_SSL"`
		Region    string `split_words:"true"`
		Bucket    string `split_words:"true" default:"reports"`
		Prefix    string `split_words:"true"`
	}

	Web Web
}

// LoadViewer reads the optional .env file and the environment into a ViewerConfig.
func LoadViewer(envFiles ...string) (*ViewerConfig, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	var cfg ViewerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.APIBaseURL == "" {
		return nil, errors.New("API_BASE_URL must not be empty")
	}

	return &cfg, nil
}

// LoadBackend reads the optional .env file and the environment into a BackendConfig.
func LoadBackend(envFiles ...string) (*BackendConfig, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	var cfg BackendConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	// The backend listens on its own port unless told otherwise.
	if _, ok := os.LookupEnv("WEB_BIND_ADDRESS"); !ok {
		cfg.Web.BindAddress = defaultBackendBindAddress
	}

	switch cfg.Storage {
	case "local", "minio":
	default:
		return nil, fmt.Errorf("invalid storage: %s", cfg.Storage)
	}

	return &cfg, nil
}

// loadDotEnv never overrides variables that are already set. A missing file is not an error.
func loadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading env file: %w", err)
	}

	return nil
}

func (c *ViewerConfig) SlogLevel() slog.Level {
	return parseLevel(c.LogLevel)
}

func (c *BackendConfig) SlogLevel() slog.Level {
	return parseLevel(c.LogLevel)
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
