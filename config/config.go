package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	AppName     = "yandex-direct"
	EnvFileName = "config.env"
)

// Config is read from the environment, after LoadEnvFile has had a chance to
// populate it.
type Config struct {
	// Token is the OAuth token for the Direct API.
	Token       string `env:"DIRECT_TOKEN"`
	BaseURL     string `env:"DIRECT_BASE_URL"`
	Sandbox     bool   `env:"DIRECT_SANDBOX" envDefault:"false"`
	ClientLogin string `env:"DIRECT_CLIENT_LOGIN"`

	HTTPTimeout time.Duration `env:"DIRECT_HTTP_TIMEOUT" envDefault:"60s"`
	Report      Report

	ArchivePath   string        `env:"DIRECT_ARCHIVE_PATH"`
	ArchiveMaxAge time.Duration `env:"DIRECT_ARCHIVE_MAX_AGE" envDefault:"720h"`
	MetricsFile   string        `env:"DIRECT_METRICS_FILE"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Report bounds report polling. Zero values mean no limit.
type Report struct {
	Timeout  time.Duration `env:"DIRECT_REPORT_TIMEOUT" envDefault:"0s"`
	MaxPolls int           `env:"DIRECT_REPORT_MAX_POLLS" envDefault:"0"`
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory and then from ./.env. Errors are ignored since the files
// may not exist. Variables already set are not overridden.
func LoadEnvFile() {
	if configBase, err := os.UserConfigDir(); err == nil {
		_ = godotenv.Load(filepath.Join(configBase, AppName, EnvFileName))
	}
	_ = godotenv.Load()
}

// Load parses the configuration from the environment. A missing token is not
// an error here; the client reports it when it is constructed.
func Load() (Config, error) {
	return env.ParseAs[Config]()
}
