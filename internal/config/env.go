package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env holds process settings that never live in the workspace file.
type Env struct {
	JWTSecret           string `env:"TASKROUTE_JWT_SECRET"`
	AllowUserHeader     bool   `env:"TASKROUTE_ALLOW_USER_HEADER" envDefault:"false"`
	ServiceName         string `env:"TASKROUTE_SERVICE_NAME" envDefault:"taskroute"`
	OTELEndpoint        string `env:"TASKROUTE_OTEL_ENDPOINT"`
	OTELEnabled         bool   `env:"TASKROUTE_OTEL_ENABLED" envDefault:"true"`
	SessionSweepMinutes int    `env:"TASKROUTE_SESSION_SWEEP_MINUTES" envDefault:"60"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadEnv reads optional dotenv files, then parses Env. Variables already
// set in the process win over dotenv values.
func LoadEnv(dotenvFiles ...string) (Env, error) {
	for _, file := range dotenvFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Env{}, fmt.Errorf("load %s: %w", file, err)
		}
	}
	var cfg Env
	if err := ParseEnv(&cfg); err != nil {
		return Env{}, err
	}
	if cfg.SessionSweepMinutes < 0 {
		return Env{}, errors.New("TASKROUTE_SESSION_SWEEP_MINUTES must not be negative")
	}
	return cfg, nil
}
