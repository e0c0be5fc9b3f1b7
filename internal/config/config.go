package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Settlement struct {
	URL            string        `env:"SETTLEMENT_URL" json:"url"`
	Timeout        time.Duration `env:"SETTLEMENT_TIMEOUT" envDefault:"10s" json:"timeout"`
	MaxAttempts    uint          `env:"SETTLEMENT_MAX_ATTEMPTS" envDefault:"5" json:"maxAttempts"`
	InitialBackoff time.Duration `env:"SETTLEMENT_INITIAL_BACKOFF" envDefault:"500ms" json:"initialBackoff"`
	MaxElapsed     time.Duration `env:"SETTLEMENT_MAX_ELAPSED" envDefault:"1m" json:"maxElapsed"`
}

type Rooms struct {
	ReconnectWindow time.Duration `env:"RECONNECT_WINDOW" envDefault:"30s" json:"reconnectWindow"`
	GracePeriod     time.Duration `env:"ROOM_GRACE_PERIOD" envDefault:"1m" json:"gracePeriod"`
	SweepInterval   time.Duration `env:"ROOM_SWEEP_INTERVAL" envDefault:"15s" json:"sweepInterval"`
	MaxRooms        int           `env:"MAX_ROOMS" envDefault:"10000" json:"maxRooms"`
}

type Config struct {
	HTTPAddr       string   `env:"HTTP_ADDR" envDefault:":3001" json:"httpAddr"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info" json:"logLevel"`
	LogFormat      string   `env:"LOG_FORMAT" envDefault:"text" json:"logFormat"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," json:"allowedOrigins"`
	RedisURL       string   `env:"REDIS_URL" json:"-"`
	RedisKeyPrefix string   `env:"REDIS_KEY_PREFIX" envDefault:"coordinator:" json:"redisKeyPrefix"`

	Rooms      Rooms      `json:"rooms"`
	Settlement Settlement `json:"settlement"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Rooms.ReconnectWindow <= 0 {
		errs = append(errs, errors.New("RECONNECT_WINDOW must be positive"))
	}
	if c.Rooms.GracePeriod < 0 {
		errs = append(errs, errors.New("ROOM_GRACE_PERIOD must not be negative"))
	}
	if c.Rooms.SweepInterval <= 0 {
		errs = append(errs, errors.New("ROOM_SWEEP_INTERVAL must be positive"))
	}
	if c.Rooms.MaxRooms <= 0 {
		errs = append(errs, errors.New("MAX_ROOMS must be positive"))
	}
	if c.Settlement.Timeout <= 0 {
		errs = append(errs, errors.New("SETTLEMENT_TIMEOUT must be positive"))
	}
	if c.Settlement.MaxAttempts == 0 {
		errs = append(errs, errors.New("SETTLEMENT_MAX_ATTEMPTS must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
