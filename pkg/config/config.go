package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres  = "postgres"
	DriverFirestore = "firestore"
	DriverBadger    = "badger"
)

type Config struct {
	ServerPort  string `envconfig:"SERVER_PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// StoreDriver selects the conversation store. Empty means postgres when
	// DATABASE_URL is set and the embedded badger store otherwise.
	StoreDriver      string `envconfig:"STORE_DRIVER"`
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	BadgerPath       string `envconfig:"BADGER_PATH" default:"./data/badger"`

	FirebaseProject            string `envconfig:"FIREBASE_PROJECT_ID"`
	FirebaseServiceAccountPath string `envconfig:"FIREBASE_SERVICE_ACCOUNT_PATH"`
	FirebaseServiceAccountJSON string `envconfig:"FIREBASE_SERVICE_ACCOUNT_JSON"`

	JWTSecret string `envconfig:"JWT_SECRET"`

	RedisURL     string `envconfig:"REDIS_URL"`
	RedisChannel string `envconfig:"REDIS_CHANNEL" default:"campusmarket:events"`

	NotifyTimeout        time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"5s"`
	MessageRatePerMinute int           `envconfig:"MESSAGE_RATE_PER_MINUTE" default:"30"`
	MessageRateBurst     int           `envconfig:"MESSAGE_RATE_BURST" default:"10"`
	WSSendBuffer         int           `envconfig:"WS_SEND_BUFFER" default:"64"`
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	if c.StoreDriver == "" {
		if c.DatabaseURL != "" {
			c.StoreDriver = DriverPostgres
		} else {
			c.StoreDriver = DriverBadger
		}
	}

	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres store")
		}
	case DriverFirestore:
		if c.FirebaseProject == "" {
			return fmt.Errorf("config: FIREBASE_PROJECT_ID is required for the firestore store")
		}
	case DriverBadger:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.FirebaseProject == "" && c.JWTSecret == "" {
		return fmt.Errorf("config: either FIREBASE_PROJECT_ID or JWT_SECRET must be set")
	}
	if c.MessageRatePerMinute <= 0 {
		c.MessageRatePerMinute = 30
	}
	if c.MessageRateBurst <= 0 {
		c.MessageRateBurst = 1
	}
	if c.WSSendBuffer <= 0 {
		c.WSSendBuffer = 64
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) UseFirebaseAuth() bool {
	return c.FirebaseProject != ""
}
