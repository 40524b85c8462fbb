package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Mode               string
	Port               string
	Environment        string
	LogLevel           string
	DatabaseDSN        string
	AMQPURL            string
	CarRatePerHour     float64
	BikeRatePerHour    float64
	FreeParkingMinutes int
	RecurringDiscount  float64
	CarSpots           int
	BikeSpots          int
	OTelServiceName    string
	OTelEndpoint       string
}

// Load reads an optional .env file, then the process environment. Variables
// already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	env := &envReader{}
	cfg := &Config{
		Mode:               envOr("APP_MODE", "cli"),
		Port:               envOr("APP_PORT", "8080"),
		Environment:        envOr("APP_ENV", "development"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		DatabaseDSN:        os.Getenv("DATABASE_DSN"),
		AMQPURL:            os.Getenv("AMQP_URL"),
		CarRatePerHour:     env.parseFloat("CAR_RATE_PER_HOUR", 1.5),
		BikeRatePerHour:    env.parseFloat("BIKE_RATE_PER_HOUR", 1.0),
		FreeParkingMinutes: env.parseInt("FREE_PARKING_MINUTES", 30),
		RecurringDiscount:  env.parseFloat("RECURRING_DISCOUNT", 0.95),
		CarSpots:           env.parseInt("CAR_SPOTS", 3),
		BikeSpots:          env.parseInt("BIKE_SPOTS", 2),
		OTelServiceName:    envOr("OTEL_SERVICE_NAME", "parking-system"),
		OTelEndpoint:       envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
	}

	if err := errors.Join(env.errs...); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Mode != "cli" && c.Mode != "server" && c.Mode != "both":
		return fmt.Errorf("invalid mode %q: must be cli, server, or both", c.Mode)
	case c.CarRatePerHour < 0 || c.BikeRatePerHour < 0:
		return errors.New("hourly rates must not be negative")
	case c.FreeParkingMinutes < 0:
		return errors.New("FREE_PARKING_MINUTES must not be negative")
	case c.RecurringDiscount <= 0 || c.RecurringDiscount > 1:
		return errors.New("RECURRING_DISCOUNT must be in (0, 1]")
	case c.CarSpots < 0 || c.BikeSpots < 0:
		return errors.New("spot counts must not be negative")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) FreeParkingDuration() time.Duration {
	return time.Duration(c.FreeParkingMinutes) * time.Minute
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// envReader parses typed variables and collects every malformed value.
type envReader struct {
	errs []error
}

func (r *envReader) parseFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return fallback
	}
	return f
}

func (r *envReader) parseInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return i
}
