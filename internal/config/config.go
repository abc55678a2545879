package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env               string
	Port              int
	JWTSecret         string
	LogJSON           bool
	DatabaseURL       string
	KafkaBrokers      string
	KafkaTopic        string
	ExpiryWarning     time.Duration
	SweepInterval     time.Duration
	ReservationWindow time.Duration
}

func Default() Config {
	return Config{
		Env:               "dev",
		Port:              5000,
		JWTSecret:         "",
		LogJSON:           true,
		DatabaseURL:       "",
		KafkaBrokers:      "",
		KafkaTopic:        "order-events",
		ExpiryWarning:     15 * time.Second,
		SweepInterval:     30 * time.Second,
		ReservationWindow: 30 * time.Minute,
	}
}

func EnvDefaults() Config {
	return fromEnv(Default())
}

func fromEnv(c Config) Config {
	if v := os.Getenv("RESERVA_ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("RESERVA_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("RESERVA_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("RESERVA_LOG_JSON"); v != "" {
		switch v {
		case "1", "true", "TRUE":
			c.LogJSON = true
		case "0", "false", "FALSE":
			c.LogJSON = false
		}
	}
	if v := os.Getenv("RESERVA_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("RESERVA_KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = v
	}
	if v := os.Getenv("RESERVA_KAFKA_TOPIC"); v != "" {
		c.KafkaTopic = v
	}
	c.ExpiryWarning = durationEnv("RESERVA_EXPIRY_WARNING", c.ExpiryWarning)
	c.SweepInterval = durationEnv("RESERVA_SWEEP_INTERVAL", c.SweepInterval)
	c.ReservationWindow = durationEnv("RESERVA_RESERVATION_WINDOW", c.ReservationWindow)
	return c
}

// durationEnv accepts Go durations ("90s") or plain seconds.
func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func (c Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}
