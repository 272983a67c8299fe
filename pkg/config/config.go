package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BackendURL    string
	WebsocketURL  string
	AuthToken     string
	ServerPort    string
	Environment   string
	LogLevel      string
	RESTTimeout   time.Duration
	PageSize      int
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	BackoffFactor float64
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		BackendURL:    getEnv("BACKEND_URL", "http://localhost:8080"),
		WebsocketURL:  getEnv("WEBSOCKET_URL", "ws://localhost:8080"),
		AuthToken:     getEnv("AUTH_TOKEN", ""),
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		RESTTimeout:   getEnvAsDuration("REST_TIMEOUT", 10*time.Second),
		PageSize:      getEnvAsInt("PAGE_SIZE", 20),
		BackoffMin:    getEnvAsDuration("BACKOFF_MIN", 1*time.Second),
		BackoffMax:    getEnvAsDuration("BACKOFF_MAX", 30*time.Second),
		BackoffFactor: getEnvAsFloat("BACKOFF_FACTOR", 2.0),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		floatValue, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
