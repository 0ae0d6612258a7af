package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/alperenkursun/anonymous-chat-app/internal/domain"
)

type Config struct {
	AppEnv         string
	Port           string
	RedisURL       string
	LogLevel       string
	LogFormat      string
	BusBufferSize  int
	OverflowPolicy domain.OverflowPolicy
	MaxConnections int64
	SubmitRate     float64
	SubmitBurst    int
	AllowedOrigins []string
}

func Load() (*Config, error) {
	// Best effort: a missing .env file is not an error
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		RedisURL:  getEnv("REDIS_URL", ""),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.BusBufferSize, err = getEnvInt("BUS_BUFFER_SIZE", 16); err != nil {
		return nil, err
	}
	if cfg.BusBufferSize < 1 {
		return nil, fmt.Errorf("BUS_BUFFER_SIZE must be at least 1")
	}

	policy, err := domain.ParseOverflowPolicy(getEnv("BUS_OVERFLOW_POLICY", string(domain.OverflowDisconnect)))
	if err != nil {
		return nil, fmt.Errorf("BUS_OVERFLOW_POLICY: %w", err)
	}
	cfg.OverflowPolicy = policy

	maxConns, err := getEnvInt("MAX_CONNECTIONS", 256)
	if err != nil {
		return nil, err
	}
	if maxConns < 1 {
		return nil, fmt.Errorf("MAX_CONNECTIONS must be at least 1")
	}
	cfg.MaxConnections = int64(maxConns)

	if cfg.SubmitRate, err = getEnvFloat("SUBMIT_RATE", 25); err != nil {
		return nil, err
	}
	if cfg.SubmitRate <= 0 {
		return nil, fmt.Errorf("SUBMIT_RATE must be positive")
	}
	if cfg.SubmitBurst, err = getEnvInt("SUBMIT_BURST", 50); err != nil {
		return nil, err
	}
	if cfg.SubmitBurst < 1 {
		return nil, fmt.Errorf("SUBMIT_BURST must be at least 1")
	}

	origins := getEnv("ALLOWED_ORIGINS", "*")
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}
	if len(cfg.AllowedOrigins) == 0 {
		return nil, fmt.Errorf("ALLOWED_ORIGINS must not be empty")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}
