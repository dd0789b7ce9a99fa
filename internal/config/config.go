package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Host               string
	APIPrefix          string
	TenantID           string
	RequestTimeout     time.Duration
	ExpiredStatusCodes []int
	LogLevel           string
	DBSource           string
	Port               string
	Env                string
}

// Load reads configuration from the environment, after merging an optional
// .env file from the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("BOOKKEEPER_HOST", "http://localhost:9000")
	v.SetDefault("BOOKKEEPER_API_PREFIX", "/api/book-keeper/v1")
	v.SetDefault("BOOKKEEPER_REQUEST_TIMEOUT", "10s")
	v.SetDefault("BOOKKEEPER_EXPIRED_STATUS_CODES", "400,410,422,500")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVER_PORT", "9000")
	v.SetDefault("ENVIRONMENT", "development")

	timeout, err := time.ParseDuration(v.GetString("BOOKKEEPER_REQUEST_TIMEOUT"))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("BOOKKEEPER_REQUEST_TIMEOUT must be a positive duration: %q", v.GetString("BOOKKEEPER_REQUEST_TIMEOUT"))
	}

	codes, err := parseStatusCodes(v.GetString("BOOKKEEPER_EXPIRED_STATUS_CODES"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Host:               v.GetString("BOOKKEEPER_HOST"),
		APIPrefix:          v.GetString("BOOKKEEPER_API_PREFIX"),
		TenantID:           v.GetString("BOOKKEEPER_TENANT_ID"),
		RequestTimeout:     timeout,
		ExpiredStatusCodes: codes,
		LogLevel:           v.GetString("LOG_LEVEL"),
		DBSource:           v.GetString("DB_SOURCE"),
		Port:               v.GetString("SERVER_PORT"),
		Env:                v.GetString("ENVIRONMENT"),
	}, nil
}

// RequireTenant fails when no tenant is configured. Every client command
// needs one; the sandbox server does not.
func (c *Config) RequireTenant() error {
	if c.TenantID == "" {
		return fmt.Errorf("BOOKKEEPER_TENANT_ID environment variable is required")
	}
	return nil
}

func parseStatusCodes(raw string) ([]int, error) {
	var codes []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil || code < 400 || code > 599 {
			return nil, fmt.Errorf("BOOKKEEPER_EXPIRED_STATUS_CODES: invalid status %q", part)
		}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("BOOKKEEPER_EXPIRED_STATUS_CODES must list at least one status")
	}
	return codes, nil
}
