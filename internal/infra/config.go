package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// minWriteTimeout keeps the response writer alive for the whole job poll window.
const minWriteTimeout = 35 * time.Second

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	HunyuanEndpoint    string
	HunyuanHTTPTimeout time.Duration
	DefaultLocale      string
	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "3400"),
		HunyuanEndpoint:    strings.TrimRight(getEnv("HUNYUAN_ENDPOINT", "https://hunyuan.tencentcloudapi.com"), "/"),
		HunyuanHTTPTimeout: time.Second * time.Duration(getEnvInt("HUNYUAN_HTTP_TIMEOUT_SECONDS", 30)),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", "zh"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3010"}),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	parsed, err := url.Parse(cfg.HunyuanEndpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("HUNYUAN_ENDPOINT must be an absolute URL, got %q", cfg.HunyuanEndpoint)
	}

	if cfg.HTTPWriteTimeout < minWriteTimeout {
		return nil, fmt.Errorf("HTTP_WRITE_TIMEOUT_SECONDS must be at least %d", int(minWriteTimeout/time.Second))
	}

	if cfg.RateLimitPerMin <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
