package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ShopTimezone          string
	PublicBaseURL         string
	InvoiceDir            string
	InvoiceTimeoutSeconds int
	AnalyticsCacheTTL     time.Duration
	AuthSecret            string
	AccessTokenTTLMinutes int
}

func Load() Config {
	// Best effort: a missing .env file is fine, real deployments set the
	// environment directly.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	invoiceTimeout, err := strconv.Atoi(getEnv("INVOICE_TIMEOUT_SECONDS", "30"))
	if err != nil || invoiceTimeout < 1 {
		invoiceTimeout = 30
	}
	cacheTTL, err := strconv.Atoi(getEnv("ANALYTICS_CACHE_TTL_SECONDS", "60"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 60
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		ShopTimezone:          getEnv("SHOP_TIMEZONE", "UTC"),
		PublicBaseURL:         getEnv("PUBLIC_BASE_URL", "http://127.0.0.1:8080"),
		InvoiceDir:            os.Getenv("INVOICE_DIR"),
		InvoiceTimeoutSeconds: invoiceTimeout,
		AnalyticsCacheTTL:     time.Duration(cacheTTL) * time.Second,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves the configured shop timezone, falling back to UTC when
// the name is unknown so a bad value cannot prevent startup.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ShopTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Warnings reports configuration that works but should not ship to
// production, such as a missing auth secret.
func (c Config) Warnings() []string {
	var warnings []string
	if c.AuthSecret == "" {
		warnings = append(warnings, "AUTH_SECRET is not set; tokens are signed with an insecure development secret")
	}
	if c.DatabaseURL == "" {
		warnings = append(warnings, "DATABASE_URL is not set; using the in-memory store with seed data")
	}
	if _, err := time.LoadLocation(c.ShopTimezone); err != nil {
		warnings = append(warnings, fmt.Sprintf("SHOP_TIMEZONE %q is invalid; falling back to UTC", c.ShopTimezone))
	}
	return warnings
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
