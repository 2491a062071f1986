package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type AppConfig struct {
	HTTPAddr     string
	GRPCAddr     string
	RedisPass    string
	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string
	EventChannel string

	StoreDriver string
	DB          DBConfig

	ReferenceCurrency  string
	TierThresholds     domain.TierThresholds
	SettlementLocation *time.Location
	DisabledRails      []domain.Rail
	ApproverRoles      map[string][]domain.Role
	FXRates            map[string]decimal.Decimal

	RateCacheTTL       time.Duration
	SettlementCacheTTL time.Duration
	LogLevel           string

	// RateLimit is requests per RateLimitWindow per client; 0 disables it.
	// Enforced only when redis is configured.
	RateLimit       int
	RateLimitWindow time.Duration
	RateLimitBlock  time.Duration
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

func (c DBConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// Load reads the process environment. Redis and Kafka stay disabled unless
// their addresses are set.
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8023"),
		GRPCAddr:     getEnv("GRPC_ADDR", ":8024"),
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RedisPass:    getEnv("REDIS_PASS", ""),
		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "bankchain.events"),
		EventChannel: getEnv("EVENT_CHANNEL", "bankchain_events"),
		StoreDriver:  strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		DB: DBConfig{
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "bankchain"),
		},
		ReferenceCurrency: strings.ToUpper(getEnv("REFERENCE_CURRENCY", domain.DefaultReferenceCurrency)),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}

	// rate table, tier thresholds and rail bounds are all denominated in EGP
	if cfg.ReferenceCurrency != domain.DefaultReferenceCurrency {
		return cfg, fmt.Errorf("REFERENCE_CURRENCY must be %q, got %q", domain.DefaultReferenceCurrency, cfg.ReferenceCurrency)
	}
	if cfg.StoreDriver != StoreMemory && cfg.StoreDriver != StorePostgres {
		return cfg, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMemory, StorePostgres, cfg.StoreDriver)
	}

	var err error
	if cfg.TierThresholds, err = parseThresholds(getEnv("TIER_THRESHOLDS", "")); err != nil {
		return cfg, err
	}
	if cfg.SettlementLocation, err = time.LoadLocation(getEnv("SETTLEMENT_TIMEZONE", "Africa/Cairo")); err != nil {
		return cfg, fmt.Errorf("SETTLEMENT_TIMEZONE: %w", err)
	}
	if cfg.DisabledRails, err = parseRails(getEnvSlice("RAILS_DISABLED", nil)); err != nil {
		return cfg, err
	}
	if cfg.ApproverRoles, err = parseApproverRoles(getEnvSlice("APPROVER_ROLES", nil)); err != nil {
		return cfg, err
	}
	if cfg.FXRates, err = parseRates(getEnvSlice("FX_RATES", nil)); err != nil {
		return cfg, err
	}
	if cfg.RateCacheTTL, err = time.ParseDuration(getEnv("FX_RATE_CACHE_TTL", "5m")); err != nil {
		return cfg, fmt.Errorf("FX_RATE_CACHE_TTL: %w", err)
	}
	if cfg.SettlementCacheTTL, err = time.ParseDuration(getEnv("SETTLEMENT_CACHE_TTL", "10m")); err != nil {
		return cfg, fmt.Errorf("SETTLEMENT_CACHE_TTL: %w", err)
	}
	if cfg.RateLimit, err = strconv.Atoi(getEnv("RATE_LIMIT", "120")); err != nil || cfg.RateLimit < 0 {
		return cfg, fmt.Errorf("RATE_LIMIT: expected a non-negative integer")
	}
	if cfg.RateLimitWindow, err = time.ParseDuration(getEnv("RATE_LIMIT_WINDOW", "1m")); err != nil {
		return cfg, fmt.Errorf("RATE_LIMIT_WINDOW: %w", err)
	}
	if cfg.RateLimitBlock, err = time.ParseDuration(getEnv("RATE_LIMIT_BLOCK", "5m")); err != nil {
		return cfg, fmt.Errorf("RATE_LIMIT_BLOCK: %w", err)
	}
	return cfg, nil
}

// SettlementConfigs returns the rail table with configured rails disabled.
func (c AppConfig) SettlementConfigs() map[domain.Rail]*domain.SettlementConfig {
	configs := domain.DefaultSettlementConfigs()
	for _, r := range c.DisabledRails {
		if cfg, ok := configs[r]; ok {
			cfg.Enabled = false
		}
	}
	return configs
}

// parseThresholds reads "T1,T2,T3" in the reference currency.
func parseThresholds(raw string) (domain.TierThresholds, error) {
	if raw == "" {
		return domain.DefaultTierThresholds(), nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return domain.TierThresholds{}, fmt.Errorf("TIER_THRESHOLDS: expected 3 values, got %d", len(parts))
	}
	vals := make([]decimal.Decimal, 3)
	for i, p := range parts {
		d, err := decimal.NewFromString(strings.TrimSpace(p))
		if err != nil {
			return domain.TierThresholds{}, fmt.Errorf("TIER_THRESHOLDS: %q: %w", p, err)
		}
		vals[i] = d
	}
	t := domain.TierThresholds{Tier1: vals[0], Tier2: vals[1], Tier3: vals[2]}
	if err := t.Validate(); err != nil {
		return domain.TierThresholds{}, fmt.Errorf("TIER_THRESHOLDS: %w", err)
	}
	return t, nil
}

func parseRails(items []string) ([]domain.Rail, error) {
	var out []domain.Rail
	for _, item := range items {
		r := domain.Rail(strings.TrimSpace(item))
		if r == "" {
			continue
		}
		if !r.Valid() {
			return nil, fmt.Errorf("RAILS_DISABLED: unknown rail %q", r)
		}
		out = append(out, r)
	}
	return out, nil
}

// parseApproverRoles reads "approver:role" pairs; an approver may repeat.
func parseApproverRoles(items []string) (map[string][]domain.Role, error) {
	out := make(map[string][]domain.Role)
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		approver, rawRole, ok := strings.Cut(item, ":")
		if !ok || approver == "" {
			return nil, fmt.Errorf("APPROVER_ROLES: expected approver:role, got %q", item)
		}
		role, err := domain.ParseRole(strings.TrimSpace(rawRole))
		if err != nil {
			return nil, fmt.Errorf("APPROVER_ROLES: %w", err)
		}
		out[approver] = append(out[approver], role)
	}
	return out, nil
}

// parseRates reads "CODE:rate" pairs into the reference currency and
// overlays them on the default table.
func parseRates(items []string) (map[string]decimal.Decimal, error) {
	rates := domain.DefaultRatesToEGP()
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		code, rawRate, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("FX_RATES: expected CODE:rate, got %q", item)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(rawRate))
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("FX_RATES: invalid rate for %s: %q", code, rawRate)
		}
		rates[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return rates, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
