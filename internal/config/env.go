// Package config handles environment-based configuration loading.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Directories
	StateDir    string
	TemplateDir string

	// Network
	ListenAddress   string
	Port            int
	APIMaxBodyBytes int

	// Rule catalog autoload
	TemplateAutoload       bool
	TemplateRescanSchedule string

	// Simulation
	TickPacing   time.Duration
	RunRetention time.Duration

	// Dependency resolver
	ChainCacheTTL   time.Duration
	DefaultMaxDepth int
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error listing every invalid or out-of-range value.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Directories ---
	cfg.StateDir = envStr("CASCADIA_STATE_DIR", "/var/lib/cascadia")
	cfg.TemplateDir = envStr("CASCADIA_TEMPLATE_DIR", "/etc/cascadia/templates")

	// --- Network ---
	cfg.ListenAddress = strings.TrimSpace(envStr("CASCADIA_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.Port = envInt("CASCADIA_PORT", 8080, &errs)
	cfg.APIMaxBodyBytes = envInt("CASCADIA_API_MAX_BODY_BYTES", 1<<20, &errs)

	// --- Rule catalog autoload ---
	cfg.TemplateAutoload = envBool("CASCADIA_TEMPLATE_AUTOLOAD", true, &errs)
	cfg.TemplateRescanSchedule = envStr("CASCADIA_TEMPLATE_RESCAN_SCHEDULE", "@hourly")

	// --- Simulation ---
	cfg.TickPacing = envDuration("CASCADIA_TICK_PACING", 25*time.Millisecond, &errs)
	cfg.RunRetention = envDuration("CASCADIA_RUN_RETENTION", 2*time.Hour, &errs)

	// --- Dependency resolver ---
	cfg.ChainCacheTTL = envDuration("CASCADIA_CHAIN_CACHE_TTL", 30*time.Second, &errs)
	cfg.DefaultMaxDepth = envInt("CASCADIA_DEFAULT_MAX_DEPTH", 5, &errs)

	// --- Validation ---
	if cfg.ListenAddress == "" {
		errs = append(errs, "CASCADIA_LISTEN_ADDRESS must not be empty")
	}
	validatePort("CASCADIA_PORT", cfg.Port, &errs)
	validatePositive("CASCADIA_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)
	if _, err := cron.ParseStandard(cfg.TemplateRescanSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("CASCADIA_TEMPLATE_RESCAN_SCHEDULE: invalid cron expression %q: %v", cfg.TemplateRescanSchedule, err))
	}
	if cfg.TickPacing < 0 {
		errs = append(errs, "CASCADIA_TICK_PACING must not be negative")
	}
	if cfg.RunRetention <= 0 {
		errs = append(errs, "CASCADIA_RUN_RETENTION must be positive")
	}
	if cfg.ChainCacheTTL <= 0 {
		errs = append(errs, "CASCADIA_CHAIN_CACHE_TTL must be positive")
	}
	if cfg.DefaultMaxDepth < 1 || cfg.DefaultMaxDepth > 12 {
		errs = append(errs, fmt.Sprintf("CASCADIA_DEFAULT_MAX_DEPTH must be 1-12, got %d", cfg.DefaultMaxDepth))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envBool(key string, defaultVal bool, errs *[]string) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}
