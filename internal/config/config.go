package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Harshitk-cp/switchboard/internal/domain"
	"github.com/Harshitk-cp/switchboard/internal/origin"
	"github.com/joho/godotenv"
)

// Load reads the .env file specified by SWITCHBOARD_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("SWITCHBOARD_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; real deployments set variables directly.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// Environment returns the dashboard deployment environment.
// Defaults to development if not set.
func Environment() (domain.Environment, error) {
	v := os.Getenv("DASHBOARD_ENV")
	if v == "" {
		return domain.EnvironmentDevelopment, nil
	}
	return domain.ParseEnvironment(v)
}

// ActiveModules returns the module kinds tenants have enabled, from the
// comma-separated ACTIVE_MODULES. Defaults to every known kind.
func ActiveModules() ([]domain.ModuleKind, error) {
	v := strings.TrimSpace(os.Getenv("ACTIVE_MODULES"))
	if v == "" {
		return domain.KnownModuleKinds(), nil
	}

	var kinds []domain.ModuleKind
	seen := map[domain.ModuleKind]bool{}
	for _, part := range strings.Split(v, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		kind, err := domain.ParseModuleKind(part)
		if err != nil {
			return nil, fmt.Errorf("ACTIVE_MODULES: %w", err)
		}
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("ACTIVE_MODULES: no module kinds listed")
	}
	return kinds, nil
}

// ModuleOverrides reads <KIND>_SERVICE_URL for every known module kind.
// An unset or blank variable means no override.
func ModuleOverrides() map[domain.ModuleKind]string {
	out := map[domain.ModuleKind]string{}
	for _, kind := range domain.KnownModuleKinds() {
		if v := strings.TrimSpace(os.Getenv(origin.OverrideEnvKey(kind))); v != "" {
			out[kind] = v
		}
	}
	return out
}

// OriginSnapshot builds the startup origin configuration: compiled-in
// defaults plus whatever overrides the process environment carries.
func OriginSnapshot() origin.Snapshot {
	return origin.Snapshot{
		Defaults:  origin.DefaultTable(),
		Overrides: ModuleOverrides(),
	}
}

// RateLimitRPS returns requests per second limit for the frame relay endpoint.
// Defaults to 50 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 50
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 100 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 100
	}
	return burst
}

// DiagnosticsFlushInterval is how often rejected-message diagnostics are persisted.
// Defaults to 15s.
func DiagnosticsFlushInterval() time.Duration {
	d, err := time.ParseDuration(os.Getenv("DIAGNOSTICS_FLUSH_INTERVAL"))
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
