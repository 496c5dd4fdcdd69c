package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"roomframe/internal/services"
)

// Config holds all application configuration
type Config struct {
	Port        string
	Environment string

	// Platform API access
	BotToken   string
	APIBaseURL string

	// Webhook ingress
	WebhookSecret string

	// Storage backend: "memory", "redis" or "mongo"
	StorageBackend string
	RedisURL       string
	MongoURI       string
	MongoDatabase  string

	// Startup discovery cap: how many rooms get a bot eagerly at boot;
	// the rest are discovered just-in-time
	MaxStartupRooms int

	// Registry reconciliation sweep interval
	SweepInterval time.Duration

	// Membership rules file (YAML); empty disables all rules
	RulesFile string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3001"),
		Environment: getEnv("ENVIRONMENT", "development"),

		BotToken:   getEnv("BOT_TOKEN", ""),
		APIBaseURL: getEnv("API_BASE_URL", "https://api.roomframe.io/v1"),

		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),

		StorageBackend: getEnv("STORAGE_BACKEND", "memory"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379"),
		MongoURI:       getEnv("MONGODB_URI", ""),
		MongoDatabase:  getEnv("MONGODB_DATABASE", "roomframe"),

		MaxStartupRooms: getIntEnv("MAX_STARTUP_ROOMS", 100),
		SweepInterval:   getDurationEnv("SWEEP_INTERVAL", 15*time.Minute),

		RulesFile: getEnv("RULES_FILE", ""),
	}
}

// LoadRules loads the membership-rules configuration from a YAML file.
// An empty path returns a zero config, which permits everything.
func LoadRules(filePath string) (services.RulesConfig, error) {
	var cfg services.RulesConfig
	if filePath == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse rules YAML: %w", err)
	}
	for i := range cfg.RestrictedDomains {
		cfg.RestrictedDomains[i] = strings.TrimSpace(cfg.RestrictedDomains[i])
	}
	for i := range cfg.Guides {
		cfg.Guides[i] = strings.TrimSpace(cfg.Guides[i])
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
