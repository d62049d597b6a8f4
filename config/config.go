package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUUID         string

	// Lifecycle sweep
	SweepInterval  time.Duration
	SweepLockTTL   time.Duration
	InstanceID     string
	EventTZOffset  string
	EventRetention time.Duration

	// Rewards
	RewardCooldown       time.Duration
	RewardMinBookings    int
	RewardWinProbability float64
	RewardMaxAmount      int
	RewardTTL            time.Duration
	RewardRetention      time.Duration

	// Feedback
	FeedbackTokenTTL time.Duration
	FeedbackURL      string

	// Ledger
	PlatformWalletOwner string

	// Rate limiting
	RateLimitPerMinute int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUUID:         getEnv("PUBNUB_UUID", "ticket-ledger"),

		// Sweep
		SweepInterval:  getEnvAsDuration("SWEEP_INTERVAL", "1m"),
		SweepLockTTL:   getEnvAsDuration("SWEEP_LOCK_TTL", "5m"),
		InstanceID:     getEnv("INSTANCE_ID", hostname()),
		EventTZOffset:  getEnv("EVENT_TZ_OFFSET", "+05:30"),
		EventRetention: getEnvAsDuration("EVENT_RETENTION", "720h"),

		// Rewards
		RewardCooldown:       getEnvAsDuration("REWARD_COOLDOWN", "360h"),
		RewardMinBookings:    getEnvAsInt("REWARD_MIN_BOOKINGS", 2),
		RewardWinProbability: getEnvAsProbability("REWARD_WIN_PROBABILITY", 0.2),
		RewardMaxAmount:      getEnvAsPositiveInt("REWARD_MAX_AMOUNT", 20),
		RewardTTL:            getEnvAsDuration("REWARD_TTL", "168h"),
		RewardRetention:      getEnvAsDuration("REWARD_RETENTION", "720h"),

		// Feedback
		FeedbackTokenTTL: getEnvAsDuration("FEEDBACK_TOKEN_TTL", "168h"),
		FeedbackURL:      getEnv("FEEDBACK_URL", "http://localhost:8090/feedback"),

		// Ledger
		PlatformWalletOwner: getEnv("PLATFORM_WALLET_OWNER", "platform"),

		// Rate limiting
		RateLimitPerMinute: getEnvAsPositiveInt("RATE_LIMIT_PER_MINUTE", 30),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

// EventLocation returns the fixed-offset zone used for all event schedule comparisons.
func (c *Config) EventLocation() (*time.Location, error) {
	return ParseOffset(c.EventTZOffset)
}

// ParseOffset turns "+05:30" or "-0400" into a fixed zone. No DST is applied.
func ParseOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "Z" || strings.EqualFold(s, "UTC") {
		return time.UTC, nil
	}

	t, err := time.Parse("-07:00", s)
	if err != nil {
		if t, err = time.Parse("-0700", s); err != nil {
			return nil, fmt.Errorf("invalid tz offset %q", s)
		}
	}
	_, offset := t.Zone()
	return time.FixedZone("UTC"+s, offset), nil
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "ticket-ledger"
	}
	return name
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsPositiveInt falls back to defaultValue when the variable is zero or negative.
func getEnvAsPositiveInt(key string, defaultValue int) int {
	if value := getEnvAsInt(key, defaultValue); value > 0 {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsProbability clamps the value to [0, 1].
func getEnvAsProbability(key string, defaultValue float64) float64 {
	return min(max(getEnvAsFloat(key, defaultValue), 0), 1)
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
