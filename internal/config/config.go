package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// HTTP surface
	OperatorJWTSecret  string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Conversation store: "memory", "redis" or "postgres".
	StoreBackend     string
	DatabaseURL      string
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	ConversationTTL  time.Duration
	StoreMaxRetries  int
	SchemaPath       string
	TurnCap          int // 0 keeps the schema's turn_cap
	BudgetThreshold  float64
	EscalationTarget string
	OnCallMention    string

	// Notification delivery
	SlackWebhookURL        string
	NotifyTimeout          time.Duration
	NotifyMaxAttempts      int
	NotifyBaseDelay        time.Duration
	EmailProvider          string
	EscalationEmailTo      []string
	SendGridAPIKey         string
	SendGridFromEmail      string
	SendGridFromName       string
	SESFromEmail           string
	SESConfigurationSet    string
	AWSRegion              string
	AWSAccessKeyID         string
	AWSSecretAccessKey     string
	AWSEndpointOverride    string
	BedrockModelID         string
	LLMResponderEnabled    bool
	LLMKeywordRefineEnable bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		OperatorJWTSecret:  getEnv("OPERATOR_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		StoreBackend:     strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", "memory"))),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisAddr:        getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		ConversationTTL:  getEnvAsDuration("CONVERSATION_TTL", 7*24*time.Hour),
		StoreMaxRetries:  getEnvAsInt("STORE_MAX_RETRIES", 3),
		SchemaPath:       getEnv("SCHEMA_PATH", ""),
		TurnCap:          getEnvAsInt("TURN_CAP", 0),
		BudgetThreshold:  getEnvAsFloat("BUDGET_THRESHOLD", 1_000_000),
		EscalationTarget: getEnv("ESCALATION_CHANNEL", "#escalations"),
		OnCallMention:    getEnv("ONCALL_MENTION", "@oncall"),

		SlackWebhookURL:        getEnv("SLACK_WEBHOOK_URL", ""),
		NotifyTimeout:          getEnvAsDuration("NOTIFY_TIMEOUT", 5*time.Second),
		NotifyMaxAttempts:      getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 3),
		NotifyBaseDelay:        getEnvAsDuration("NOTIFY_BASE_DELAY", 500*time.Millisecond),
		EmailProvider:          strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", ""))),
		EscalationEmailTo:      getEnvAsList("ESCALATION_EMAIL_TO"),
		SendGridAPIKey:         getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:      getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:       getEnv("SENDGRID_FROM_NAME", "Support Assistant"),
		SESFromEmail:           getEnv("SES_FROM_EMAIL", ""),
		SESConfigurationSet:    getEnv("SES_CONFIGURATION_SET", ""),
		AWSRegion:              getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:         getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:     getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:    getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		BedrockModelID:         getEnv("BEDROCK_MODEL_ID", ""),
		LLMResponderEnabled:    getEnvAsBool("LLM_RESPONDER_ENABLED", false),
		LLMKeywordRefineEnable: getEnvAsBool("LLM_KEYWORD_REFINE_ENABLED", false),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
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

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
