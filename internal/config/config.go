package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Session store backends understood by SESSION_STORE.
const (
	SessionStoreMemory   = "memory"
	SessionStoreRedis    = "redis"
	SessionStoreDynamoDB = "dynamodb"
	SessionStorePostgres = "postgres"
)

// Config holds application configuration
type Config struct {
	Port         string
	Host         string
	AppName      string
	Env          string
	LogLevel     string
	EventTimeout time.Duration
	StartupDelay time.Duration

	// CCaaS (Conversations API) configuration
	CCaaSBaseURL       string
	CCaaSAuthorization string
	SharedKeyword      string
	BotNameLiveChat    string
	BotNameWhatsApp    string
	TagDelay           time.Duration
	RoutingTag         string

	// Conversational AI backend configuration
	AssistantBaseURL    string
	AssistantID         string
	AssistantAPIKey     string
	AssistantAPIVersion string
	AssistantTimeout    time.Duration

	SessionTimeout time.Duration
	LoopTestToken  string

	DebugRouting    bool
	DebugWebhookURL string

	SessionStore        string
	RedisAddr           string
	RedisPassword       string
	RedisTLS            bool
	DynamoSessionsTable string
	DatabaseURL         string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	SSMParameterPrefix  string
	MetricsEnabled      bool

	WebhookRateLimit float64
	WebhookRateBurst int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "3000"),
		Host:         getEnv("HOST", "0.0.0.0"),
		AppName:      getEnv("APP_NAME", "chatbot-proxy"),
		Env:          getEnv("ENV", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		EventTimeout: getEnvAsDuration("EVENT_TIMEOUT", 2*time.Minute),
		StartupDelay: getEnvAsDuration("STARTUP_DELAY", 1500*time.Millisecond),

		CCaaSBaseURL:       strings.TrimRight(getEnv("CCAAS_BASE_URL", ""), "/"),
		CCaaSAuthorization: getEnv("CCAAS_AUTHORIZATION", ""),
		SharedKeyword:      strings.TrimSpace(getEnv("CCAAS_SHARED_KEYWORD", "")),
		BotNameLiveChat:    getEnv("CCAAS_BOT_NAME_LIVECHAT", ""),
		BotNameWhatsApp:    getEnv("CCAAS_BOT_NAME_WHATSAPP", ""),
		TagDelay:           getEnvAsDuration("CCAAS_TAG_DELAY", 2*time.Second),
		RoutingTag:         getEnv("CCAAS_ROUTING_TAG", "routingInfo"),

		AssistantBaseURL:    strings.TrimRight(getEnv("ASSISTANT_BASE_URL", ""), "/"),
		AssistantID:         getEnv("ASSISTANT_ID", ""),
		AssistantAPIKey:     getEnv("ASSISTANT_API_KEY", ""),
		AssistantAPIVersion: getEnv("ASSISTANT_API_VERSION", "2021-11-27"),
		AssistantTimeout:    getEnvAsDuration("ASSISTANT_TIMEOUT", 15*time.Second),

		SessionTimeout: getEnvAsDuration("SESSION_TIMEOUT", 5*time.Minute),
		LoopTestToken:  getEnv("LOOPTEST_TOKEN", "LOOPTEST"),

		DebugRouting:    getEnvAsBool("DEBUG_ROUTING", false),
		DebugWebhookURL: strings.TrimRight(getEnv("DEBUG_WEBHOOK_URL", ""), "/"),

		SessionStore:        strings.ToLower(strings.TrimSpace(getEnv("SESSION_STORE", SessionStoreMemory))),
		RedisAddr:           getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisTLS:            getEnvAsBool("REDIS_TLS", false),
		DynamoSessionsTable: getEnv("DYNAMODB_SESSIONS_TABLE", "chatbot_sessions"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		SSMParameterPrefix:  strings.TrimSpace(getEnv("SSM_PARAMETER_PREFIX", "")),
		MetricsEnabled:      getEnvAsBool("METRICS_ENABLED", true),

		WebhookRateLimit: getEnvAsFloat("WEBHOOK_RATE_LIMIT", 0),
		WebhookRateBurst: getEnvAsInt("WEBHOOK_RATE_BURST", 20),
	}
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c *Config) NeedsAWS() bool {
	return c.SessionStore == SessionStoreDynamoDB || c.SSMParameterPrefix != ""
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
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
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

// getEnvAsDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if secs := getEnvAsInt(key, -1); secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
