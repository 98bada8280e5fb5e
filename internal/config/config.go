// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	Environment        string

	// Database settings
	DatabaseURL       string
	DBSlowQueryThresh time.Duration

	// NATS settings; an empty URL disables the action journal.
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string
	NATSStream   string

	// Redis settings; an empty address keeps extraction locks in-process.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Auth settings
	APIToken  string
	JWTSecret string

	// LLM settings
	LLMProvider     string
	LLMModel        string
	LLMBaseURL      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	LLMTemperature  float64
	LLMMaxTokens    int
	LLMTimeout      time.Duration

	// Assistant settings
	AssistantName         string
	UserName              string
	DefaultTimezone       string
	MaxContextMessages    int
	SummaryThreshold      int
	ExtractEvery          int
	MemoryMinImportance   int
	RecentConversations   int
	MaxFunctionArgsBytes  int
	FactExtractionTimeout time.Duration

	// Integrations
	OpenWeatherMapAPIKey string
	DefaultCity          string
	TavilyAPIKey         string
	NewsAPIKey           string
	NewsDefaultCountry   string
	SMTPHost             string
	SMTPPort             int
	SMTPUsername         string
	SMTPPassword         string
	SMTPFrom             string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables, after loading a
// .env file from the working directory when one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 5*time.Minute),
		ServerIdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 2*time.Minute),
		Environment:        getEnv("ENVIRONMENT", "production"),

		// Database
		DatabaseURL:       getEnv("DATABASE_URL", "file:assistant.db?_busy_timeout=5000"),
		DBSlowQueryThresh: getDurationEnv("DB_SLOW_QUERY_THRESHOLD", time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),
		NATSStream:   getEnv("NATS_STREAM", "ASSISTANT"),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// Auth
		APIToken:  getEnv("API_TOKEN", "speda-dev-token"),
		JWTSecret: getEnv("JWT_SECRET", ""),

		// LLM
		LLMProvider:     getEnv("LLM_PROVIDER", "openai"),
		LLMModel:        getEnv("LLM_MODEL", ""),
		LLMBaseURL:      getEnv("LLM_BASE_URL", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		LLMTemperature:  getFloatEnv("LLM_TEMPERATURE", 0.7),
		LLMMaxTokens:    getIntEnv("LLM_MAX_TOKENS", 2048),
		LLMTimeout:      getDurationEnv("LLM_TIMEOUT", 2*time.Minute),

		// Assistant
		AssistantName:         getEnv("ASSISTANT_NAME", "SPEDA"),
		UserName:              getEnv("USER_NAME", ""),
		DefaultTimezone:       getEnv("DEFAULT_TIMEZONE", "Europe/Istanbul"),
		MaxContextMessages:    getIntEnv("MAX_CONTEXT_MESSAGES", 20),
		SummaryThreshold:      getIntEnv("SUMMARY_THRESHOLD", 50),
		ExtractEvery:          getIntEnv("EXTRACT_EVERY", 10),
		MemoryMinImportance:   getIntEnv("MEMORY_MIN_IMPORTANCE", 5),
		RecentConversations:   getIntEnv("RECENT_CONVERSATIONS", 3),
		MaxFunctionArgsBytes:  getIntEnv("MAX_FUNCTION_ARGS_BYTES", 64*1024),
		FactExtractionTimeout: getDurationEnv("FACT_EXTRACTION_TIMEOUT", 90*time.Second),

		// Integrations
		OpenWeatherMapAPIKey: getEnv("OPENWEATHERMAP_API_KEY", ""),
		DefaultCity:          getEnv("DEFAULT_CITY", "Istanbul,TR"),
		TavilyAPIKey:         getEnv("TAVILY_API_KEY", ""),
		NewsAPIKey:           getEnv("NEWS_API_KEY", ""),
		NewsDefaultCountry:   getEnv("NEWS_DEFAULT_COUNTRY", "tr"),
		SMTPHost:             getEnv("SMTP_HOST", ""),
		SMTPPort:             getIntEnv("SMTP_PORT", 587),
		SMTPUsername:         getEnv("SMTP_USERNAME", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:             getEnv("SMTP_FROM", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_RPM", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// InitialLLMSettings returns the startup LLM snapshot.
func (c *Config) InitialLLMSettings() LLMSettings {
	return LLMSettings{
		Provider:    c.LLMProvider,
		Model:       c.LLMModel,
		BaseURL:     c.LLMBaseURL,
		Temperature: c.LLMTemperature,
		MaxTokens:   c.LLMMaxTokens,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
