package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string

	GoogleClientID      string
	GoogleClientSecret  string
	GoogleProjectID     string
	GooglePubSubTopic   string
	GoogleCredentials   string
	FirebaseCredentials string

	AIProvider    string
	GeminiApiKey  string
	OllamaBaseURL string
	OllamaModel   string

	// Follow-up engine knobs
	LookbackDays      int
	IdleThresholdDays int
	MaxThreads        int
	DiscoveryInterval time.Duration
	DueSendInterval   time.Duration
	DueSendBatchSize  int
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=followup port=5432 sslmode=disable"),
		JWTSecret:   getEnv("JWT_SECRET", "your-secret-key-change-in-production"),

		GoogleClientID:      getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:  getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleProjectID:     getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:   getEnv("GOOGLE_PUBSUB_TOPIC", "gmail-updates"),
		GoogleCredentials:   getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),

		AIProvider:    getEnv("AI_PROVIDER", "auto"),
		GeminiApiKey:  getEnv("GEMINI_API_KEY", ""),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", ""),
		OllamaModel:   getEnv("OLLAMA_MODEL", ""),

		LookbackDays:      getEnvInt("FOLLOWUP_LOOKBACK_DAYS", 14),
		IdleThresholdDays: getEnvInt("FOLLOWUP_IDLE_DAYS", 3),
		MaxThreads:        getEnvInt("FOLLOWUP_MAX_THREADS", 25),
		DiscoveryInterval: time.Duration(getEnvInt("FOLLOWUP_DISCOVERY_INTERVAL_MINUTES", 30)) * time.Minute,
		DueSendInterval:   time.Duration(getEnvInt("FOLLOWUP_SEND_INTERVAL_MINUTES", 5)) * time.Minute,
		DueSendBatchSize:  getEnvInt("FOLLOWUP_SEND_BATCH_SIZE", 20),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
