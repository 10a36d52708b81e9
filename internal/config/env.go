package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()
}

type Config struct {
	// Model collaborator
	ModelName        string
	OllamaBaseURL    string
	ModelTemperature float64
	ModelTimeout     time.Duration
	ModelJSONMode    bool

	// Optional with defaults
	HTTPPort  int
	Timezone  string
	LogLevel  string
	LogFormat string
}

func LoadFromEnv() *Config {
	cfg := &Config{
		ModelName:        getEnvOrDefault("MODEL_NAME", "llama3"),
		OllamaBaseURL:    getEnvOrDefault("OLLAMA_BASE_URL", "http://localhost:11434"),
		ModelTemperature: getEnvAsFloatOrDefault("MODEL_TEMPERATURE", 0),
		ModelTimeout:     getEnvAsDurationOrDefault("MODEL_TIMEOUT", 2*time.Minute),
		ModelJSONMode:    getEnvAsBoolOrDefault("MODEL_JSON_MODE", false),

		HTTPPort:  getEnvAsIntOrDefault("LEAVE_HTTP_PORT", 8000),
		Timezone:  os.Getenv("LEAVE_TIMEZONE"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault accepts Go durations ("90s") or plain seconds ("90").
// "0" disables the bound.
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
