package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Remote collaborators
	DialogBaseURL     string
	DialogID          string
	ClassifierBaseURL string
	ClassifierID      string
	MovieBaseURL      string

	// Outbound SMS
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// When true, replies produced by the HTTP conversation endpoint are also
	// echoed to SMSEchoToNumber via SMS. The upstream system shipped with
	// this branch disabled; keep it an explicit switch.
	SMSEchoHTTPReplies bool
	SMSEchoToNumber    string

	// Upper bound for one orchestrated turn, covering every remote call made
	// on behalf of a single inbound message.
	TurnTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DialogBaseURL:      getEnv("DIALOG_BASE_URL", ""),
		DialogID:           getEnv("DIALOG_ID", ""),
		ClassifierBaseURL:  getEnv("CLASSIFIER_BASE_URL", ""),
		ClassifierID:       getEnv("CLASSIFIER_ID", ""),
		MovieBaseURL:       getEnv("MOVIE_BASE_URL", ""),
		TwilioAccountSID:   getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:   getEnv("TWILIO_FROM_NUMBER", ""),
		SMSEchoHTTPReplies: getEnvAsBool("SMS_ECHO_HTTP_REPLIES", false),
		SMSEchoToNumber:    getEnv("SMS_ECHO_TO_NUMBER", ""),
		TurnTimeout:        getEnvAsDuration("TURN_TIMEOUT", 30*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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
