package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// InsecureTokenSalt is the fallback salt used when APP_TOKEN_SALT is unset.
// Tokens derived from it are guessable by anyone reading this source; it
// exists so local and mock-mode deployments work without secrets.
const InsecureTokenSalt = "notify-gateway-dev-salt"

// Config holds all configuration for the gateway process.
type Config struct {
	ServerPort int    `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	PostgresDSN string `mapstructure:"POSTGRES_DSN"`
	NATSUrl     string `mapstructure:"NATS_URL"`

	// Base URL and path segment for recipient access links:
	// <LinkBaseURL>/<LinkResource>/<campaignID>?token=...
	LinkBaseURL  string `mapstructure:"LINK_BASE_URL"`
	LinkResource string `mapstructure:"LINK_RESOURCE"`

	// Secret salt for access-token derivation. The insecure default is
	// tolerated (logged loudly) so mock-mode works without secrets.
	TokenSalt string `mapstructure:"TOKEN_SALT"`

	// HS256 secret for parsing bearer tokens into rate-limit identities.
	JWTAccessSecret string `mapstructure:"JWT_ACCESS_SECRET"`

	// SMS provider selection: "solapi", "aligo", "mock" or "" (auto-detect
	// the first provider with complete credentials, falling back to mock).
	SMSProvider string `mapstructure:"SMS_PROVIDER"`

	SolapiAPIKey    string `mapstructure:"SOLAPI_API_KEY"`
	SolapiAPISecret string `mapstructure:"SOLAPI_API_SECRET"`
	SolapiSender    string `mapstructure:"SOLAPI_SENDER"`

	AligoAPIKey string `mapstructure:"ALIGO_API_KEY"`
	AligoUserID string `mapstructure:"ALIGO_USER_ID"`
	AligoSender string `mapstructure:"ALIGO_SENDER"`

	// Mock transport failure probability (0.0 to 1.0).
	MockFailRate float64 `mapstructure:"MOCK_FAIL_RATE"`

	DispatchConcurrency int           `mapstructure:"DISPATCH_CONCURRENCY"`
	SendTimeout         time.Duration `mapstructure:"SEND_TIMEOUT"`
}

// Load reads configuration from config.defaults.yaml (if present) and the
// environment with the APP_ prefix, e.g. APP_LINK_BASE_URL.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config.defaults")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.SetEnvPrefix("APP")

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("NATS_URL", "")
	v.SetDefault("LINK_BASE_URL", "http://localhost:3000")
	v.SetDefault("LINK_RESOURCE", "solve")
	v.SetDefault("TOKEN_SALT", InsecureTokenSalt)
	v.SetDefault("JWT_ACCESS_SECRET", "access-secret-must-be-overridden-in-prod")
	v.SetDefault("SMS_PROVIDER", "")
	v.SetDefault("MOCK_FAIL_RATE", 0.05)
	v.SetDefault("DISPATCH_CONCURRENCY", 5)
	v.SetDefault("SEND_TIMEOUT", 10*time.Second)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Configuration file 'config.defaults.yaml' not found; using defaults and environment variables.")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
