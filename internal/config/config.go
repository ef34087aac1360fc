package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	StoreBackend   string // "dynamo" | "memory"
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration
	SessionTTL        time.Duration
	SessionCookieName string

	Registration Registration

	CodeDelivery string // "smtp" | "sns"
	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SNSRegion    string
	SNSTopicARN  string

	IdentityProjectID string // securetoken issuer/audience
	IdentityJWKSURL   string
	GoogleClientID    string

	PromotionCodes map[string]string // code -> tier
	AllowedOrigins []string          // CORS allowed origins
	TrustedProxies []string          // CIDRs or IPs whose X-Forwarded-For is honoured
}

// Registration holds the one-time code lifecycle constants.
type Registration struct {
	CodeTTL       time.Duration
	EvictAfter    time.Duration
	MaxAttempts   int
	SweepInterval time.Duration
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users         string
	Sessions      string
	Registrations string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		StoreBackend:   getEnv("STORE_BACKEND", "dynamo"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:         getEnv("DYNAMO_TABLE_USERS", "users"),
			Sessions:      getEnv("DYNAMO_TABLE_SESSIONS", "sessions"),
			Registrations: getEnv("DYNAMO_TABLE_REGISTRATIONS", "pending_registrations"),
		},
		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         getEnvDuration("JWT_EXPIRY", 30*24*time.Hour),
		SessionTTL:        getEnvDuration("SESSION_TTL", 30*24*time.Hour),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "session"),
		Registration: Registration{
			CodeTTL:       getEnvDuration("REGISTRATION_CODE_TTL", 5*time.Minute),
			EvictAfter:    getEnvDuration("REGISTRATION_EVICT_AFTER", 10*time.Minute),
			MaxAttempts:   getEnvInt("REGISTRATION_MAX_ATTEMPTS", 5),
			SweepInterval: getEnvDuration("REGISTRATION_SWEEP_INTERVAL", 30*time.Second),
		},
		CodeDelivery:      getEnv("CODE_DELIVERY", "smtp"),
		SMTPHost:          getEnv("SMTP_HOST", "localhost"),
		SMTPPort:          getEnv("SMTP_PORT", "1025"),
		SMTPFrom:          getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		SNSRegion:         getEnv("SNS_REGION", "us-east-1"),
		SNSTopicARN:       getEnv("SNS_TOPIC_ARN", ""),
		IdentityProjectID: getEnv("IDENTITY_PROJECT_ID", ""),
		IdentityJWKSURL:   getEnv("IDENTITY_JWKS_URL", "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"),
		GoogleClientID:    getEnv("GOOGLE_CLIENT_ID", ""),
		PromotionCodes:    parsePairs(getEnv("PROMOTION_CODES", "")),
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		TrustedProxies:    splitList(getEnv("TRUSTED_PROXIES", "")),
	}
}

// IsDevelopment reports whether cookies may be sent over plain HTTP.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// parsePairs reads "A:x,B:y" into {"A": "x", "B": "y"}, skipping malformed entries.
func parsePairs(s string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || k == "" || v == "" {
			continue
		}
		out[strings.ToUpper(k)] = v
	}
	return out
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
