package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// maxFetchTimeout caps the website fetch used by the trust evaluator.
const maxFetchTimeout = 5 * time.Second

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort           string
	AppEnv            string
	AWSRegion         string
	AWSEndpointURL    string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID    string
	AWSSecretKey      string
	DynamoTables      DynamoTables
	S3BucketName      string
	PresignTTL        time.Duration
	JWTPublicKeyPath  string
	JWTPrivateKeyPath string // optional; only tooling that issues tokens needs it
	JWTExpiry         time.Duration
	SMTPHost          string
	SMTPPort          string
	SMTPFrom          string
	SMTPUsername      string
	SMTPPassword      string
	SNSRegion         string
	RedisURL          string   // empty disables the cross-instance session lease
	AllowedOrigins    []string // CORS allowed origins
	Verification      Verification
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users         string
	Notifications string
	Verifications string
}

// Verification holds the product-tunable knobs of the reconciliation engine.
type Verification struct {
	WaitBudget         time.Duration
	PollInterval       time.Duration
	FetchTimeout       time.Duration
	StoreReadTimeout   time.Duration
	StoreRetryAttempts int
	StoreRetryBackoff  time.Duration
	Countdown          time.Duration
	ClientReadTimeout  time.Duration
	LeaseTTL           time.Duration
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:         getEnv("DYNAMO_TABLE_USERS", "users"),
			Notifications: getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
			Verifications: getEnv("DYNAMO_TABLE_VERIFICATIONS", "verifications"),
		},
		S3BucketName:      getEnv("S3_BUCKET_NAME", "verification-evidence"),
		PresignTTL:        getEnvDuration("S3_PRESIGN_TTL", 15*time.Minute),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", ""),
		JWTExpiry:         getEnvDuration("JWT_EXPIRY", 7*24*time.Hour),
		SMTPHost:          getEnv("SMTP_HOST", "localhost"),
		SMTPPort:          getEnv("SMTP_PORT", "1025"),
		SMTPFrom:          getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		SNSRegion:         getEnv("SNS_REGION", "us-east-1"),
		RedisURL:          getEnv("REDIS_URL", ""),
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		Verification:      LoadVerification(),
	}
}

// LoadVerification reads only the reconciliation settings. The client CLI
// uses it without pulling in the AWS configuration.
func LoadVerification() Verification {
	v := Verification{
		WaitBudget:         getEnvDuration("VERIFY_WAIT_BUDGET", 120*time.Second),
		PollInterval:       getEnvDuration("VERIFY_POLL_INTERVAL", 15*time.Second),
		FetchTimeout:       getEnvDuration("VERIFY_FETCH_TIMEOUT", maxFetchTimeout),
		StoreReadTimeout:   getEnvDuration("VERIFY_STORE_READ_TIMEOUT", 3*time.Second),
		StoreRetryAttempts: getEnvInt("VERIFY_STORE_RETRY_ATTEMPTS", 3),
		StoreRetryBackoff:  getEnvDuration("VERIFY_STORE_RETRY_BACKOFF", 500*time.Millisecond),
		Countdown:          getEnvDuration("VERIFY_COUNTDOWN", 120*time.Second),
		ClientReadTimeout:  getEnvDuration("VERIFY_CLIENT_READ_TIMEOUT", 10*time.Second),
		LeaseTTL:           getEnvDuration("VERIFY_LEASE_TTL", 0),
	}
	return v.normalize()
}

func (v Verification) normalize() Verification {
	if v.FetchTimeout <= 0 || v.FetchTimeout > maxFetchTimeout {
		v.FetchTimeout = maxFetchTimeout
	}
	if v.StoreRetryAttempts < 1 {
		v.StoreRetryAttempts = 1
	}
	// The lease must outlive the longest possible session.
	if floor := v.WaitBudget + v.StoreReadTimeout + time.Minute; v.LeaseTTL < floor {
		v.LeaseTTL = floor
	}
	return v
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

// getEnvDuration accepts Go duration strings ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
