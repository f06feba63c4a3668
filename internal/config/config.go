package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// JWT
	JWTSecret      string
	JWTExpireHours int

	// API
	APIPort     int
	FrontendURL string

	// Stripe billing
	StripeSecretKey         string
	StripeWebhookSecret     string
	StripePriceIDPro        string
	StripePriceIDEnterprise string

	// External AI summarizer service
	SummarizerURL     string
	SummarizerTimeout int // seconds

	// Backups
	BackupDir     string
	BackupEnabled bool
	FTPHost       string
	FTPPort       int
	FTPUsername   string
	FTPPassword   string
	FTPPath       string
}

// generateSecureSecret generates a cryptographically secure random secret
func generateSecureSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a timestamp-based approach if crypto/rand fails
		return hex.EncodeToString([]byte(os.Getenv("HOSTNAME") + string(rune(length))))
	}
	return hex.EncodeToString(bytes)
}

func Load() *Config {
	// JWT Secret - generate random if not provided
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateSecureSecret(32) // 64 character hex string
		log.Println("WARNING: JWT_SECRET not set - generated random secret. Sessions will not persist across restarts.")
	}

	// Database password - warn if using default
	dbPassword := getEnv("DB_PASSWORD", "")
	if dbPassword == "" {
		log.Println("WARNING: DB_PASSWORD not set - this is insecure for production!")
		dbPassword = "changeme"
	}

	// Redis password - warn if using default
	redisPassword := getEnv("REDIS_PASSWORD", "")
	if redisPassword == "" {
		log.Println("WARNING: REDIS_PASSWORD not set - Redis is not secured!")
	}

	// Stripe webhook secret - billing webhooks are rejected without it
	stripeWebhookSecret := getEnv("STRIPE_WEBHOOK_SECRET", "")
	if stripeWebhookSecret == "" {
		log.Println("WARNING: STRIPE_WEBHOOK_SECRET not set - billing webhooks will be rejected!")
	}

	return &Config{
		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "clipdigest"),
		DBPassword: dbPassword,
		DBName:     getEnv("DB_NAME", "clipdigest"),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: redisPassword,

		// JWT
		JWTSecret:      jwtSecret,
		JWTExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 168), // 7 days default

		// API
		APIPort:     getEnvInt("API_PORT", 8080),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		// Stripe
		StripeSecretKey:         getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:     stripeWebhookSecret,
		StripePriceIDPro:        getEnv("STRIPE_PRICE_ID_PRO", ""),
		StripePriceIDEnterprise: getEnv("STRIPE_PRICE_ID_ENTERPRISE", ""),

		// Summarizer
		SummarizerURL:     getEnv("SUMMARIZER_URL", "http://localhost:8000"),
		SummarizerTimeout: getEnvInt("SUMMARIZER_TIMEOUT", 300),

		// Backups
		BackupDir:     getEnv("BACKUP_DIR", "/var/lib/clipdigest/backups"),
		BackupEnabled: getEnv("BACKUP_ENABLED", "false") == "true",
		FTPHost:       getEnv("BACKUP_FTP_HOST", ""),
		FTPPort:       getEnvInt("BACKUP_FTP_PORT", 21),
		FTPUsername:   getEnv("BACKUP_FTP_USERNAME", ""),
		FTPPassword:   getEnv("BACKUP_FTP_PASSWORD", ""),
		FTPPath:       getEnv("BACKUP_FTP_PATH", "/backups"),
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
