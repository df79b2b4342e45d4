package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Checkout  CheckoutConfig
	Storage   StorageConfig
	Jobs      JobsConfig
}

type ServerConfig struct {
	Port           string
	GRPCPort       string
	Mode           string
	Production     bool
	TrustedProxies []string
	AllowedOrigins []string
}

type DBConfig struct {
	URL             string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogQueries      bool
	SlowThreshold   time.Duration
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// RateLimitConfig holds ulule/limiter formatted rates, e.g. "100-M".
type RateLimitConfig struct {
	General   string
	Sensitive string
}

type CheckoutConfig struct {
	PriceTolerance     decimal.Decimal
	UnpaidOrderTTL     time.Duration
	CommissionHoldDays int
}

type StorageConfig struct {
	Bucket        string
	Region        string
	PublicBaseURL string
	MaxUploadSize int64
}

type JobsConfig struct {
	Enabled               bool
	ExpireOrdersSpec      string
	MatureCommissionsSpec string
}

// GetDSN returns DATABASE_URL when set, otherwise a postgres DSN built from the parts.
func (c DBConfig) GetDSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=Asia/Ho_Chi_Minh",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	tolerance, err := decimal.NewFromString(getEnv("CHECKOUT_PRICE_TOLERANCE", "1"))
	if err != nil {
		tolerance = decimal.NewFromInt(1)
	}

	mode := getEnv("GIN_MODE", "debug")

	return Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			GRPCPort:       getEnv("GRPC_PORT", "50051"),
			Mode:           mode,
			Production:     mode == "release",
			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES", nil),
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		DB: DBConfig{
			URL:             getEnv("DATABASE_URL", ""),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "dongy"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			LogQueries:      getEnvAsBool("DB_LOG_QUERIES", false),
			SlowThreshold:   getEnvAsDuration("DB_SLOW_THRESHOLD", 200*time.Millisecond),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),
			TokenTTL:  getEnvAsDuration("JWT_TTL", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			General:   getEnv("RATE_LIMIT_GENERAL", "100-M"),
			Sensitive: getEnv("RATE_LIMIT_SENSITIVE", "10-M"),
		},
		Checkout: CheckoutConfig{
			PriceTolerance:     tolerance,
			UnpaidOrderTTL:     getEnvAsDuration("UNPAID_ORDER_TTL", 48*time.Hour),
			CommissionHoldDays: getEnvAsInt("COMMISSION_HOLD_DAYS", 7),
		},
		Storage: StorageConfig{
			Bucket:        getEnv("S3_BUCKET", ""),
			Region:        getEnv("S3_REGION", "ap-southeast-1"),
			PublicBaseURL: getEnv("S3_PUBLIC_BASE_URL", ""),
			MaxUploadSize: int64(getEnvAsInt("UPLOAD_MAX_BYTES", 5<<20)),
		},
		Jobs: JobsConfig{
			Enabled:               getEnvAsBool("JOBS_ENABLED", true),
			ExpireOrdersSpec:      getEnv("JOBS_EXPIRE_ORDERS", "@every 15m"),
			MatureCommissionsSpec: getEnv("JOBS_MATURE_COMMISSIONS", "0 2 * * *"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if val, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return val
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if val, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return val
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if val, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return val
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
