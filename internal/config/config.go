package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewFulfillmentConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string
	OTelEnabled  bool

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PaymentGatewayURL    string
	PaymentGatewayAPIKey string
	DistributorURL       string
	DistributorAPIKey    string
	CRMBaseURL           string
	CRMAPIKey            string

	ComplianceWindowDays  int
	ComplianceFirearmCap  int
	OutboxWorkerEnabled   bool
	SeedDefaults          bool
	MigrationsEnabled     bool
	TestOrderMintingScope bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	return Config{
		AppName:     getenv("APP_SERVICE", "armory"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		OTelEnabled:  getenvBool("OTEL_ENABLED", false),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "armory"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		PaymentGatewayURL:    getenv("PAYMENT_GATEWAY_URL", "http://localhost:9091"),
		PaymentGatewayAPIKey: strings.TrimSpace(getenv("PAYMENT_GATEWAY_API_KEY", "")),
		DistributorURL:       getenv("DISTRIBUTOR_URL", "http://localhost:9092"),
		DistributorAPIKey:    strings.TrimSpace(getenv("DISTRIBUTOR_API_KEY", "")),
		CRMBaseURL:           getenv("CRM_BASE_URL", "http://localhost:9093"),
		CRMAPIKey:            strings.TrimSpace(getenv("CRM_API_KEY", "")),

		ComplianceWindowDays:  getenvInt("COMPLIANCE_WINDOW_DAYS", 30),
		ComplianceFirearmCap:  getenvInt("COMPLIANCE_FIREARM_LIMIT", 5),
		OutboxWorkerEnabled:   getenvBool("OUTBOX_WORKER_ENABLED", true),
		SeedDefaults:          getenvBool("SEED_DEFAULTS", true),
		MigrationsEnabled:     getenvBool("MIGRATIONS_ENABLED", environment != "development"),
		TestOrderMintingScope: getenvBool("TEST_ORDER_MINTING", false),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
