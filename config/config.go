package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	BackendNone     = "none"
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
	BackendMinio    = "minio"
	BackendGCS      = "gcs"
)

type Config struct {
	ServerPort int
	LogLevel   string
	Server     ServerConfig
	Database   DatabaseConfig
	Auth       AuthConfig
	MQ         MQConfig
	Storage    StorageConfig
}

type ServerConfig struct {
	CORSOrigins       []string
	LoginRatePerMin   int
	RegistrationOpen  bool
	RequireAdminRole  bool
	RequestTimeoutSec int
}

type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	UseSSL     bool
	SQLitePath string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	HashCost  int
}

type MQConfig struct {
	Backend  string
	Channel  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type StorageConfig struct {
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Driver:     getEnv("DB_DRIVER", DriverPostgres),
		Host:       getEnv("DB_HOST", "localhost"),
		Port:       getEnvInt("DB_PORT", 5432),
		User:       getEnv("DB_USER", "commdir"),
		Password:   getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "commdir_db"),
		UseSSL:     getEnvBool("DB_USE_SSL", false),
		SQLitePath: getEnv("DB_SQLITE_PATH", "commdir.db"),
	}

	serverConfig := ServerConfig{
		CORSOrigins:       getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		LoginRatePerMin:   getEnvInt("LOGIN_RATE_PER_MIN", 10),
		RegistrationOpen:  getEnvBool("REGISTRATION_OPEN", true),
		RequireAdminRole:  getEnvBool("REQUIRE_ADMIN_ROLE", false),
		RequestTimeoutSec: getEnvInt("REQUEST_TIMEOUT_SEC", 60),
	}

	authConfig := AuthConfig{
		JWTSecret: strings.TrimSpace(getEnv("JWT_SECRET", "")),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 24*time.Hour),
		HashCost:  getEnvInt("BCRYPT_COST", 10),
	}

	mqConfig := MQConfig{
		Backend: getEnv("MQ_BACKEND", BackendNone),
		Channel: getEnv("MQ_CHANNEL", "admin-events"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 0),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	storageConfig := StorageConfig{
		Backend: getEnv("STORAGE_BACKEND", BackendNone),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "commdir"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Server:     serverConfig,
		Database:   dbConfig,
		Auth:       authConfig,
		MQ:         mqConfig,
		Storage:    storageConfig,
	}
}

// Validate reports configuration that must stop the server from starting.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if err := c.Auth.ValidateHashCost(); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.TokenTTL < 0 {
		errs = append(errs, fmt.Errorf("TOKEN_TTL must not be negative, got %s", c.Auth.TokenTTL))
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite, "":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	switch c.MQ.Backend {
	case BackendNone, BackendRabbitMQ, BackendPubSub, "":
	default:
		errs = append(errs, fmt.Errorf("unsupported MQ_BACKEND %q", c.MQ.Backend))
	}
	switch c.Storage.Backend {
	case BackendNone, BackendMinio, BackendGCS, "":
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend))
	}
	return errors.Join(errs...)
}

// ValidateHashCost rejects a bcrypt work factor the hasher cannot use.
// Zero selects the default.
func (a AuthConfig) ValidateHashCost() error {
	if a.HashCost != 0 && (a.HashCost < bcrypt.MinCost || a.HashCost > bcrypt.MaxCost) {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, a.HashCost)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil || value <= 0 {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
