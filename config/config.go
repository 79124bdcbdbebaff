package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort       int
	JWTSecret        string
	TokenTTL         time.Duration
	OperationTimeout time.Duration
	MaxUploadBytes   int64
	Database         DatabaseConfig
	Storage          StorageConfig
	Redis            RedisConfig
	MQ               MQConfig
	Log              LogConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

// StorageConfig selects the blob backend used for uploaded photos.
// Backend is one of "local", "minio", "gcs" or "azure".
type StorageConfig struct {
	Backend   string
	UploadDir string
	Minio     MinioConfig
	GCS       GCSConfig
	Azure     AzureConfig
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

type AzureConfig struct {
	ConnectionString string
	Container        string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration

	// InvalidationGuard is how long an evicted key refuses refills. It
	// must outlast OperationTimeout so an in-flight read cannot cache a
	// listing that changed under it.
	InvalidationGuard time.Duration
}

// MQConfig selects the broker that carries cache invalidation signals.
// Backend is one of "none", "pubsub" or "rabbitmq".
type MQConfig struct {
	Backend             string
	InvalidationChannel string
	PubSub              PubSubConfig
	RabbitMQ            RabbitMQConfig
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type RabbitMQConfig struct {
	URL             string
	ExchangeDurable bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type LogConfig struct {
	Level  string
	Format string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "adoptly"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "adoptly_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	storageConfig := StorageConfig{
		Backend:   strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		UploadDir: getEnv("UPLOAD_DIR", "public"),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "adoptly"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
		Azure: AzureConfig{
			ConnectionString: getEnv("AZURE_STORAGE_CONNECTION_STRING", ""),
			Container:        getEnv("AZURE_STORAGE_CONTAINER", "adoptly"),
		},
	}

	mqConfig := MQConfig{
		Backend:             strings.ToLower(getEnv("MQ_BACKEND", "none")),
		InvalidationChannel: getEnv("INVALIDATION_CHANNEL", "cache-invalidation"),
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			ExchangeDurable: getEnvBool("RABBITMQ_EXCHANGE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
		},
	}

	operationTimeout := getEnvDuration("OPERATION_TIMEOUT", 10*time.Second)

	redisConfig := RedisConfig{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
		TTL:      getEnvDuration("CACHE_TTL", 5*time.Minute),
	}
	redisConfig.InvalidationGuard = getEnvDuration("CACHE_INVALIDATION_GUARD", 2*operationTimeout)

	return Config{
		ServerPort:       getEnvInt("SERVER_PORT", 8080),
		JWTSecret:        strings.TrimSpace(getEnv("JWT_SECRET", "")),
		TokenTTL:         getEnvDuration("TOKEN_TTL", 24*time.Hour),
		OperationTimeout: operationTimeout,
		MaxUploadBytes:   int64(getEnvInt("MAX_UPLOAD_BYTES", 32<<20)),
		Database:         dbConfig,
		Storage:          storageConfig,
		Redis:            redisConfig,
		MQ:               mqConfig,
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
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
		if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		switch strings.ToLower(strings.TrimSpace(valueStr)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(strings.TrimSpace(valueStr)); err == nil {
			return d
		}
	}
	return defaultValue
}
