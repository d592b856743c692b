package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type EnvConfig struct {
	Postgres struct {
		HOST     string
		Database string
		Username string
		Password string
		Port     string
	}
	JWT struct {
		SecretKey string
		Algorithm string
		Expire    int
	}
	CORS struct {
		AllowDomains string
		GlobalDomain string
	}
	Redis struct {
		Password   string
		Database   int
		RedisHost  string
		RedisPort  string
		StagingTTL time.Duration
	}
	RabbitMQ struct {
		Host     string
		Port     string
		Username string
		Password string
		Prefetch int
	}
	Storage struct {
		Backend       string // "object_store" or "local_disk"
		Driver        string // "minio" or "s3" when Backend is object_store
		Bucket        string
		Region        string
		PublicBaseURL string
		LocalPath     string
		LocalBaseURL  string
	}
	Minio struct {
		Endpoint     string
		RootUser     string
		RootPassword string
		Secure       bool
	}
	S3 struct {
		AccessKey string
		SecretKey string
		Endpoint  string
	}
	Image struct {
		ListingDir     string
		ProfileDir     string
		CoverDir       string
		TempDir        string
		ListingBound   Bound
		ProfileBound   Bound
		CoverBound     Bound
		MaxUploadBytes int64
		MaxFiles       int
		JPEGQuality    int
	}
	Pipeline struct {
		TaskTimeout       time.Duration
		MaxRetries        int
		RetryInitialDelay time.Duration
		RetryMaxDelay     time.Duration
		BatchDeadline     time.Duration
		SweepInterval     time.Duration
	}
	Grafana struct {
		OTLPEndpoint string
		ServiceName  string
	}
	PrivateKey string

	Environment struct {
		Mode  string
		Group string
	}
	DomainName string
}

func LoadEnvConfig() *EnvConfig {
	var config EnvConfig

	// Postgres
	config.Postgres.HOST = os.Getenv("PGPOOL_HOST")
	config.Postgres.Database = os.Getenv("PGPOOL_DB")
	config.Postgres.Username = os.Getenv("PGPOOL_USER")
	config.Postgres.Password = os.Getenv("PGPOOL_PASSWORD")
	config.Postgres.Port = os.Getenv("PGPOOL_PORT")
	if config.Postgres.Port == "" {
		config.Postgres.Port = "5432"
	}

	// JWT
	config.JWT.SecretKey = os.Getenv("JWT_SECRET_KEY")
	config.JWT.Algorithm = os.Getenv("JWT_ALGORITHM")
	if config.JWT.Algorithm == "" {
		config.JWT.Algorithm = "HS256"
	}

	if val := os.Getenv("JWT_EXPIRE"); val != "" {
		fmt.Sscanf(val, "%d", &config.JWT.Expire)
	} else {
		config.JWT.Expire = 3600 * 24 * 7
	}

	config.CORS.AllowDomains = os.Getenv("ALLOWED_DOMAINS")
	config.CORS.GlobalDomain = os.Getenv("GLOBAL_DOMAIN")

	config.Redis.Password = os.Getenv("REDIS_PASSWORD")
	config.Redis.Database, _ = strconv.Atoi(os.Getenv("REDIS_DB"))
	config.Redis.RedisHost = os.Getenv("REDIS_HOST")
	if config.Redis.RedisHost == "" {
		config.Redis.RedisHost = "localhost"
	}
	config.Redis.RedisPort = os.Getenv("REDIS_PORT")
	if config.Redis.RedisPort == "" {
		config.Redis.RedisPort = "6379"
	}
	config.Redis.StagingTTL = durationEnv("REDIS_STAGING_TTL", time.Hour)

	// RabbitMQ
	config.RabbitMQ.Host = os.Getenv("RABBITMQ_HOST")
	if config.RabbitMQ.Host == "" {
		config.RabbitMQ.Host = "localhost"
	}
	config.RabbitMQ.Port = os.Getenv("RABBITMQ_PORT")
	if config.RabbitMQ.Port == "" {
		config.RabbitMQ.Port = "5672"
	}
	config.RabbitMQ.Username = os.Getenv("RABBITMQ_USER")
	if config.RabbitMQ.Username == "" {
		config.RabbitMQ.Username = "guest"
	}
	config.RabbitMQ.Password = os.Getenv("RABBITMQ_PASSWORD")
	if config.RabbitMQ.Password == "" {
		config.RabbitMQ.Password = "guest"
	}
	config.RabbitMQ.Prefetch = intEnv("RABBITMQ_PREFETCH", 4)

	// Storage
	config.Storage.Backend = strings.ToLower(os.Getenv("STORAGE_BACKEND"))
	if config.Storage.Backend == "" {
		config.Storage.Backend = StorageBackendObjectStore
	}
	config.Storage.Driver = strings.ToLower(os.Getenv("OBJECT_STORE_DRIVER"))
	if config.Storage.Driver == "" {
		config.Storage.Driver = ObjectStoreDriverMinio
	}
	config.Storage.Bucket = os.Getenv("STORAGE_BUCKET")
	if config.Storage.Bucket == "" {
		config.Storage.Bucket = "property-media"
	}
	config.Storage.Region = os.Getenv("STORAGE_REGION")
	if config.Storage.Region == "" {
		config.Storage.Region = "us-east-1"
	}
	config.Storage.PublicBaseURL = strings.TrimSuffix(os.Getenv("STORAGE_PUBLIC_BASE_URL"), "/")
	config.Storage.LocalPath = os.Getenv("LOCAL_STORAGE_PATH")
	if config.Storage.LocalPath == "" {
		config.Storage.LocalPath = "./static"
	}
	config.Storage.LocalBaseURL = strings.TrimSuffix(os.Getenv("LOCAL_STORAGE_BASE_URL"), "/")
	if config.Storage.LocalBaseURL == "" {
		config.Storage.LocalBaseURL = "/static"
	}

	config.Minio.Endpoint = os.Getenv("MINIO_ENDPOINT")
	config.Minio.RootUser = os.Getenv("MINIO_ROOT_USER")
	config.Minio.RootPassword = os.Getenv("MINIO_ROOT_PASSWORD")
	config.Minio.Secure = os.Getenv("MINIO_SECURE") == "true"

	config.S3.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	config.S3.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	config.S3.Endpoint = os.Getenv("S3_ENDPOINT")

	// Image roles
	config.Image.ListingDir = stringEnv("IMAGE_LISTING_DIR", "media/property-images/")
	config.Image.ProfileDir = stringEnv("IMAGE_PROFILE_DIR", "media/user-profile-images/")
	config.Image.CoverDir = stringEnv("IMAGE_COVER_DIR", "media/user-profile-images/")
	config.Image.TempDir = stringEnv("IMAGE_TEMP_DIR", "media/tmp/")
	config.Image.ListingBound = boundEnv("IMAGE_LISTING_BOUND", Bound{Width: 800, Height: 800})
	config.Image.ProfileBound = boundEnv("IMAGE_PROFILE_BOUND", Bound{Width: 200, Height: 250})
	config.Image.CoverBound = boundEnv("IMAGE_COVER_BOUND", Bound{Width: 800, Height: 800})
	if thresholdStr := os.Getenv("IMAGE_MAX_UPLOAD_BYTES"); thresholdStr != "" {
		if threshold, err := strconv.ParseInt(thresholdStr, 10, 64); err == nil {
			config.Image.MaxUploadBytes = threshold
		} else {
			config.Image.MaxUploadBytes = 10485760 // 10MB
		}
	} else {
		config.Image.MaxUploadBytes = 10485760 // 10MB
	}
	config.Image.MaxFiles = intEnv("IMAGE_MAX_FILES", 20)
	config.Image.JPEGQuality = intEnv("IMAGE_JPEG_QUALITY", 85)

	// Pipeline
	config.Pipeline.TaskTimeout = durationEnv("PIPELINE_TASK_TIMEOUT", 30*time.Second)
	config.Pipeline.MaxRetries = intEnv("PIPELINE_MAX_RETRIES", 3)
	config.Pipeline.RetryInitialDelay = durationEnv("PIPELINE_RETRY_INITIAL_DELAY", time.Second)
	config.Pipeline.RetryMaxDelay = durationEnv("PIPELINE_RETRY_MAX_DELAY", 30*time.Second)
	config.Pipeline.BatchDeadline = durationEnv("PIPELINE_BATCH_DEADLINE", 15*time.Minute)
	config.Pipeline.SweepInterval = durationEnv("PIPELINE_SWEEP_INTERVAL", time.Minute)

	// Grafana/OpenTelemetry
	grafanaEndpoint := os.Getenv("GRAFANA_OTLP_ENDPOINT")
	// Remove protocol for OpenTelemetry client to avoid duplicate protocols
	if strings.HasPrefix(grafanaEndpoint, "https://") {
		config.Grafana.OTLPEndpoint = strings.TrimPrefix(grafanaEndpoint, "https://")
	} else if strings.HasPrefix(grafanaEndpoint, "http://") {
		config.Grafana.OTLPEndpoint = strings.TrimPrefix(grafanaEndpoint, "http://")
	} else {
		config.Grafana.OTLPEndpoint = grafanaEndpoint
	}
	config.Grafana.ServiceName = os.Getenv("SERVICE_NAME")
	if config.Grafana.ServiceName == "" {
		config.Grafana.ServiceName = "gau-property-media"
	}

	config.PrivateKey = os.Getenv("PRIVATE_KEY")

	config.Environment.Mode = os.Getenv("DEPLOY_ENV")
	if config.Environment.Mode == "" {
		config.Environment.Mode = "development"
	}

	config.Environment.Group = os.Getenv("GROUP_NAME")
	if config.Environment.Group == "" {
		config.Environment.Group = "local"
	}

	config.DomainName = os.Getenv("DOMAIN_NAME")
	if config.DomainName == "" {
		config.DomainName = "localhost:8080"
	}

	return &config
}

func stringEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// boundEnv parses values such as "800x600".
func boundEnv(key string, fallback Bound) Bound {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := ParseBound(val)
	if err != nil {
		return fallback
	}
	return b
}
