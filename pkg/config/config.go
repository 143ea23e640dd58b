package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	GCS       GCSConfig
	Optimizer OptimizerConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
	LogFile     string
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey string
}

type RedisConfig struct {
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	// DistributionTTL of zero keeps cached distributions until overwritten.
	DistributionTTL time.Duration
}

type GCSConfig struct {
	// BucketTemplate is expanded with the run environment, e.g. ox-{env}-prebid-optimizer-data.
	BucketTemplate  string
	CredentialsFile string
	Enabled         bool
}

type OptimizerConfig struct {
	Env               string
	BucketSize        int
	HourWindow        int
	DataDelayHour     int
	ModelType         string
	MinProbability    float64
	CandidatesFile    string
	Parallelism       int
	MaxSessionSeconds int
	// RunTimeout bounds a run triggered over HTTP. Zero means no deadline.
	RunTimeout        time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, errors.New("invalid redis database")
	}
	redisTTL, err := time.ParseDuration(getEnv("REDIS_DISTRIBUTION_TTL", "0s"))
	if err != nil {
		return nil, errors.New("invalid redis distribution ttl")
	}

	bucketSize, err := getEnvInt("OPTIMIZER_BUCKET_SIZE", 10000)
	if err != nil {
		return nil, errors.New("invalid optimizer bucket size")
	}
	hourWindow, err := getEnvInt("OPTIMIZER_HOUR_WINDOW", 3)
	if err != nil {
		return nil, errors.New("invalid optimizer hour window")
	}
	dataDelay, err := getEnvInt("OPTIMIZER_DATA_DELAY_HOUR", 2)
	if err != nil {
		return nil, errors.New("invalid optimizer data delay")
	}
	parallelism, err := getEnvInt("OPTIMIZER_PARALLELISM", 1)
	if err != nil {
		return nil, errors.New("invalid optimizer parallelism")
	}
	maxSession, err := getEnvInt("OPTIMIZER_MAX_SESSION_SECONDS", 3600)
	if err != nil {
		return nil, errors.New("invalid optimizer max session seconds")
	}
	runTimeout, err := time.ParseDuration(getEnv("OPTIMIZER_RUN_TIMEOUT", "30m"))
	if err != nil {
		return nil, errors.New("invalid optimizer run timeout")
	}
	minProbability, err := strconv.ParseFloat(getEnv("OPTIMIZER_MIN_PROBABILITY", "0.025"), 64)
	if err != nil {
		return nil, errors.New("invalid optimizer min probability")
	}

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Prebid Optimizer"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
			LogFile:     getEnv("LOG_FILE", ""),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "prebid_optimizer"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", ""),
		},
		Redis: RedisConfig{
			RedisHost:       getEnv("REDIS_HOST", "localhost"),
			RedisPort:       getEnv("REDIS_PORT", "6379"),
			RedisPassword:   getEnv("REDIS_PASSWORD", ""),
			RedisDB:         redisDB,
			DistributionTTL: redisTTL,
		},
		GCS: GCSConfig{
			BucketTemplate:  getEnv("GCS_BUCKET_TEMPLATE", "ox-{env}-prebid-optimizer-data"),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			Enabled:         getEnv("GCS_ENABLED", "true") == "true",
		},
		Optimizer: OptimizerConfig{
			Env:               getEnv("OPTIMIZER_ENV", "devint"),
			BucketSize:        bucketSize,
			HourWindow:        hourWindow,
			DataDelayHour:     dataDelay,
			ModelType:         getEnv("OPTIMIZER_MODEL_TYPE", "default"),
			MinProbability:    minProbability,
			CandidatesFile:    getEnv("OPTIMIZER_CANDIDATES_FILE", ""),
			Parallelism:       parallelism,
			MaxSessionSeconds: maxSession,
			RunTimeout:        runTimeout,
		},
	}

	if cfg.Database.Password == "" {
		return nil, errors.New("missing database password")
	}

	if cfg.Optimizer.BucketSize <= 0 {
		return nil, fmt.Errorf("optimizer bucket size must be positive, got %d", cfg.Optimizer.BucketSize)
	}

	if cfg.Optimizer.HourWindow <= 0 {
		return nil, fmt.Errorf("optimizer hour window must be positive, got %d", cfg.Optimizer.HourWindow)
	}

	return cfg, nil
}

// RequireJWT reports a missing secret; only the HTTP server needs one.
func (c *Config) RequireJWT() error {
	if c.JWT.SecretKey == "" {
		return errors.New("missing jwt secret")
	}
	return nil
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(val)
}
