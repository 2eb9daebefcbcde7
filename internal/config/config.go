package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration
type Config struct {
	MySQL        MySQLConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Hosting      HostingConfig
	Stage        StageConfig
	Unique       UniqueConfig
	DeployWorker DeployWorkerConfig
	Migrate      bool
	HTTPAddr     string
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// HostingConfig holds static-hosting platform API configuration
type HostingConfig struct {
	APIURL     string
	APIToken   string
	Account    string
	TimeoutSec int
}

// StageConfig holds staging working-tree configuration
type StageConfig struct {
	Root string
}

// UniqueConfig holds CSS class uniquification configuration
type UniqueConfig struct {
	PoolFile string // INI file with named class-name pools
}

// DeployWorkerConfig holds deploy worker configuration
type DeployWorkerConfig struct {
	Enabled     bool
	IntervalSec int
	MaxAttempts int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getEnv("MYSQL_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "go_sitegen"),
		},
		Hosting: HostingConfig{
			APIURL:     getEnv("HOSTING_API_URL", ""),
			APIToken:   getEnv("HOSTING_API_TOKEN", ""),
			Account:    getEnv("HOSTING_ACCOUNT", ""),
			TimeoutSec: getEnvInt("HOSTING_TIMEOUT_SEC", 60),
		},
		Stage: StageConfig{
			Root: getEnv("STAGE_ROOT", os.TempDir()+"/sitegen-stage"),
		},
		Unique: UniqueConfig{
			PoolFile: getEnv("CLASS_POOL_FILE", ""),
		},
		DeployWorker: DeployWorkerConfig{
			Enabled:     getEnvBool("DEPLOY_WORKER_ENABLED", true),
			IntervalSec: getEnvInt("DEPLOY_WORKER_INTERVAL_SEC", 5),
			MaxAttempts: getEnvInt("DEPLOY_MAX_ATTEMPTS", 3),
		},
		Migrate:  getEnvBool("MIGRATE", false),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
	}

	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "1" || value == "true"
	}
	return defaultValue
}
