// backend-go/internal/config/config.go
package config

import (
	"log"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Drive    DriveConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxTxConc    int64
}

type AppConfig struct {
	DataDir  string
	Timezone string
	// StoreKind selects the repository backend: "postgres" or "memory"
	StoreKind string
	LogLevel  string
	// LogFormat is "console" or "json"
	LogFormat string
}

type CacheConfig struct {
	Enabled          bool
	RedisURL         string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	LockTTLSeconds   int
	DemandTTLSeconds int
}

type StorageConfig struct {
	Enabled bool
	// Provider is "minio" (any S3 endpoint) or "sevalla"
	Provider  string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type DriveConfig struct {
	CredentialsFile string
	FolderID        string
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_READ_TIMEOUT", 15)
		viper.SetDefault("SERVER_WRITE_TIMEOUT", 60)
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "clinic_stock")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("DB_MAX_OPEN_CONNS", 20)
		viper.SetDefault("DB_MAX_CONCURRENT_TX", 8)
		viper.SetDefault("APP_DATA_DIR", "./data/output")
		viper.SetDefault("APP_TIMEZONE", "Asia/Kolkata")
		viper.SetDefault("SERVER_STORE", "postgres")
		viper.SetDefault("LOG_LEVEL", "info")
		viper.SetDefault("LOG_FORMAT", "console")
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_LOCK_TTL_SECONDS", 300)
		viper.SetDefault("CACHE_DEMAND_TTL_SECONDS", 60)
		viper.SetDefault("STORAGE_ENABLED", false)
		viper.SetDefault("STORAGE_PROVIDER", "minio")
		viper.SetDefault("STORAGE_BUCKET", "clinic-stock")
		viper.SetDefault("STORAGE_USE_SSL", true)

		// Read from environment variables
		viper.AutomaticEnv()

		ensureDir(viper.GetString("APP_DATA_DIR"))

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				Host:         viper.GetString("DB_HOST"),
				Port:         viper.GetString("DB_PORT"),
				User:         viper.GetString("DB_USER"),
				Password:     viper.GetString("DB_PASSWORD"),
				DBName:       viper.GetString("DB_NAME"),
				SSLMode:      viper.GetString("DB_SSLMODE"),
				MaxOpenConns: viper.GetInt("DB_MAX_OPEN_CONNS"),
				MaxTxConc:    viper.GetInt64("DB_MAX_CONCURRENT_TX"),
			},
			App: AppConfig{
				DataDir:   viper.GetString("APP_DATA_DIR"),
				Timezone:  viper.GetString("APP_TIMEZONE"),
				StoreKind: viper.GetString("SERVER_STORE"),
				LogLevel:  viper.GetString("LOG_LEVEL"),
				LogFormat: viper.GetString("LOG_FORMAT"),
			},
			Cache: CacheConfig{
				Enabled:          viper.GetBool("CACHE_ENABLED"),
				RedisURL:         viper.GetString("REDIS_URL"),
				RedisHost:        viper.GetString("REDIS_HOST"),
				RedisPort:        viper.GetString("REDIS_PORT"),
				RedisPassword:    viper.GetString("REDIS_PASSWORD"),
				RedisDB:          viper.GetInt("REDIS_DB"),
				LockTTLSeconds:   viper.GetInt("CACHE_LOCK_TTL_SECONDS"),
				DemandTTLSeconds: viper.GetInt("CACHE_DEMAND_TTL_SECONDS"),
			},
			Storage: StorageConfig{
				Enabled:   viper.GetBool("STORAGE_ENABLED"),
				Provider:  viper.GetString("STORAGE_PROVIDER"),
				Endpoint:  viper.GetString("STORAGE_ENDPOINT"),
				AccessKey: viper.GetString("STORAGE_ACCESS_KEY"),
				SecretKey: viper.GetString("STORAGE_SECRET_KEY"),
				Bucket:    viper.GetString("STORAGE_BUCKET"),
				UseSSL:    viper.GetBool("STORAGE_USE_SSL"),
				Region:    viper.GetString("STORAGE_REGION"),
			},
			Drive: DriveConfig{
				CredentialsFile: viper.GetString("GOOGLE_APPLICATION_CREDENTIALS"),
				FolderID:        viper.GetString("DRIVE_RULES_FOLDER_ID"),
			},
		}
	})

	return instance
}

// DSN returns the lib/pq style connection string
func (c DatabaseConfig) DSN() string {
	return "host=" + c.Host + " port=" + c.Port + " user=" + c.User +
		" password=" + c.Password + " dbname=" + c.DBName + " sslmode=" + c.SSLMode
}

func ensureDir(dir string) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
