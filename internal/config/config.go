// internal/config/config.go
package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Catalog  CatalogConfig
	Transfer TransferConfig
	Storage  StorageConfig
	Google   GoogleConfig
	S3       S3Config
	Sevalla  S3Config
}

type AppConfig struct {
	LogLevel    string
	FailOnError bool
}

type CatalogConfig struct {
	Path        string
	DriveFileID string
	ImageColumn string
	Strict      bool
}

type TransferConfig struct {
	Mode              string
	BatchSize         int
	StagingDir        string
	ArchiveDir        string
	ArchiveName       string
	FetchTimeout      time.Duration
	UploadTimeout     time.Duration
	FetchConcurrency  int
	UploadConcurrency int
	UserAgent         string
}

type StorageConfig struct {
	Backend          string
	TargetFolderID   string
	TargetFolderPath string
	LocalDir         string
}

type GoogleConfig struct {
	CredentialsFile string
	CredentialsJSON string
	TokenFile       string
	Scope           string
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

var (
	once     sync.Once
	instance *Config
)

// Load reads the process configuration once and caches it.
func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		instance = LoadFresh(viper.GetViper())
	})

	return instance
}

// LoadFresh builds a Config from v without caching, applying defaults and the environment.
func LoadFresh(v *viper.Viper) *Config {
	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()

	return &Config{
		App: AppConfig{
			LogLevel:    v.GetString("LOG_LEVEL"),
			FailOnError: v.GetBool("FAIL_ON_ERROR"),
		},
		Catalog: CatalogConfig{
			Path:        v.GetString("CATALOG_PATH"),
			DriveFileID: v.GetString("CATALOG_DRIVE_FILE_ID"),
			ImageColumn: v.GetString("CATALOG_IMAGE_COLUMN"),
			Strict:      v.GetBool("CATALOG_STRICT"),
		},
		Transfer: TransferConfig{
			Mode:              v.GetString("TRANSFER_MODE"),
			BatchSize:         v.GetInt("BATCH_SIZE"),
			StagingDir:        v.GetString("STAGING_DIR"),
			ArchiveDir:        v.GetString("ARCHIVE_DIR"),
			ArchiveName:       v.GetString("ARCHIVE_NAME"),
			FetchTimeout:      v.GetDuration("FETCH_TIMEOUT"),
			UploadTimeout:     v.GetDuration("UPLOAD_TIMEOUT"),
			FetchConcurrency:  v.GetInt("FETCH_CONCURRENCY"),
			UploadConcurrency: v.GetInt("UPLOAD_CONCURRENCY"),
			UserAgent:         v.GetString("USER_AGENT"),
		},
		Storage: StorageConfig{
			Backend:          v.GetString("STORAGE_BACKEND"),
			TargetFolderID:   v.GetString("TARGET_FOLDER_ID"),
			TargetFolderPath: v.GetString("TARGET_FOLDER_PATH"),
			LocalDir:         v.GetString("LOCAL_STORAGE_DIR"),
		},
		Google: GoogleConfig{
			CredentialsFile: v.GetString("GOOGLE_CREDENTIALS_FILE"),
			CredentialsJSON: v.GetString("GOOGLE_CREDENTIALS_JSON"),
			TokenFile:       v.GetString("GOOGLE_TOKEN_FILE"),
			Scope:           v.GetString("GOOGLE_DRIVE_SCOPE"),
		},
		S3: S3Config{
			Endpoint:  v.GetString("S3_ENDPOINT"),
			AccessKey: v.GetString("S3_ACCESS_KEY"),
			SecretKey: v.GetString("S3_SECRET_KEY"),
			Bucket:    v.GetString("S3_BUCKET"),
			Region:    v.GetString("S3_REGION"),
			UseSSL:    v.GetBool("S3_USE_SSL"),
		},
		Sevalla: S3Config{
			Endpoint:  v.GetString("SEVALLA_ENDPOINT"),
			AccessKey: v.GetString("SEVALLA_ACCESS_KEY"),
			SecretKey: v.GetString("SEVALLA_SECRET_KEY"),
			Bucket:    v.GetString("SEVALLA_BUCKET"),
			Region:    v.GetString("SEVALLA_REGION"),
			UseSSL:    v.GetBool("SEVALLA_USE_SSL"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("FAIL_ON_ERROR", false)
	v.SetDefault("CATALOG_PATH", "bayut_floor_plans_sample.csv")
	v.SetDefault("CATALOG_DRIVE_FILE_ID", "")
	v.SetDefault("CATALOG_IMAGE_COLUMN", "image2D_url")
	v.SetDefault("CATALOG_STRICT", false)
	v.SetDefault("TRANSFER_MODE", "batch")
	v.SetDefault("BATCH_SIZE", 100)
	v.SetDefault("STAGING_DIR", "./temp_images")
	v.SetDefault("ARCHIVE_DIR", "")
	v.SetDefault("ARCHIVE_NAME", "")
	v.SetDefault("FETCH_TIMEOUT", 60*time.Second)
	v.SetDefault("UPLOAD_TIMEOUT", 5*time.Minute)
	v.SetDefault("FETCH_CONCURRENCY", 0)
	v.SetDefault("UPLOAD_CONCURRENCY", 0)
	v.SetDefault("USER_AGENT", "imgsync/1.0")
	v.SetDefault("STORAGE_BACKEND", "drive")
	v.SetDefault("TARGET_FOLDER_ID", "")
	v.SetDefault("TARGET_FOLDER_PATH", "")
	v.SetDefault("LOCAL_STORAGE_DIR", "./data/uploads")
	v.SetDefault("GOOGLE_CREDENTIALS_FILE", "credentials.json")
	v.SetDefault("GOOGLE_CREDENTIALS_JSON", "")
	v.SetDefault("GOOGLE_TOKEN_FILE", "token.json")
	v.SetDefault("GOOGLE_DRIVE_SCOPE", "https://www.googleapis.com/auth/drive.file")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_USE_SSL", true)
	v.SetDefault("SEVALLA_REGION", "us-east-1")
	v.SetDefault("SEVALLA_USE_SSL", true)
}
