package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoadFresh_Defaults(t *testing.T) {
	cfg := LoadFresh(viper.New())

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.False(t, cfg.App.FailOnError)
	assert.Equal(t, "image2D_url", cfg.Catalog.ImageColumn)
	assert.Equal(t, "batch", cfg.Transfer.Mode)
	assert.Equal(t, 100, cfg.Transfer.BatchSize)
	assert.Equal(t, 60*time.Second, cfg.Transfer.FetchTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Transfer.UploadTimeout)
	assert.Equal(t, "drive", cfg.Storage.Backend)
	assert.Equal(t, "token.json", cfg.Google.TokenFile)
	assert.Equal(t, "https://www.googleapis.com/auth/drive.file", cfg.Google.Scope)
	assert.True(t, cfg.S3.UseSSL)
}

func TestLoadFresh_Environment(t *testing.T) {
	t.Setenv("TRANSFER_MODE", "bundle")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("FETCH_TIMEOUT", "15s")
	t.Setenv("CATALOG_STRICT", "true")
	t.Setenv("TARGET_FOLDER_ID", "folder-xyz")
	t.Setenv("S3_USE_SSL", "false")
	t.Setenv("SEVALLA_BUCKET", "floorplans")
	t.Setenv("FAIL_ON_ERROR", "1")

	cfg := LoadFresh(viper.New())

	assert.Equal(t, "bundle", cfg.Transfer.Mode)
	assert.Equal(t, 25, cfg.Transfer.BatchSize)
	assert.Equal(t, 15*time.Second, cfg.Transfer.FetchTimeout)
	assert.True(t, cfg.Catalog.Strict)
	assert.Equal(t, "folder-xyz", cfg.Storage.TargetFolderID)
	assert.False(t, cfg.S3.UseSSL)
	assert.Equal(t, "floorplans", cfg.Sevalla.Bucket)
	assert.True(t, cfg.App.FailOnError)
}
