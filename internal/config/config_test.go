package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedKeys = []string{
	"APP_PORT", "LOG_LEVEL", "STORE_DRIVER", "MONGODB_URI", "MONGODB_DB_NAME",
	"QUEUE_DB_PATH", "LIFECYCLE_BATCH_SIZE", "CONNECTIVITY_PROBE_SCHEDULE",
	"REPORT_CRON_SCHEDULE", "TIMEZONE", "WHATSAPP_TOKEN", "WHATSAPP_PHONE_NUMBER_ID",
	"WHATSAPP_BASE_URL", "WHATSAPP_API_VERSION", "WHATSAPP_REPORT_RECIPIENT",
}

// clearEnv blanks every managed key so the host environment does not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range managedKeys {
		t.Setenv(key, "")
	}
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DriverMongoDB, cfg.Store.Driver)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoDB.URI)
	assert.Equal(t, 400, cfg.Lifecycle.BatchSize)
	assert.Equal(t, "@every 15s", cfg.Schedule.ConnectivityProbe)
	assert.False(t, cfg.WhatsApp.Enabled())
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)
	for _, key := range managedKeys {
		// godotenv does not override variables that are already set
		require.NoError(t, os.Unsetenv(key))
	}

	path := filepath.Join(t.TempDir(), ".env")
	content := "APP_PORT=9090\nSTORE_DRIVER=MEMORY\nLIFECYCLE_BATCH_SIZE=50\n" +
		"WHATSAPP_TOKEN=t\nWHATSAPP_PHONE_NUMBER_ID=p\nWHATSAPP_REPORT_RECIPIENT=56911111111\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		for _, key := range managedKeys {
			_ = os.Unsetenv(key)
		}
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 50, cfg.Lifecycle.BatchSize)
	assert.True(t, cfg.WhatsApp.Enabled())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "non numeric batch", key: "LIFECYCLE_BATCH_SIZE", val: "many"},
		{name: "batch above limit", key: "LIFECYCLE_BATCH_SIZE", val: "401"},
		{name: "unknown driver", key: "STORE_DRIVER", val: "postgres"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load(missingEnvFile(t))
			assert.Error(t, err)
		})
	}
}

func TestValidateNil(t *testing.T) {
	var cfg *Config
	assert.Error(t, cfg.Validate())
}
