package config

import (
	"testing"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdv-sorveteria/models"
)

func process(t *testing.T, env map[string]string) *Config {
	t.Helper()
	for _, k := range []string{"DATABASE_URL", "DB_HOST", "DB_USER", "DB_NAME", "GOOGLE_APPLICATION_CREDENTIALS", "RECEIPTS_FOLDER_ID"} {
		t.Setenv(k, "")
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	var cfg Config
	require.NoError(t, envconfig.Process("", &cfg))
	return &cfg
}

func TestDefaults(t *testing.T) {
	cfg := process(t, map[string]string{"DATABASE_URL": "postgres://localhost/pdv"})
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, GatewaySimulator, cfg.Gateway)
	assert.Equal(t, int64(100), cfg.MinimumCharge)
	assert.True(t, cfg.CancelOnSwitch)
	assert.Equal(t, "Produtos", cfg.CatalogSheet)
	assert.Equal(t, "Historico", cfg.HistorySheet)

	methods, err := cfg.PromotionMethods()
	require.NoError(t, err)
	assert.Equal(t, []models.PaymentMethod{models.MethodPix, models.MethodCash}, methods)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name:    "postgres without connection variables",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name: "postgres with individual variables",
			env:  map[string]string{"DB_HOST": "db", "DB_USER": "pdv", "DB_NAME": "pdv"},
		},
		{
			name:    "sheets without credentials",
			env:     map[string]string{"STORE_BACKEND": "sheets"},
			wantErr: true,
		},
		{
			name: "sheets",
			env: map[string]string{
				"STORE_BACKEND":                  "sheets",
				"GOOGLE_APPLICATION_CREDENTIALS": "creds.json",
				"CATALOG_SPREADSHEET_ID":         "cat",
				"HISTORY_SPREADSHEET_ID":         "hist",
			},
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"STORE_BACKEND": "excel"},
			wantErr: true,
		},
		{
			name:    "point gateway without token",
			env:     map[string]string{"DATABASE_URL": "x", "GATEWAY": "point"},
			wantErr: true,
		},
		{
			name:    "unknown promotion method",
			env:     map[string]string{"DATABASE_URL": "x", "PROMO_METHODS": "Pix,Cheque"},
			wantErr: true,
		},
		{
			name:    "bad timezone",
			env:     map[string]string{"DATABASE_URL": "x", "TIMEZONE": "Mars/Olympus"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := process(t, tt.env)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidate_TrimsPortColon(t *testing.T) {
	cfg := process(t, map[string]string{"DATABASE_URL": "x", "PORT": ":9000"})
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
}

func TestConfigureLogging(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)
	defer log.SetFormatter(&log.TextFormatter{})

	require.NoError(t, ConfigureLogging("debug", "json"))
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)

	assert.Error(t, ConfigureLogging("loud", "text"))
	assert.Error(t, ConfigureLogging("info", "xml"))
}
