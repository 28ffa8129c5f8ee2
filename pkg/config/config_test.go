package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Pipeline.Workers)
	assert.Equal(t, "INR", cfg.Pipeline.Currency)
	assert.True(t, cfg.Pipeline.InferMerchant)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "@every 1m", cfg.Watch.Schedule)
	assert.Equal(t, 2.0, cfg.Watch.FilesPerSecond)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("INGEST_WORKERS", "4")
	t.Setenv("INGEST_CURRENCY", "eur")
	t.Setenv("INGEST_DECIMAL_COMMA", "true")
	t.Setenv("DATABASE_ENABLED", "1")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("WATCH_FILES_PER_SECOND", "0.5")
	t.Setenv("RULES_PATH", "/etc/ingest/rules.csv")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, "EUR", cfg.Pipeline.Currency)
	assert.True(t, cfg.Pipeline.DecimalComma)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, 0.5, cfg.Watch.FilesPerSecond)
	assert.Equal(t, "/etc/ingest/rules.csv", cfg.Rules.Path)
	assert.Equal(t,
		"host=db.internal port=6543 user=postgres password=postgres dbname=statements sslmode=disable",
		cfg.Database.DSN())
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("INGEST_WORKERS", "many")
	t.Setenv("METRICS_ENABLED", "perhaps")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Pipeline.Workers)
	assert.False(t, cfg.Observability.MetricsEnabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		msg  string
	}{
		{"zero workers", map[string]string{"INGEST_WORKERS": "0"}, "INGEST_WORKERS"},
		{"bad currency", map[string]string{"INGEST_CURRENCY": "rupees"}, "INGEST_CURRENCY"},
		{"bad rate", map[string]string{"WATCH_FILES_PER_SECOND": "-1"}, "WATCH_FILES_PER_SECOND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
