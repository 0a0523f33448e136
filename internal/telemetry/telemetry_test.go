package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, 30*time.Second, cfg.ExportInterval)
	assert.Equal(t, "voyaged", cfg.ServiceName)
}

func TestInit_Disabled(t *testing.T) {
	tel, err := Init(context.Background(), Config{Enabled: false}, nil)
	require.NoError(t, err)
	require.NotNil(t, tel)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestShutdown_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))
}
