package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledByDefault(t *testing.T) {
	// OTEL_ENABLED is unset in the test environment, so Init must be a
	// no-op that still hands back a working shutdown function.
	shutdown, err := Init(context.Background())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	assert.False(t, Enabled())
}

func TestGetConfig_Cached(t *testing.T) {
	cfg1 := GetConfig()
	cfg2 := GetConfig()
	assert.Same(t, cfg1, cfg2)
}
