package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spawnkit/internal/config"
)

func TestNewDisabledReturnsNoopTracer(t *testing.T) {
	m, err := New(config.TracingConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.NotNil(t, m.Tracer())

	_, span := m.Tracer().Start(context.Background(), "op")
	defer span.End()
	assert.NoError(t, m.Shutdown(context.Background()))
}
