package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	t.Cleanup(reset)

	Register("sig-1", func(c any) (any, error) { return c, nil })

	fn, ok := Lookup("sig-1")
	require.True(t, ok)
	result, err := fn(42)
	require.NoError(t, err)
	assert.Equal(t, 42, result)

	_, ok = Lookup("missing")
	assert.False(t, ok)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	t.Cleanup(reset)
	Register("dup", func(c any) (any, error) { return nil, nil })
	assert.Panics(t, func() {
		Register("dup", func(c any) (any, error) { return nil, nil })
	})
}
