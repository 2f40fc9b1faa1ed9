package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoExecutor(kind string) Executor {
	return NewExecutorFunc(kind, func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		return input, nil
	})
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoExecutor("echo")))

	assert.Equal(t, []string{"echo"}, r.Kinds())
	assert.NotNil(t, r.Get("echo"))
	assert.Nil(t, r.Get("missing"))
}

func TestRegistryRejectsInvalid(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(echoExecutor("")))

	require.NoError(t, r.Register(echoExecutor("echo")))
	assert.Error(t, r.Register(echoExecutor("echo")))
	assert.Panics(t, func() { r.MustRegister(echoExecutor("echo")) })
}

func TestRegistryGetOrError(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetOrError("nope")
	require.Error(t, err)

	var execErr *ExecutorError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, ErrCodeNotFound, execErr.Code)
}

func TestRegistryKindsSorted(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Kinds())
	r.MustRegister(echoExecutor("b"))
	r.MustRegister(echoExecutor("a"))
	assert.Equal(t, []string{"a", "b"}, r.Kinds())
}
