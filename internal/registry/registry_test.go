package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/triggers/internal/trigger"
)

func TestRegistry_DefaultsToPending(t *testing.T) {
	r := New()
	assert.Equal(t, trigger.StatePending, r.Get("unknown"))
}

func TestRegistry_SetAndGet(t *testing.T) {
	r := New()
	prev, err := r.Set("t1", trigger.StateEnabled)
	require.NoError(t, err)
	assert.Equal(t, trigger.StatePending, prev)
	assert.Equal(t, trigger.StateEnabled, r.Get("t1"))
}

func TestRegistry_DeletingIsTerminal(t *testing.T) {
	r := New()
	_, err := r.Set("t1", trigger.StateDeleting)
	require.NoError(t, err)

	_, err = r.Set("t1", trigger.StateEnabled)
	require.Error(t, err)
	assert.Equal(t, trigger.StateDeleting, r.Get("t1"))
}

func TestRegistry_Remove(t *testing.T) {
	r := New()
	_, _ = r.Set("t1", trigger.StateEnabled)
	r.Remove("t1")
	assert.Equal(t, trigger.StatePending, r.Get("t1"))
}
