package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_RegisterLookupForget(t *testing.T) {
	r := NewRegistry()
	s := New("q")
	r.Register(s)

	got, ok := r.Lookup(s.QueryID)
	assert.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())

	r.Forget(s.QueryID)
	_, ok = r.Lookup(s.QueryID)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Lookup_MissingReturnsFalse(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("nope")
	assert.False(t, ok)
}

func TestRegistry_MustLookup_PanicsOnMissing(t *testing.T) {
	r := NewRegistry()
	assert.Panics(t, func() {
		r.MustLookup("nope")
	})
}
