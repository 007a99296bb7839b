package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, m.Delete(ctx, "k"))
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)

	require.NoError(t, m.Set(ctx, "short", "v", 10*time.Millisecond))
	v, err := m.Get(ctx, "short")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	time.Sleep(20 * time.Millisecond)
	_, err = m.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCapEviction(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(5)

	for i := 0; i < 20; i++ {
		require.NoError(t, m.Set(ctx, fmt.Sprintf("k%d", i), "v", time.Minute))
	}

	// Capacity is honored; the most recent write always survives.
	assert.LessOrEqual(t, len(m.entries), 5)
	v, err := m.Get(ctx, "k19")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestMemoryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(1000)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("k%d", i%10)
				m.Set(ctx, key, "v", time.Minute)
				m.Get(ctx, key)
			}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}
