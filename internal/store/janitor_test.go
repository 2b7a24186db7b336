package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitorRejectsBadSchedule(t *testing.T) {
	_, err := NewJanitor(NewMemoryStore(), "every now and then", nil)
	assert.Error(t, err)
}

func TestJanitorSweepsExpiredKeys(t *testing.T) {
	mem := NewMemoryStore()
	require.NoError(t, mem.Put(context.Background(), "old", []byte("v"), time.Millisecond))

	j, err := NewJanitor(mem, "@every 1s", nil)
	require.NoError(t, err)
	j.Start()
	defer j.Stop(context.Background())

	assert.Eventually(t, func() bool { return mem.Len() == 0 }, 3*time.Second, 50*time.Millisecond)
}
