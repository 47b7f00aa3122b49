package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topoom/casefeed/internal/storage"
)

func TestMemoryProviderPutGet(t *testing.T) {
	t.Parallel()

	m := storage.NewMemoryProvider()
	ctx := context.Background()

	url, err := m.Put(ctx, "cases/corr-1/0.png", "image/png", []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, "memory://cases/corr-1/0.png", url)

	// Same key overwrites.
	_, err = m.Put(ctx, "cases/corr-1/0.png", "image/png", []byte("second"))
	require.NoError(t, err)

	data, ok := m.Get("cases/corr-1/0.png")
	require.True(t, ok)
	assert.Equal(t, []byte("second"), data)
	assert.Equal(t, 1, m.Len())

	_, ok = m.Get("cases/other/0.png")
	assert.False(t, ok)
}

func TestFailingProvider(t *testing.T) {
	t.Parallel()

	var p storage.FailingProvider
	_, err := p.Put(context.Background(), "any", "image/png", nil)
	assert.ErrorContains(t, err, "store unavailable")
}
