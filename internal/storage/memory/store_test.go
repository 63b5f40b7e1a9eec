package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	var got map[string]string
	ok, err := s.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "k", map[string]string{"otp": "123456"}))
	ok, err = s.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "123456", got["otp"])

	require.NoError(t, s.Delete(ctx, "k"))
	ok, err = s.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_StoresCopy(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	doc := map[string]string{"otp": "111111"}
	require.NoError(t, s.Put(ctx, "k", doc))
	doc["otp"] = "222222"

	var got map[string]string
	_, err := s.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.Equal(t, "111111", got["otp"])
}

func TestStore_UnencodableDocument(t *testing.T) {
	err := NewStore().Put(context.Background(), "k", make(chan int))
	assert.ErrorContains(t, err, "failed to encode document")
}
