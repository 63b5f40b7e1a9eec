package rtdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/contestauth/internal/testutil"
)

type doc struct {
	OTP   string `json:"otp"`
	Email string `json:"email"`
}

func TestClient_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewFakeRealtimeDB(t)
	c := NewClient(db.URL()+"/", testutil.FakeAPIKey, time.Second)

	var got doc
	ok, err := c.Get(ctx, "password_reset_otps/a_at_b_dot_com", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "password_reset_otps/a_at_b_dot_com", doc{OTP: "123456", Email: "a@b.com"}))
	raw, stored := db.Doc("password_reset_otps/a_at_b_dot_com")
	require.True(t, stored)
	assert.JSONEq(t, `{"otp":"123456","email":"a@b.com"}`, string(raw))

	ok, err = c.Get(ctx, "password_reset_otps/a_at_b_dot_com", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, doc{OTP: "123456", Email: "a@b.com"}, got)

	require.NoError(t, c.Put(ctx, "password_reset_otps/a_at_b_dot_com", doc{OTP: "654321", Email: "a@b.com"}))
	ok, err = c.Get(ctx, "password_reset_otps/a_at_b_dot_com", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "654321", got.OTP)

	require.NoError(t, c.Delete(ctx, "password_reset_otps/a_at_b_dot_com"))
	assert.Equal(t, 0, db.Len())
}

func TestClient_WrongCredential(t *testing.T) {
	db := testutil.NewFakeRealtimeDB(t)
	c := NewClient(db.URL(), "wrong", time.Second)

	err := c.Put(context.Background(), "k", doc{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 401")
}

func TestClient_CorruptDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "k", time.Second)
	_, err := c.Get(context.Background(), "k", &doc{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode document")
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := NewClient(srv.URL, "k", time.Second)
	_, err := c.Get(context.Background(), "k", &doc{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get document")
}
