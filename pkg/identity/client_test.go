package identity

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientFetchNormalization(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantID  string
		wantOK  bool
		wantErr bool
	}{
		{name: "assigned", status: http.StatusOK, body: `{"data":"omk-abc123"}`, wantID: "omk-abc123", wantOK: true},
		{name: "sentinel zero", status: http.StatusOK, body: `{"data":"0"}`},
		{name: "empty string", status: http.StatusOK, body: `{"data":""}`},
		{name: "null data", status: http.StatusOK, body: `{"data":null}`},
		{name: "absent data", status: http.StatusOK, body: `{}`},
		{name: "server error", status: http.StatusInternalServerError, body: `boom`, wantErr: true},
		{name: "not found", status: http.StatusNotFound, body: ``, wantErr: true},
		{name: "malformed body", status: http.StatusOK, body: `{"data":`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, fetchPath, r.URL.Path)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, WithClientLogger(discardLogger()))
			id, ok, err := c.Fetch(context.Background(), "0xabc")

			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantID, id)
		})
	}
}

func TestClientSendsWalletAddressAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		var body struct {
			WalletAddress string `json:"walletAddress"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0xabc", body.WalletAddress)

		_, _ = w.Write([]byte(`{"data":"omk-1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL,
		WithClientLogger(discardLogger()),
		WithHeaders(map[string]string{"X-Api-Key": "secret"}),
	)
	id, ok, err := c.Fetch(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "omk-1", id)
}

func TestClientCreate(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, createPath, r.URL.Path)
			_, _ = w.Write([]byte(`{"status":"queued"}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, WithClientLogger(discardLogger()))
		assert.NoError(t, c.Create(context.Background(), "0xabc"))
	})

	t.Run("rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, WithClientLogger(discardLogger()))
		err := c.Create(context.Background(), "0xabc")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})
}

func TestClientContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":"omk-1"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, WithClientLogger(discardLogger()))
	_, _, err := c.Fetch(ctx, "0xabc")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientTrimsTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fetchPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"data":"omk-1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithClientLogger(discardLogger()))
	_, ok, err := c.Fetch(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.True(t, ok)
}
