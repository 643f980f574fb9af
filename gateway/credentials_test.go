package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func credentialServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchParsesNumericUID(t *testing.T) {
	srv := credentialServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/credentials", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "acct-1", req["accountId"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"tok-1","uid":42,"channelId":"chan-1"}`))
	})

	client := NewCredentialClient(srv.URL, time.Second)
	creds, err := client.Fetch(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, Credentials{Token: "tok-1", ChannelID: "chan-1", UID: 42}, creds)
}

func TestFetchParsesStringUID(t *testing.T) {
	// Some gateway deployments serialize the uid as a numeric string.
	srv := credentialServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"tok-1","uid":"42","channelId":"chan-1"}`))
	})

	client := NewCredentialClient(srv.URL, time.Second)
	creds, err := client.Fetch(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), creds.UID)
}

func TestFetchRejectsNon200(t *testing.T) {
	srv := credentialServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	client := NewCredentialClient(srv.URL, time.Second)
	_, err := client.Fetch(context.Background(), "acct-1")
	assert.ErrorIs(t, err, ErrCredential)
}

func TestFetchRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing token", `{"uid":42,"channelId":"chan-1"}`},
		{"missing channel", `{"token":"tok-1","uid":42}`},
		{"missing uid", `{"token":"tok-1","channelId":"chan-1"}`},
		{"zero uid", `{"token":"tok-1","uid":0,"channelId":"chan-1"}`},
		{"negative uid", `{"token":"tok-1","uid":-5,"channelId":"chan-1"}`},
		{"uid overflow", `{"token":"tok-1","uid":4294967296,"channelId":"chan-1"}`},
		{"non-numeric uid", `{"token":"tok-1","uid":"abc","channelId":"chan-1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body
			srv := credentialServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(body))
			})

			client := NewCredentialClient(srv.URL, time.Second)
			_, err := client.Fetch(context.Background(), "acct-1")
			assert.ErrorIs(t, err, ErrCredential)
		})
	}
}

func TestFetchContextCancellation(t *testing.T) {
	srv := credentialServer(t, func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server can observe the client disconnect
		// and cancel the request context; otherwise srv.Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})

	client := NewCredentialClient(srv.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Fetch(ctx, "acct-1")
	assert.ErrorIs(t, err, ErrCredential)
}

func TestFetchUnreachableGateway(t *testing.T) {
	client := NewCredentialClient("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := client.Fetch(context.Background(), "acct-1")
	assert.ErrorIs(t, err, ErrCredential)
}
