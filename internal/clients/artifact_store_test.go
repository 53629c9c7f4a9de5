package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPFSClientPut(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v0/add", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("pin"))
		gotAuth = r.Header.Get("Authorization")
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		gotBody = string(data)
		_, _ = io.WriteString(w, `{"Name":"x","Hash":"bafyleaf"}`+"\n"+`{"Name":"","Hash":"bafyroot"}`+"\n")
	}))
	defer srv.Close()

	c := NewIPFSClient(config.IPFSConfig{APIURL: srv.URL + "/", ProjectID: "id", ProjectSecret: "secret"})
	ref, err := c.Put(context.Background(), "image.png", []byte("pixels"))
	require.NoError(t, err)
	assert.Equal(t, "ipfs://bafyroot", ref)
	assert.Equal(t, "pixels", gotBody)
	assert.True(t, strings.HasPrefix(gotAuth, "Basic "))

	ref, err = c.PutJSON(context.Background(), "payload.json", map[string]string{"notes": "n"})
	require.NoError(t, err)
	assert.Equal(t, "ipfs://bafyroot", ref)
	assert.JSONEq(t, `{"notes":"n"}`, gotBody)
}

func TestIPFSClientFailureIsStoreUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "node offline", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewIPFSClient(config.IPFSConfig{APIURL: srv.URL})
	_, err := c.Put(context.Background(), "x", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, apperrors.KindStoreUnavailable, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "node offline")

	srv.Close()
	_, err = c.Put(context.Background(), "x", []byte("x"))
	assert.Equal(t, apperrors.KindStoreUnavailable, apperrors.KindOf(err))
}

func TestLocalArtifactStore(t *testing.T) {
	for _, dir := range []string{"", t.TempDir()} {
		s, err := NewLocalArtifactStore(dir)
		require.NoError(t, err)

		ctx := context.Background()
		a, err := s.Put(ctx, "a", []byte("same"))
		require.NoError(t, err)
		b, err := s.Put(ctx, "b", []byte("same"))
		require.NoError(t, err)
		c, err := s.Put(ctx, "c", []byte("different"))
		require.NoError(t, err)

		assert.Equal(t, a, b, "content addressed")
		assert.NotEqual(t, a, c)
		assert.True(t, strings.HasPrefix(a, LocalURIPrefix))

		data, err := s.Get(a)
		require.NoError(t, err)
		assert.Equal(t, []byte("same"), data)

		_, err = s.Get(LocalURIPrefix + strings.Repeat("0", 64))
		assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
		_, err = s.Get("bogus")
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	}
}

func TestLocalArtifactStoreCancelled(t *testing.T) {
	s, err := NewLocalArtifactStore("")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Put(ctx, "x", []byte("x"))
	assert.Equal(t, apperrors.KindStoreUnavailable, apperrors.KindOf(err))
}

func TestGatewayURL(t *testing.T) {
	assert.Equal(t, "https://gw.example/ipfs/bafy", GatewayURL("https://gw.example/", "ipfs://bafy"))
	assert.Equal(t, "https://ipfs.io/ipfs/bafy", GatewayURL("", "ipfs://bafy"))
	assert.Equal(t, "sha256://abc", GatewayURL("https://gw.example", "sha256://abc"))
}
