package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noterag/noterag/internal/noteerr"
)

func newEmbedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbedPostsModelAndInput(t *testing.T) {
	// Given a backend capturing the request
	var got ollamaEmbedRequest
	srv := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float64{{0.1, 0.2, 0.3}},
		})
	})
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "nomic-embed-text", Dimensions: 3})

	// When we embed
	vec, err := e.Embed(context.Background(), "hello notes")

	// Then the wire format and the decoded vector are correct
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", got.Model)
	assert.Equal(t, "hello notes", got.Input)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedCapsInputLength(t *testing.T) {
	var gotLen int
	srv := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotLen = len(req.Input)
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float64{{1}}})
	})
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Dimensions: 1})

	_, err := e.Embed(context.Background(), strings.Repeat("x", MaxInputChars+500))

	require.NoError(t, err)
	assert.Equal(t, MaxInputChars, gotLen)
}

func TestEmbedBackendErrorIsTransient(t *testing.T) {
	srv := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	})
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL})

	_, err := e.Embed(context.Background(), "query")

	require.Error(t, err)
	assert.True(t, noteerr.IsTransient(err))
}

func TestEmbedTimeout(t *testing.T) {
	srv := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float64{{1}}})
	})
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Timeout: 20 * time.Millisecond})

	_, err := e.Embed(context.Background(), "query")

	assert.Error(t, err)
}

func TestEmbedEmptyTextReturnsZeroVector(t *testing.T) {
	// No backend: empty input must not hit the network.
	e := NewOllamaEmbedder(OllamaConfig{Host: "http://127.0.0.1:1", Dimensions: 4})

	vec, err := e.Embed(context.Background(), "   ")

	require.NoError(t, err)
	assert.Equal(t, make([]float32, 4), vec)
}

func TestEmbedAfterCloseFails(t *testing.T) {
	e := NewOllamaEmbedder(OllamaConfig{Host: "http://127.0.0.1:1"})
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "query")

	assert.Error(t, err)
}

func TestAvailableMatchesBaseModelName(t *testing.T) {
	srv := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{
				{"name": "nomic-embed-text:latest"},
				{"name": "llama3:8b"},
			},
		})
	})

	// Tag-insensitive match on the base name
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	assert.True(t, e.Available(context.Background()))

	other := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "mxbai-embed-large"})
	assert.False(t, other.Available(context.Background()))
}

func TestAvailableFalseWhenBackendDown(t *testing.T) {
	e := NewOllamaEmbedder(OllamaConfig{Host: "http://127.0.0.1:1"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	assert.False(t, e.Available(ctx))
}
