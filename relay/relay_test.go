package relay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantari/imagefront"
	"github.com/vantari/imagefront/relay"
)

func TestGenerateImages_RequestShape(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/images/generations", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"created": 1700000000,
			"data":    []map[string]string{{"url": "https://img.example/1.png"}},
		})
	}))
	defer srv.Close()

	c := relay.New(srv.URL)
	result, err := c.GenerateImages(context.Background(), "tok-secret", imagefront.GenerateRequest{
		Prompt: "a cat",
		Model:  "dall-e-3",
		N:      1,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-secret", gotAuth)
	assert.Equal(t, "a cat", gotBody["prompt"])
	assert.Equal(t, "1024x1536", gotBody["size"], "portrait default applied")
	assert.Equal(t, "url", gotBody["response_format"])

	assert.Equal(t, int64(1700000000), result.Created)
	require.Len(t, result.Images, 1)
	assert.Equal(t, "https://img.example/1.png", result.Images[0].URL)
}

func TestGenerateImages_ExplicitSizeKept(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"created": 1, "data": []map[string]string{}})
	}))
	defer srv.Close()

	c := relay.New(srv.URL)
	_, err := c.GenerateImages(context.Background(), "tok", imagefront.GenerateRequest{
		Prompt: "a cat", Size: "1024x1024",
	})
	require.NoError(t, err)
	assert.Equal(t, "1024x1024", gotBody["size"])
}

func TestGenerateImages_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"token expired"}`))
	}))
	defer srv.Close()

	c := relay.New(srv.URL)
	_, err := c.GenerateImages(context.Background(), "tok-stale", imagefront.GenerateRequest{Prompt: "a cat"})
	require.Error(t, err)

	var se *relay.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Contains(t, se.Body, "token expired")
	assert.True(t, relay.IsCredentialError(err))
}

func TestIsCredentialError_TransientFailuresExcluded(t *testing.T) {
	assert.False(t, relay.IsCredentialError(&relay.StatusError{Code: http.StatusBadGateway}))
	assert.False(t, relay.IsCredentialError(relay.ErrUnavailable))
	assert.True(t, relay.IsCredentialError(&relay.StatusError{Code: http.StatusForbidden}))
}

func TestGenerateImages_BackendDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // closed before use

	c := relay.New(srv.URL)
	_, err := c.GenerateImages(context.Background(), "tok", imagefront.GenerateRequest{Prompt: "a cat"})
	assert.ErrorIs(t, err, relay.ErrUnavailable)
}

func TestChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-1",
			"model": "grok-imagine",
			"choices": []map[string]any{
				{"message": map[string]string{"content": "here is your image"}},
			},
		})
	}))
	defer srv.Close()

	c := relay.New(srv.URL)
	result, err := c.ChatCompletion(context.Background(), "tok", imagefront.ChatRequest{
		Model:    "grok-imagine",
		Messages: []imagefront.ChatMessage{{Role: "user", Content: "draw a cat"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "chatcmpl-1", result.ID)
	assert.Equal(t, "here is your image", result.Content)
}

func TestChatCompletion_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "chatcmpl-1", "choices": []any{}})
	}))
	defer srv.Close()

	c := relay.New(srv.URL)
	_, err := c.ChatCompletion(context.Background(), "tok", imagefront.ChatRequest{
		Messages: []imagefront.ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty choices")
}

func TestSizeForAspectRatio(t *testing.T) {
	assert.Equal(t, "1024x1024", relay.SizeForAspectRatio("1:1"))
	assert.Equal(t, "1536x1024", relay.SizeForAspectRatio("3:2"))
	assert.Equal(t, "1792x1024", relay.SizeForAspectRatio("16:9"))
	assert.Equal(t, "1024x1536", relay.SizeForAspectRatio("weird"), "unknown ratios fall back to portrait")
}
