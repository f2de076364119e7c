package decider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPDeciderReturnsMessageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)

		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: "BUY: breakout confirmed"}}},
		})
	}))
	defer srv.Close()

	d := NewHTTPDecider(srv.URL, "secret", "gpt-test")
	out, err := d.Decide(context.Background(), "fibo1", "prompt", "system", 200)
	require.NoError(t, err)
	assert.Equal(t, "BUY: breakout confirmed", out)
}

func TestHTTPDeciderMissingKeyFailsFast(t *testing.T) {
	d := NewHTTPDecider("http://unused", "", "gpt-test")
	_, err := d.Decide(context.Background(), "fibo1", "p", "s", 100)
	assert.Error(t, err)
}

func TestHTTPDeciderNonOKStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	d := NewHTTPDecider(srv.URL, "key", "gpt-test")
	_, err := d.Decide(context.Background(), "fibo1", "p", "s", 100)
	assert.Error(t, err)
}
