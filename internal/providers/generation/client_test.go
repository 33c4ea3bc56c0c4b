package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateResponseKeyPriority(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"response wins over all", `{"response":"a","answer":"b","text":"c"}`, "a"},
		{"answer wins over text", `{"answer":"b","text":"c"}`, "b"},
		{"text alone", `{"text":"c"}`, "c"},
		{"empty response falls through", `{"response":"","answer":"b"}`, "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := genServer(t, http.StatusOK, tt.body)
			c := New(srv.URL, time.Second)

			got, err := c.Generate(context.Background(), &Request{Prompt: "hi"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateFallbackOnEmptyBody(t *testing.T) {
	srv := genServer(t, http.StatusOK, `{}`)
	c := New(srv.URL, time.Second)

	got, err := c.Generate(context.Background(), &Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, Fallback, got)
}

func TestGenerateErrorStatus(t *testing.T) {
	srv := genServer(t, http.StatusBadGateway, `{"error":"upstream down"}`)
	c := New(srv.URL, time.Second)

	_, err := c.Generate(context.Background(), &Request{Prompt: "hi"})
	assert.Error(t, err)
}

func TestGenerateMalformedBody(t *testing.T) {
	srv := genServer(t, http.StatusOK, `not json`)
	c := New(srv.URL, time.Second)

	_, err := c.Generate(context.Background(), &Request{Prompt: "hi"})
	assert.Error(t, err)
}

func TestGenerateSendsFullPayload(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"response":"ok"}`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, time.Second)
	_, err := c.Generate(context.Background(), &Request{
		Messages: []Message{
			{Timestamp: 1, User: "Alice", Message: "hello", GroupName: "Group"},
		},
		Prompt:    "summarize",
		GroupName: "Group",
		CacheInfo: CacheInfo{TotalMessages: 5, NewMessages: 1, HasCachedContext: true},
	})
	require.NoError(t, err)

	assert.Equal(t, "summarize", got.Prompt)
	assert.Equal(t, "Group", got.GroupName)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Alice", got.Messages[0].User)
	assert.Equal(t, 5, got.CacheInfo.TotalMessages)
	assert.True(t, got.CacheInfo.HasCachedContext)
}
