package research

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionBody = `{"id":"r1","object":"chat.completion","created":1,"model":"sonar","citations":["https://a.example","https://b.example","https://a.example"],"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Average CAC is 120."}}]}`

func TestPerplexityRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"busy"}}`))
			return
		}
		_, _ = w.Write([]byte(completionBody))
	}))
	defer srv.Close()
	client := srv.Client()
	defer client.CloseIdleConnections()

	p, err := NewPerplexity(PerplexityConfig{APIKey: "pk", BaseURL: srv.URL + "/", HTTPClient: client})
	require.NoError(t, err)
	res, err := p.Search(context.Background(), Request{Query: "average CAC for agencies"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "Average CAC is 120.", res.Answer)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, res.Sources)
	assert.Equal(t, "sonar", res.Model)
	assert.False(t, res.Stub)
}

func TestPerplexityDoesNotRetryAuthErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()
	client := srv.Client()
	defer client.CloseIdleConnections()

	p, err := NewPerplexity(PerplexityConfig{APIKey: "pk", BaseURL: srv.URL + "/", HTTPClient: client})
	require.NoError(t, err)
	_, err = p.Search(context.Background(), Request{Query: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCitationsFallback(t *testing.T) {
	assert.Equal(t, []string{"https://c.example"}, Citations(`{"search_results":[{"title":"c","url":"https://c.example"}]}`))
	assert.Equal(t, []string{}, Citations(`{}`))
}
