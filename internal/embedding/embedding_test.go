package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpcenter-rag/internal/config"
	"helpcenter-rag/internal/helper"
	"helpcenter-rag/internal/models"
)

type fakeProvider struct {
	dims    int
	fail    map[string]bool
	batches [][]string
}

func (f *fakeProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.fail[t] {
			return nil, errors.New("provider rejected input")
		}
		dims := f.dims
		if strings.HasPrefix(t, "short:") {
			dims = 2
		}
		out[i] = make([]float32, dims)
		out[i][0] = float32(len(t))
	}
	return out, nil
}

func TestEmbedBatch(t *testing.T) {
	p := &fakeProvider{dims: 4}
	s := NewService(p, "test-model", 4, 2)

	results := s.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})

	require.Len(t, results, 3)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Len(t, r.Vector, 4)
		assert.Equal(t, float32(i+1), r.Vector[0])
	}
	assert.Len(t, p.batches, 2)
}

func TestEmbedBatchIsolatesFailures(t *testing.T) {
	p := &fakeProvider{dims: 4, fail: map[string]bool{"bad": true}}
	s := NewService(p, "test-model", 4, 8)

	results := s.EmbedBatch(context.Background(), []string{"good", "bad", "short:x", "fine"})

	require.Len(t, results, 4)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.ErrorIs(t, results[2].Err, models.ErrDimensionMismatch)
	assert.NoError(t, results[3].Err)
}

type flakyProvider struct {
	failures int
	err      error
	calls    int
}

func (f *flakyProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func fastRetry() Option {
	return WithRetry(helper.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, Retryable: helper.IsRetryableAPIError})
}

func TestEmbedBatchRetriesTransientFailure(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		err       error
		wantErr   bool
		wantCalls int
	}{
		{
			name:      "rate limited once",
			failures:  1,
			err:       fmt.Errorf("status code: 429: %w", models.ErrTransient),
			wantCalls: 2,
		},
		{
			name:      "server error reported by the client",
			failures:  2,
			err:       errors.New("error, status code: 503, status: 503 Service Unavailable"),
			wantCalls: 3,
		},
		{
			name:      "retries exhausted",
			failures:  5,
			err:       fmt.Errorf("status code: 429: %w", models.ErrTransient),
			wantErr:   true,
			wantCalls: 3,
		},
		{
			name:      "permanent error is not retried",
			failures:  1,
			err:       errors.New("error, status code: 400, status: 400 Bad Request"),
			wantErr:   true,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &flakyProvider{failures: tt.failures, err: tt.err}
			s := NewService(p, "test-model", 4, 8, fastRetry())

			results := s.EmbedBatch(context.Background(), []string{"only chunk"})

			require.Len(t, results, 1)
			if tt.wantErr {
				assert.Error(t, results[0].Err)
			} else {
				require.NoError(t, results[0].Err)
				assert.Len(t, results[0].Vector, 4)
			}
			assert.Equal(t, tt.wantCalls, p.calls)
		})
	}
}

func TestOpenAIProviderRetriedOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2]}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(&config.EmbedConfig{
		BaseURL:        srv.URL,
		Key:            "sk-test",
		Model:          "text-embedding-3-small",
		Dimensions:     2,
		RequestsPerSec: 100,
		Timeout:        5 * time.Second,
	})
	s := NewService(p, "text-embedding-3-small", 2, 8, fastRetry())

	vec, err := s.EmbedQuery(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedQueryDimensionMismatch(t *testing.T) {
	s := NewService(&fakeProvider{dims: 3}, "test-model", 4, 8)
	_, err := s.EmbedQuery(context.Background(), "query")
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestOpenAIProvider(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0.3,0.4]},
			{"object":"embedding","index":0,"embedding":[0.1,0.2]}
		],"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(&config.EmbedConfig{
		BaseURL:        srv.URL,
		Key:            "sk-test",
		Model:          "text-embedding-3-small",
		Dimensions:     2,
		RequestsPerSec: 100,
	})

	vectors, err := p.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
	assert.Equal(t, []float32{0.3, 0.4}, vectors[1])
	assert.Equal(t, float64(2), gotReq["dimensions"])
	assert.Equal(t, "text-embedding-3-small", gotReq["model"])
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(&config.EmbedConfig{Provider: "cohere"})
	assert.Error(t, err)
}
