package embedclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func fakeEmbeddingServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vec := make([]float32, dims)
		for i := range vec {
			vec[i] = 0.1
		}
		_ = json.NewEncoder(w).Encode(embeddingResponse{
			Data: []struct {
				Embedding []float32 `json:"embedding"`
			}{{Embedding: vec}},
		})
	}))
}

func TestDetectDimensionCaches(t *testing.T) {
	srv := fakeEmbeddingServer(t, 768)
	defer srv.Close()

	c := New(srv.URL, "test-model", "", 0)
	dims, err := c.DetectDimension(context.Background())
	if err != nil {
		t.Fatalf("DetectDimension: %v", err)
	}
	if dims != 768 {
		t.Fatalf("got %d, want 768", dims)
	}
	if c.TableName() != "memory_768" {
		t.Fatalf("got table %q", c.TableName())
	}

	// Second call must hit the cache, not the server (sync.Once).
	dims2, err := c.DetectDimension(context.Background())
	if err != nil || dims2 != 768 {
		t.Fatalf("cached call failed: %d, %v", dims2, err)
	}
}

func TestDetectDimensionMismatch(t *testing.T) {
	srv := fakeEmbeddingServer(t, 768)
	defer srv.Close()

	c := New(srv.URL, "test-model", "", 1536)
	if _, err := c.DetectDimension(context.Background()); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}
