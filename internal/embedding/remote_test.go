package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/models"
)

type fakeSleeper struct {
	waits []time.Duration
}

func (f *fakeSleeper) sleep(_ context.Context, d time.Duration) error {
	f.waits = append(f.waits, d)
	return nil
}

func (f *fakeSleeper) total() time.Duration {
	var sum time.Duration
	for _, d := range f.waits {
		sum += d
	}
	return sum
}

// embeddingServer fails the first `failures` requests with status and then answers with
// vectors of dims, listing them in reverse index order.
func embeddingServer(t *testing.T, failures int, status int, dims int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/embeddings" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if int(n) <= failures {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"requests"}}`))
			return
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "text-embedding-3-small" {
			t.Errorf("model = %q", req.Model)
		}
		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			v := make([]float32, dims)
			v[0] = float32(i)
			data = append(data, item{Embedding: v, Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestRemote(t *testing.T, baseURL string, s *fakeSleeper) *Remote {
	t.Helper()
	cfg := config.RemoteEmbeddingConfig{
		BaseURL:          baseURL,
		APIKey:           "test-key",
		Model:            "text-embedding-3-small",
		MaxAttempts:      5,
		InitialBackoffMs: 1000,
	}
	r, err := NewRemote(cfg, WithSleeper(s.sleep))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRemote_RetriesRateLimitThenSucceeds(t *testing.T) {
	srv, calls := embeddingServer(t, 4, http.StatusTooManyRequests, 1536)
	s := &fakeSleeper{}
	r := newTestRemote(t, srv.URL, s)

	embs, err := r.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("expected success on fifth attempt, got %v", err)
	}
	if atomic.LoadInt32(calls) != 5 {
		t.Errorf("calls = %d, want 5", *calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(s.waits) != len(want) {
		t.Fatalf("waits = %v, want %v", s.waits, want)
	}
	for i := range want {
		if s.waits[i] != want[i] {
			t.Errorf("wait %d = %v, want %v", i, s.waits[i], want[i])
		}
	}
	if s.total() != 15*time.Second {
		t.Errorf("total backoff = %v, want 15s", s.total())
	}
	if len(embs) != 2 || embs[0][0] != 0 || embs[1][0] != 1 {
		t.Errorf("embeddings not in input order: %v", [][]float32{embs[0][:1], embs[1][:1]})
	}
	if r.Dimensions() != 1536 {
		t.Errorf("Dimensions() = %d", r.Dimensions())
	}
}

func TestRemote_RateLimitExhausted(t *testing.T) {
	srv, calls := embeddingServer(t, 100, http.StatusTooManyRequests, 8)
	s := &fakeSleeper{}
	r := newTestRemote(t, srv.URL, s)

	_, err := r.Embed(context.Background(), "a")
	if !errors.Is(err, models.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	if atomic.LoadInt32(calls) != 5 {
		t.Errorf("calls = %d, want 5", *calls)
	}
	if len(s.waits) != 4 {
		t.Errorf("expected no wait after the last attempt, got %v", s.waits)
	}
}

func TestRemote_OtherErrorsFailImmediately(t *testing.T) {
	srv, calls := embeddingServer(t, 100, http.StatusInternalServerError, 8)
	s := &fakeSleeper{}
	r := newTestRemote(t, srv.URL, s)

	_, err := r.Embed(context.Background(), "a")
	if !errors.Is(err, models.ErrEmbeddingProvider) {
		t.Fatalf("expected ErrEmbeddingProvider, got %v", err)
	}
	var perr *models.ProviderError
	if !errors.As(err, &perr) || perr.StatusCode != http.StatusInternalServerError || perr.Message != "slow down" {
		t.Errorf("unexpected provider error %+v", perr)
	}
	if atomic.LoadInt32(calls) != 1 || len(s.waits) != 0 {
		t.Errorf("expected one call and no waits, got %d calls, waits %v", *calls, s.waits)
	}
}

func TestRemote_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2],"index":0}]}`))
	}))
	defer srv.Close()
	r := newTestRemote(t, srv.URL, &fakeSleeper{})
	_, err := r.EmbedBatch(context.Background(), []string{"a", "b"})
	if !errors.Is(err, models.ErrEmbeddingProvider) {
		t.Errorf("expected ErrEmbeddingProvider, got %v", err)
	}
}

func TestRemote_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()
	r := newTestRemote(t, srv.URL, &fakeSleeper{})
	if _, err := r.Embed(context.Background(), "a"); !errors.Is(err, models.ErrEmbeddingProvider) {
		t.Errorf("expected ErrEmbeddingProvider, got %v", err)
	}
}

func TestRemote_EmptyBatch(t *testing.T) {
	r := newTestRemote(t, "http://127.0.0.1:1", &fakeSleeper{})
	embs, err := r.EmbedBatch(context.Background(), nil)
	if err != nil || len(embs) != 0 {
		t.Errorf("expected empty result without a request, got %v, %v", embs, err)
	}
}

func TestNewRemote_MissingKey(t *testing.T) {
	t.Setenv("KIKOE_MISSING_KEY", "")
	_, err := NewRemote(config.RemoteEmbeddingConfig{
		BaseURL:   "https://example.invalid",
		Model:     "m",
		APIKeyEnv: "KIKOE_MISSING_KEY",
	})
	if !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}
