package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const remoteProvider = "openai"

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var errRateLimited = errors.New("rate limited")

// Remote embeds text with an OpenAI-compatible embeddings endpoint. Rate-limited
// requests are retried with exponential backoff; any other failure is returned at once.
type Remote struct {
	client         *http.Client
	baseURL        string
	apiKey         string
	model          string
	limiter        *rate.Limiter
	maxAttempts    int
	initialBackoff time.Duration
	sleep          Sleeper
	dimensions     atomic.Int64
	logger         *zap.Logger
}

// RemoteOption configures a Remote embedder.
type RemoteOption func(*Remote)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(e *Remote) { e.client = c }
}

// WithSleeper replaces the function used to wait between retries.
func WithSleeper(s Sleeper) RemoteOption {
	return func(e *Remote) { e.sleep = s }
}

// WithRemoteLogger sets the logger used for retry events.
func WithRemoteLogger(l *zap.Logger) RemoteOption {
	return func(e *Remote) { e.logger = l }
}

// NewRemote creates a remote embedder from cfg. It fails with models.ErrConfiguration
// when no API key can be resolved.
func NewRemote(cfg config.RemoteEmbeddingConfig, opts ...RemoteOption) (*Remote, error) {
	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("%w: no API key for remote embeddings (set %s)", models.ErrConfiguration, cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("%w: remote embeddings need base_url and model", models.ErrConfiguration)
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	backoff := time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	if backoff <= 0 {
		backoff = time.Second
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	e := &Remote{
		client:         &http.Client{Timeout: timeout},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         apiKey,
		model:          cfg.Model,
		limiter:        rate.NewLimiter(limit, burst),
		maxAttempts:    attempts,
		initialBackoff: backoff,
		sleep:          sleepContext,
		logger:         zap.NewNop(),
	}
	e.dimensions.Store(int64(cfg.Dimensions))
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed returns the embedding for a single text.
func (e *Remote) Embed(ctx context.Context, text string) ([]float32, error) {
	embs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// EmbedBatch sends all texts in one request and returns their embeddings in input order.
// A rate-limited request is retried up to the configured attempt count, waiting
// initialBackoff, then twice as long after each further failure.
func (e *Remote) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	backoff := e.initialBackoff
	for attempt := 1; ; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, &models.ProviderError{Provider: remoteProvider, Message: "throttle wait", Cause: err}
		}
		embs, err := e.request(ctx, texts)
		if err == nil {
			return embs, nil
		}
		if !errors.Is(err, errRateLimited) {
			return nil, err
		}
		if attempt >= e.maxAttempts {
			e.logger.Warn("embedding rate limit retries exhausted", zap.Int("attempts", attempt))
			return nil, fmt.Errorf("%w: still rate limited after %d attempts", models.ErrRateLimitExceeded, attempt)
		}
		e.logger.Info("embedding request rate limited, retrying",
			zap.Int("attempt", attempt), zap.Duration("backoff", backoff))
		if err := e.sleep(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
	}
}

func (e *Remote) request(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Input: texts, Model: e.model})
	if err != nil {
		return nil, &models.ProviderError{Provider: remoteProvider, Message: "encode request", Cause: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, &models.ProviderError{Provider: remoteProvider, Message: "build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &models.ProviderError{Provider: remoteProvider, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.ProviderError{Provider: remoteProvider, StatusCode: resp.StatusCode, Message: "read response", Cause: err}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.ProviderError{Provider: remoteProvider, StatusCode: resp.StatusCode, Message: apiErrorMessage(data)}
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &models.ProviderError{Provider: remoteProvider, StatusCode: resp.StatusCode, Message: "decode response", Cause: err}
	}
	if len(parsed.Data) != len(texts) {
		return nil, &models.ProviderError{
			Provider:   remoteProvider,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(parsed.Data)),
		}
	}
	embs := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) || embs[d.Index] != nil {
			return nil, &models.ProviderError{Provider: remoteProvider, StatusCode: resp.StatusCode, Message: fmt.Sprintf("bad embedding index %d", d.Index)}
		}
		if len(d.Embedding) == 0 {
			return nil, &models.ProviderError{Provider: remoteProvider, StatusCode: resp.StatusCode, Message: fmt.Sprintf("empty embedding at index %d", d.Index)}
		}
		embs[d.Index] = d.Embedding
	}
	e.dimensions.Store(int64(len(embs[len(embs)-1])))
	return embs, nil
}

func apiErrorMessage(body []byte) string {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return utils.Truncate(strings.TrimSpace(string(body)), 200)
}

// Dimensions returns the length of the last produced vector.
func (e *Remote) Dimensions() int {
	return int(e.dimensions.Load())
}

// Kind returns KindRemote.
func (e *Remote) Kind() Kind {
	return KindRemote
}

// Close releases idle HTTP connections.
func (e *Remote) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
