// Package rerank provides an optional precision boost over hybrid search
// results using an external cross-encoder that scores (query, passage)
// pairs jointly. A reranking outage must never break search: every failure
// path falls back to the original similarity ordering.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/MinuteMind/minute-mvp/engine/domain"
	"github.com/MinuteMind/minute-mvp/pkg/resilience"
)

// MaxCandidates caps how many results are sent to the cross-encoder per
// call, bounding cost and latency.
const MaxCandidates = 50

// Options configures the reranker client.
type Options struct {
	// Endpoint is the cross-encoder HTTP endpoint. Empty disables reranking.
	Endpoint string
	// APIKey is the bearer credential. Empty disables reranking.
	APIKey string
	// RequestsPerSecond bounds outbound calls. Zero means 5 rps.
	RequestsPerSecond float64
}

// Reranker re-scores search candidates through a cross-encoder service.
type Reranker struct {
	opts     Options
	client   *http.Client
	limiter  *resilience.Limiter
	breaker  *resilience.Breaker
	logger   *slog.Logger
	warnOnce sync.Once // one warning for a missing credential, not one per call
}

// New creates a Reranker. Tests reset the one-time warning by constructing
// a fresh instance.
func New(opts Options, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &Reranker{
		opts:    opts,
		client:  &http.Client{},
		limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: rps, Burst: int(rps) + 1}),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		logger:  logger,
	}
}

// Enabled reports whether the cross-encoder is configured.
func (r *Reranker) Enabled() bool {
	return r.opts.Endpoint != "" && r.opts.APIKey != ""
}

type rerankRequest struct {
	Inputs []rerankPair `json:"inputs"`
}

type rerankPair struct {
	Text     string `json:"text"`
	TextPair string `json:"text_pair"`
}

// Rerank re-orders results by cross-encoder score. When the service is not
// configured, unreachable, or returns an unparsable response, the input is
// returned sorted by similarity and truncated to topK instead.
func (r *Reranker) Rerank(ctx context.Context, query string, results []domain.SearchResult, topK int) []domain.SearchResult {
	if len(results) == 0 {
		return results
	}
	if !r.Enabled() {
		r.warnOnce.Do(func() {
			r.logger.Warn("rerank: endpoint or credential not configured, using similarity ordering")
		})
		return fallback(results, topK)
	}

	candidates := results
	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}

	scores, err := r.score(ctx, query, candidates)
	if err != nil {
		r.logger.Warn("rerank: cross-encoder call failed, using similarity ordering", "err", err)
		return fallback(results, topK)
	}

	reranked := make([]domain.SearchResult, len(candidates))
	for i, c := range candidates {
		orig := c.Similarity
		s := scores[i]
		c.OriginalScore = &orig
		c.RerankedScore = &s
		reranked[i] = c
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return *reranked[i].RerankedScore > *reranked[j].RerankedScore
	})
	if topK > 0 && len(reranked) > topK {
		reranked = reranked[:topK]
	}
	return reranked
}

// score calls the cross-encoder with (query, passage) pairs through the
// rate limiter and circuit breaker. Over-rate calls degrade immediately
// instead of queueing on the search latency path.
func (r *Reranker) score(ctx context.Context, query string, candidates []domain.SearchResult) ([]float32, error) {
	if !r.limiter.Allow() {
		return nil, resilience.ErrRateLimited
	}

	var scores []float32
	err := r.breaker.Call(ctx, func(ctx context.Context) error {
		pairs := make([]rerankPair, len(candidates))
		for i, c := range candidates {
			pairs[i] = rerankPair{Text: query, TextPair: c.ContentText}
		}
		body, err := json.Marshal(rerankRequest{Inputs: pairs})
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.Endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+r.opts.APIKey)

		resp, err := r.client.Do(req)
		if err != nil {
			return fmt.Errorf("rerank: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("rerank: status %d", resp.StatusCode)
		}

		var raw json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return fmt.Errorf("rerank decode: %w", err)
		}
		scores, err = parseScores(raw, len(candidates))
		return err
	})
	if err != nil {
		return nil, err
	}
	return scores, nil
}

// parseScores accepts both response shapes the service is known to emit:
// a flat numeric array, or an array of {score} objects.
func parseScores(raw json.RawMessage, want int) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		if len(flat) != want {
			return nil, fmt.Errorf("rerank: got %d scores for %d pairs", len(flat), want)
		}
		return flat, nil
	}

	var objs []struct {
		Score float32 `json:"score"`
	}
	if err := json.Unmarshal(raw, &objs); err != nil {
		return nil, fmt.Errorf("rerank: unrecognised score shape: %w", err)
	}
	if len(objs) != want {
		return nil, fmt.Errorf("rerank: got %d scores for %d pairs", len(objs), want)
	}
	scores := make([]float32, len(objs))
	for i, o := range objs {
		scores[i] = o.Score
	}
	return scores, nil
}

// fallback is the strictly simpler degraded behaviour: original similarity
// ordering, truncated to topK.
func fallback(results []domain.SearchResult, topK int) []domain.SearchResult {
	out := make([]domain.SearchResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
