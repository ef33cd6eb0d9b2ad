package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// maxBatch is the largest token list sent in one gateway request.
const maxBatch = 500

// HTTPSender posts messages to a push gateway as JSON and expects a Result
// back. Requests are rate limited so a large fan-out cannot flood the gateway.
type HTTPSender struct {
	url     string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPSender returns a sender for the gateway at url. ratePerSec <= 0
// disables rate limiting.
func NewHTTPSender(url, apiKey string, ratePerSec float64) *HTTPSender {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &HTTPSender{
		url:     url,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Send splits the tokens into batches and posts each one. A failed batch
// counts all of its tokens as failures; the first error is returned after
// every batch has been attempted.
func (s *HTTPSender) Send(ctx context.Context, msg Message) (Result, error) {
	var (
		total    Result
		firstErr error
	)
	for start := 0; start < len(msg.Tokens); start += maxBatch {
		end := min(start+maxBatch, len(msg.Tokens))
		batch := msg
		batch.Tokens = msg.Tokens[start:end]

		res, err := s.sendBatch(ctx, batch)
		if err != nil {
			total.FailureCount += len(batch.Tokens)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total.SuccessCount += res.SuccessCount
		total.FailureCount += res.FailureCount
	}
	return total, firstErr
}

func (s *HTTPSender) sendBatch(ctx context.Context, msg Message) (Result, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("push.HTTPSender.Send: rate limit: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return Result{}, fmt.Errorf("push.HTTPSender.Send: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("push.HTTPSender.Send: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("push.HTTPSender.Send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("push.HTTPSender.Send: gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("push.HTTPSender.Send: decode response: %w", err)
	}
	return res, nil
}
