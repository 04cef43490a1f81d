package llm

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/genai"

	"SignalForge/pkg/logger"
)

// RetryPolicy governs transport retries inside a single Complete call.
// Rate-limit errors honour the provider's suggested delay.
type RetryPolicy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

func DefaultRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:        maxRetries,
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2,
	}
}

// StatusCode returns the HTTP status carried by a provider SDK error.
func StatusCode(err error) (int, bool) {
	var gv genai.APIError
	if errors.As(err, &gv) {
		return gv.Code, true
	}
	var gp *genai.APIError
	if errors.As(err, &gp) && gp != nil {
		return gp.Code, true
	}
	var ae *anthropic.Error
	if errors.As(err, &ae) && ae != nil {
		return ae.StatusCode, true
	}
	return 0, false
}

// Status words for errors that reach us without a typed status, such as
// streamed or proxied failures.
var (
	rateLimitMarkers = []string{"RESOURCE_EXHAUSTED", "rate_limit_error", "quota"}
	finalMarkers     = []string{
		"PERMISSION_DENIED", "UNAUTHENTICATED", "INVALID_ARGUMENT", "API_KEY_INVALID", "NOT_FOUND",
		"authentication_error", "permission_error", "invalid_request_error", "not_found_error", "invalid x-api-key",
	}
)

// IsRateLimitError matches 429 and quota exhaustion errors from either provider.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := StatusCode(err); ok {
		return code == http.StatusTooManyRequests
	}
	return containsAny(err.Error(), rateLimitMarkers)
}

// IsRetryable reports whether another attempt could succeed. Auth and
// request-shape errors are final; timeouts, conflicts, rate limits and
// server errors are retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := StatusCode(err); ok {
		switch {
		case code == http.StatusRequestTimeout, code == http.StatusConflict, code == http.StatusTooManyRequests:
			return true
		case code >= 400 && code < 500:
			return false
		}
		return true
	}
	s := err.Error()
	if containsAny(s, rateLimitMarkers) {
		return true
	}
	return !containsAny(s, finalMarkers)
}

func containsAny(s string, subs []string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s"]+)(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses "Please retry in 12.5s" style hints. Zero when absent.
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}
	m := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(m) < 2 {
		return 0
	}
	secs, perr := strconv.ParseFloat(m[1], 64)
	if perr != nil {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// Backoff computes the wait before retry number attempt (0-based).
func (p RetryPolicy) Backoff(attempt int, apiDelay time.Duration) time.Duration {
	base := p.InitialBackoff
	if apiDelay > 0 {
		base = apiDelay + time.Second
	}
	mult := 1.0
	for i := 0; i < attempt; i++ {
		mult *= p.BackoffMultiplier
	}
	d := time.Duration(float64(base) * mult)
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// do runs fn until it succeeds, fails permanently, or retries run out.
func do[T any](ctx context.Context, p RetryPolicy, log *logger.Logger, provider string, fn func(context.Context) (T, error)) (T, error) {
	var (
		out T
		err error
	)
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		out, err = fn(ctx)
		if err == nil || !IsRetryable(err) || attempt == p.MaxRetries {
			return out, err
		}
		var apiDelay time.Duration
		if IsRateLimitError(err) {
			apiDelay = ExtractRetryDelay(err)
		}
		wait := p.Backoff(attempt, apiDelay)
		log.Warn("retrying llm call",
			logger.String("provider", provider),
			logger.Int("attempt", attempt+1),
			logger.Duration("backoff_ms", wait),
			logger.Error(err),
		)
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(wait):
		}
	}
	return out, err
}
