package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseOpenAIRateLimitHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "5")
	h.Set("x-ratelimit-remaining-requests", "42")
	h.Set("x-ratelimit-remaining-tokens", "1000")

	info := ParseOpenAIRateLimitHeaders(h)
	assert.Equal(t, 5*time.Second, info.RetryAfter)
	assert.Equal(t, 42, info.RequestsRemaining)
	assert.Equal(t, 1000, info.TokensRemaining)
}

func TestParseAnthropicRateLimitHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("retry-after", "3")
	h.Set("anthropic-ratelimit-input-tokens-remaining", "500")
	h.Set("anthropic-ratelimit-output-tokens-remaining", "250")

	info := ParseAnthropicRateLimitHeaders(h)
	assert.Equal(t, 3*time.Second, info.RetryAfter)
	assert.Equal(t, 500, info.InputTokensRemaining)
	assert.Equal(t, 250, info.OutputTokensRemaining)
}

func TestParseOpenAIRateLimitHeaders_MissingHeadersYieldZeroValue(t *testing.T) {
	info := ParseOpenAIRateLimitHeaders(http.Header{})
	assert.Zero(t, info.RetryAfter)
	assert.Zero(t, info.RequestsRemaining)
}

func TestRetryableError_MessageIncludesRetryAfterWhenSet(t *testing.T) {
	err := &RetryableError{StatusCode: 429, Message: "slow down", RetryAfter: 2 * time.Second}
	assert.Contains(t, err.Error(), "retry after")
	assert.True(t, err.IsRetryable())

	withoutDelay := &RetryableError{StatusCode: 500, Message: "oops"}
	assert.NotContains(t, withoutDelay.Error(), "retry after")
}
