package httpclient

import "time"

// RateLimitInfo holds the rate-limit accounting a vendor exposes on its
// response headers, used to size the next backoff delay beyond a bare
// retry-after value.
type RateLimitInfo struct {
	RetryAfter            time.Duration
	ResetTime             int64
	RequestsRemaining     int
	InputTokensRemaining  int
	OutputTokensRemaining int
	TokensRemaining       int
}
