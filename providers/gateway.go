package providers

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel error kinds a Gateway.Generate call fails with (§4.A). Callers
// branch on these with errors.Is; wrap the underlying transport/decode
// error so the original cause survives.
var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrAuthRejected        = errors.New("provider rejected credentials")
	ErrRateLimited         = errors.New("provider rate limited the request")
	ErrProtocolError       = errors.New("provider returned a malformed response")
	ErrTimeout             = errors.New("provider call exceeded its time bound")
)

// GatewayError wraps one of the sentinel kinds above with provider context,
// in the teacher's component/operation/message error-struct idiom.
type GatewayError struct {
	Provider  string
	Operation string
	Kind      error // one of the Err* sentinels
	Message   string
	Err       error
	Timestamp time.Time

	// RetryAfter carries a provider-suggested backoff for ErrRateLimited.
	RetryAfter time.Duration
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Provider, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Provider, e.Operation, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Kind
}

// NewGatewayError constructs a GatewayError classified under one of the
// sentinel kinds.
func NewGatewayError(provider, operation string, kind error, message string, err error) *GatewayError {
	return &GatewayError{
		Provider:  provider,
		Operation: operation,
		Kind:      kind,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Gateway is the uniform contract every vendor implementation satisfies:
// given an ordered message list and optional tool schemas, return either a
// final assistant text or a list of tool-call requests.
type Gateway interface {
	// Generate returns the assistant's text, any requested tool calls, and
	// the number of tokens the call consumed.
	Generate(messages []Message, tools []ToolDefinition) (string, []ToolCall, int, error)

	// GenerateStreaming is the incremental variant; the returned channel
	// is closed when generation completes or fails.
	GenerateStreaming(messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error)

	GetModelName() string
	GetMaxTokens() int
	GetTemperature() float64
	Close() error
}
