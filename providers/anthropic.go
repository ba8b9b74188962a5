package providers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/meshcrew/groupchat/config"
	"github.com/meshcrew/groupchat/internal/httpclient"
)

// AnthropicGateway implements Gateway for Anthropic's Messages API.
// Adapted from llms/anthropic.go: the wire shapes are intrinsic to the
// vendor's API and carried over nearly unchanged; error handling is
// rewired onto the sentinel Err* kinds this module classifies providers
// under.
type AnthropicGateway struct {
	cfg    *config.LLMProviderConfig
	client *http.Client
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream"`
	System      string             `json:"system,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
	Error      *anthropicError    `json:"error,omitempty"`
}

type anthropicStreamEvent struct {
	Type         string             `json:"type"`
	Delta        *anthropicDelta    `json:"delta,omitempty"`
	ContentBlock *anthropicContent  `json:"content_block,omitempty"`
	Message      *anthropicResponse `json:"message,omitempty"`
	Usage        *anthropicUsage    `json:"usage,omitempty"`
}

type anthropicContent struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type anthropicDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAnthropicGateway constructs an AnthropicGateway from resolved config.
func NewAnthropicGateway(cfg *config.LLMProviderConfig) (*AnthropicGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for anthropic")
	}
	return &AnthropicGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

func (g *AnthropicGateway) GetModelName() string     { return g.cfg.Model }
func (g *AnthropicGateway) GetMaxTokens() int         { return g.cfg.MaxTokens }
func (g *AnthropicGateway) GetTemperature() float64   { return g.cfg.Temperature }
func (g *AnthropicGateway) Close() error              { return nil }

// Generate implements Gateway.
func (g *AnthropicGateway) Generate(messages []Message, tools []ToolDefinition) (string, []ToolCall, int, error) {
	req := g.buildRequest(messages, false, tools)

	resp, err := g.makeRequest(req)
	if err != nil {
		return "", nil, 0, err
	}
	if resp.Error != nil {
		return "", nil, 0, NewGatewayError("anthropic", "Generate", ErrProtocolError, resp.Error.Message, nil)
	}

	tokens := resp.Usage.InputTokens + resp.Usage.OutputTokens
	var text string
	var calls []ToolCall
	for _, c := range resp.Content {
		switch c.Type {
		case "text":
			text += c.Text
		case "tool_use":
			rawArgs, _ := json.Marshal(c.Input)
			calls = append(calls, ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Input, RawArgs: string(rawArgs)})
		}
	}
	return text, calls, tokens, nil
}

// GenerateStreaming implements Gateway.
func (g *AnthropicGateway) GenerateStreaming(messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	req := g.buildRequest(messages, true, tools)
	out := make(chan StreamChunk, 64)

	go func() {
		defer close(out)
		if err := g.streamRequest(req, out); err != nil {
			out <- StreamChunk{Type: "error", Error: err}
		}
	}()

	return out, nil
}

func (g *AnthropicGateway) buildRequest(messages []Message, stream bool, tools []ToolDefinition) anthropicRequest {
	var system string
	converted := make([]anthropicMessage, 0, len(messages))

	for _, msg := range messages {
		switch {
		case msg.Role == "system":
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case msg.Role == "tool":
			converted = append(converted, anthropicMessage{
				Role: "user",
				Content: []anthropicContent{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})
		case msg.Role == "assistant" && len(msg.ToolCalls) > 0:
			blocks := []anthropicContent{}
			if msg.Content != "" {
				blocks = append(blocks, anthropicContent{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropicContent{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Arguments})
			}
			converted = append(converted, anthropicMessage{Role: "assistant", Content: blocks})
		default:
			converted = append(converted, anthropicMessage{Role: msg.Role, Content: msg.Content})
		}
	}

	req := anthropicRequest{
		Model:       g.cfg.Model,
		Messages:    converted,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Stream:      stream,
		System:      system,
	}
	if len(tools) > 0 {
		ts := make([]anthropicTool, len(tools))
		for i, t := range tools {
			ts[i] = anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters}
		}
		req.Tools = ts
	}
	return req
}

func (g *AnthropicGateway) makeRequest(req anthropicRequest) (*anthropicResponse, error) {
	maxRetries := g.cfg.MaxRetries
	baseDelay := time.Duration(g.cfg.RetryDelay) * time.Second

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, retryable, err := g.attempt(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable || attempt >= maxRetries {
			return nil, err
		}
		delay := time.Duration(math.Pow(2, float64(attempt))) * baseDelay
		time.Sleep(delay)
	}
	return nil, lastErr
}

func (g *AnthropicGateway) attempt(req anthropicRequest) (*anthropicResponse, bool, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, false, NewGatewayError("anthropic", "Generate", ErrProtocolError, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, g.cfg.Host+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return nil, false, NewGatewayError("anthropic", "Generate", ErrProviderUnavailable, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", g.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if urlErr, ok := err.(interface{ Timeout() bool }); ok && urlErr.Timeout() {
			return nil, false, NewGatewayError("anthropic", "Generate", ErrTimeout, "request timed out", err)
		}
		return nil, true, NewGatewayError("anthropic", "Generate", ErrProviderUnavailable, "transport error", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		var parsed anthropicResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, false, NewGatewayError("anthropic", "Generate", ErrProtocolError, "failed to decode response", err)
		}
		return &parsed, false, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, false, NewGatewayError("anthropic", "Generate", ErrAuthRejected, string(data), nil)
	case http.StatusTooManyRequests:
		retryAfter := httpclient.ParseAnthropicRateLimitHeaders(resp.Header).RetryAfter
		ge := NewGatewayError("anthropic", "Generate", ErrRateLimited, string(data),
			&httpclient.RetryableError{StatusCode: resp.StatusCode, Message: string(data), RetryAfter: retryAfter})
		ge.RetryAfter = retryAfter
		return nil, true, ge
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return nil, true, NewGatewayError("anthropic", "Generate", ErrTimeout, string(data),
			&httpclient.RetryableError{StatusCode: resp.StatusCode, Message: string(data)})
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return nil, true, NewGatewayError("anthropic", "Generate", ErrProviderUnavailable, string(data),
			&httpclient.RetryableError{StatusCode: resp.StatusCode, Message: string(data)})
	default:
		return nil, false, NewGatewayError("anthropic", "Generate", ErrProtocolError, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, data), nil)
	}
}

func (g *AnthropicGateway) streamRequest(req anthropicRequest, out chan<- StreamChunk) error {
	body, err := json.Marshal(req)
	if err != nil {
		return NewGatewayError("anthropic", "GenerateStreaming", ErrProtocolError, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, g.cfg.Host+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return NewGatewayError("anthropic", "GenerateStreaming", ErrProviderUnavailable, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", g.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return NewGatewayError("anthropic", "GenerateStreaming", ErrProviderUnavailable, "transport error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return NewGatewayError("anthropic", "GenerateStreaming", ErrProtocolError, fmt.Sprintf("status %d: %s", resp.StatusCode, data), nil)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pendingToolID, pendingToolName string
	var pendingArgsJSON strings.Builder
	totalTokens := 0

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var evt anthropicStreamEvent
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			continue
		}

		switch evt.Type {
		case "content_block_start":
			if evt.ContentBlock != nil && evt.ContentBlock.Type == "tool_use" {
				pendingToolID = evt.ContentBlock.ID
				pendingToolName = evt.ContentBlock.Name
				pendingArgsJSON.Reset()
			}
		case "content_block_delta":
			if evt.Delta == nil {
				continue
			}
			switch evt.Delta.Type {
			case "text_delta":
				out <- StreamChunk{Type: "text", Text: evt.Delta.Text}
			case "input_json_delta":
				pendingArgsJSON.WriteString(evt.Delta.PartialJSON)
			}
		case "content_block_stop":
			if pendingToolName != "" {
				var args map[string]any
				_ = json.Unmarshal([]byte(pendingArgsJSON.String()), &args)
				out <- StreamChunk{Type: "tool_call", ToolCall: &ToolCall{
					ID: pendingToolID, Name: pendingToolName, Arguments: args, RawArgs: pendingArgsJSON.String(),
				}}
				pendingToolName = ""
			}
		case "message_delta":
			if evt.Usage != nil {
				totalTokens = evt.Usage.InputTokens + evt.Usage.OutputTokens
			}
		case "message_stop":
			out <- StreamChunk{Type: "done", Tokens: totalTokens}
		}
	}
	return scanner.Err()
}
