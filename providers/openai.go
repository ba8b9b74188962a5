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

// OpenAIGateway implements Gateway for OpenAI's chat-completions API.
// Adapted from llms/openai.go.
type OpenAIGateway struct {
	cfg    *config.LLMProviderConfig
	client *http.Client
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
	Stream      bool            `json:"stream"`
	Tools       []openAITool    `json:"tools,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIStreamResponse struct {
	Choices []openAIStreamChoice `json:"choices"`
	Usage   *openAIUsage         `json:"usage,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIStreamChoice struct {
	Delta        openAIDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type openAIDelta struct {
	Content   string           `json:"content,omitempty"`
	ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIToolCall struct {
	Index    *int               `json:"index,omitempty"`
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NewOpenAIGateway constructs an OpenAIGateway from resolved config.
func NewOpenAIGateway(cfg *config.LLMProviderConfig) (*OpenAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for openai")
	}
	return &OpenAIGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

func (g *OpenAIGateway) GetModelName() string   { return g.cfg.Model }
func (g *OpenAIGateway) GetMaxTokens() int       { return g.cfg.MaxTokens }
func (g *OpenAIGateway) GetTemperature() float64 { return g.cfg.Temperature }
func (g *OpenAIGateway) Close() error            { return nil }

func (g *OpenAIGateway) Generate(messages []Message, tools []ToolDefinition) (string, []ToolCall, int, error) {
	req := g.buildRequest(messages, false, tools)

	resp, err := g.makeRequest(req)
	if err != nil {
		return "", nil, 0, err
	}
	if resp.Error != nil {
		return "", nil, 0, NewGatewayError("openai", "Generate", ErrProtocolError, resp.Error.Message, nil)
	}
	if len(resp.Choices) == 0 {
		return "", nil, 0, NewGatewayError("openai", "Generate", ErrProtocolError, "no choices in response", nil)
	}

	choice := resp.Choices[0]
	calls := make([]ToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		calls = append(calls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args, RawArgs: tc.Function.Arguments})
	}
	return choice.Message.Content, calls, resp.Usage.TotalTokens, nil
}

func (g *OpenAIGateway) GenerateStreaming(messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
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

func (g *OpenAIGateway) buildRequest(messages []Message, stream bool, tools []ToolDefinition) openAIRequest {
	converted := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		m := openAIMessage{Role: msg.Role, Content: msg.Content, ToolCallID: msg.ToolCallID}
		for _, tc := range msg.ToolCalls {
			argsJSON, _ := json.Marshal(tc.Arguments)
			m.ToolCalls = append(m.ToolCalls, openAIToolCall{
				ID: tc.ID, Type: "function",
				Function: openAIFunctionCall{Name: tc.Name, Arguments: string(argsJSON)},
			})
		}
		converted = append(converted, m)
	}

	req := openAIRequest{
		Model:       g.cfg.Model,
		Messages:    converted,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Stream:      stream,
	}
	if len(tools) > 0 {
		ts := make([]openAITool, len(tools))
		for i, t := range tools {
			ts[i] = openAITool{Type: "function", Function: openAIToolFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters}}
		}
		req.Tools = ts
	}
	return req
}

func (g *OpenAIGateway) makeRequest(req openAIRequest) (*openAIResponse, error) {
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
		time.Sleep(time.Duration(math.Pow(2, float64(attempt))) * baseDelay)
	}
	return nil, lastErr
}

func (g *OpenAIGateway) attempt(req openAIRequest) (*openAIResponse, bool, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, false, NewGatewayError("openai", "Generate", ErrProtocolError, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, g.cfg.Host+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return nil, false, NewGatewayError("openai", "Generate", ErrProviderUnavailable, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, true, NewGatewayError("openai", "Generate", ErrProviderUnavailable, "transport error", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		var parsed openAIResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, false, NewGatewayError("openai", "Generate", ErrProtocolError, "failed to decode response", err)
		}
		return &parsed, false, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, false, NewGatewayError("openai", "Generate", ErrAuthRejected, string(data), nil)
	case http.StatusTooManyRequests:
		retryAfter := httpclient.ParseOpenAIRateLimitHeaders(resp.Header).RetryAfter
		ge := NewGatewayError("openai", "Generate", ErrRateLimited, string(data),
			&httpclient.RetryableError{StatusCode: resp.StatusCode, Message: string(data), RetryAfter: retryAfter})
		ge.RetryAfter = retryAfter
		return nil, true, ge
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return nil, true, NewGatewayError("openai", "Generate", ErrTimeout, string(data),
			&httpclient.RetryableError{StatusCode: resp.StatusCode, Message: string(data)})
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return nil, true, NewGatewayError("openai", "Generate", ErrProviderUnavailable, string(data),
			&httpclient.RetryableError{StatusCode: resp.StatusCode, Message: string(data)})
	default:
		return nil, false, NewGatewayError("openai", "Generate", ErrProtocolError, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, data), nil)
	}
}

func (g *OpenAIGateway) streamRequest(req openAIRequest, out chan<- StreamChunk) error {
	body, err := json.Marshal(req)
	if err != nil {
		return NewGatewayError("openai", "GenerateStreaming", ErrProtocolError, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, g.cfg.Host+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return NewGatewayError("openai", "GenerateStreaming", ErrProviderUnavailable, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return NewGatewayError("openai", "GenerateStreaming", ErrProviderUnavailable, "transport error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return NewGatewayError("openai", "GenerateStreaming", ErrProtocolError, fmt.Sprintf("status %d: %s", resp.StatusCode, data), nil)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	// Tool-call argument fragments stream in by index; accumulate until the
	// stream signals completion.
	pendingByIndex := map[int]*ToolCall{}
	pendingArgs := map[int]*strings.Builder{}
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

		var chunk openAIStreamResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			totalTokens = chunk.Usage.TotalTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			out <- StreamChunk{Type: "text", Text: choice.Delta.Content}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			if _, ok := pendingByIndex[idx]; !ok {
				pendingByIndex[idx] = &ToolCall{ID: tc.ID, Name: tc.Function.Name}
				pendingArgs[idx] = &strings.Builder{}
			}
			pendingArgs[idx].WriteString(tc.Function.Arguments)
		}
		if choice.FinishReason == "tool_calls" {
			for idx, call := range pendingByIndex {
				raw := pendingArgs[idx].String()
				var args map[string]any
				_ = json.Unmarshal([]byte(raw), &args)
				call.Arguments = args
				call.RawArgs = raw
				out <- StreamChunk{Type: "tool_call", ToolCall: call}
			}
		}
	}
	out <- StreamChunk{Type: "done", Tokens: totalTokens}
	return scanner.Err()
}
