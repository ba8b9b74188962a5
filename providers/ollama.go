package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meshcrew/groupchat/config"
)

// OllamaGateway implements Gateway over Ollama's /api/chat endpoint (which,
// unlike the legacy /api/generate path the teacher's ollama.go used, carries
// native tool-call support). Adapted from llms/ollama.go's request-shape
// and streaming-NDJSON-decode idiom.
type OllamaGateway struct {
	cfg    *config.LLMProviderConfig
	client *http.Client
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaChatRequest struct {
	Model    string               `json:"model"`
	Messages []ollamaChatMessage  `json:"messages"`
	Stream   bool                 `json:"stream"`
	Tools    []ollamaTool         `json:"tools,omitempty"`
	Options  map[string]any       `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	// Ollama reports counts, not a combined "total tokens"; we sum them for
	// the uniform Gateway contract.
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// NewOllamaGateway constructs an OllamaGateway from resolved config.
func NewOllamaGateway(cfg *config.LLMProviderConfig) (*OllamaGateway, error) {
	return &OllamaGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

func (g *OllamaGateway) GetModelName() string   { return g.cfg.Model }
func (g *OllamaGateway) GetMaxTokens() int       { return g.cfg.MaxTokens }
func (g *OllamaGateway) GetTemperature() float64 { return g.cfg.Temperature }
func (g *OllamaGateway) Close() error            { return nil }

func (g *OllamaGateway) buildRequest(messages []Message, stream bool, tools []ToolDefinition) ollamaChatRequest {
	converted := make([]ollamaChatMessage, 0, len(messages))
	for _, msg := range messages {
		m := ollamaChatMessage{Role: msg.Role, Content: msg.Content}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, ollamaToolCall{Function: ollamaFunctionCall{Name: tc.Name, Arguments: tc.Arguments}})
		}
		converted = append(converted, m)
	}

	req := ollamaChatRequest{
		Model:    g.cfg.Model,
		Messages: converted,
		Stream:   stream,
		Options: map[string]any{
			"temperature": g.cfg.Temperature,
			"num_predict": g.cfg.MaxTokens,
		},
	}
	if len(tools) > 0 {
		ts := make([]ollamaTool, len(tools))
		for i, t := range tools {
			ts[i] = ollamaTool{Type: "function", Function: ollamaToolFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters}}
		}
		req.Tools = ts
	}
	return req
}

func (g *OllamaGateway) Generate(messages []Message, tools []ToolDefinition) (string, []ToolCall, int, error) {
	req := g.buildRequest(messages, false, tools)

	body, err := json.Marshal(req)
	if err != nil {
		return "", nil, 0, NewGatewayError("ollama", "Generate", ErrProtocolError, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, g.cfg.Host+"/api/chat", bytes.NewBuffer(body))
	if err != nil {
		return "", nil, 0, NewGatewayError("ollama", "Generate", ErrProviderUnavailable, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", nil, 0, NewGatewayError("ollama", "Generate", ErrProviderUnavailable, "transport error", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", nil, 0, NewGatewayError("ollama", "Generate", ErrProviderUnavailable, fmt.Sprintf("status %d: %s", resp.StatusCode, data), nil)
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", nil, 0, NewGatewayError("ollama", "Generate", ErrProtocolError, "failed to decode response", err)
	}

	calls := make([]ToolCall, 0, len(parsed.Message.ToolCalls))
	for _, tc := range parsed.Message.ToolCalls {
		raw, _ := json.Marshal(tc.Function.Arguments)
		calls = append(calls, ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments, RawArgs: string(raw)})
	}

	return parsed.Message.Content, calls, parsed.PromptEvalCount + parsed.EvalCount, nil
}

func (g *OllamaGateway) GenerateStreaming(messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
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

func (g *OllamaGateway) streamRequest(req ollamaChatRequest, out chan<- StreamChunk) error {
	body, err := json.Marshal(req)
	if err != nil {
		return NewGatewayError("ollama", "GenerateStreaming", ErrProtocolError, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, g.cfg.Host+"/api/chat", bytes.NewBuffer(body))
	if err != nil {
		return NewGatewayError("ollama", "GenerateStreaming", ErrProviderUnavailable, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return NewGatewayError("ollama", "GenerateStreaming", ErrProviderUnavailable, "transport error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return NewGatewayError("ollama", "GenerateStreaming", ErrProviderUnavailable, fmt.Sprintf("status %d: %s", resp.StatusCode, data), nil)
	}

	decoder := json.NewDecoder(resp.Body)
	totalTokens := 0
	for {
		var chunk ollamaChatResponse
		if err := decoder.Decode(&chunk); err != nil {
			if err == io.EOF {
				break
			}
			return NewGatewayError("ollama", "GenerateStreaming", ErrProtocolError, "failed to decode streaming chunk", err)
		}
		if chunk.Message.Content != "" {
			out <- StreamChunk{Type: "text", Text: chunk.Message.Content}
		}
		for _, tc := range chunk.Message.ToolCalls {
			raw, _ := json.Marshal(tc.Function.Arguments)
			out <- StreamChunk{Type: "tool_call", ToolCall: &ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments, RawArgs: string(raw)}}
		}
		if chunk.Done {
			totalTokens = chunk.PromptEvalCount + chunk.EvalCount
			break
		}
	}
	out <- StreamChunk{Type: "done", Tokens: totalTokens}
	return nil
}
