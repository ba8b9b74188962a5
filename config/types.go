// Package config provides the YAML-backed configuration for the group-chat
// orchestration core: provider endpoints, agents, and groups.
package config

import (
	"fmt"

	"github.com/meshcrew/groupchat/groupchat"
)

// ============================================================================
// PROVIDER CONFIGURATIONS
// ============================================================================

// ProviderConfigs holds every language-model provider endpoint a gateway
// can be constructed from, keyed by provider_id.
type ProviderConfigs struct {
	LLMs map[string]LLMProviderConfig `yaml:"llms,omitempty"`
}

// Validate implements the teacher's Validate()-per-section idiom.
func (c *ProviderConfigs) Validate() error {
	for name, llm := range c.LLMs {
		if err := llm.Validate(); err != nil {
			return fmt.Errorf("LLM provider '%s' validation failed: %w", name, err)
		}
	}
	return nil
}

// SetDefaults fills in zero-config fallbacks for every provider.
func (c *ProviderConfigs) SetDefaults() {
	for name := range c.LLMs {
		llm := c.LLMs[name]
		llm.SetDefaults()
		c.LLMs[name] = llm
	}
}

// LLMProviderConfig is one provider endpoint: type, model, credentials,
// and the retry/timeout envelope the gateway enforces.
type LLMProviderConfig struct {
	Type        string  `yaml:"type"` // "anthropic", "openai", "ollama"
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Host        string  `yaml:"host"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     int     `yaml:"timeout"` // seconds
	MaxRetries  int     `yaml:"max_retries"`
	RetryDelay  int     `yaml:"retry_delay"` // seconds, base delay before backoff
}

// Validate implements Config.Validate for LLMProviderConfig.
func (c *LLMProviderConfig) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("type is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Type == "openai" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for openai")
	}
	if c.Type == "anthropic" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for anthropic")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for LLMProviderConfig.
func (c *LLMProviderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "ollama"
	}
	if c.Host == "" {
		switch c.Type {
		case "openai":
			c.Host = "https://api.openai.com/v1"
		case "anthropic":
			c.Host = "https://api.anthropic.com"
		default:
			c.Host = "http://localhost:11434"
		}
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 120
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2
	}
}

// ============================================================================
// LOGGING / PERFORMANCE (ambient)
// ============================================================================

// LoggingConfig controls the slog setup in package logging and the
// process-wide trace sampling rate.
type LoggingConfig struct {
	Level        string  `yaml:"level"`  // debug, info, warn, error
	Format       string  `yaml:"format"` // simple, verbose
	File         string  `yaml:"file,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty"` // trace sampling, 0..1
}

// SetDefaults fills in zero-config fallbacks.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 0.1
	}
}

// ============================================================================
// ROOT DOCUMENT
// ============================================================================

// Config is the root configuration document: providers plus every agent
// and group this deployment knows about.
type Config struct {
	Providers ProviderConfigs                `yaml:"providers"`
	Agents    map[string]groupchat.AgentConfig  `yaml:"agents"`
	Groups    map[string]groupchat.GroupConfig  `yaml:"groups"`
	Logging   LoggingConfig                  `yaml:"logging"`
}

// SetDefaults applies zero-config fallbacks across the whole document.
func (c *Config) SetDefaults() {
	c.Providers.SetDefaults()
	for id, agent := range c.Agents {
		agent.SetDefaults()
		c.Agents[id] = agent
	}
	c.Logging.SetDefaults()
}

// Validate checks the whole document, including cross-references between
// groups and the agents/providers they name.
func (c *Config) Validate() error {
	if err := c.Providers.Validate(); err != nil {
		return err
	}
	for id, agent := range c.Agents {
		if err := agent.Validate(); err != nil {
			return fmt.Errorf("agent '%s': %w", id, err)
		}
		if _, ok := c.Providers.LLMs[agent.ProviderID]; !ok {
			return fmt.Errorf("agent '%s' references unknown provider '%s'", id, agent.ProviderID)
		}
	}
	for id, group := range c.Groups {
		if err := group.Validate(); err != nil {
			return fmt.Errorf("group '%s': %w", id, err)
		}
		if _, ok := c.Agents[group.SupervisorID]; !ok {
			return fmt.Errorf("group '%s' references unknown supervisor agent '%s'", id, group.SupervisorID)
		}
	}
	return nil
}
