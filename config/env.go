package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

// ============================================================================
// ENVIRONMENT VARIABLE UTILITIES
// ============================================================================

var envVarPatterns = struct {
	withDefault *regexp.Regexp // ${VAR:-default}
	braced      *regexp.Regexp // ${VAR}
	simple      *regexp.Regexp // $VAR
}{
	withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
	braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
	simple:      regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
}

// ExpandEnvVars expands ${VAR:-default}, ${VAR}, and $VAR references in a
// string. Secrets (API keys) are resolved this way so they never need to be
// embedded in the YAML document itself (§4.A).
func ExpandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if len(parts) == 3 {
			if val := os.Getenv(parts[1]); val != "" {
				return val
			}
			return parts[2]
		}
		return match
	})

	s = envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.braced.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	s = envVarPatterns.simple.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.simple.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	return s
}

// ExpandConfig walks every LLM provider's APIKey/Host and expands env
// references in place.
func ExpandConfig(c *Config) {
	for name, llm := range c.Providers.LLMs {
		llm.APIKey = ExpandEnvVars(llm.APIKey)
		llm.Host = ExpandEnvVars(llm.Host)
		c.Providers.LLMs[name] = llm
	}
}

// LoadEnvFiles loads environment variables from .env.local and then .env.
// godotenv.Load never overrides a variable that is already set, so the
// effective priority is: system environment (highest) → .env.local → .env
// (lowest).
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}
