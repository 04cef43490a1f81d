package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
llm:
  provider: gemini
gemini:
  api_key: g-key
`

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte(minimal), nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 3, c.Server.RateBurst)
	assert.Equal(t, 2048, c.LLM.Stage1.MaxTokens)
	assert.Equal(t, 1024, c.LLM.Stage1.ReasoningBudget)
	assert.Equal(t, 0, c.LLM.Stage3.ReasoningBudget)
	assert.Equal(t, 3, c.Pipeline.FallbackQueries)
	assert.Equal(t, 90*time.Second, c.Pipeline.Stage2Timeout)
	assert.Equal(t, "gemini-2.5-flash", c.ModelName())
}

func TestParse_EnvOverrides(t *testing.T) {
	env := map[string]string{
		"LLM_PROVIDER":      "claude",
		"ANTHROPIC_API_KEY": "a-key",
		"KAFKA_BROKERS":     "k1:9092,k2:9092",
		"REDIS_ADDR":        "cache:6380",
	}
	c, err := Parse([]byte(minimal), func(k string) string { return env[k] })
	require.NoError(t, err)

	assert.Equal(t, "claude", c.LLM.Provider)
	assert.Equal(t, "a-key", c.Claude.APIKey)
	assert.Equal(t, "claude-sonnet-4-5", c.ModelName())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "cache", c.Redis.Host)
	assert.Equal(t, 6380, c.Redis.Port)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing provider key", "llm:\n  provider: claude\n"},
		{"unknown provider", "llm:\n  provider: mistral\ngemini:\n  api_key: k\n"},
		{"kafka without brokers", minimal + "kafka:\n  enabled: true\n  brokers: []\n"},
		{"stage3 thinks more than stage1", "llm:\n  stage1: {max_tokens: 2048, reasoning_budget: 0}\n  stage3: {max_tokens: 2048, reasoning_budget: 512}\ngemini:\n  api_key: k\n"},
		{"fallback cap exceeded", minimal + "pipeline:\n  fallback_queries: 5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), nil)
			assert.Error(t, err)
		})
	}
}
