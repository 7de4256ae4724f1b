// Package openai adapts the OpenAI API to the transcription, dialogue and
// speech ports. All adapters share one SDK client.
package openai

import (
	goopenai "github.com/sashabaranov/go-openai"
)

// NewClient builds an SDK client, optionally pointed at a compatible
// gateway via baseURL.
func NewClient(apiKey string, baseURL string) *goopenai.Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return goopenai.NewClientWithConfig(cfg)
}
