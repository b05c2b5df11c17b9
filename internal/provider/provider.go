// Package provider implements LLM provider interfaces and clients.
package provider

import (
	"context"
)

// Generator is the interface for LLM text generation clients.
type Generator interface {
	// Generate sends a completion request and returns the response.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	// DefaultModel returns the configured default model.
	DefaultModel() string
}

// GenerateRequest contains the parameters for a completion request.
type GenerateRequest struct {
	System      string
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// GenerateResponse contains the response from a completion request.
type GenerateResponse struct {
	Text         string
	FinishReason string
	Usage        Usage
}

// Usage contains token usage information.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Add accumulates another usage record into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}
