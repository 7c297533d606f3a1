package session

import (
	"context"
	"errors"
	"fmt"
)

type Provider string

const (
	GPT    Provider = "gpt"
	Claude Provider = "claude"
)

// ErrNoSession means a thread has no stored configuration, typically after a restart.
var ErrNoSession = errors.New("no active session for thread")

// Config is the model configuration chosen when a thread is created. It is never
// modified afterwards.
type Config struct {
	Provider    Provider `json:"provider"`
	Model       string   `json:"model"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	MaxTokens   int      `json:"max_tokens"`
	// Claude threads only
	SystemPrompt *string `json:"system_prompt,omitempty"`
}

// Store maps a thread id to its Config. Only thread creation writes.
type Store interface {
	Set(ctx context.Context, threadID string, cfg Config) error
	Get(ctx context.Context, threadID string) (Config, error)
}

func missing(threadID string) error {
	return fmt.Errorf("%w: %s", ErrNoSession, threadID)
}
