package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/suPer8Hu/comet/internal/chat"
	"github.com/suPer8Hu/comet/internal/session"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider calls the messages endpoint. The thread's system prompt travels in
// the top-level system field, never in the message list.
type AnthropicProvider struct {
	BaseURL string
	APIKey  string
	BotName string
	Client  *http.Client
	Output  *OutputModeration
}

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicReq struct {
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	System      string         `json:"system,omitempty"`
	Messages    []anthropicMsg `json:"messages"`
	Temperature float64        `json:"temperature"`
	TopP        float64        `json:"top_p"`
}

type anthropicResp struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewAnthropicProvider(baseURL, apiKey, botName string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	return &AnthropicProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		BotName: botName,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (p *AnthropicProvider) Complete(ctx context.Context, history []chat.Message, cfg session.Config) Outcome {
	text, err := p.chat(ctx, history, cfg)
	if err != nil {
		return Failure(err)
	}
	return p.Output.check(ctx, session.Claude, Success(text))
}

func (p *AnthropicProvider) chat(ctx context.Context, history []chat.Message, cfg session.Config) (string, error) {
	if p.Client == nil {
		return "", errors.New("anthropic: http client is nil")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return "", errors.New("anthropic: model is required")
	}
	if cfg.MaxTokens <= 0 {
		return "", errors.New("anthropic: max_tokens is required")
	}

	rendered := withPlaceholder(history, p.BotName)
	msgs := make([]anthropicMsg, 0, len(rendered))
	for _, m := range rendered {
		msgs = append(msgs, anthropicMsg{Role: m.Role, Content: m.Content})
	}

	reqBody := anthropicReq{
		Model:       model,
		MaxTokens:   cfg.MaxTokens,
		Messages:    msgs,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
	}
	if cfg.SystemPrompt != nil {
		reqBody.System = *cfg.SystemPrompt
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/messages", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", anthropicVersion)
	if p.APIKey != "" {
		req.Header.Set("x-api-key", p.APIKey)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return "", &HTTPError{Provider: "anthropic", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded anthropicResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("anthropic: decode response: %w", err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}

	var sb strings.Builder
	for _, c := range decoded.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String(), nil
}
