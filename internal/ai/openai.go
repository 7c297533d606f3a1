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

// OpenAIProvider calls the chat completions endpoint. SystemPrompt is sent as a leading
// developer message on every call.
type OpenAIProvider struct {
	BaseURL      string
	APIKey       string
	SystemPrompt string
	BotName      string
	Client       *http.Client
	Output       *OutputModeration
}

type openAIMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatReq struct {
	Model       string      `json:"model"`
	Messages    []openAIMsg `json:"messages"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature float64     `json:"temperature"`
	TopP        float64     `json:"top_p"`
}

type openAIChatResp struct {
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenAIProvider(baseURL, apiKey, systemPrompt, botName string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		SystemPrompt: systemPrompt,
		BotName:      botName,
		Client:       &http.Client{Timeout: 90 * time.Second},
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, history []chat.Message, cfg session.Config) Outcome {
	text, err := p.chat(ctx, history, cfg)
	if err != nil {
		return Failure(err)
	}
	return p.Output.check(ctx, session.GPT, Success(text))
}

func (p *OpenAIProvider) messages(history []chat.Message) []openAIMsg {
	rendered := withPlaceholder(history, p.BotName)
	out := make([]openAIMsg, 0, len(rendered)+1)
	out = append(out, openAIMsg{Role: chat.RoleDeveloper, Content: p.SystemPrompt})
	for _, m := range rendered {
		out = append(out, openAIMsg{Role: m.Role, Content: m.Content})
	}
	return out
}

func (p *OpenAIProvider) chat(ctx context.Context, history []chat.Message, cfg session.Config) (string, error) {
	if p.Client == nil {
		return "", errors.New("openai: http client is nil")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return "", errors.New("openai: model is required")
	}

	b, err := json.Marshal(openAIChatReq{
		Model:       model,
		Messages:    p.messages(history),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return "", &HTTPError{Provider: "openai", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded openAIChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("openai: empty response")
	}
	content := decoded.Choices[0].Message.Content
	if content == nil {
		return "", nil
	}
	return *content, nil
}
