package moderation

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

	"github.com/google/uuid"
)

// ErrParse is returned when the moderation endpoint answers with a body we cannot read.
var ErrParse = errors.New("moderation: malformed response")

// Gate classifies a single text.
type Gate interface {
	Classify(ctx context.Context, text string) (Result, error)
}

type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey, model string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "omni-moderation-latest"
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type moderationReq struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type moderationResp struct {
	ID      string `json:"id"`
	Results []struct {
		CategoryScores map[string]float64 `json:"category_scores"`
		Flagged        *bool              `json:"flagged"`
	} `json:"results"`
}

// Classify sends one text to the moderation endpoint and blocks until the verdict returns.
func (c *Client) Classify(ctx context.Context, text string) (Result, error) {
	if c.HTTP == nil {
		return Result{}, errors.New("moderation: http client is nil")
	}

	b, err := json.Marshal(moderationReq{Model: c.Model, Input: text})
	if err != nil {
		return Result{}, err
	}

	url := fmt.Sprintf("%s/moderations", strings.TrimRight(c.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return Result{}, fmt.Errorf("moderation: %s", msg)
	}

	var decoded moderationResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(decoded.Results) == 0 || decoded.Results[0].Flagged == nil {
		return Result{}, fmt.Errorf("%w: no results", ErrParse)
	}

	id := decoded.ID
	if id == "" {
		id = "modr-local-" + uuid.NewString()
	}
	first := decoded.Results[0]
	scores := first.CategoryScores
	if scores == nil {
		scores = map[string]float64{}
	}
	return Result{ID: id, CategoryScores: scores, Flagged: *first.Flagged}, nil
}
