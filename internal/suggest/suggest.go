package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// FallbackReplies is returned whenever the generative API is unreachable or
// answers with anything but exactly three strings. Suggestion failure is
// always soft: the caller gets usable replies, never an error.
var FallbackReplies = []string{
	"Thanks for reaching out!",
	"Could you share a bit more detail?",
	"Let me check that for you.",
}

// Client is a one-shot request/response client for quick-reply suggestions.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *zap.Logger
}

func NewClient(endpoint, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

type suggestRequest struct {
	Transcript string `json:"transcript"`
	Count      int    `json:"count"`
}

// Suggest posts the recent transcript and returns exactly three short
// replies. Every failure mode degrades to the fallback list.
func (c *Client) Suggest(ctx context.Context, transcript string) []string {
	replies, err := c.fetch(ctx, transcript)
	if err != nil {
		c.logger.Warn("suggestion request failed, using fallback", zap.Error(err))
		return FallbackReplies
	}
	return replies
}

func (c *Client) fetch(ctx context.Context, transcript string) ([]string, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("no suggestion endpoint configured")
	}

	payload, err := json.Marshal(suggestRequest{Transcript: transcript, Count: 3})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call suggestion API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("suggestion API returned %s", resp.Status)
	}

	return ParseReplies(json.NewDecoder(resp.Body))
}

// ParseReplies validates the contract: a JSON array of exactly three
// non-empty strings. Anything else is a malformed response.
func ParseReplies(dec *json.Decoder) ([]string, error) {
	var replies []string
	if err := dec.Decode(&replies); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	if len(replies) != 3 {
		return nil, fmt.Errorf("expected 3 suggestions, got %d", len(replies))
	}
	for _, r := range replies {
		if r == "" {
			return nil, fmt.Errorf("empty suggestion in response")
		}
	}
	return replies, nil
}
