package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ImageClient calls the external image-generation endpoint. Failures stay
// local to the one tool call that asked for the image.
type ImageClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewImageClient(baseURL, token string) *ImageClient {
	return &ImageClient{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *ImageClient) Generate(ctx context.Context, prompt, style string) (string, error) {
	if c == nil || c.BaseURL == "" {
		return "", fmt.Errorf("image generation not configured")
	}
	if style == "" {
		style = "fantasy"
	}
	body, err := json.Marshal(map[string]string{"prompt": prompt, "style": style})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image endpoint returned %d", resp.StatusCode)
	}

	var out struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.ImageURL == "" {
		return "", fmt.Errorf("image endpoint returned no url")
	}
	return out.ImageURL, nil
}
