package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the connection settings for the model backend. The wire
// format is the OpenAI-compatible JSON API most local inference servers
// expose.
type Config struct {
	BaseURL       string `mapstructure:"base_url" yaml:"base_url"`
	APIKey        string `mapstructure:"api_key" yaml:"api_key"`
	EmbedModel    string `mapstructure:"embed_model" yaml:"embed_model"`
	ChatModel     string `mapstructure:"chat_model" yaml:"chat_model"`
	MaxConcurrent int    `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	TimeoutSec    int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.EmbedModel == "" {
		c.EmbedModel = "text-embedding-3-small"
	}
	if c.ChatModel == "" {
		c.ChatModel = "gpt-4o-mini"
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = 120
	}
}

// HTTPClient is the production Client implementation.
type HTTPClient struct {
	cfg  Config
	http *http.Client
}

// NewHTTP creates an HTTP inference client. Callers normally wrap it in
// NewLimited.
func NewHTTP(cfg Config) *HTTPClient {
	cfg.ApplyDefaults()
	return &HTTPClient{
		cfg:  cfg,
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	}
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("inference backend returned %d: %s", resp.StatusCode, data)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed implements Client.
func (c *HTTPClient) Embed(ctx context.Context, text string) ([]float64, error) {
	var resp embeddingResponse
	err := c.post(ctx, "/v1/embeddings", map[string]any{
		"model": c.cfg.EmbedModel,
		"input": text,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("inference backend returned no embedding")
	}
	return resp.Data[0].Embedding, nil
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *HTTPClient) chat(ctx context.Context, messages []map[string]any) (string, error) {
	var resp chatResponse
	err := c.post(ctx, "/v1/chat/completions", map[string]any{
		"model":    c.cfg.ChatModel,
		"messages": messages,
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("inference backend returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Transcribe implements Client by sending the page raster to the chat
// model as an image part.
func (c *HTTPClient) Transcribe(ctx context.Context, image []byte) (string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)
	return c.chat(ctx, []map[string]any{
		{
			"role": "user",
			"content": []map[string]any{
				{"type": "text", "text": "Transcribe all handwritten text in this notebook page. Return only the text, preserving line breaks."},
				{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
			},
		},
	})
}

// Complete implements Client.
func (c *HTTPClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	messages := []map[string]any{}
	if system != "" {
		messages = append(messages, map[string]any{"role": "system", "content": system})
	}
	messages = append(messages, map[string]any{"role": "user", "content": prompt})
	return c.chat(ctx, messages)
}
