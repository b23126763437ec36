// Package llm is the transport client for the language-model collaborator.
//
// It speaks the OpenAI-compatible REST surface (chat completions and
// embeddings), which covers OpenAI itself plus the self-hosted gateways
// (vLLM, Ollama, DashScope) commonly fronting local models. The client is
// constructed once per process and injected into every component that needs
// model calls — there is no hidden global handle.
package llm

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

	"github.com/koustreak/nlquery/internal/errs"
	"github.com/koustreak/nlquery/internal/logger"
)

// Config holds model endpoint settings.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	// APIKey is sent as a bearer token. Empty disables the header
	// (local gateways often need none).
	APIKey string

	// ChatModel is the completion model used for generation and judging.
	ChatModel string

	// EmbedModel is the embedding model used for similarity scoring.
	EmbedModel string

	// Timeout bounds each individual API call.
	Timeout time.Duration
}

// DefaultTimeout is applied when Config.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// Client calls the model API. Safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logger.Logger
}

// New creates a Client from cfg.
func New(cfg Config, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{},
		log:  log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Complete sends a system+user chat exchange and returns the assistant text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	req := chatRequest{
		Model: c.cfg.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}

	resp, err := post[chatResponse](ctx, c, "/chat/completions", req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errs.New(errs.ErrKindModelUnavailable, "model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	req := embedRequest{Model: c.cfg.EmbedModel, Input: []string{text}}

	resp, err := post[embedResponse](ctx, c, "/embeddings", req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errs.New(errs.ErrKindModelUnavailable, "model returned no embedding")
	}
	return resp.Data[0].Embedding, nil
}

// post issues one JSON request against the API and decodes the response body
// into T. Transport failures map to model_unavailable, deadlines to timeout.
func post[T any](ctx context.Context, c *Client, path string, body any) (*T, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to encode request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errs.Wrap(errs.ErrKindTimeout, "model call exceeded deadline", err)
		}
		return nil, errs.Wrap(errs.ErrKindModelUnavailable, "model call failed", err)
	}
	defer resp.Body.Close()

	c.log.With().Str("path", path).Int("status", resp.StatusCode).Logger().
		Debugf("model call took %s", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errs.New(errs.ErrKindModelUnavailable,
			fmt.Sprintf("model API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.Wrap(errs.ErrKindModelUnavailable, "failed to decode model response", err)
	}
	return &out, nil
}
