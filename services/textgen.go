package services

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

	"omoide-album/config"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var (
	ErrTextGenUnavailable = errors.New("text generation not configured")
	ErrEmptyCompletion    = errors.New("text generation returned no content")
)

// TextGenerator produces free text from a prompt. Implementations are slow and fallible.
type TextGenerator interface {
	Generate(ctx context.Context, userMessage, systemPrompt string) (string, error)
}

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	apiKey        string
	baseURL       string
	model         string
	maxRetries    int
	retryInterval time.Duration
	httpClient    *http.Client
	log           *zap.Logger
}

func NewOpenAIClient(cfg config.TextGenConfig, log *zap.Logger) *OpenAIClient {
	return &OpenAIClient{
		apiKey:        cfg.APIKey,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		model:         cfg.Model,
		maxRetries:    cfg.MaxRetries,
		retryInterval: 500 * time.Millisecond,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		log:           log.Named("textgen"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Generate(ctx context.Context, userMessage, systemPrompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrTextGenUnavailable
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	var content string
	operation := func() error {
		text, err := c.complete(ctx, body)
		if err != nil {
			return err
		}
		content = text
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxElapsedTime = 0 // bounded by retries and ctx

	err = backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx),
		func(err error, d time.Duration) {
			c.log.Warn("chat completion failed, retrying", zap.Error(err), zap.Duration("backoff", d))
		})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *OpenAIClient) complete(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("build chat request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("chat completions returned %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", err
		}
		return "", backoff.Permanent(err)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decode chat response: %w", err))
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", backoff.Permanent(ErrEmptyCompletion)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
