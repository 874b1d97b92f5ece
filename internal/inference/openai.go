package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/example/cardscan/internal/logging"
	"github.com/example/cardscan/internal/prompt"
)

// Options configure an OpenAIClient.
type Options struct {
	BaseURL string // e.g. https://host/v1
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIClient calls an OpenAI-compatible /chat/completions endpoint.
// It performs exactly one request per Complete call and never retries.
type OpenAIClient struct {
	http    *resty.Client
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewOpenAIClient builds a client sending requests through httpClient.
func NewOpenAIClient(httpClient *resty.Client, opts Options, logger *zap.Logger) *OpenAIClient {
	return &OpenAIClient{
		http:    httpClient,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		model:   opts.Model,
		timeout: opts.Timeout,
		logger:  logger.Named("inference"),
	}
}

// Model returns the model identifier sent with every request.
func (c *OpenAIClient) Model() string { return c.model }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func newChatRequest(model string, req prompt.Request) chatRequest {
	return chatRequest{
		Model: model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: req.Instruction()},
				{Type: "image_url", ImageURL: &imageURL{URL: req.ImageDataURL()}},
			},
		}},
	}
}

// Complete sends req and returns the first choice's message content.
func (c *OpenAIClient) Complete(ctx context.Context, req prompt.Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	r := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(newChatRequest(c.model, req))
	if c.apiKey != "" {
		r.SetAuthToken(c.apiKey)
	}

	resp, err := r.Post(c.baseURL + "/chat/completions")
	if err != nil {
		wrapped := logging.NewOperationError("inference.chat_completions", "", fmt.Errorf("%w: %w", ErrInferenceFailure, err))
		c.logger.Error("model request failed", zap.Error(wrapped), zap.Duration("elapsed", time.Since(started)))
		return "", wrapped
	}
	if !resp.IsSuccess() {
		body := logging.Truncate(strings.TrimSpace(resp.String()), 512)
		c.logger.Error("model returned error status",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", body),
			zap.Duration("elapsed", time.Since(started)),
		)
		return "", fmt.Errorf("%w: status %d: %s", ErrInferenceFailure, resp.StatusCode(), body)
	}

	var out chatResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrInferenceFailure, err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == nil {
		return "", fmt.Errorf("%w: response has no message content", ErrInferenceFailure)
	}

	c.logger.Debug("model replied",
		zap.String("model", c.model),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("reply_bytes", len(*out.Choices[0].Message.Content)),
	)
	return *out.Choices[0].Message.Content, nil
}
