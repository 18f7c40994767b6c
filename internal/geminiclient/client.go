package geminiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/ecovision/internal/classification"
	"github.com/example/ecovision/internal/logging"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-1.5-flash"
	DefaultTimeout = 15 * time.Second

	maxErrorBody = 4096
)

// Prompt asks the model for a single JSON object describing the item.
const Prompt = `You are a waste sorting assistant. Look at the discarded item in this image and decide how it should be disposed of.

Respond with ONLY a JSON object containing exactly these fields:
{
  "category": one of "recycle", "compost" or "landfill",
  "confidence": an integer from 0 to 100,
  "details": a short explanation of what the item is and why it belongs in that category,
  "environmental_impact": one or two sentences about the environmental impact of disposing of it correctly,
  "tips": an array of 2 to 3 short disposal tips,
  "buds_reward": an integer reward: recycle 10-15, compost 15-20, landfill 5-10
}`

// Config carries everything the client needs; the API key is never read
// from the environment by this package.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// GenerationConfig holds the fixed sampling parameters.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// InlineData is a base64 payload tagged with its MIME type.
type InlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Part is one piece of a content message.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// Content is a list of parts.
type Content struct {
	Parts []Part `json:"parts"`
}

// GenerateRequest is the generateContent request body.
type GenerateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

// Candidate is one model answer.
type Candidate struct {
	Content Content `json:"content"`
}

// GenerateResponse is the generateContent response envelope.
type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// Client calls the Gemini generateContent endpoint. It never retries; the
// caller decides what happens on failure.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// New constructs a Client, filling defaults for empty config values.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.Named("gemini_client"),
	}
}

// NewRequest builds the request body for an encoded JPEG image.
func NewRequest(encodedImage string) GenerateRequest {
	return GenerateRequest{
		Contents: []Content{{
			Parts: []Part{
				{Text: Prompt},
				{InlineData: &InlineData{MimeType: "image/jpeg", Data: encodedImage}},
			},
		}},
		GenerationConfig: GenerationConfig{
			Temperature:     0.2,
			TopK:            32,
			TopP:            0.95,
			MaxOutputTokens: 800,
		},
	}
}

// Classify sends the image and returns the first text part of the first
// candidate. Every failure wraps classification.ErrRemoteUnavailable.
func (c *Client) Classify(ctx context.Context, encodedImage string) (string, error) {
	if c.apiKey == "" {
		return "", c.fail(ctx, fmt.Errorf("%w: api key not configured", classification.ErrRemoteUnavailable))
	}

	body, err := json.Marshal(NewRequest(encodedImage))
	if err != nil {
		return "", c.fail(ctx, fmt.Errorf("%w: marshal request: %v", classification.ErrRemoteUnavailable, err))
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", c.fail(ctx, fmt.Errorf("%w: create request: %v", classification.ErrRemoteUnavailable, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.fail(ctx, fmt.Errorf("%w: send request: %v", classification.ErrRemoteUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", c.fail(ctx, fmt.Errorf("%w: status %d: %s", classification.ErrRemoteUnavailable, resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	var envelope GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", c.fail(ctx, fmt.Errorf("%w: decode response: %v", classification.ErrRemoteUnavailable, err))
	}
	if len(envelope.Candidates) == 0 {
		return "", c.fail(ctx, fmt.Errorf("%w: no candidates in response", classification.ErrRemoteUnavailable))
	}
	for _, part := range envelope.Candidates[0].Content.Parts {
		if part.Text != "" {
			return part.Text, nil
		}
	}
	return "", c.fail(ctx, fmt.Errorf("%w: first candidate has no text", classification.ErrRemoteUnavailable))
}

func (c *Client) fail(ctx context.Context, err error) error {
	requestID := logging.RequestIDFromContext(ctx)
	wrapped := logging.NewOperationError("geminiclient.classify", requestID, err)
	logging.WithOperation(c.logger, "geminiclient.classify", requestID).Warn("remote classification failed", zap.Error(wrapped), zap.String("model", c.model))
	return wrapped
}
