// Package generation is a thin typed client for the OpenAI-compatible image
// and prompt APIs the drawing flow consumes.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"

	imageModel  = "gpt-image-1"
	promptModel = "gpt-4.1"

	defaultTimeout = 60 * time.Second
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// NewClientWithBaseURL points the client at a different endpoint, mainly for
// tests and proxies.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Request describes one picture to render.
type Request struct {
	Prompt  string
	Size    string // "1024x1024", "1024x1536", "1536x1024"
	Quality string // "low", "medium", "high"
	Style   string // optional style preset folded into the prompt
	// ReferenceImages are base64 PNGs the prompt may refer to. Forwarded when
	// present; the API treats them as optional conditioning.
	ReferenceImages []string
}

// Result is a rendered picture plus the provider's token usage estimate.
type Result struct {
	ImageB64   string
	ImageURL   string
	TokensUsed int64
}

// APIError is a non-2xx answer from the generation API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generation api: %d %s", e.StatusCode, e.Message)
}

// RateLimited reports whether the caller should back off and retry later
// rather than surface an inline failure.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

type imageRequest struct {
	Model           string   `json:"model"`
	Prompt          string   `json:"prompt"`
	Size            string   `json:"size,omitempty"`
	Quality         string   `json:"quality,omitempty"`
	N               int      `json:"n"`
	ReferenceImages []string `json:"reference_images,omitempty"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// GenerateImage renders one picture for req.
func (c *Client) GenerateImage(ctx context.Context, req Request) (*Result, error) {
	prompt := req.Prompt
	if req.Style != "" {
		prompt = fmt.Sprintf("%s, in the style of %s", prompt, req.Style)
	}

	body := imageRequest{
		Model:           imageModel,
		Prompt:          prompt,
		Size:            req.Size,
		Quality:         req.Quality,
		N:               1,
		ReferenceImages: req.ReferenceImages,
	}

	var resp imageResponse
	if err := c.post(ctx, "/images/generations", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, &APIError{StatusCode: http.StatusBadGateway, Message: "no image in response"}
	}

	return &Result{
		ImageB64:   resp.Data[0].B64JSON,
		ImageURL:   resp.Data[0].URL,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

type promptRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type promptResponse struct {
	Output []struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// ImprovePrompt asks the model to rewrite a rough prompt into one that draws
// well. Failures are inline-surfaced by callers, never fatal to other work.
func (c *Client) ImprovePrompt(ctx context.Context, basePrompt string) (string, error) {
	body := promptRequest{
		Model: promptModel,
		Input: "Rewrite this as a vivid, concrete prompt for a black-and-white coloring book page. Reply with the prompt only: " + basePrompt,
	}

	var resp promptResponse
	if err := c.post(ctx, "/responses", body, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, out := range resp.Output {
		for _, content := range out.Content {
			if content.Type == "output_text" {
				sb.WriteString(content.Text)
			}
		}
	}
	refined := strings.TrimSpace(sb.String())
	if refined == "" {
		return "", &APIError{StatusCode: http.StatusBadGateway, Message: "no text in response"}
	}
	return refined, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling generation api: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: apiErrorMessage(data)}
	}

	return json.Unmarshal(data, out)
}

func apiErrorMessage(data []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
