package main

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

// apiClient talks to the draw backend's ledger and payment endpoints.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type loginResponse struct {
	Token    string `json:"token"`
	Email    string `json:"email"`
	Balance  int64  `json:"balance"`
	Degraded bool   `json:"degraded"`
}

func (c *apiClient) Login(ctx context.Context, code string) (*loginResponse, error) {
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", map[string]string{"code": code}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) RequestCode(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/email", map[string]string{"email": email}, nil)
}

func (c *apiClient) Balance(ctx context.Context) (int64, error) {
	var resp struct {
		Balance int64 `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/ledger/balance", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

// Spend reports a completed render. The server's answer is the new truth for
// the local cache.
func (c *apiClient) Spend(ctx context.Context, amount, localBalance int64, reason string) (int64, error) {
	var resp struct {
		NewBalance int64 `json:"newBalance"`
	}
	payload := map[string]any{"amount": amount, "reason": reason, "balance": localBalance}
	if err := c.do(ctx, http.MethodPost, "/api/v1/ledger/spend", payload, &resp); err != nil {
		return 0, err
	}
	return resp.NewBalance, nil
}

type checkoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	QR        string `json:"qr"`
}

func (c *apiClient) Checkout(ctx context.Context, email, plan string) (*checkoutResponse, error) {
	var resp checkoutResponse
	payload := map[string]string{"email": email, "plan": plan}
	if err := c.do(ctx, http.MethodPost, "/api/v1/checkout", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) ImprovePrompt(ctx context.Context, prompt string) (string, error) {
	var resp struct {
		Prompt string `json:"prompt"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/prompts/improve", map[string]string{"prompt": prompt}, &resp); err != nil {
		return "", err
	}
	return resp.Prompt, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", path, apiErr.Error)
		}
		return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
