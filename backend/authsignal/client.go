// Package authsignal talks to an external identity-risk provider for OTP
// challenge delivery and validation, falling back to local challenges when
// the provider is unavailable.
package authsignal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Action states returned by the provider's track endpoint.
const (
	StateChallengeRequired = "CHALLENGE_REQUIRED"
	StateAllow             = "ALLOW"
	StateBlock             = "BLOCK"
)

// Client is a thin HTTP client for the provider API. It is constructed once
// from validated configuration and injected; requests carry a bounded timeout.
type Client struct {
	baseURL   string
	apiSecret string
	http      *http.Client
}

func NewClient(apiURL, apiSecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   apiURL,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: timeout},
	}
}

type TrackResult struct {
	State string `json:"state"`
	Token string `json:"token"`
}

// Track asks the provider to evaluate an action for the given email. The
// returned state decides whether a challenge is required, the sign-in is
// allowed outright, or blocked.
func (c *Client) Track(ctx context.Context, email, action string) (*TrackResult, error) {
	body, err := json.Marshal(map[string]any{
		"attributes": map[string]any{"email": email},
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/users/%s/actions/%s", c.baseURL, url.PathEscape(email), url.PathEscape(action))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.apiSecret, "")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("track request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("track request: unexpected status %d", resp.StatusCode)
	}

	var result TrackResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("track response: %w", err)
	}
	return &result, nil
}

// ValidateChallenge asks the provider whether the presented code completes
// the challenge identified by token. Satisfies challenge.ExternalValidator.
func (c *Client) ValidateChallenge(ctx context.Context, token, code string) (bool, error) {
	body, err := json.Marshal(map[string]string{
		"token":            token,
		"verificationCode": code,
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/validate", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.SetBasicAuth(c.apiSecret, "")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("validate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("validate request: unexpected status %d", resp.StatusCode)
	}

	var result struct {
		IsValid bool   `json:"isValid"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("validate response: %w", err)
	}
	return result.IsValid, nil
}
