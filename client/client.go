package client

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/sha3"

	"github.com/totegamma/jsonkeeper/internal/domain"
)

const (
	defaultTimeout = 3 * time.Second
	userAgent      = "jsonkeeper"
)

// Client asks a remote identity provider to verify identity tokens.
// Successful verifications are cached by token digest.
type Client struct {
	client    *http.Client
	cache     *cache.Cache
	userAgent string
	endpoint  string
}

func New(endpoint string, timeout time.Duration, ttl time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	httpClient := http.Client{
		Timeout: timeout,
	}

	c := &Client{
		client:    &httpClient,
		cache:     cache.New(ttl, 2*ttl),
		userAgent: userAgent,
		endpoint:  endpoint,
	}
	httpClient.Transport = c
	return c
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	return http.DefaultTransport.RoundTrip(req)
}

type verifyResponse struct {
	Subject string `json:"subject"`
}

// Verify returns the subject the provider vouches for.
func (c *Client) Verify(ctx context.Context, token string) (string, error) {
	sum := sha3.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])
	if subject, ok := c.cache.Get(key); ok {
		return subject.(string), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, nil)
	if err != nil {
		return "", domain.VerificationError{Unavailable: true, Err: fmt.Errorf("failed to create request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", domain.VerificationError{Unavailable: true, Err: fmt.Errorf("failed to perform request: %v", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", domain.VerificationError{Err: fmt.Errorf("token rejected: %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return "", domain.VerificationError{Unavailable: true, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	var response verifyResponse
	err = json.NewDecoder(resp.Body).Decode(&response)
	if err != nil {
		return "", domain.VerificationError{Unavailable: true, Err: fmt.Errorf("failed to decode response: %v", err)}
	}
	if response.Subject == "" {
		return "", domain.VerificationError{Err: fmt.Errorf("empty subject")}
	}

	c.cache.Set(key, response.Subject, cache.DefaultExpiration)
	return response.Subject, nil
}
