// services/auth_client.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// AuthClient validates end-user access tokens against the auth provider.
// Used where the gateway cannot inject headers, e.g. EventSource streams.
type AuthClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// AuthUser is the subset of the auth provider's user object the service needs.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func NewAuthClient(baseURL, apiKey string) *AuthClient {
	return &AuthClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ValidateToken resolves accessToken to its user via GET /auth/v1/user.
func (c *AuthClient) ValidateToken(ctx context.Context, accessToken string) (*AuthUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.APIKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.WithFields(log.Fields{"status": resp.StatusCode, "body": string(body)}).Warn("auth provider rejected token")
		return nil, fmt.Errorf("auth validation failed: %d", resp.StatusCode)
	}

	var out AuthUser
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("auth validation failed: no user id in response")
	}
	return &out, nil
}
