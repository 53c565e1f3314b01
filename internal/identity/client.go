// Package identity talks to the external user directory. Token verification
// is local (the directory signs ID tokens with a shared HS256 secret); user
// lookups and deletes go over HTTP. Deletes are best-effort by design: the
// directory is not transactional with our store, so callers record the
// outcome and retry asynchronously instead of failing their own work.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid identity token")

// Identity is the verified subject of an ID token.
type Identity struct {
	UserID string
	Email  string
	Guest  bool
}

// User is a directory record.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Disabled bool   `json:"disabled"`
}

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Guest bool   `json:"guest,omitempty"`
}

type Client struct {
	baseURL    string
	secret     []byte
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(baseURL string, secret []byte, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		secret:  secret,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VerifyToken checks an ID token's signature and expiry locally and returns
// the identity it asserts. This is authoritative for primary authentication
// only; sessions issued afterwards live independently of the directory.
func (c *Client) VerifyToken(tokenString string) (*Identity, error) {
	var cl claims
	token, err := jwt.ParseWithClaims(tokenString, &cl, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if cl.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{UserID: cl.Subject, Email: cl.Email, Guest: cl.Guest}, nil
}

// GetUser fetches a directory record.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/users/"+userID, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get user: directory returned %d", resp.StatusCode)
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// DeleteUser removes a directory record. A 404 counts as success; the user
// is gone either way.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/users/"+userID, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete user: directory returned %d", resp.StatusCode)
	}
	return nil
}
