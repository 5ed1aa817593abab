package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// passwordResetLifespan bounds the validity of the UPDATE_PASSWORD action
// link, in seconds.
const passwordResetLifespan = 3600

// Config holds the Keycloak connection settings.
type Config struct {
	// BaseURL is the Keycloak server root, e.g. "http://localhost:8080".
	BaseURL string
	// Realm is the realm this service authenticates against.
	Realm string
	// ClientID/ClientSecret identify this service's confidential client.
	ClientID     string
	ClientSecret string
	// AdminUser/AdminPassword authenticate the admin-cli client in the
	// master realm for Admin REST API calls.
	AdminUser     string
	AdminPassword string
	// Timeout bounds each HTTP call. Zero selects the default.
	Timeout time.Duration
}

// Client is the HTTP implementation of IdentityProvider.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ IdentityProvider = (*Client)(nil)

// NewClient builds a Keycloak client. The client is stateless and safe for
// concurrent use.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) realmURL(parts ...string) string {
	return c.cfg.BaseURL + path.Join(append([]string{"/realms", c.cfg.Realm}, parts...)...)
}

func (c *Client) adminURL(parts ...string) string {
	return c.cfg.BaseURL + path.Join(append([]string{"/admin/realms", c.cfg.Realm}, parts...)...)
}

// postForm posts url-encoded form data to a token-style endpoint.
// Grant rejections map to ErrInvalidCredentials, transport failures and
// server errors to ErrUnavailable.
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: keycloak status %d", ErrInvalidCredentials, resp.StatusCode)
	default:
		return fmt.Errorf("%w: keycloak status %d", ErrUnavailable, resp.StatusCode)
	}
}

// passwordGrant runs the Resource Owner Password Credentials flow for the
// configured client.
func (c *Client) passwordGrant(ctx context.Context, username, password string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("username", username)
	form.Set("password", password)
	form.Set("scope", "openid profile email")

	var tok tokenResponse
	if err := c.postForm(ctx, c.realmURL("protocol/openid-connect/token"), form, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// Authenticate implements IdentityProvider.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*AuthenticatedUser, error) {
	tok, err := c.passwordGrant(ctx, username, password)
	if err != nil {
		return nil, err
	}

	info, err := c.userInfo(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	claims, err := c.Introspect(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	return &AuthenticatedUser{UserInfo: *info, Claims: claims}, nil
}

// VerifyPassword implements IdentityProvider.
func (c *Client) VerifyPassword(ctx context.Context, username, password string) error {
	_, err := c.passwordGrant(ctx, username, password)
	return err
}

func (c *Client) userInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.realmURL("protocol/openid-connect/userinfo"), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo status %d", ErrUnavailable, resp.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode userinfo: %v", ErrUnavailable, err)
	}
	return &info, nil
}

// Introspect implements IdentityProvider.
func (c *Client) Introspect(ctx context.Context, accessToken string) (map[string]any, error) {
	form := url.Values{}
	form.Set("token", accessToken)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	claims := map[string]any{}
	if err := c.postForm(ctx, c.realmURL("protocol/openid-connect/token/introspect"), form, &claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// adminToken obtains an Admin REST API token via the admin-cli client in the
// master realm. Fetched per call; admin operations are rare enough that
// caching is not worth the shared state.
func (c *Client) adminToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", "admin-cli")
	form.Set("username", c.cfg.AdminUser)
	form.Set("password", c.cfg.AdminPassword)

	endpoint := c.cfg.BaseURL + "/realms/master/protocol/openid-connect/token"
	var tok tokenResponse
	if err := c.postForm(ctx, endpoint, form, &tok); err != nil {
		// A rejected admin credential is a deployment problem, not a caller
		// problem; surface it as unavailability.
		return "", fmt.Errorf("%w: admin token: %v", ErrUnavailable, err)
	}
	return tok.AccessToken, nil
}

// adminRequest performs an authenticated Admin REST call with a JSON body
// and optional JSON response decoding. Returns the response for callers that
// need headers (user creation reads Location).
func (c *Client) adminRequest(ctx context.Context, method, endpoint string, body, out any) (*http.Response, error) {
	token, err := c.adminToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
			}
		}
		return resp, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUserNotFound
	case resp.StatusCode == http.StatusConflict:
		return nil, fmt.Errorf("%w: %s", ErrUserExists, strings.TrimSpace(string(data)))
	default:
		return nil, fmt.Errorf("%w: keycloak admin status %d", ErrUnavailable, resp.StatusCode)
	}
}

// CreateUser implements IdentityProvider. The account is created enabled but
// unverified, with a VERIFY_EMAIL required action so the first login forces
// verification.
func (c *Client) CreateUser(ctx context.Context, user NewUser) (string, error) {
	representation := map[string]any{
		"username":        user.Username,
		"email":           user.Email,
		"firstName":       user.FirstName,
		"lastName":        user.LastName,
		"enabled":         true,
		"emailVerified":   false,
		"requiredActions": []string{"VERIFY_EMAIL"},
		"credentials": []map[string]any{{
			"type":      "password",
			"value":     user.Password,
			"temporary": false,
		}},
	}

	resp, err := c.adminRequest(ctx, http.MethodPost, c.adminURL("users"), representation, nil)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}

	// Keycloak returns the new resource in the Location header.
	location := resp.Header.Get("Location")
	idx := strings.LastIndex(location, "/")
	if location == "" || idx == len(location)-1 {
		return "", fmt.Errorf("%w: missing user location header", ErrUnavailable)
	}
	return location[idx+1:], nil
}

type realmRole struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AssignRealmRole implements IdentityProvider.
func (c *Client) AssignRealmRole(ctx context.Context, userID, roleName string) error {
	var role realmRole
	if _, err := c.adminRequest(ctx, http.MethodGet, c.adminURL("roles", roleName), nil, &role); err != nil {
		return fmt.Errorf("get realm role %q: %w", roleName, err)
	}

	endpoint := c.adminURL("users", userID, "role-mappings/realm")
	if _, err := c.adminRequest(ctx, http.MethodPost, endpoint, []realmRole{role}, nil); err != nil {
		return fmt.Errorf("assign realm role %q: %w", roleName, err)
	}
	return nil
}

// SendVerifyEmail implements IdentityProvider.
func (c *Client) SendVerifyEmail(ctx context.Context, userID string) error {
	endpoint := c.adminURL("users", userID, "send-verify-email")
	if _, err := c.adminRequest(ctx, http.MethodPut, endpoint, nil, nil); err != nil {
		return fmt.Errorf("send verify email: %w", err)
	}
	return nil
}

// FindUsersByEmail implements IdentityProvider.
func (c *Client) FindUsersByEmail(ctx context.Context, email string) ([]User, error) {
	endpoint := c.adminURL("users") + "?exact=true&email=" + url.QueryEscape(email)
	var users []User
	if _, err := c.adminRequest(ctx, http.MethodGet, endpoint, nil, &users); err != nil {
		return nil, fmt.Errorf("find users by email: %w", err)
	}
	return users, nil
}

// SendPasswordReset implements IdentityProvider.
func (c *Client) SendPasswordReset(ctx context.Context, userID string) error {
	endpoint := fmt.Sprintf("%s?lifespan=%d", c.adminURL("users", userID, "execute-actions-email"), passwordResetLifespan)
	if _, err := c.adminRequest(ctx, http.MethodPut, endpoint, []string{"UPDATE_PASSWORD"}, nil); err != nil {
		return fmt.Errorf("send password reset: %w", err)
	}
	return nil
}

// SetPassword implements IdentityProvider.
func (c *Client) SetPassword(ctx context.Context, userID, password string) error {
	credential := map[string]any{
		"type":      "password",
		"value":     password,
		"temporary": false,
	}
	endpoint := c.adminURL("users", userID, "reset-password")
	if _, err := c.adminRequest(ctx, http.MethodPut, endpoint, credential, nil); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}

// GetUser implements IdentityProvider.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	if _, err := c.adminRequest(ctx, http.MethodGet, c.adminURL("users", userID), nil, &user); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}
