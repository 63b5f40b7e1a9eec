package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dtroode/contestauth/internal/config"
	"github.com/dtroode/contestauth/internal/logger"
	"github.com/dtroode/contestauth/internal/model"
	"github.com/dtroode/contestauth/internal/token"
)

// MinPasswordLength is the shortest password the provider accepts.
const MinPasswordLength = 6

const maxResponseBytes = 1 << 20

var _ model.IdentityProvider = (*Client)(nil)

// Client talks to the remote identity provider REST API.
// Each call returns its own result; the client keeps no identity between calls
// and is safe for concurrent use.
type Client struct {
	enabled     bool
	apiKey      string
	identityURL string
	tokenURL    string
	http        *http.Client
	logger      *logger.Logger
}

// New creates a provider client from configuration.
func New(cfg config.Provider, logger *logger.Logger) *Client {
	return &Client{
		enabled:     cfg.Configured(),
		apiKey:      cfg.APIKey,
		identityURL: strings.TrimRight(cfg.IdentityURL, "/"),
		tokenURL:    strings.TrimRight(cfg.TokenURL, "/"),
		http:        &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

// Enabled reports whether remote calls are made at all.
func (c *Client) Enabled() bool {
	return c.enabled
}

func (c *Client) SignUp(ctx context.Context, email, password string) model.RemoteResult {
	if !c.enabled {
		return notConfigured()
	}

	res := c.account(ctx, "accounts:signUp", credentialsRequest{Email: email, Password: password, ReturnSecureToken: true})
	if res.Success {
		res.Message = "Registration successful."
	}
	return res
}

func (c *Client) SignIn(ctx context.Context, email, password string) model.RemoteResult {
	if !c.enabled {
		return notConfigured()
	}

	res := c.account(ctx, "accounts:signInWithPassword", credentialsRequest{Email: email, Password: password, ReturnSecureToken: true})
	if res.Success {
		res.Message = "Login successful."
	}
	return res
}

func (c *Client) UpdatePassword(ctx context.Context, idToken, newPassword string) model.RemoteResult {
	if !c.enabled {
		return notConfigured()
	}
	if len(newPassword) < MinPasswordLength {
		return model.RemoteResult{Kind: model.KindWeakPassword, Message: msgWeakPassword, Code: codeWeakPassword}
	}

	res := c.account(ctx, "accounts:update", updateRequest{IDToken: idToken, Password: newPassword, ReturnSecureToken: true})
	if res.Success {
		res.Message = "Password updated."
	}
	return res
}

func (c *Client) SendPasswordResetEmail(ctx context.Context, email string) model.RemoteResult {
	if !c.enabled {
		return notConfigured()
	}

	body, err := json.Marshal(oobRequest{RequestType: "PASSWORD_RESET", Email: email})
	if err != nil {
		return model.RemoteResult{Kind: model.KindUnknown, Message: fmt.Sprintf("Authentication error: %v", err)}
	}

	req, err := c.newRequest(ctx, c.identityURL+"/accounts:sendOobCode", "application/json", bytes.NewReader(body))
	if err != nil {
		return networkFailure(err)
	}

	res, _ := c.do(req)
	if res.Success {
		res.Message = "Password reset email sent."
	}
	return res
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) model.RemoteResult {
	if !c.enabled {
		return notConfigured()
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := c.newRequest(ctx, c.tokenURL+"/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return networkFailure(err)
	}

	res, payload := c.do(req)
	if !res.Success {
		return res
	}

	var resp refreshResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return malformed(err)
	}

	return c.withIdentity(model.RemoteResult{
		Success:      true,
		Message:      "Token refreshed.",
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		UID:          resp.UserID,
		ExpiresIn:    time.Duration(resp.ExpiresIn),
	})
}

// SignOut drops pooled connections. There is no cached identity to forget.
func (c *Client) SignOut() {
	c.http.CloseIdleConnections()
}

func (c *Client) account(ctx context.Context, method string, payload any) model.RemoteResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return model.RemoteResult{Kind: model.KindUnknown, Message: fmt.Sprintf("Authentication error: %v", err)}
	}

	req, err := c.newRequest(ctx, c.identityURL+"/"+method, "application/json", bytes.NewReader(body))
	if err != nil {
		return networkFailure(err)
	}

	res, raw := c.do(req)
	if !res.Success {
		return res
	}

	var resp accountResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return malformed(err)
	}

	return c.withIdentity(model.RemoteResult{
		Success:      true,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		UID:          resp.LocalID,
		Email:        resp.Email,
		ExpiresIn:    time.Duration(resp.ExpiresIn),
	})
}

func (c *Client) newRequest(ctx context.Context, endpoint, contentType string, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

// do executes req and returns a success marker with the raw body, or a classified failure.
func (c *Client) do(req *http.Request) (model.RemoteResult, []byte) {
	endpoint := req.URL.Path

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Identity client: request failed", "endpoint", endpoint, "error", err.Error())
		return networkFailure(err), nil
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Warn("Identity client: failed to read response", "endpoint", endpoint, "error", err.Error())
		return networkFailure(err), nil
	}

	if resp.StatusCode == http.StatusOK {
		return model.RemoteResult{Success: true}, payload
	}

	var errResp errorResponse
	if err := json.Unmarshal(payload, &errResp); err != nil || errResp.Error.Message == "" {
		res := failure(fmt.Sprintf("HTTP_%d", resp.StatusCode))
		c.logger.Warn("Identity client: unexpected error response", "endpoint", endpoint, "status", resp.StatusCode)
		return res, nil
	}

	res := failure(errResp.Error.Message)
	c.logger.Info("Identity client: provider rejected request",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"kind", res.Kind,
		"code", res.Code)
	return res, nil
}

// withIdentity fills uid and email from the ID token when the response omitted them.
func (c *Client) withIdentity(res model.RemoteResult) model.RemoteResult {
	if (res.UID != "" && res.Email != "") || res.IDToken == "" {
		return res
	}

	claims, err := token.Inspect(res.IDToken)
	if err != nil {
		c.logger.Debug("Identity client: id token claims unavailable", "error", err.Error())
		return res
	}

	if res.UID == "" {
		res.UID = claims.UID()
	}
	if res.Email == "" {
		res.Email = claims.Email
	}
	return res
}

func malformed(err error) model.RemoteResult {
	return model.RemoteResult{Kind: model.KindUnknown, Code: "MALFORMED_RESPONSE", Message: fmt.Sprintf("Authentication error: %v", err)}
}
