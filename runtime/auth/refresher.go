package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/AltairaLabs/convostream/pkg/errors"
	"github.com/AltairaLabs/convostream/pkg/httputil"
	"github.com/AltairaLabs/convostream/runtime/logger"
)

// RefreshPath is the refresh exchange endpoint relative to the API base URL.
const RefreshPath = "/token/refresh"

// maxRefreshBody caps how much of a refresh response is read.
const maxRefreshBody = 64 * 1024

// Refresher exchanges a refresh token for a new access token.
//
// Refresh never fails past its boundary. On success the returned credential
// carries the new access token and expiry with LastError cleared. On any
// failure it is the input with LastError set to ErrorRefreshFailed; the
// tokens are left as they were.
type Refresher interface {
	Refresh(ctx context.Context, cred Credential) Credential
}

// HTTPRefresher performs the refresh exchange against the authorization service.
type HTTPRefresher struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRefresher creates a refresher for the service at apiURL. A nil
// client gets the default auth timeout.
func NewHTTPRefresher(apiURL string, client *http.Client) *HTTPRefresher {
	if client == nil {
		client = httputil.NewHTTPClient(httputil.DefaultAuthTimeout)
	}
	return &HTTPRefresher{
		endpoint: strings.TrimRight(apiURL, "/") + RefreshPath,
		client:   client,
	}
}

// Endpoint returns the refresh URL.
func (r *HTTPRefresher) Endpoint() string { return r.endpoint }

// Refresh implements Refresher.
func (r *HTTPRefresher) Refresh(ctx context.Context, cred Credential) Credential {
	next, err := r.exchange(ctx, cred.RefreshToken)
	logger.RefreshAttempt(ctx, r.endpoint, err, "subject", cred.Subject)
	if err != nil {
		failed := cred
		failed.LastError = ErrorRefreshFailed
		return failed
	}
	next.RefreshToken = cred.RefreshToken
	return next
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (r *HTTPRefresher) exchange(ctx context.Context, refreshToken string) (Credential, error) {
	if refreshToken == "" {
		return Credential{}, errors.New("no refresh token")
	}

	form := url.Values{"refresh_token": {refreshToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if !httputil.IsSuccess(resp.StatusCode) {
		return Credential{}, pkgerrors.New(component, "Refresh", errors.New(httputil.ErrorDetail(resp))).
			WithKind(pkgerrors.KindRefreshFailed).
			WithStatusCode(resp.StatusCode)
	}

	var body refreshResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRefreshBody)).Decode(&body); err != nil {
		return Credential{}, fmt.Errorf("decode refresh response: %w", err)
	}
	if body.AccessToken == "" {
		return Credential{}, errors.New("refresh response has no access_token")
	}
	if body.TokenType != "" && !strings.EqualFold(body.TokenType, "bearer") {
		return Credential{}, fmt.Errorf("unsupported token type %q", body.TokenType)
	}

	claims, err := DecodeAccessToken(body.AccessToken)
	if err != nil {
		return Credential{}, err
	}
	return Credential{
		AccessToken:                body.AccessToken,
		AccessTokenExpiresAtMillis: claims.ExpiresAtMillis,
		Subject:                    claims.Subject,
	}, nil
}
