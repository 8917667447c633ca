// Package auth manages the bearer credential that authorizes the stream
// channel and the REST collaborators.
//
// A Credential pairs a short-lived JWT access token with a refresh token.
// Its expiry always comes from the token's signed exp claim. A failed refresh
// never erases anything: it marks the credential with LastError, which makes
// it unusable for new channels while keeping the refresh token for a retry.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgerrors "github.com/AltairaLabs/convostream/pkg/errors"
)

const component = "auth"

// ErrorKind records why a credential is unusable.
type ErrorKind string

const (
	// ErrorNone marks a credential with no recorded failure.
	ErrorNone ErrorKind = ""
	// ErrorRefreshFailed marks a credential whose last refresh failed.
	ErrorRefreshFailed ErrorKind = "refresh_failed"
)

// ErrUnauthorized is returned when no usable credential is available.
var ErrUnauthorized = pkgerrors.New(component, "Authorize", errors.New("no usable credential")).
	WithKind(pkgerrors.KindUnauthorized)

// Credential is the signed-in bearer credential.
type Credential struct {
	AccessToken                string    `json:"access_token" yaml:"access_token"`
	RefreshToken               string    `json:"refresh_token" yaml:"refresh_token"`
	AccessTokenExpiresAtMillis int64     `json:"access_token_expires_at" yaml:"access_token_expires_at"`
	Subject                    string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	LastError                  ErrorKind `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// ExpiresAt returns the access token expiry.
func (c Credential) ExpiresAt() time.Time {
	return time.UnixMilli(c.AccessTokenExpiresAtMillis)
}

// IsExpired reports whether the access token has expired at now. A token is
// expired at its exact expiry instant.
func (c Credential) IsExpired(now time.Time) bool {
	return now.UnixMilli() >= c.AccessTokenExpiresAtMillis
}

// Usable reports whether the credential may open a new channel at now.
func (c Credential) Usable(now time.Time) bool {
	return c.AccessToken != "" && c.LastError == ErrorNone && !c.IsExpired(now)
}

// NeedsRefresh reports whether the access token expired or the last
// refresh failed.
func (c Credential) NeedsRefresh(now time.Time) bool {
	return c.LastError != ErrorNone || c.IsExpired(now)
}

// Claims is the subset of access token claims the client reads.
type Claims struct {
	Subject         string
	ExpiresAtMillis int64
}

// DecodeAccessToken reads the sub and exp claims of a JWT without verifying
// its signature. Both claims are required. The server verifies; the client
// only needs the expiry and the subject.
func DecodeAccessToken(raw string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return Claims{}, fmt.Errorf("decode access token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Claims{}, fmt.Errorf("decode access token: %w", err)
	}
	if exp == nil {
		return Claims{}, errors.New("decode access token: missing exp claim")
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return Claims{}, fmt.Errorf("decode access token: %w", err)
	}
	if sub == "" {
		return Claims{}, errors.New("decode access token: missing sub claim")
	}
	return Claims{Subject: sub, ExpiresAtMillis: exp.UnixMilli()}, nil
}

// NewCredential builds a credential from a token pair, deriving the expiry
// and subject from the access token.
func NewCredential(accessToken, refreshToken string) (Credential, error) {
	if accessToken == "" || refreshToken == "" {
		return Credential{}, pkgerrors.New(component, "NewCredential",
			errors.New("access and refresh tokens are required")).WithKind(pkgerrors.KindUnauthorized)
	}
	claims, err := DecodeAccessToken(accessToken)
	if err != nil {
		return Credential{}, pkgerrors.New(component, "NewCredential", err).WithKind(pkgerrors.KindUnauthorized)
	}
	return Credential{
		AccessToken:                accessToken,
		RefreshToken:               refreshToken,
		AccessTokenExpiresAtMillis: claims.ExpiresAtMillis,
		Subject:                    claims.Subject,
	}, nil
}
