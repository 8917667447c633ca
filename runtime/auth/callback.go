package auth

import (
	"errors"
	"net/url"

	pkgerrors "github.com/AltairaLabs/convostream/pkg/errors"
)

// ParseCallback extracts the token pair from the sign-in redirect URL. The
// tokens may arrive in the query string or in the fragment.
func ParseCallback(rawURL string) (accessToken, refreshToken string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", pkgerrors.New(component, "ParseCallback", err).WithKind(pkgerrors.KindUnauthorized)
	}

	values := u.Query()
	if values.Get("access_token") == "" && u.Fragment != "" {
		if frag, ferr := url.ParseQuery(u.Fragment); ferr == nil {
			values = frag
		}
	}

	accessToken = values.Get("access_token")
	refreshToken = values.Get("refresh_token")
	if accessToken == "" || refreshToken == "" {
		return "", "", pkgerrors.New(component, "ParseCallback",
			errors.New("callback is missing access_token or refresh_token")).WithKind(pkgerrors.KindUnauthorized)
	}
	return accessToken, refreshToken, nil
}
