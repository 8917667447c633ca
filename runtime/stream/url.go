package stream

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/AltairaLabs/convostream/pkg/config"
)

// BuildURL returns the channel URL for conversationID and the handshake
// headers that carry token. With config.TokenPlacementHeader the token goes
// in an Authorization header; otherwise it is the "token" query parameter.
func BuildURL(base, conversationID, token, placement string) (string, http.Header, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", nil, fmt.Errorf("parse stream url: %w", err)
	}
	if conversationID == "" {
		return "", nil, fmt.Errorf("conversation id is required")
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/" + conversationID
	if u.RawPath != "" {
		u.RawPath = strings.TrimRight(u.RawPath, "/") + "/" + url.PathEscape(conversationID)
	}

	headers := http.Header{}
	if placement == config.TokenPlacementHeader {
		headers.Set("Authorization", "Bearer "+token)
	} else {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), headers, nil
}
