package testutil

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestSigningKey signs tokens minted by MintToken. Clients never verify the
// signature, so any key works.
var TestSigningKey = []byte("convostream-test-key")

// MintToken returns an HS256 JWT carrying sub and exp claims. A zero exp
// omits the claim.
func MintToken(sub string, exp time.Time) string {
	claims := jwt.MapClaims{}
	if sub != "" {
		claims["sub"] = sub
	}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(TestSigningKey)
	if err != nil {
		panic(err)
	}
	return signed
}
