// Package auth resolves the identity a connection acts as from a bearer
// token issued by the CRUD service.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/codesync/collab/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Claims is the token payload shared with the CRUD service.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HMAC-signed tokens. A Verifier with an empty secret is
// disabled and the identity announced on the channel is taken as is.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Enabled() bool { return v != nil && len(v.secret) > 0 }

// Verify returns the identity carried by token.
func (v *Verifier) Verify(token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, fmt.Errorf("missing token: %w", domain.ErrUnauthorized)
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		log.Debug().Str("module", "auth").Err(err).Msg("token rejected")
		return domain.Identity{}, domain.ErrUnauthorized
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("token without subject: %w", domain.ErrUnauthorized)
	}
	return domain.Identity{UserID: domain.UserID(claims.Subject), Username: claims.Username}, nil
}

// BearerToken extracts the token from the Authorization header, falling back
// to the token query parameter browsers use for WebSocket upgrades.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
