package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcoot/tagmatch/internal/model"
)

// ErrInvalidIdentityToken is returned when an identity token fails verification
var ErrInvalidIdentityToken = errors.New("invalid identity token")

const identityIssuer = "tagmatch"

// IdentityClaims are the claims carried by an identity token.
// The subject is the player's auth id.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// IdentityTokensEnabled reports whether a signing secret is configured
func (s *Service) IdentityTokensEnabled() bool {
	return len(s.cfg.IdentitySecret) > 0
}

// IssueIdentityToken signs a token proving the holder is player
func (s *Service) IssueIdentityToken(player model.Player) (string, error) {
	if len(s.cfg.IdentitySecret) == 0 {
		return "", fmt.Errorf("%w: identity secret not set", model.ErrConfiguration)
	}

	now := s.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    identityIssuer,
			Subject:   string(player.ID.AuthID()),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.IdentityTokenTTL)),
		},
		Username: player.DisplayName,
	})

	return token.SignedString(s.cfg.IdentitySecret)
}

// VerifyIdentityToken checks the signature and expiry of an identity token
// and returns the auth id it was issued for
func (s *Service) VerifyIdentityToken(tokenString string) (model.AuthID, error) {
	if len(s.cfg.IdentitySecret) == 0 {
		return "", fmt.Errorf("%w: identity secret not set", model.ErrConfiguration)
	}

	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.cfg.IdentitySecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(identityIssuer),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentityToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidIdentityToken
	}

	return model.AuthID(claims.Subject), nil
}
