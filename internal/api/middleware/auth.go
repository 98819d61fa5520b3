package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/tagmatch/internal/api/apierr"
	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/services/auth"
)

type contextKey int

const playerKey contextKey = iota

// SessionValidator resolves a bearer token to its session
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*model.Session, error)
}

var _ SessionValidator = (*auth.Service)(nil)

// Auth rejects requests without a valid session token and stores the
// signed-in player on the request context
func Auth(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			session, err := sessions.ValidateSession(r.Context(), token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), playerKey, &session.Player)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// GetPlayer returns the signed-in player, nil outside Auth
func GetPlayer(ctx context.Context) *model.Player {
	player, _ := ctx.Value(playerKey).(*model.Player)
	return player
}

// MustGetPlayer returns the signed-in player or panics
func MustGetPlayer(ctx context.Context) *model.Player {
	player := GetPlayer(ctx)
	if player == nil {
		panic("no player in context - auth middleware not applied?")
	}
	return player
}

// MustGetAuthID returns the identity the signed-in player connects with
func MustGetAuthID(ctx context.Context) model.AuthID {
	return MustGetPlayer(ctx).ID.AuthID()
}
