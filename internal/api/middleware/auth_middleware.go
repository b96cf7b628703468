package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/infinitune/roomserver/internal/auth"
	"github.com/infinitune/roomserver/internal/utils"
)

type contextKey string

// IdentityKey is the request-context key carrying the verified caller.
const IdentityKey contextKey = "identity"

// AuthMiddleware admits control-plane requests carrying either a bearer token
// or an x-device-token header.
type AuthMiddleware struct {
	bearer  *auth.JWTVerifier
	devices *auth.DeviceVerifier
	logger  *utils.Logger
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(bearer *auth.JWTVerifier, devices *auth.DeviceVerifier, logger *utils.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		bearer:  bearer,
		devices: devices,
		logger:  logger.Named("auth_middleware"),
	}
}

// RequireAuth is a middleware that requires a valid credential.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if deviceToken := r.Header.Get("X-Device-Token"); deviceToken != "" {
			identity, err := m.devices.Verify(r.Context(), deviceToken)
			if err != nil {
				if errors.Is(err, auth.ErrInvalidDeviceToken) {
					utils.RespondWithError(w, http.StatusUnauthorized, "Invalid device token")
				} else {
					m.logger.Error("Device token verification failed", err)
					utils.RespondWithError(w, http.StatusInternalServerError, "Failed to verify device token")
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
			return
		}

		token, err := utils.ExtractBearerToken(r)
		if err != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, err.Error())
			return
		}

		identity, err := m.bearer.Verify(token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				utils.RespondWithError(w, http.StatusUnauthorized, "Token has expired")
			default:
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

func withIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// IdentityFromContext returns the verified caller, or nil on unauthenticated
// routes.
func IdentityFromContext(ctx context.Context) *auth.Identity {
	identity, _ := ctx.Value(IdentityKey).(*auth.Identity)
	return identity
}
