// Package auth provides request admission for the control-plane REST surface:
// bearer tokens issued by an external identity service and registered device
// tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/infinitune/roomserver/internal/utils"
)

// JWT errors.
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Identity is the verified caller of a control-plane request.
type Identity struct {
	// UserID is the subject of a bearer token, empty for device tokens.
	UserID string

	// DeviceID is the registered device id, empty for bearer tokens.
	DeviceID string
}

// JWTVerifier validates bearer tokens issued by the external identity
// service. This service never mints tokens itself.
type JWTVerifier struct {
	secret []byte
	issuer string
	logger *utils.Logger
}

// NewJWTVerifier creates a verifier for the shared-secret HS256 tokens the
// issuer signs.
func NewJWTVerifier(secret, issuer string, logger *utils.Logger) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: issuer,
		logger: logger.Named("jwt_verifier"),
	}
}

// Verify parses and validates a bearer token, returning the caller identity.
func (v *JWTVerifier) Verify(tokenString string) (*Identity, error) {
	claims := jwt.RegisteredClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(time.Second),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		v.logger.Debug("Failed to parse bearer token", "err", err.Error())
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, ErrInvalidClaims
	}
	return &Identity{UserID: claims.Subject}, nil
}
