package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/infinitune/roomserver/internal/utils"
)

// CORSConfig contains configuration for CORS middleware.
type CORSConfig struct {
	// AllowedOrigins is a list of origins a cross-domain request can be
	// executed from. "*" allows all origins.
	AllowedOrigins []string

	// AllowedMethods is a list of methods the client may use.
	AllowedMethods []string

	// AllowedHeaders is a list of non-simple headers the client may send.
	AllowedHeaders []string

	// AllowCredentials indicates whether the request can include credentials.
	AllowCredentials bool

	// MaxAge indicates how long (seconds) preflight results may be cached.
	MaxAge int
}

// DefaultCORSConfig returns a default CORS configuration.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Origin", "Accept", "Content-Type", "Authorization", "X-Device-Token",
		},
		AllowCredentials: true,
		MaxAge:           86400,
	}
}

// CORSMiddleware handles CORS for the API.
type CORSMiddleware struct {
	config CORSConfig
	logger *utils.Logger
}

// NewCORSMiddleware creates a new CORS middleware.
func NewCORSMiddleware(config CORSConfig, logger *utils.Logger) *CORSMiddleware {
	return &CORSMiddleware{
		config: config,
		logger: logger.Named("cors_middleware"),
	}
}

// CORS is a middleware that handles CORS, including preflight requests.
func (m *CORSMiddleware) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if allowed := m.isOriginAllowed(origin); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
		}

		if r.Method == http.MethodOptions {
			m.handlePreflight(w)
			return
		}

		if m.config.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		next.ServeHTTP(w, r)
	})
}

func (m *CORSMiddleware) isOriginAllowed(origin string) string {
	if origin == "" {
		return ""
	}
	for _, allowedOrigin := range m.config.AllowedOrigins {
		if allowedOrigin == "*" {
			if m.config.AllowCredentials {
				// "*" is invalid with credentials, echo the origin instead.
				return origin
			}
			return "*"
		}
		if allowedOrigin == origin {
			return origin
		}
		if strings.HasSuffix(allowedOrigin, "*") && strings.HasPrefix(origin, strings.TrimSuffix(allowedOrigin, "*")) {
			return origin
		}
	}
	return ""
}

func (m *CORSMiddleware) handlePreflight(w http.ResponseWriter) {
	if m.config.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	if len(m.config.AllowedMethods) > 0 {
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(m.config.AllowedMethods, ", "))
	}
	if len(m.config.AllowedHeaders) > 0 {
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(m.config.AllowedHeaders, ", "))
	}
	if m.config.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(m.config.MaxAge))
	}
	w.WriteHeader(http.StatusNoContent)
}
