package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// CORSConfig holds CORS middleware configuration.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// CORS lets browser UIs on other origins call the relay. Origins may be exact,
// "*" for any origin, or a "*.example.com" subdomain wildcard.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	maxAge := config.MaxAge
	if maxAge <= 0 {
		maxAge = 300
	}

	c := cors.New(cors.Options{
		AllowOriginFunc:  originMatcher(config.AllowedOrigins),
		AllowedMethods:   config.AllowedMethods,
		AllowedHeaders:   config.AllowedHeaders,
		ExposedHeaders:   []string{HeaderRequestID},
		AllowCredentials: config.AllowCredentials,
		MaxAge:           maxAge,
	})
	return c.Handler
}

func originMatcher(allowed []string) func(string) bool {
	return func(origin string) bool {
		for _, a := range allowed {
			switch {
			case a == "*":
				return true
			case strings.HasPrefix(a, "*."):
				if strings.HasSuffix(origin, strings.TrimPrefix(a, "*")) {
					return true
				}
			case origin == a:
				return true
			}
		}
		return false
	}
}
