package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// CSRFProtection provides CSRF token validation for the cookie-session
// transport. Bearer-token deployments don't need it: the credential never
// travels automatically with cross-site requests.
type CSRFProtection struct {
	secret []byte
}

// NewCSRFProtection creates a new CSRF protection middleware
func NewCSRFProtection(secret string) *CSRFProtection {
	return &CSRFProtection{secret: []byte(secret)}
}

// generateToken creates a new CSRF token
func (c *CSRFProtection) generateToken() string {
	// Generate random bytes
	randomBytes := make([]byte, 32)
	rand.Read(randomBytes)

	// Create HMAC signature
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(randomBytes)
	signature := mac.Sum(nil)

	// Combine random bytes and signature
	token := append(randomBytes, signature...)
	return base64.URLEncoding.EncodeToString(token)
}

// validateToken checks if a token is valid
func (c *CSRFProtection) validateToken(token string) bool {
	if token == "" {
		return false
	}

	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil || len(decoded) < 64 {
		return false
	}

	randomBytes := decoded[:32]
	providedSig := decoded[32:]

	// Recreate expected signature
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(randomBytes)
	expectedSig := mac.Sum(nil)

	return hmac.Equal(providedSig, expectedSig)
}

func forbidden(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Protect wraps a handler with CSRF protection
func (c *CSRFProtection) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Safe methods don't need CSRF validation, but set token
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			// Set CSRF token cookie if not present
			if _, err := r.Cookie("_csrf"); err != nil {
				token := c.generateToken()
				http.SetCookie(w, &http.Cookie{
					Name:     "_csrf",
					Value:    token,
					Path:     "/",
					HttpOnly: false, // client JS needs to read this
					SameSite: http.SameSiteStrictMode,
					Secure:   true,
				})
			}
			next.ServeHTTP(w, r)
			return
		}

		// For state-changing methods, validate token
		cookieToken, err := r.Cookie("_csrf")
		if err != nil {
			forbidden(w, "CSRF token missing")
			return
		}

		// JSON clients send the token in a header
		headerToken := r.Header.Get("X-CSRF-Token")

		// Validate that header token matches cookie token and is valid
		if headerToken != cookieToken.Value || !c.validateToken(headerToken) {
			forbidden(w, "CSRF token invalid")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ProtectFunc wraps a HandlerFunc
func (c *CSRFProtection) ProtectFunc(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.Protect(next).ServeHTTP(w, r)
	}
}
