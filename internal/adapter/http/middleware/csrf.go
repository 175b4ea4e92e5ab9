package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
)

const (
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfFormField  = "csrf_token"
	csrfMaxAge     = 86400
	tokenSize      = 32
)

type csrfKey struct{}

// CSRFProtection guards cookie-authenticated form posts with a
// double-submit token. Requests carrying a bearer token and exempt paths
// are not checked: they do not rely on ambient browser credentials.
type CSRFProtection struct {
	secretKey []byte
	exempt    []string
}

func NewCSRFProtection(secretKey string, exemptPaths ...string) *CSRFProtection {
	return &CSRFProtection{
		secretKey: []byte(secretKey),
		exempt:    exemptPaths,
	}
}

// Middleware issues the token cookie when missing and validates unsafe
// requests. The current token is available to handlers via Token.
func (c *CSRFProtection) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if cookie, err := r.Cookie(csrfCookieName); err == nil && c.ValidateToken(cookie.Value) {
			token = cookie.Value
		} else {
			token = c.GenerateToken()
			setCSRFCookie(w, r, token)
		}
		r = r.WithContext(context.WithValue(r.Context(), csrfKey{}, token))

		if isSafeMethod(r.Method) || c.isExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		if !c.validateRequest(r) {
			http.Error(w, "Forbidden - Invalid CSRF token", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Token returns the CSRF token for the request, for embedding in forms.
func Token(ctx context.Context) string {
	token, _ := ctx.Value(csrfKey{}).(string)
	return token
}

// GenerateToken returns base64(32 random bytes + HMAC-SHA256 of them).
func (c *CSRFProtection) GenerateToken() string {
	randomBytes := make([]byte, tokenSize)
	_, _ = rand.Read(randomBytes)

	token := make([]byte, 0, tokenSize+sha256.Size)
	token = append(token, randomBytes...)
	token = append(token, c.sign(randomBytes)...)
	return base64.URLEncoding.EncodeToString(token)
}

func (c *CSRFProtection) ValidateToken(token string) bool {
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil || len(decoded) != tokenSize+sha256.Size {
		return false
	}
	return hmac.Equal(decoded[tokenSize:], c.sign(decoded[:tokenSize]))
}

func (c *CSRFProtection) sign(b []byte) []byte {
	mac := hmac.New(sha256.New, c.secretKey)
	mac.Write(b)
	return mac.Sum(nil)
}

func (c *CSRFProtection) isExempt(r *http.Request) bool {
	if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		return true
	}
	for _, p := range c.exempt {
		if r.URL.Path == p {
			return true
		}
	}
	return false
}

// validateRequest requires the header (or form field) token to match the
// cookie token and carry a valid signature.
func (c *CSRFProtection) validateRequest(r *http.Request) bool {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil {
		return false
	}

	requestToken := r.Header.Get(csrfHeaderName)
	if requestToken == "" {
		requestToken = r.FormValue(csrfFormField)
	}
	if requestToken == "" {
		return false
	}

	if !hmac.Equal([]byte(requestToken), []byte(cookie.Value)) {
		return false
	}
	return c.ValidateToken(requestToken)
}

func setCSRFCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   csrfMaxAge,
		Secure:   isTLS(r),
		HttpOnly: false, // read by the dashboard script
		SameSite: http.SameSiteStrictMode,
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
