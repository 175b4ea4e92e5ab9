package http

import (
	"context"
	"encoding/json"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/adapter/http/middleware"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/adapter/http/ratelimit"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/adapter/http/templates"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/infrastructure/logger"
)

const (
	CookieName     = "auth_token"
	CookieMaxAge   = 7 * 24 * 60 * 60
	CookiePath     = "/"
	CookieSameSite = http.SameSiteStrictMode
)

type AuthService interface {
	ValidatePassword(username, password string) error
	GenerateToken(username string) (string, error)
	ValidateToken(token string) (string, error)
}

type userKey struct{}

// currentUser is the operator the request was authenticated as.
func currentUser(ctx context.Context) string {
	user, _ := ctx.Value(userKey{}).(string)
	return user
}

// tokenFromRequest prefers an Authorization bearer token over the cookie.
func tokenFromRequest(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func authenticate(authSvc AuthService, r *http.Request) (*http.Request, bool) {
	token := tokenFromRequest(r)
	if token == "" {
		return r, false
	}
	user, err := authSvc.ValidateToken(token)
	if err != nil {
		return r, false
	}
	return r.WithContext(context.WithValue(r.Context(), userKey{}, user)), true
}

// AuthMiddleware guards API routes; unauthenticated calls get a JSON 401.
func AuthMiddleware(authSvc AuthService, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r, ok := authenticate(authSvc, r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="apsbridge"`)
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

// PageAuthMiddleware guards HTML pages and sends browsers to the login page.
func PageAuthMiddleware(authSvc AuthService, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r, ok := authenticate(authSvc, r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

func wantsJSON(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json" || strings.Contains(r.Header.Get("Accept"), "application/json")
}

// LoginHandler serves the login form and accepts credentials either as a
// form post (sets the cookie, redirects) or as JSON (returns the token).
// Attempts are rate limited per client and failures are answered slowly.
func LoginHandler(authSvc AuthService, limiter *ratelimit.LoginRateLimiter, tracker *ratelimit.LoginAttemptTracker, behindProxy bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			renderLogin(w, r, http.StatusOK, loginErrorMessage(r.URL.Query().Get("error")))
			return
		}

		clientID := clientIP(r, behindProxy)
		jsonClient := wantsJSON(r)

		if allowed, wait := limiter.Check(clientID); !allowed {
			logger.Warn.Printf("login rate limited for %s", logger.SanitizeForLog(clientID))
			w.Header().Set("Retry-After", retryAfter(wait))
			if jsonClient {
				writeJSONError(w, http.StatusTooManyRequests, "too many login attempts")
			} else {
				renderLogin(w, r, http.StatusTooManyRequests, loginErrorMessage("locked"))
			}
			return
		}

		var req loginRequest
		if jsonClient {
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid login body")
				return
			}
		} else {
			req.Username = r.FormValue("username")
			req.Password = r.FormValue("password")
		}

		if err := authSvc.ValidatePassword(req.Username, req.Password); err != nil {
			delay := tracker.RecordFailure(clientID)
			logger.Warn.Printf("failed login for %q from %s", logger.SanitizeForLog(req.Username), logger.SanitizeForLog(clientID))
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
			if jsonClient {
				writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
			} else {
				http.Redirect(w, r, "/login?error=1", http.StatusSeeOther)
			}
			return
		}

		token, err := authSvc.GenerateToken(req.Username)
		if err != nil {
			logger.Error.Printf("issue token: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		tracker.RecordSuccess(clientID)
		limiter.Reset(clientID)
		logger.Info.Printf("%s signed in", logger.SanitizeForLog(req.Username))

		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    token,
			MaxAge:   CookieMaxAge,
			Path:     CookiePath,
			Secure:   isSecure(r, behindProxy),
			HttpOnly: true,
			SameSite: CookieSameSite,
		})

		if jsonClient {
			writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresIn: CookieMaxAge})
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func loginErrorMessage(code string) string {
	switch code {
	case "":
		return ""
	case "locked":
		return "Too many attempts. Try again later."
	default:
		return "Invalid username or password."
	}
}

func renderLogin(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = templates.Login(errMsg, middleware.Token(r.Context())).Render(r.Context(), w)
}

func LogoutHandler(behindProxy bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    "",
			MaxAge:   -1,
			Path:     CookiePath,
			Secure:   isSecure(r, behindProxy),
			HttpOnly: true,
			SameSite: CookieSameSite,
		})

		if wantsJSON(r) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

// clientIP keys rate limiting. X-Forwarded-For is only trusted behind a proxy.
func clientIP(r *http.Request, behindProxy bool) string {
	if behindProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isSecure(r *http.Request, behindProxy bool) bool {
	if r.TLS != nil {
		return true
	}
	return behindProxy && r.Header.Get("X-Forwarded-Proto") == "https"
}

func retryAfter(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	return strconv.Itoa(max(secs, 1))
}
