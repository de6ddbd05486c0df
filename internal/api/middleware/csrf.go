package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/hugh/dealdesk/pkg/cache"
	"github.com/hugh/dealdesk/pkg/crypto"
	"github.com/hugh/dealdesk/pkg/util"
)

const (
	csrfTokenBytes  = 32
	csrfCookieName  = "csrf_token"
	csrfHeaderName  = "X-CSRF-Token"
	csrfTokenExpiry = 24 * time.Hour
)

// CSRFStore keeps one token per cookie session.
type CSRFStore struct {
	tokens *cache.TTL[string, string]
}

func NewCSRFStore(clock util.Clock) *CSRFStore {
	return &CSRFStore{tokens: cache.NewTTL[string, string](csrfTokenExpiry, clock)}
}

func (s *CSRFStore) GetOrCreate(sessionID string) (string, error) {
	return s.tokens.GetOrLoad(sessionID, func() (string, error) {
		return crypto.GenerateToken(csrfTokenBytes)
	})
}

func (s *CSRFStore) Validate(sessionID, provided string) bool {
	token, ok := s.tokens.Get(sessionID)
	if !ok || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(provided)) == 1
}

// CSRF protects cookie-authenticated mutations. Requests carrying their token
// in a header are not exposed to CSRF and pass through.
func CSRF(store *CSRFStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				ensureCSRFCookie(w, r, store)
				next.ServeHTTP(w, r)
				return
			}

			if r.Header.Get("Authorization") != "" || r.Header.Get("X-Auth-Token") != "" {
				next.ServeHTTP(w, r)
				return
			}

			sessionID := sessionID(r)
			if sessionID == "" {
				// No cookie session: Auth rejects the request if it needs one.
				next.ServeHTTP(w, r)
				return
			}

			if !store.Validate(sessionID, r.Header.Get(csrfHeaderName)) {
				writeError(w, http.StatusForbidden, "Invalid or missing CSRF token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, store *CSRFStore) {
	sessionID := sessionID(r)
	if sessionID == "" {
		return
	}
	if _, err := r.Cookie(csrfCookieName); err == nil {
		return
	}

	token, err := store.GetOrCreate(sessionID)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false, // read by the browser client and echoed in X-CSRF-Token
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(csrfTokenExpiry.Seconds()),
	})
}

// sessionID derives a session key from the token cookie's signature segment.
func sessionID(r *http.Request) string {
	cookie, err := r.Cookie(TokenCookie)
	if err != nil || cookie.Value == "" {
		return ""
	}
	v := cookie.Value
	if len(v) > 32 {
		return v[len(v)-32:]
	}
	return v
}
