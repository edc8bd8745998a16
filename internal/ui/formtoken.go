package ui

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"
)

// Forms that start work carry a token derived from a per-browser secret and
// the form's action. The secret lives in an HttpOnly cookie and never leaves
// it, so a page on another origin cannot produce a valid token.
const (
	sessionCookieName = "branchcheck_session"
	formTokenField    = "form_token"
	runFormAction     = "run"
	secretSize        = 32
)

// issueFormToken returns the token for action, setting the session cookie
// when the request carries none.
func (h *Handler) issueFormToken(w http.ResponseWriter, r *http.Request, action string) string {
	secret := sessionSecret(r)
	if secret == nil {
		secret = make([]byte, secretSize)
		_, _ = rand.Read(secret)
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    base64.RawURLEncoding.EncodeToString(secret),
			Path:     "/ui",
			HttpOnly: true,
			Secure:   h.Production,
			SameSite: http.SameSiteStrictMode,
		})
	}
	return formToken(secret, action)
}

// requireFormToken guards a POST route: the posted token must have been
// issued for action to this browser.
func (h *Handler) requireFormToken(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := sessionSecret(r)
			if secret == nil {
				renderHTML(w, http.StatusForbidden, errorPage("Request Rejected",
					"Your session has expired. Reload the page and try again."))
				return
			}
			got := strings.TrimSpace(r.PostFormValue(formTokenField))
			if !hmac.Equal([]byte(got), []byte(formToken(secret, action))) {
				h.Logger.Warn("rejected form post", "action", action, "path", r.URL.Path)
				renderHTML(w, http.StatusForbidden, errorPage("Request Rejected",
					"The form token is missing or invalid. Reload the page and try again."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func formToken(secret []byte, action string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(action))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func formTokenInput(token string) gomponents.Node {
	return html.Input(html.Type("hidden"), html.Name(formTokenField), html.Value(token))
}

// sessionSecret decodes the session cookie. Malformed values count as absent.
func sessionSecret(r *http.Request) []byte {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(c.Value))
	if err != nil || len(b) != secretSize {
		return nil
	}
	return b
}
