// Package session holds the server-side cookie session store, the alternative
// credential transport to the bearer JWT. Both carry the same binding: user id
// plus email.
package session

import (
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"

	"notes-api/backend/config"
)

const cookieName = "session"

var Store *sessions.CookieStore

// Init configures the cookie store from config. The secret doubles as the JWT
// signing key, so it is validated here regardless of transport.
func Init() error {
	secret := config.C.Session.Secret
	if secret == "" {
		return fmt.Errorf("session secret is required")
	}
	if len(secret) < 32 {
		return fmt.Errorf("session secret must be at least 32 characters")
	}

	Store = sessions.NewCookieStore([]byte(secret))
	Store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(config.C.Session.Timeout.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   config.C.TLS.Enabled,
	}
	return nil
}

// Create persists a session cookie bound to the given identity.
func Create(w http.ResponseWriter, r *http.Request, userID uint, email string) error {
	sess, _ := Store.Get(r, cookieName)
	sess.Values["user_id"] = userID
	sess.Values["email"] = email
	return sess.Save(r, w)
}

// Identity resolves the identity bound to the request's session cookie.
func Identity(r *http.Request) (userID uint, email string, ok bool) {
	sess, err := Store.Get(r, cookieName)
	if err != nil {
		return 0, "", false
	}
	userID, ok = sess.Values["user_id"].(uint)
	if !ok {
		return 0, "", false
	}
	email, _ = sess.Values["email"].(string)
	return userID, email, true
}

// Clear drops the session cookie.
func Clear(w http.ResponseWriter, r *http.Request) {
	sess, _ := Store.Get(r, cookieName)
	sess.Values = make(map[interface{}]interface{})
	sess.Options.MaxAge = -1
	sess.Save(r, w)
}

// HasCookie reports whether the request carries a session cookie at all,
// distinguishing a missing credential from an invalid one.
func HasCookie(r *http.Request) bool {
	_, err := r.Cookie(cookieName)
	return err == nil
}
