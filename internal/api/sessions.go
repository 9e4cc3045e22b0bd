package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"

	fherrs "github.com/jdholdren/feedhub/internal/errors"
	"github.com/jdholdren/feedhub/internal/logger"
	"github.com/jdholdren/feedhub/internal/serverutil"
)

const sessionCookieName = "feedhub_session"

// Describes a user's sessionState that's persisted to their cookie.
type sessionState struct {
	State  string // For SSO
	UserID string
}

// Fetches the current session tied to the request.
func session(r *http.Request, secureCookie *securecookie.SecureCookie) sessionState {
	cookie, err := r.Cookie(sessionCookieName)
	if errors.Is(err, http.ErrNoCookie) {
		return sessionState{}
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "error fetching cookie", "err", err)
		return sessionState{}
	}

	value := sessionState{}
	if err := secureCookie.Decode(sessionCookieName, cookie.Value, &value); err != nil {
		slog.ErrorContext(r.Context(), "error decoding cookie", "err", err)
		return sessionState{}
	}

	return value
}

// Sets the session on the request.
func setSession(w http.ResponseWriter, secureCookie *securecookie.SecureCookie, https bool, sess sessionState) {
	encoded, err := secureCookie.Encode(sessionCookieName, sess)
	if err != nil {
		slog.Error("error encoding cookie", "err", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    encoded,
		Path:     "/",
		Secure:   https,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func requireSessionMiddleware(sc *securecookie.SecureCookie) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := session(r, sc)
			if state.UserID == "" {
				_ = serverutil.WriteJSON(w, http.StatusUnauthorized, fherrs.E(http.StatusUnauthorized, "Unauthenticated"))
				return
			}

			ctx := logger.Ctx(r.Context(), slog.String("user_id", state.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Redirects the user to the SSO login page.
func (s *Server) handleSSORedirect(w http.ResponseWriter, r *http.Request) error {
	// Create a state to store as part of the flow
	state := sessionState{
		State: uuid.NewString(),
	}
	setSession(w, s.secureCookie, s.httpsCookies, state)

	http.Redirect(w, r, s.ghOauthConfig.AuthCodeURL(state.State), http.StatusTemporaryRedirect)
	return nil
}

// Handles the code coming back from github.
//
// Failures send the user back to the welcome page with a reason instead of rendering an error.
func (s *Server) handleSSOCallback(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx  = r.Context()
		sess = session(r, s.secureCookie)
		q    = r.URL.Query()
	)
	if sess.State == "" || q.Get("state") != sess.State {
		return welcomeRedirect(w, r, "invalid_state")
	}
	if q.Get("error") != "" {
		return welcomeRedirect(w, r, q.Get("error"))
	}

	info, err := s.fetchGithubUser(ctx, q.Get("code"))
	if err != nil {
		slog.ErrorContext(ctx, "error fetching github user", "err", err)
		return welcomeRedirect(w, r, "fetching")
	}
	if info.Email == "" {
		return welcomeRedirect(w, r, "missing_email")
	}

	usr, err := s.subs.EnsureUser(ctx, info.Email, &info.Login)
	if err != nil {
		slog.ErrorContext(ctx, "error ensuring user", "err", err)
		return welcomeRedirect(w, r, "internal")
	}

	// Start a session
	setSession(w, s.secureCookie, s.httpsCookies, sessionState{UserID: usr.ID})

	// Use the configured redirect URL, defaulting to "/" if not set
	redirectURL := s.ssoRedirectURL
	if redirectURL == "" {
		redirectURL = "/"
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
	return nil
}

type githubUser struct {
	Login string `json:"login"`
	Email string `json:"email"`
}

func (s *Server) fetchGithubUser(ctx context.Context, code string) (githubUser, error) {
	tok, err := s.ghOauthConfig.Exchange(ctx, code)
	if err != nil {
		return githubUser{}, fmt.Errorf("error exchanging code: %s", err)
	}

	client := s.ghOauthConfig.Client(ctx, tok)
	resp, err := client.Get("https://api.github.com/user")
	if err != nil {
		return githubUser{}, fmt.Errorf("error fetching user: %s", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return githubUser{}, fmt.Errorf("unexpected status fetching user: %d", resp.StatusCode)
	}

	var info githubUser
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return githubUser{}, fmt.Errorf("error decoding user: %s", err)
	}

	return info, nil
}

func welcomeRedirect(w http.ResponseWriter, r *http.Request, reason string) error {
	http.Redirect(w, r, "/welcome?error="+url.QueryEscape(reason), http.StatusFound)
	return nil
}

func (s *Server) getLogout(w http.ResponseWriter, r *http.Request) error {
	setSession(w, s.secureCookie, s.httpsCookies, sessionState{})

	// Redirect to the welcome page
	http.Redirect(w, r, "/welcome", http.StatusFound)

	return nil
}

type DebugLogin struct {
	Email string `json:"email"`
}

// Logs in as whoever owns the email, creating them if needed.
func (s *Server) handleDebugLogin(w http.ResponseWriter, r *http.Request) error {
	body, err := serverutil.DecodeJSON[DebugLogin](r.Body)
	if err != nil {
		return err
	}

	usr, err := s.subs.EnsureUser(r.Context(), body.Email, nil)
	if err != nil {
		return apiErr(err)
	}

	// Issue an update to their session so they're logged in
	setSession(w, s.secureCookie, s.httpsCookies, sessionState{UserID: usr.ID})
	return serverutil.WriteJSON(w, http.StatusOK, apiUser(usr))
}
