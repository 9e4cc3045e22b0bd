package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/jdholdren/feedhub/internal/feedhub"
	"github.com/jdholdren/feedhub/internal/serverutil"
)

// Subscriptions is what the server needs from the reconciliation service.
type Subscriptions interface {
	FollowFeed(ctx context.Context, userID, feedID string) (feedhub.Feed, error)
	UnfollowFeed(ctx context.Context, userID, feedID string) error
	CreateAndFollow(ctx context.Context, userID string, in feedhub.FeedInput) (feedhub.Feed, error)
	ListFollowedFeeds(ctx context.Context, userID string, offset, limit int) ([]feedhub.Feed, int, error)
	ListAllFeeds(ctx context.Context, offset, limit int) ([]feedhub.Feed, int, error)
	Feed(ctx context.Context, feedID string) (feedhub.Feed, error)
	ImportOPMLEntries(ctx context.Context, userID string, entries []feedhub.FeedInput) (feedhub.ImportSummary, error)

	EnsureUser(ctx context.Context, email string, githubID *string) (feedhub.User, error)
	User(ctx context.Context, userID string) (feedhub.User, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type (
	// Server handles requests from the frontend to manage which feeds a user follows.
	Server struct {
		*http.Server

		subs      Subscriptions
		health    Pinger
		feedCache *lru.Cache[string, feedhub.Feed]

		ghOauthConfig  oauth2.Config
		secureCookie   *securecookie.SecureCookie
		httpsCookies   bool   // Whether or not HTTPS should be used for cookies
		ssoRedirectURL string // URL to redirect to after successful SSO login
	}

	ServerConfig struct {
		Port               int
		CookieHashKey      []byte
		CookieBlockKey     []byte
		HttpsCookies       bool
		GithubClientID     string
		GithubClientSecret string
		CorsHeader         string
		SSORedirectURL     string

		DebugEndpoints bool
	}

	Params struct {
		fx.In

		Config        ServerConfig
		Subscriptions Subscriptions
		Health        Pinger
	}
)

func NewServer(lc fx.Lifecycle, p Params) *Server {
	srvr := newServer(p.Config, p.Subscriptions, p.Health)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srvr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("error serving api", "err", err)
				}
			}()

			slog.Info("started api server", "port", p.Config.Port)

			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srvr.Shutdown(ctx)
		},
	})

	return srvr
}

func newServer(config ServerConfig, subs Subscriptions, health Pinger) *Server {
	var (
		r        = serverutil.ErrRouter{Router: mux.NewRouter()}
		cache, _ = lru.New[string, feedhub.Feed](1024)
	)

	srvr := Server{
		subs:           subs,
		health:         health,
		feedCache:      cache,
		secureCookie:   securecookie.New(config.CookieHashKey, config.CookieBlockKey),
		httpsCookies:   config.HttpsCookies,
		ssoRedirectURL: config.SSORedirectURL,
		ghOauthConfig: oauth2.Config{
			ClientID:     config.GithubClientID,
			ClientSecret: config.GithubClientSecret,
			Scopes:       []string{"user:email"},
			Endpoint:     github.Endpoint,
		},
		Server: &http.Server{
			Addr:        fmt.Sprintf(":%d", config.Port),
			ReadTimeout: 10 * time.Second,
			// Imports of large documents run in a single request
			WriteTimeout: 30 * time.Second,
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{config.CorsHeader}),
				handlers.AllowCredentials(),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type"}),
			)(r),
		},
	}

	r.Use(serverutil.RequestIDMiddleware, serverutil.AccessLogMiddleware) // Log everything
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFuncE("/api/health-check", srvr.getHealthCheck).Methods(http.MethodGet)
	r.HandleFuncE("/api/viewer", srvr.handleViewer).Methods(http.MethodGet)
	r.HandleFuncE("/api/sso-login", srvr.handleSSORedirect).Methods(http.MethodGet)
	r.HandleFuncE("/api/sso-callback", srvr.handleSSOCallback).Methods(http.MethodGet)
	r.HandleFuncE("/api/logout", srvr.getLogout).Methods(http.MethodGet)

	if config.DebugEndpoints {
		// For local testing
		r.HandleFuncE("/api/login", srvr.handleDebugLogin).Methods(http.MethodPost)
	}

	authed := serverutil.ErrRouter{Router: r.NewRoute().Subrouter()}
	authed.Use(requireSessionMiddleware(srvr.secureCookie))

	// Feeds and who follows them
	authed.HandleFuncE("/api/feeds", srvr.getFeeds).Methods(http.MethodGet)
	authed.HandleFuncE("/api/feeds", srvr.postFeed).Methods(http.MethodPost)
	authed.HandleFuncE("/api/feeds/all", srvr.getAllFeeds).Methods(http.MethodGet)
	authed.HandleFuncE("/api/feeds/{feedID}", srvr.getFeed).Methods(http.MethodGet)
	authed.HandleFuncE("/api/feeds/{feedID}/follow", srvr.postFollow).Methods(http.MethodPost)
	authed.HandleFuncE("/api/feeds/{feedID}/follow", srvr.deleteFollow).Methods(http.MethodDelete)

	// Bulk import
	authed.HandleFuncE("/api/opml/import", srvr.postOPMLImport).Methods(http.MethodPost)

	slog.Debug("configured api server", "port", config.Port)

	return &srvr
}

func (s *Server) getHealthCheck(w http.ResponseWriter, r *http.Request) error {
	if err := s.health.Ping(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "health check failed", "err", err)
		return serverutil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}

	return serverutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
