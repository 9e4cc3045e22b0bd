// Feedhub-API serves the frontend: who follows which feeds, and bulk imports of OPML exports.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/fx"

	"github.com/jdholdren/feedhub/internal/api"
	"github.com/jdholdren/feedhub/internal/logger"
	"github.com/jdholdren/feedhub/internal/migrations"
	"github.com/jdholdren/feedhub/internal/sqlite"
	"github.com/jdholdren/feedhub/internal/subscriptions"
)

type config struct {
	Database string `env:"DATABASE, required"`

	Port               int    `env:"PORT, default=4444"`
	LoggerFormat       string `env:"LOGGER_FORMAT, default=text"`
	Debug              bool   `env:"DEBUG, default=false"`
	HTTPSCookies       bool   `env:"HTTPS_COOKIES, default=false"`
	GithubClientID     string `env:"GITHUB_CLIENT_ID"`
	GithubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	CookieHashKey      string `env:"COOKIE_HASH_KEY"`
	CookieBlockKey     string `env:"COOKIE_BLOCK_KEY"`
	CorsHeader         string `env:"CORS_HEADER, default=http://localhost:5173"`
	SSORedirectURL     string `env:"SSO_REDIRECT_URL"`
	DebugEndpoints     bool   `env:"DEBUG_ENDPOINTS, default=false"`

	ModerateFeedNames bool          `env:"MODERATE_FEED_NAMES, default=false"`
	BusyRetries       uint64        `env:"BUSY_RETRIES, default=5"`
	BusyRetryBase     time.Duration `env:"BUSY_RETRY_BASE, default=50ms"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(logger.New(os.Stdout, cfg.LoggerFormat, level))

	// Connect to the sqlite db
	dbx, err := sqlite.Open(cfg.Database)
	if err != nil {
		log.Fatalf("error opening database: %s", err)
	}
	defer dbx.Close()

	// Run all migrations
	if err := migrations.Run(dbx); err != nil {
		log.Fatalf("error running migrations: %s", err)
	}

	repo := sqlite.New(dbx)
	svc := subscriptions.NewService(repo, subscriptions.Options{
		ModerateFeedNames: cfg.ModerateFeedNames,
		MaxRetries:        cfg.BusyRetries,
		RetryBase:         cfg.BusyRetryBase,
	})

	hashKey, blockKey := []byte(cfg.CookieHashKey), []byte(cfg.CookieBlockKey)
	if len(hashKey) == 0 {
		slog.Warn("no cookie keys configured, sessions won't survive a restart")
		hashKey, blockKey = securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32)
	}

	// Start the application
	fx.New(
		fx.Supply(
			api.ServerConfig{
				Port:               cfg.Port,
				GithubClientID:     cfg.GithubClientID,
				GithubClientSecret: cfg.GithubClientSecret,
				CookieHashKey:      hashKey,
				CookieBlockKey:     blockKey,
				HttpsCookies:       cfg.HTTPSCookies,
				CorsHeader:         cfg.CorsHeader,
				SSORedirectURL:     cfg.SSORedirectURL,
				DebugEndpoints:     cfg.DebugEndpoints,
			},
			fx.Annotate(svc, fx.As(new(api.Subscriptions))),
			fx.Annotate(repo, fx.As(new(api.Pinger))),
		),
		api.Module,
		fx.Invoke(func(*api.Server) {}), // Start the server
	).Run()
}
