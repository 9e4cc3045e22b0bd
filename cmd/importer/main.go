// Feedhub-Importer follows every feed in an OPML export for a user, straight against the database.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"

	"github.com/jdholdren/feedhub/internal/logger"
	"github.com/jdholdren/feedhub/internal/migrations"
	"github.com/jdholdren/feedhub/internal/opml"
	"github.com/jdholdren/feedhub/internal/sqlite"
	"github.com/jdholdren/feedhub/internal/subscriptions"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	app := &cli.Command{
		Name:      "importer",
		Usage:     "Follow every feed in an OPML file for a user",
		ArgsUsage: "<file.opml>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database",
				Aliases:  []string{"d"},
				Usage:    "Path to the sqlite database",
				Sources:  cli.EnvVars("DATABASE"),
				Required: true,
			},
			&cli.StringFlag{
				Name:     "email",
				Aliases:  []string{"e"},
				Usage:    "Email of the user to import for, created if they don't exist",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Either text or json",
				Sources: cli.EnvVars("LOGGER_FORMAT"),
				Value:   "text",
			},
			&cli.UintFlag{
				Name:  "busy-retries",
				Usage: "How many times to retry the import while the database is locked",
				Value: 5,
			},
		},
		Action: runImport,
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatalf("error importing: %s", err)
	}
}

func runImport(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(logger.New(os.Stderr, cmd.String("log-format"), slog.LevelInfo))

	path := cmd.Args().First()
	if path == "" {
		return errors.New("an opml file is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening opml file: %s", err)
	}
	defer f.Close()

	entries, err := opml.Parse(f)
	if err != nil {
		return err
	}

	dbx, err := sqlite.Open(cmd.String("database"))
	if err != nil {
		return err
	}
	defer dbx.Close()
	if err := migrations.Run(dbx); err != nil {
		return fmt.Errorf("error running migrations: %s", err)
	}

	svc := subscriptions.NewService(sqlite.New(dbx), subscriptions.Options{
		MaxRetries: uint64(cmd.Uint("busy-retries")),
	})

	usr, err := svc.EnsureUser(ctx, cmd.String("email"), nil)
	if err != nil {
		return err
	}
	ctx = logger.Ctx(ctx, slog.String("user_id", usr.ID))

	summary, err := svc.ImportOPMLEntries(ctx, usr.ID, entries)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.Root().Writer, "OPML import completed. %d feeds imported, %d feeds skipped.\n", summary.Imported, summary.Skipped)
	return nil
}
