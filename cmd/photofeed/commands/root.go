package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/photofeed/internal/app"
	"github.com/florianilch/photofeed/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:   "photofeed",
		Usage:  "Browse and like photos from the command line",
		Writer: os.Stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    configFlag,
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "telemetry--exporter",
				Usage: "log exporter (none|stdout|otlp-http|otlp-grpc)",
				Value: string(app.DefaultConfigTelemetryExporter),
			},
			&cli.StringFlag{
				Name:  "telemetry--endpoint",
				Usage: "OTLP collector URL",
			},
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "photo API base URL",
				Value: app.DefaultConfigAPIBaseURL,
			},
			&cli.IntFlag{
				Name:  "api--per-page",
				Usage: "photos requested per page",
				Value: app.DefaultConfigAPIPerPage,
			},
			&cli.StringFlag{
				Name:  "oauth--client-id",
				Usage: "OAuth client id (access key)",
			},
			&cli.StringFlag{
				Name:  "oauth--redirect-uri",
				Usage: "OAuth redirect URI; a loopback http URI starts a local callback server",
				Value: app.DefaultConfigOAuthRedirectURI,
			},
			&cli.StringFlag{
				Name:  "auth--storage",
				Usage: "token storage (file|keyring|memory)",
				Value: string(app.DefaultConfigAuthStorage),
			},
			&cli.StringFlag{
				Name:  "auth--file",
				Usage: "token file path for file storage",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			statusCommand(),
			feedCommand(),
			likeCommand(),
			profileCommand(),
			logoutCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// appAction is a command action that runs against a configured App.
type appAction func(ctx context.Context, cmd *cli.Command, a *app.App, cfg *app.Config) error

// withApp loads the configuration, sets up logging and builds the App before
// running action. Logs are flushed when action returns.
func withApp(action appAction) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd.String(configFlag), cmd, os.Environ)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Set up observability before creating app
		shutdown, err := observability.Instrument(ctx, observability.Options{
			Level:    cfg.LogLevel,
			Format:   string(cfg.LogFormat),
			Exporter: cfg.Telemetry.Exporter,
			Endpoint: cfg.Telemetry.Endpoint,
		})
		if err != nil {
			return fmt.Errorf("failed to set up observability layer: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
			}
		}()

		application, err := app.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to create app: %w", err)
		}

		return action(ctx, cmd, application, cfg)
	}
}
