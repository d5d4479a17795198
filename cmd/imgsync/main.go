package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/imgsync/internal/config"
	"github.com/andresuchdata/imgsync/pkg/logger"
)

type cfgKey struct{}

func loadConfig(c *cli.Context) error {
	cfg := config.Load()
	if c.IsSet("log-level") {
		cfg.App.LogLevel = c.String("log-level")
	}
	logger.SetLevel(cfg.App.LogLevel)

	c.Context = context.WithValue(c.Context, cfgKey{}, cfg)
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	if cfg, ok := c.Context.Value(cfgKey{}).(*config.Config); ok && cfg != nil {
		return cfg
	}
	return config.Load()
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "imgsync",
		Usage: "Transfer listing images from a catalog to remote storage",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: loadConfig,
		// Exit codes are decided in main so the app stays testable.
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Fetch every catalog image and upload it to the target folder",
				Flags:  append(catalogFlags(), append(transferFlags(), storageFlags()...)...),
				Action: runTransfer,
			},
			{
				Name:   "plan",
				Usage:  "Print the work items a catalog expands to without transferring anything",
				Flags:  catalogFlags(),
				Action: runPlan,
			},
			{
				Name:   "ls",
				Usage:  "List the files already in the target folder",
				Flags:  storageFlags(),
				Action: runList,
			},
			{
				Name:  "auth",
				Usage: "Authorize Google Drive access and save the token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "credentials",
						Usage:   "Path to the OAuth client or service account JSON",
						EnvVars: []string{"GOOGLE_CREDENTIALS_FILE"},
					},
					&cli.StringFlag{
						Name:    "token-file",
						Usage:   "Where the OAuth token is stored",
						EnvVars: []string{"GOOGLE_TOKEN_FILE"},
					},
				},
				Action: runAuth,
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newApp().RunContext(ctx, os.Args)
	stop()
	if err == nil {
		return
	}

	logger.Log.Error().Err(err).Msg("imgsync failed")

	code := 1
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	os.Exit(code)
}
