package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	// a missing .env is fine, the environment may be set elsewhere
	_ = godotenv.Load()

	app := &cli.Command{
		Name:  "opticderm",
		Usage: "OPTIC-DERM - optical biopsy descriptor demo",
		Commands: []*cli.Command{
			newServeCommand(),
			newDescribeCommand(os.Stdout),
			newValidateCommand(os.Stdout),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("opticderm: command failed", "error", err)
		os.Exit(1)
	}
}
