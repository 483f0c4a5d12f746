package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jo-hoe/opticderm/internal/backend"
	"github.com/jo-hoe/opticderm/internal/common"
	"github.com/jo-hoe/opticderm/internal/core"
	"github.com/jo-hoe/opticderm/internal/frontend"
	"github.com/jo-hoe/opticderm/internal/logging"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/urfave/cli/v3"
)

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"start"},
		Usage:   "Start the web server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   core.DefaultConfigPath,
				Usage:   "path to the YAML configuration file",
				Sources: cli.EnvVars("CONFIG_PATH"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "the web server port, overrides the config file",
				Sources: cli.EnvVars("PORT"),
			},
		},
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	config, err := core.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	if cmd.IsSet("port") {
		config.Port = cmd.Int("port")
		if err := config.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	logging.Init(config.LogLevel)

	coreService, err := core.NewCoreService(config)
	if err != nil {
		return fmt.Errorf("failed to start core service: %w", err)
	}
	defer func() {
		if err := coreService.Close(); err != nil {
			slog.Error("core service close error", "error", err)
		}
	}()

	server := defineServer()
	uploadLimiter := common.UploadRateLimiter(config.UploadRatePerSecond)
	backend.NewAPIService(coreService, uploadLimiter).SetRoutes(server)
	frontend.NewFrontendService(config, coreService, uploadLimiter).SetRoutes(server)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	portString := fmt.Sprintf(":%d", config.Port)
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "port", config.Port)
		if err := server.Start(portString); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	return nil
}

func defineServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Configure request logger to skip the probe endpoint
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/probe"
		},
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogError:     true,
		LogRemoteIP:  true,
		LogRoutePath: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"route", v.RoutePath,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				slog.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			slog.Info("request", attrs...)
			return nil
		},
	}))

	e.Use(middleware.Recover())
	e.Pre(middleware.RemoveTrailingSlash())

	e.Validator = &common.GenericEchoValidator{}

	return e
}
