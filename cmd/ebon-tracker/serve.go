package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/ebon-tracker/internal/bill"
	"github.com/zombor/ebon-tracker/internal/metrics"
)

func (c *rootConfig) serveCommand() *ff.Command {
	fs := ff.NewFlagSet("serve").SetParent(c.flags)
	var (
		port      = fs.IntLong("port", 8080, "HTTP server port")
		authUser  = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass  = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		jwtSecret = fs.StringLong("jwt-secret", "", "HS256 secret for bearer tokens (optional)")
	)

	return &ff.Command{
		Name:      "serve",
		Usage:     "ebon-tracker serve [FLAGS]",
		ShortHelp: "Run the HTTP API",
		Flags:     fs,
		Exec: func(ctx context.Context, _ []string) error {
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			metrics.Init()

			auth := bill.Auth{
				Basic: bill.BasicAuth{
					Username: *authUser,
					Password: *authPass,
				},
				JWTSecret: []byte(*jwtSecret),
			}
			server := bill.NewServer(a.service, auth)

			addr := fmt.Sprintf(":%d", *port)
			slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
			if *authUser != "" || *authPass != "" {
				slog.Info("Basic auth enabled", "user", *authUser)
			}
			if *jwtSecret != "" {
				slog.Info("Bearer token auth enabled")
			}

			if err := server.Start(ctx, addr); err != nil {
				return fmt.Errorf("server: %w", err)
			}
			slog.Info("Shutting down...")
			return nil
		},
	}
}
