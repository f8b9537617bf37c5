package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/ebon-tracker/internal/bill"
)

func (c *rootConfig) exportCommand() *ff.Command {
	fs := ff.NewFlagSet("export").SetParent(c.flags)
	var (
		format = fs.StringLong("format", bill.FormatXLSX, "Export format: xlsx or pdf")
		output = fs.StringLong("output", "", "Output file (default ebon-<id>.<format>)")
	)

	return &ff.Command{
		Name:      "export",
		Usage:     "ebon-tracker export [FLAGS] <BILL-ID>",
		ShortHelp: "Write a stored bill as a spreadsheet or PDF",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("export requires exactly one bill id")
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.service.GetBill(ctx, args[0])
			if err != nil {
				return err
			}
			data, _, err := bill.Export(b, *format)
			if err != nil {
				return err
			}

			path := *output
			if path == "" {
				path = fmt.Sprintf("ebon-%s.%s", b.ID, *format)
			}
			if err := os.WriteFile(path, data, 0644); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			slog.Info("Exported bill", "id", b.ID, "datetime", b.DateTime.Format(time.RFC3339), "path", path)
			return nil
		},
	}
}

func (c *rootConfig) tokenCommand() *ff.Command {
	fs := ff.NewFlagSet("token").SetParent(c.flags)
	var (
		jwtSecret = fs.StringLong("jwt-secret", "", "HS256 secret shared with the server")
		ttl       = fs.DurationLong("ttl", 30*24*time.Hour, "Token lifetime, 0 for no expiry")
	)

	return &ff.Command{
		Name:      "token",
		Usage:     "ebon-tracker token [FLAGS] <USER-ID>",
		ShortHelp: "Issue a bearer token for a user",
		Flags:     fs,
		Exec: func(_ context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("token requires exactly one user id")
			}
			token, err := bill.IssueToken(args[0], []byte(*jwtSecret), time.Now(), *ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}
