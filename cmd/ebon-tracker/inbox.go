package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/ebon-tracker/internal/bill"
	"github.com/zombor/ebon-tracker/internal/inbox"
	"github.com/zombor/ebon-tracker/internal/metrics"
)

func splitExtensions(s string) []string {
	var exts []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			exts = append(exts, e)
		}
	}
	return exts
}

func (c *rootConfig) importCommand() *ff.Command {
	fs := ff.NewFlagSet("import").SetParent(c.flags)
	var (
		user        = fs.StringLong("user", bill.DefaultUserID, "User the bills are stored for")
		concurrency = fs.IntLong("concurrency", 4, "Files processed in parallel")
		extensions  = fs.StringLong("extensions", "pdf", "Comma separated file extensions to import")
	)

	return &ff.Command{
		Name:      "import",
		Usage:     "ebon-tracker import [FLAGS] <DIR>",
		ShortHelp: "Import every eBon in a directory",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("import requires exactly one directory")
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			importer := inbox.NewImporter(a.service, *user, *concurrency, splitExtensions(*extensions))
			summary, err := importer.ImportDir(ctx, args[0])
			if err != nil {
				return fmt.Errorf("importing %s: %w", args[0], err)
			}
			slog.Info("Import finished",
				"dir", args[0],
				"imported", summary.Imported,
				"existing", summary.Existing,
				"skipped", summary.Skipped,
				"failed", summary.Failed,
			)
			if summary.Failed > 0 {
				return fmt.Errorf("%d files failed to import", summary.Failed)
			}
			return nil
		},
	}
}

func (c *rootConfig) watchCommand() *ff.Command {
	fs := ff.NewFlagSet("watch").SetParent(c.flags)
	var (
		user       = fs.StringLong("user", bill.DefaultUserID, "User the bills are stored for")
		settle     = fs.DurationLong("settle", inbox.DefaultSettle, "Quiet period before a new file is imported")
		extensions = fs.StringLong("extensions", "pdf", "Comma separated file extensions to import")
		initial    = fs.BoolLong("initial", "Import existing files before watching")
	)

	return &ff.Command{
		Name:      "watch",
		Usage:     "ebon-tracker watch [FLAGS] <DIR>",
		ShortHelp: "Import eBons as they appear in a directory",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("watch requires exactly one directory")
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			metrics.Init()

			importer := inbox.NewImporter(a.service, *user, 1, splitExtensions(*extensions))
			if *initial {
				summary, err := importer.ImportDir(ctx, args[0])
				if err != nil {
					return fmt.Errorf("importing %s: %w", args[0], err)
				}
				slog.Info("Initial import finished", "imported", summary.Imported, "existing", summary.Existing, "skipped", summary.Skipped, "failed", summary.Failed)
			}

			watcher, err := inbox.NewWatcher(importer, *settle)
			if err != nil {
				return err
			}
			defer watcher.Close()
			return watcher.Watch(ctx, args[0])
		},
	}
}
