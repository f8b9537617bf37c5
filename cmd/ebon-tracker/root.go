package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/ebon-tracker/internal/bill"
	"github.com/zombor/ebon-tracker/internal/ebon"
	"github.com/zombor/ebon-tracker/internal/extract"
)

// rootConfig holds the flags shared by every subcommand
type rootConfig struct {
	flags *ff.FlagSet

	dbPath      *string
	databaseURL *string
	storage     *string
	location    *string
	maxPages    *int
	scanner     *string
	geminiKey   *string
	geminiModel *string
	ollamaURL   *string
	ollamaModel *string
	logLevel    *string
}

func (c *rootConfig) command() *ff.Command {
	fs := ff.NewFlagSet("ebon-tracker")
	c.flags = fs
	c.dbPath = fs.StringLong("db", "ebon-tracker.db", "BoltDB file path (ignored when --database-url is set)")
	c.databaseURL = fs.StringLong("database-url", "", "Postgres connection URL")
	c.storage = fs.StringLong("storage", "./ebons", "Document storage directory or gs://bucket/prefix")
	c.location = fs.StringLong("location", "UTC", "Time zone the printed eBon time is interpreted in")
	c.maxPages = fs.IntLong("max-pages", extract.DefaultMaxPages, "Maximum pages read from one PDF")
	c.scanner = fs.StringLong("scanner", "none", "Image transcriber: 'none', 'gemini' or 'ollama'")
	c.geminiKey = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	c.geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
	c.ollamaURL = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
	c.ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama vision model name")
	c.logLevel = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
	fs.StringLong("config", "", "YAML config file")
	fs.BoolLong("version", "Show version information")

	return &ff.Command{
		Name:      "ebon-tracker",
		Usage:     "ebon-tracker [FLAGS] <SUBCOMMAND> ...",
		ShortHelp: "Parse and store REWE eBon receipts",
		Flags:     fs,
		Subcommands: []*ff.Command{
			c.serveCommand(),
			c.importCommand(),
			c.watchCommand(),
			c.exportCommand(),
			c.tokenCommand(),
		},
	}
}

func (c *rootConfig) setupLogging() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(*c.logLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// app is the wired dependency graph of a running command
type app struct {
	service *bill.Service
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("Failed to close resource", "error", err)
		}
	}
}

func parseBucket(uri string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(uri, "gs://")
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid storage uri %q", uri)
	}
	return bucket, prefix, nil
}

func (c *rootConfig) openDB(ctx context.Context) (bill.DB, error) {
	if *c.databaseURL != "" {
		slog.Info("Connecting to postgres...")
		return bill.NewPostgres(ctx, *c.databaseURL)
	}
	slog.Info("Initializing database...", "path", *c.dbPath)
	return bill.NewBoltDB(*c.dbPath)
}

func (c *rootConfig) openStorage(ctx context.Context) (bill.Storage, func() error, error) {
	if strings.HasPrefix(*c.storage, "gs://") {
		bucket, prefix, err := parseBucket(*c.storage)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Initializing GCS storage...", "bucket", bucket, "prefix", prefix)
		gcs, err := bill.NewGCSStorage(ctx, bucket, prefix)
		if err != nil {
			return nil, nil, err
		}
		return gcs, gcs.Close, nil
	}
	slog.Info("Initializing storage...", "path", *c.storage)
	local, err := bill.NewLocalStorage(*c.storage)
	if err != nil {
		return nil, nil, err
	}
	return local, func() error { return nil }, nil
}

func (c *rootConfig) openTranscriber(ctx context.Context) (extract.Extractor, error) {
	switch *c.scanner {
	case "", "none":
		return nil, nil
	case "gemini":
		apiKey := *c.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
		}
		slog.Info("Initializing Gemini transcriber...", "model", *c.geminiModel)
		return extract.NewGemini(ctx, apiKey, *c.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama transcriber...", "url", *c.ollamaURL, "model", *c.ollamaModel)
		return extract.NewOllama(*c.ollamaURL, *c.ollamaModel)
	default:
		return nil, fmt.Errorf("invalid scanner type %q, valid: none, gemini or ollama", *c.scanner)
	}
}

// open wires the store, document storage, extractors and service
func (c *rootConfig) open(ctx context.Context) (*app, error) {
	loc, err := time.LoadLocation(*c.location)
	if err != nil {
		return nil, fmt.Errorf("loading location: %w", err)
	}

	a := &app{}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	db, err := c.openDB(ctx)
	if err != nil {
		return fail(fmt.Errorf("initializing database: %w", err))
	}
	a.closers = append(a.closers, db.Close)

	store, closeStore, err := c.openStorage(ctx)
	if err != nil {
		return fail(fmt.Errorf("initializing storage: %w", err))
	}
	a.closers = append(a.closers, closeStore)

	transcriber, err := c.openTranscriber(ctx)
	if err != nil {
		return fail(fmt.Errorf("initializing transcriber: %w", err))
	}
	router := extract.NewRouter(extract.NewPDF(*c.maxPages, transcriber), transcriber)
	a.closers = append(a.closers, router.Close)

	a.service = bill.NewService(db, router, store, ebon.WithLocation(loc))
	return a, nil
}
