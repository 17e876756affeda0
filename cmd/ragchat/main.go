// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/ragchat"
	"github.com/poiesic/ragchat/config"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/ingestion"
	"github.com/poiesic/ragchat/reembed"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ragchat",
		Usage: "Chat with your documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				EnvVars: []string{"RAGCHAT_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (text, json)",
				Value: "text",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (overrides server.addr)",
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Ingest documents and print their asset ids",
				ArgsUsage: "<file>...",
				Action:    ingestCommand,
			},
			{
				Name:      "ask",
				Usage:     "Ask a question about an ingested document",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "asset",
						Usage: "Start a new session for this asset id",
					},
					&cli.StringFlag{
						Name:  "session",
						Usage: "Continue an existing session",
					},
					&cli.BoolFlag{
						Name:  "trace",
						Usage: "Print retrieved chunks and the prompt to stderr",
					},
				},
			},
			{
				Name:      "history",
				Usage:     "Print a session's history as JSON",
				ArgsUsage: "<sessionId>",
				Action:    historyCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Re-embed every indexed chunk with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}
}

func setup(c *cli.Context) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	return setupLogger(c)
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(c.String("log-format")) {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", c.String("log-format"))
	}
	slog.SetDefault(slog.New(handler))

	return nil
}

func openApp(c *cli.Context, opts ...ragchat.Option) (*ragchat.App, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	app, err := ragchat.Open(c.Context, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open: %w", err)
	}
	return app, nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	srv, err := app.NewServer(slog.Default())
	if err != nil {
		return err
	}
	cfg := app.Config()
	return srv.ListenAndServe(ctx, cfg.Server.Addr, cfg.ShutdownTimeout())
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file is required")
	}

	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	for _, path := range c.Args().Slice() {
		assetID, err := app.Pipeline().Ingest(c.Context, ingestion.Source{
			Path:     path,
			FileName: filepath.Base(path),
		})
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", assetID, path)
	}
	return nil
}

func askCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if err := core.ValidateQuery(query); err != nil {
		return err
	}
	assetID, sessionID := c.String("asset"), c.String("session")
	if (assetID == "") == (sessionID == "") {
		return errors.New("exactly one of --asset or --session is required")
	}

	var opts []ragchat.Option
	if c.Bool("trace") {
		opts = append(opts, ragchat.WithMonitor(newTraceMonitor(c.App.ErrWriter)))
	}
	app, err := openApp(c, opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	id := core.SessionID(sessionID)
	if assetID != "" {
		id, err = app.Chat().StartSession(c.Context, core.AssetID(assetID))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.ErrWriter, "session: %s\n", id)
	}

	out := c.App.Writer
	_, err = app.Chat().Answer(c.Context, id, query, func(_ context.Context, fragment string) error {
		_, err := io.WriteString(out, fragment)
		return err
	})
	fmt.Fprintln(out)
	return err
}

type historyEntry struct {
	UserMessage   string    `json:"userMessage"`
	AgentResponse string    `json:"agentResponse"`
	CreatedAt     time.Time `json:"createdAt"`
}

func historyCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one session id is required")
	}

	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	history, err := app.Chat().History(c.Context, core.SessionID(c.Args().First()))
	if err != nil {
		return err
	}
	entries := make([]historyEntry, len(history))
	for i, ex := range history {
		entries[i] = historyEntry(ex)
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func reembedCommand(c *cli.Context) error {
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	scanner, ok := app.Scanner()
	if !ok {
		return reembed.ErrScannerRequired
	}
	cfg := app.Config()
	reembedConfig.Namespace = cfg.Index.Namespace

	reembedder, err := reembed.NewReembedder(scanner, app.Index(), app.Embedder(), reembedConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Index: %s (namespace %s)\n", cfg.Index.Backend, cfg.Index.Namespace)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	if _, err := reembedder.Run(c.Context); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}
