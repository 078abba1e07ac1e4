package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-bookmeta/config"
	"github.com/aluiziolira/go-bookmeta/pipeline"
	"github.com/aluiziolira/go-bookmeta/store"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	cfgFile     string
	verbose     bool
	metricsAddr string
	dbPath      string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "bookmeta",
	Short: "Resolve book metadata and cover candidates from ISBNs",
	Long: `bookmeta looks an ISBN up in the local catalogue, then Google Books and
Open Library, and assembles up to four cover candidates from cover APIs and
title/author searches on Hardcover, the Internet Archive and Open Library.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Flags().Changed("verbose") {
			loaded.Verbose = verbose
		}
		if cmd.Flags().Changed("metrics-addr") {
			loaded.MetricsAddr = metricsAddr
		}
		if cmd.Flags().Changed("db") {
			loaded.DatabasePath = dbPath
		}
		cfg = loaded

		logger, level := newLogger(cfg.Verbose)
		slog.SetDefault(logger)
		slog.SetLogLoggerLevel(level.Level())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite catalogue consulted before any upstream")

	rootCmd.AddCommand(isbnCmd, lookupCmd, coversCmd, webCoversCmd, batchCmd, seedCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// session holds what a command needs to talk to the upstreams.
type session struct {
	engine *pipeline.Engine
	local  *store.SQLiteStore
	server *http.Server
}

func newSession() (*session, error) {
	sess := &session{}

	var local pipeline.LocalStore
	if cfg.DatabasePath != "" {
		s, err := store.OpenSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		sess.local = s
		local = s
	}

	engine, err := pipeline.NewFromConfig(cfg, local, nil)
	if err != nil {
		sess.close()
		return nil, err
	}
	sess.engine = engine

	if cfg.MetricsAddr != "" {
		sess.server = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(engine.Metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := sess.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}
	return sess, nil
}

func (sess *session) close() {
	if sess.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := sess.server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}
	if sess.local != nil {
		if err := sess.local.Close(); err != nil {
			slog.Error("close catalogue", slog.Any("error", err))
		}
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

// newLogger logs to stderr so stdout carries only command output.
func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
