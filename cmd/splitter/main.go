package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/nitro41992/splitting-sucks/internal/config"
	"github.com/nitro41992/splitting-sucks/internal/media"
	"github.com/nitro41992/splitting-sucks/internal/operation"
	"github.com/nitro41992/splitting-sucks/internal/provider"
	"github.com/nitro41992/splitting-sucks/internal/server"
	"github.com/nitro41992/splitting-sucks/internal/telemetry"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env is normal in deployed environments
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	fs := ff.NewFlagSet("splitter")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "splitter.db", "Configuration database file path")
		mediaDir       = fs.StringLong("media-dir", "./buckets", "Directory mirroring gs:// buckets, one subdirectory per bucket")
		scratchDir     = fs.StringLong("scratch-dir", "", "Directory for request-scoped media files (default: system temp)")
		seedDir        = fs.StringLong("seed-dir", "", "Seed the configuration database from this directory at startup (optional)")
		requestTimeout = fs.DurationLong("request-timeout", server.DefaultRequestTimeout, "Deadline for each operation, including the provider call")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SPLITTER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "splitter", version)
	if err != nil {
		slog.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}()

	creds, err := provider.LoadCredentials()
	if err != nil {
		slog.Error("Failed to read provider credentials", "error", err)
		os.Exit(1)
	}

	// Initialize configuration store
	slog.Info("Initializing configuration store...", "path", *dbPath)
	store, err := config.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize configuration store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if *seedDir != "" {
		seed, err := config.LoadSeed(*seedDir)
		if err != nil {
			slog.Error("Failed to load seed", "dir", *seedDir, "error", err)
			os.Exit(1)
		}
		if err := seed.Apply(store); err != nil {
			slog.Error("Failed to apply seed", "dir", *seedDir, "error", err)
			os.Exit(1)
		}
	}

	// Initialize media storage
	if *scratchDir == "" {
		*scratchDir, err = os.MkdirTemp("", "splitter-media-*")
		if err != nil {
			slog.Error("Failed to create scratch directory", "error", err)
			os.Exit(1)
		}
		defer os.RemoveAll(*scratchDir)
	}
	scratch, err := media.NewLocalStorage(*scratchDir)
	if err != nil {
		slog.Error("Failed to initialize scratch storage", "error", err)
		os.Exit(1)
	}
	buckets, err := media.NewLocalStorage(*mediaDir)
	if err != nil {
		slog.Error("Failed to initialize media directory", "error", err)
		os.Exit(1)
	}

	// Provider calls share the request deadline
	client := &http.Client{
		Timeout:   *requestTimeout,
		Transport: telemetry.Transport(nil),
	}

	service := operation.NewService(
		config.NewResolver(store),
		media.NewAcquirer(buckets, scratch),
		provider.NewFactory(creds, client),
	)

	srv := server.NewServer(service, server.Config{
		BasicAuth: server.BasicAuth{
			Username: *authUser,
			Password: *authPass,
		},
		RequestTimeout: *requestTimeout,
		Version:        version,
	})

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	if err := srv.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}
