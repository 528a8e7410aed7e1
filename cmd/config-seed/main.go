package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/nitro41992/splitting-sucks/internal/config"
)

func main() {
	fs := ff.NewFlagSet("config-seed")
	var (
		dbPath  = fs.StringLong("db", "splitter.db", "Configuration database file path")
		seedDir = fs.StringLong("seed-dir", "./seed", "Directory holding models/ and prompts/ documents")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SPLITTER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	seed, err := config.LoadSeed(*seedDir)
	if err != nil {
		slog.Error("Failed to load seed", "dir", *seedDir, "error", err)
		os.Exit(1)
	}
	if len(seed.Models) == 0 && len(seed.Prompts) == 0 {
		slog.Warn("Seed directory holds no documents", "dir", *seedDir)
	}

	store, err := config.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to open configuration store", "path", *dbPath, "error", err)
		os.Exit(1)
	}

	if err := seed.Apply(store); err != nil {
		store.Close()
		slog.Error("Failed to apply seed", "error", err)
		os.Exit(1)
	}

	if err := store.Close(); err != nil {
		slog.Error("Failed to close configuration store", "error", err)
		os.Exit(1)
	}

	slog.Info("Seeded configuration store", "path", *dbPath, "models", len(seed.Models), "prompts", len(seed.Prompts))
}
