// Package main is the entry point for the medstore database migration tool.
// This tool applies the embedded credential store schema for the configured driver.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/prn-tf/medstore/internal/config"
	"github.com/prn-tf/medstore/internal/logging"
	"github.com/prn-tf/medstore/internal/repository"

	_ "github.com/prn-tf/medstore/internal/repository/postgres"
	_ "github.com/prn-tf/medstore/internal/repository/sqlite"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	fs := pflag.NewFlagSet("medstore-migrate", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	configPath := fs.StringP("config", "c", "", "path to the configuration file")
	fs.Usage = printUsage
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if fs.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := fs.Arg(0)
	switch command {
	case "version":
		fmt.Printf("medstore migration tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		return
	case "help", "-h", "--help":
		printUsage()
		return
	case "up", "status":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to read .env file: %v\n", err)
	}

	if err := run(context.Background(), *configPath, command, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, command string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	store, err := repository.NewFactory(cfg.Database, logger).Create(ctx)
	if err != nil {
		return err
	}
	defer store.Database.Close()

	return execute(ctx, store.Migrator, command, out)
}

func execute(ctx context.Context, m repository.Migrator, command string, out io.Writer) error {
	switch command {
	case "up":
		if err := m.Migrate(ctx); err != nil {
			return err
		}
		fallthrough
	case "status":
		version, err := m.Version(ctx)
		if err != nil {
			return err
		}
		pending, err := m.Pending(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "schema version: %d\n", version)
		if len(pending) == 0 {
			fmt.Fprintln(out, "no pending migrations")
			return nil
		}
		fmt.Fprintf(out, "%d pending migrations:\n", len(pending))
		for _, name := range pending {
			fmt.Fprintf(out, "  %s\n", name)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printUsage() {
	fmt.Println(`medstore migration tool

Usage:
  medstore-migrate [--config FILE] <command>

Commands:
  up          Apply all pending migrations
  status      Show the current schema version and pending migrations
  version     Print version information
  help        Show this help message

The driver and connection come from the configuration file or MEDSTORE_DATABASE_* variables.

Examples:
  medstore-migrate up
  MEDSTORE_DATABASE_DRIVER=postgres MEDSTORE_DATABASE_HOST=db medstore-migrate status`)
}
