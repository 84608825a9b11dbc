// Package main is the entry point for the medstore admin CLI.
// This tool provides administrative commands for managing accounts, backups and keys.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/prn-tf/medstore/internal/app"
	"github.com/prn-tf/medstore/internal/config"
	"github.com/prn-tf/medstore/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := pflag.NewFlagSet("medstore-admin", pflag.ContinueOnError)
	global.SetInterspersed(false)
	configPath := global.StringP("config", "c", "", "path to the configuration file")
	adminUser := global.String("admin-user", "", "operator username (env MEDSTORE_ADMIN_USER)")
	adminPassword := global.String("admin-password", "", "operator password (env MEDSTORE_ADMIN_PASSWORD)")
	global.Usage = printUsage
	if err := global.Parse(args); err != nil {
		return 2
	}

	rest := global.Args()
	if len(rest) == 0 {
		printUsage()
		return 1
	}

	command := rest[0]
	switch command {
	case "version":
		fmt.Printf("medstore admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		return 0
	case "keygen":
		return report(keygen(os.Stdout))
	case "help", "-h", "--help":
		printUsage()
		return 0
	case "bootstrap", "user", "backup":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		return 1
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to read .env file: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return report(err)
	}
	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return report(err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{Migrate: cfg.Database.IsEmbedded()})
	if err != nil {
		return report(err)
	}
	defer a.Close()

	c := &cli{
		app:      a,
		out:      os.Stdout,
		operator: firstNonEmpty(*adminUser, os.Getenv("MEDSTORE_ADMIN_USER")),
		password: firstNonEmpty(*adminPassword, os.Getenv("MEDSTORE_ADMIN_PASSWORD")),
	}

	switch command {
	case "bootstrap":
		err = c.bootstrap(ctx, rest[1:])
	case "user":
		err = c.user(ctx, rest[1:])
	case "backup":
		err = c.backup(ctx, rest[1:])
	}
	return report(err)
}

func report(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func printUsage() {
	fmt.Println(`medstore admin CLI

Usage:
  medstore-admin [--config FILE] [--admin-user NAME --admin-password PASS] <command> [arguments]

Commands:
  bootstrap   Create the default administrator when no account exists
  user        Manage accounts (create, list, activate, deactivate, delete, reset-password)
  backup      Manage credential database snapshots (create, list, restore, prune)
  keygen      Generate a backup encryption key and a token signing secret
  version     Print version information
  help        Show this help message

User and backup commands sign in as the operator first, so the same
permission checks apply as in the terminal API.

Examples:
  medstore-admin bootstrap --username admin --password 'change-me'
  medstore-admin --admin-user admin user create --username till1 --password till2024 --role cashier
  medstore-admin --admin-user admin user list --role cashier
  medstore-admin --admin-user admin backup create
  medstore-admin keygen`)
}
