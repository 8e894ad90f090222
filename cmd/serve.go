package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"aihub-gateway/internal/config"
	"aihub-gateway/internal/dispatch"
	"aihub-gateway/internal/provider"
	providerfactory "aihub-gateway/internal/provider/factory"
	"aihub-gateway/internal/server"
	"aihub-gateway/internal/store"
	"aihub-gateway/internal/uimap"
)

const serveUsage = `Usage:
  aihub-gateway serve [--config <path>] [--port <port>]

Flags:
  --config string   Path to YAML configuration file (optional; environment
                    variables and .env cover everything the file can set)
  --port   int      Override server port from configuration`

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath string
	var overridePort int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort <= 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	registry := provider.NewRegistry()
	if err := providerfactory.RegisterConfiguredProviders(cfg, registry); err != nil {
		return err
	}

	table, err := uimap.New()
	if err != nil {
		return err
	}

	sessions, err := newSessionStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer sessions.Close()

	dispatcher := dispatch.New(registry, table, sessions)

	srv, err := server.New(cfg, dispatcher, sessions)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

func newSessionStore(cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.StorageSQLite:
		return store.NewSQLiteStore(cfg.Path)
	case config.StorageMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
