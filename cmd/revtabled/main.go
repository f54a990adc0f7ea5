// Command revtabled wires the configured Cassandra connection to the
// storage engine. It exposes no router of its own: the HTTP/RPC front end
// that would call into engine.DB is out of scope for this repository.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/axonops/revtable/internal/config"
	"github.com/axonops/revtable/internal/engine"
	"github.com/axonops/revtable/internal/engine/cassandra"
	"github.com/axonops/revtable/internal/storagegroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("revtabled exiting", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Logging)

	exec, err := cassandra.NewExecutor(cassandra.Config{
		Hosts:    cfg.Cassandra.Hosts,
		Port:     cfg.Cassandra.Port,
		Username: cfg.Cassandra.Username,
		Password: cfg.Cassandra.Password,
	}, logger)
	if err != nil {
		return fmt.Errorf("connecting to cassandra: %w", err)
	}
	defer exec.Close()

	groups := make([]storagegroup.Group, len(cfg.Groups))
	for i, g := range cfg.Groups {
		groups[i] = storagegroup.Group{Name: g.Name, Domains: g.Domains}
	}

	db, err := engine.NewDB(exec, engine.Config{
		DefaultConsistency: cfg.Consistency.Default,
		Datacenters:        cfg.Datacenters,
		StorageGroups:      groups,
	}, logger)
	if err != nil {
		return fmt.Errorf("constructing engine: %w", err)
	}
	_ = db

	logger.Info("revtabled ready", "hosts", cfg.Cassandra.Hosts, "datacenters", cfg.Datacenters)
	select {}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
