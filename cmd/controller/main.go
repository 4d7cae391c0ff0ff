// Command controller is the lobby/match-coordination process: it binds the
// client-facing lobby port, loads the node catalog and database, and wires
// the player/game registries to the per-connection handler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/w3ctl/internal/actor"
	"github.com/udisondev/w3ctl/internal/auth"
	"github.com/udisondev/w3ctl/internal/config"
	"github.com/udisondev/w3ctl/internal/controller"
	"github.com/udisondev/w3ctl/internal/lobby"
	"github.com/udisondev/w3ctl/internal/session"
	"github.com/udisondev/w3ctl/internal/store"
	"github.com/udisondev/w3ctl/internal/transport"
	"github.com/udisondev/w3ctl/internal/wire"
)

const ConfigPath = "config/controller.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("W3CTL_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadController(cfgPath)
	if err != nil {
		return fmt.Errorf("loading controller config: %w", err)
	}

	if p := os.Getenv("CONTROLLER_SOCKET_PORT"); p != "" {
		var port int
		if _, err := fmt.Sscanf(p, "%d", &port); err == nil {
			cfg.Port = port
		}
	}
	if url := os.Getenv("NODE_REGISTRY_URL"); url != "" {
		cfg.NodeRegistryPath = url
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("w3ctl controller starting", "bind", cfg.BindAddress, "port", cfg.Port)

	secret := os.Getenv("HMAC_SECRET_BASE64")
	if secret == "" {
		return fmt.Errorf("HMAC_SECRET_BASE64 must be set")
	}
	signer, err := auth.NewSignerFromBase64(secret)
	if err != nil {
		return fmt.Errorf("building token signer: %w", err)
	}

	nodes, err := config.LoadNodeCatalog(cfg.NodeRegistryPath)
	if err != nil {
		return fmt.Errorf("loading node catalog: %w", err)
	}
	slog.Info("node catalog loaded", "nodes", len(nodes))

	db, err := store.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := store.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	engine := actor.NewEngine()
	sessions := session.NewRegistry(engine)
	games := lobby.NewRegistry(engine, sessions, nodes, nil, db)

	nodeList := make([]wire.NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		nodeList = append(nodeList, wire.NodeInfo{ID: int32(n.ID), Name: n.Name, Addr: n.Addr, Country: n.Country})
	}

	handler := &controller.Handler{
		Sessions:         sessions,
		Games:            games,
		Signer:           signer,
		Registry:         wire.NewRegistry(),
		Nodes:            nodeList,
		MinClientVersion: cfg.MinClientVersion,
	}

	listener := transport.NewListener(
		fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
		transport.Options{},
		handler.HandleConnection,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("lobby listener starting", "bind", cfg.BindAddress, "port", cfg.Port)
		return listener.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
