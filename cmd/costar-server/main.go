package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ritzau/costar/pkg/config"
	"github.com/ritzau/costar/pkg/explore"
	"github.com/ritzau/costar/pkg/gateway"
	"github.com/ritzau/costar/pkg/logging"
	"github.com/ritzau/costar/pkg/model"
	"github.com/ritzau/costar/pkg/watcher"
	"github.com/ritzau/costar/pkg/web"
)

const (
	reloadQuiet   = 200 * time.Millisecond
	reloadMaxWait = 2 * time.Second
)

func main() {
	flags := pflag.NewFlagSet("costar-server", pflag.ExitOnError)
	config.RegisterFlags(flags)
	verbose := flags.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	level, err := logging.ParseLevel(cfg.Log.Level, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if err := logging.Configure(os.Stderr, level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flags); err != nil {
		logging.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, flags *pflag.FlagSet) error {
	gw, err := gateway.Open(ctx, cfg.GatewayOptions())
	if err != nil {
		return fmt.Errorf("opening %s backend: %w", cfg.Gateway.Backend, err)
	}
	defer gw.Close()
	logging.Info("graph backend ready", "backend", cfg.Gateway.Backend)

	svc := explore.NewService(gw,
		explore.WithTimeout(cfg.Gateway.Timeout),
		explore.WithSearchLimit(cfg.Search.Limit))
	server := web.NewServer(svc, web.WithRateLimit(cfg.Server.RateLimit, cfg.Server.Burst))

	source := cfg.File
	if source == "" {
		source = "defaults"
	}
	if err := server.SetSettings(uiSettings(cfg), source); err != nil {
		return err
	}

	if cfg.Watch && cfg.File != "" {
		go watchSettings(ctx, server, cfg.File, flags)
	}

	return server.Start(ctx, cfg.Server.Port)
}

// watchSettings reloads display settings whenever the config file changes.
// Settings that fail to load or validate are logged and ignored.
func watchSettings(ctx context.Context, server *web.Server, path string, flags *pflag.FlagSet) {
	logging.Info("watching config for settings changes", "file", path)
	err := watcher.Watch(ctx, path, reloadQuiet, reloadMaxWait, func(ev watcher.ChangeEvent) {
		logging.Debug("config changed", "type", ev.Type.String(), "paths", ev.Paths)
		cfg, err := config.LoadFile(path, true, flags)
		if err != nil {
			logging.Warn("config reload failed", "file", path, "error", err)
			return
		}
		if err := server.SetSettings(uiSettings(cfg), path); err != nil {
			logging.Warn("settings rejected", "file", path, "error", err)
		}
	})
	if err != nil && ctx.Err() == nil {
		logging.Error("config watcher stopped", "error", err)
	}
}

func uiSettings(cfg *config.Config) model.UISettings {
	return model.UISettings{
		HideBottomBar: cfg.UI.HideBottomBar,
		PhysicsEngine: cfg.UI.Physics,
	}
}
