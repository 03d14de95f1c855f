package main

import (
	"context"
	"fmt"
	rand "math/rand/v2"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/greenfelt/greenfelt/internal/config"
	"github.com/greenfelt/greenfelt/internal/lobby"
	"github.com/greenfelt/greenfelt/internal/poker"
	"github.com/greenfelt/greenfelt/internal/randutil"
	"github.com/greenfelt/greenfelt/internal/rewards"
	"github.com/greenfelt/greenfelt/internal/server"
	"github.com/greenfelt/greenfelt/internal/session"
)

var CLI struct {
	Config   string `short:"c" default:"greenfelt.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" help:"Listen address host:port (overrides config)"`
	LogLevel string `short:"l" help:"Log level (overrides config)"`
	DBPath   string `help:"Rewards database path (overrides config)"`
	Seed     int64  `help:"Deterministic shuffle seed for reproducible games (0 = secure random)"`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("greenfelt"),
		kong.Description("Realtime multiplayer card game server hosting hold'em and UNO lobbies."))

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		kctx.Exit(1)
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	if CLI.DBPath != "" {
		cfg.Server.DBPath = CLI.DBPath
	}

	logger := log.New(os.Stderr)
	switch cfg.Server.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	addr := cfg.ListenAddr()
	if CLI.Addr != "" {
		addr = CLI.Addr
	}

	store, err := rewards.Open(cfg.Server.DBPath, logger)
	if err != nil {
		logger.Error("Failed to open rewards database", "error", err)
		kctx.Exit(1)
	}

	newRNG := func() *rand.Rand {
		return randutil.NewSecure()
	}
	if CLI.Seed != 0 {
		var n int64
		newRNG = func() *rand.Rand {
			return randutil.New(CLI.Seed + atomic.AddInt64(&n, 1))
		}
		logger.Warn("Running with a deterministic shuffle seed", "seed", CLI.Seed)
	}

	clock := quartz.NewReal()
	sessions := session.NewManager(clock, time.Duration(cfg.Lobby.GraceSeconds)*time.Second, logger)
	registry := lobby.NewRegistry(lobby.NewCodeGenerator(nil))

	srv := server.NewServer(addr, logger)
	dispatcher := server.NewDispatcher(server.Options{
		Poker: poker.Config{
			SmallBlind:    cfg.Poker.SmallBlind,
			BigBlind:      cfg.Poker.BigBlind,
			StartingStack: cfg.Poker.StartingStack,
			TurnTimeout:   time.Duration(cfg.Poker.TurnTimeoutSec) * time.Second,
		},
		GraceWindow:   time.Duration(cfg.Lobby.GraceSeconds) * time.Second,
		MaxPlayers:    cfg.Lobby.MaxPlayers,
		PublicPerGame: cfg.Lobby.PublicPerGame,
	}, registry, sessions, store, srv, clock, newRNG, logger)
	srv.SetHandler(dispatcher)
	dispatcher.Bootstrap()

	logger.Info("Starting greenfelt", "addr", addr, "db", cfg.Server.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var g errgroup.Group
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		dispatcher.Shutdown()
		_ = srv.Stop()
		return store.Close()
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server failed", "error", err)
		kctx.Exit(1)
	}
}
