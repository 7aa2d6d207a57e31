package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/npezzotti/go-chatroom/internal/api"
	"github.com/npezzotti/go-chatroom/internal/bridge"
	"github.com/npezzotti/go-chatroom/internal/config"
	"github.com/npezzotti/go-chatroom/internal/database"
	"github.com/npezzotti/go-chatroom/internal/feed"
	"github.com/npezzotti/go-chatroom/internal/kv"
	"github.com/npezzotti/go-chatroom/internal/logging"
	"github.com/npezzotti/go-chatroom/internal/presence"
	"github.com/npezzotti/go-chatroom/internal/rooms"
	"github.com/npezzotti/go-chatroom/internal/server"
	"github.com/npezzotti/go-chatroom/internal/stats"
)

const (
	serviceName     = "go-chat"
	shutdownTimeout = 10 * time.Second
)

var version = "dev"

var (
	configPath string
	addr       string
)

func main() {
	flag.StringVar(&configPath, "config", "", "path to a YAML config file")
	flag.StringVar(&addr, "addr", "", "server address, overrides the config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.ServerAddr = addr
	}

	logger := logging.New(logging.Config{
		Service:    serviceName,
		Version:    version,
		InstanceId: cfg.InstanceId,
		Env:        cfg.Logging.Env,
		Backend:    logging.Backend(cfg.Logging.Backend),
		Level:      cfg.Logging.Level,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("exiting", "err", err)
		os.Exit(1)
	}
}

// sharedStore connects the shared store and the fan-out transport selected
// by the bridge backend. The memory backend runs a single node without Redis.
func sharedStore(cfg *config.Config) (kv.Store, bridge.Transport, error) {
	if cfg.Bridge.Backend == config.BridgeMemory {
		return kv.NewMemoryStore(), bridge.NewMemoryTransport(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := kv.NewRedisStore(client)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	if cfg.Bridge.Backend == config.BridgeNats {
		nc, err := bridge.ConnectNats(cfg.Bridge.NatsURL, serviceName+"-"+cfg.InstanceId)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, bridge.NewNatsTransport(nc), nil
	}

	return store, bridge.NewRedisTransport(store.Client()), nil
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}
	repo := database.NewPgGoChatRepository(db)

	store, transport, err := sharedStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	defer transport.Close()

	index := rooms.NewIndex(store, database.NewUserDirectory(repo))
	seedCtx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	err = index.SeedGeneral(seedCtx)
	cancel()
	if err != nil {
		return err
	}

	statsUpdater := stats.NewStatsUpdater(cfg.InstanceId)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	fanout := bridge.New(cfg.InstanceId, cfg.Bridge.Channel, transport, logger, statsUpdater)

	chatServer, err := server.NewChatServer(logger, server.Options{
		KV:           store,
		Presence:     presence.NewStore(store),
		Rooms:        index,
		Feed:         feed.New(store),
		Store:        repo,
		Bridge:       fanout,
		StoreTimeout: cfg.StoreTimeout,
	}, statsUpdater)
	if err != nil {
		return fmt.Errorf("new chat server: %w", err)
	}

	app := api.NewGoChatApp(logger, chatServer, repo, store, statsUpdater.Handler(), cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, err := fanout.Subscribe(ctx, chatServer.HandleRemote)
	if err != nil {
		return err
	}

	go chatServer.Run()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := app.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := sub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("bridge unsubscribe: %w", err))
		}
		if err := chatServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("chat server shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
