package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/nari/internal/cache"
	"github.com/alfredjeanlab/nari/internal/commands"
	"github.com/alfredjeanlab/nari/internal/config"
	"github.com/alfredjeanlab/nari/internal/dispatch"
	"github.com/alfredjeanlab/nari/internal/events"
	"github.com/alfredjeanlab/nari/internal/gateway"
	"github.com/alfredjeanlab/nari/internal/registry"
	"github.com/alfredjeanlab/nari/internal/server"
	"github.com/alfredjeanlab/nari/internal/store"
	narisync "github.com/alfredjeanlab/nari/internal/sync"
)

var serveCmd = localCmd(&cobra.Command{
	Use:     "serve",
	Short:   "Start the nari server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		cfg, policy, err := loadConfig()
		if err != nil {
			return err
		}
		unknown, err := dispatch.ParseUnknownPolicy(policy.UnknownCommand)
		if err != nil {
			return err
		}
		alloc, err := newAllocator(policy)
		if err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("error closing store", "err", err)
			}
		}()

		// Lookup cache.
		var badgeCache cache.Cache = cache.Noop{}
		if cfg.RedisAddr != "" {
			rc := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
			if err := rc.Ping(context.Background()); err != nil {
				logger.Warn("redis unreachable, lookups fall through to the store until it recovers", "addr", cfg.RedisAddr, "err", err)
			}
			badgeCache = rc
			logger.Info("lookup cache enabled", "redis_addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
		}
		defer badgeCache.Close()

		// NATS carries gateway actions, inbound invocations and events.
		hub := server.NewEventHub(logger)
		var (
			nc        *nats.Conn
			gw        gateway.Gateway = gateway.LogGateway{Logger: logger}
			publisher events.Publisher
		)
		if cfg.NATSURL != "" {
			nc, err = gateway.Connect(cfg.NATSURL, "nari-server")
			if err != nil {
				return err
			}
			defer nc.Close()
			gw = gateway.NewNATSGateway(nc)
			publisher = events.Fanout{events.NewNATSPublisherWithConn(nc), hub}
			logger.Info("NATS enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = hub
			logger.Info("NATS disabled (NARI_NATS_URL not set), gateway actions are only logged")
		}

		reg, err := registry.New(registry.Options{
			Store:        store,
			Allocator:    alloc,
			Roles:        gw,
			VerifiedRole: policy.VerifiedRole,
			Cache:        badgeCache,
			Publisher:    publisher,
			Logger:       logger,
		})
		if err != nil {
			return err
		}
		report, err := reg.Reconcile(context.Background())
		if err != nil {
			return err
		}
		if report.Adjusted {
			logger.Warn("badge counter repaired", "previous", report.Previous, "counter", report.Counter)
		}
		logger.Info("ledger ready", "badges", report.Badges, "counter", report.Counter, "prefix", reg.Prefix())

		disp, err := dispatch.New(dispatch.Options{
			Resolver:      gateway.MentionResolver{},
			UnknownPolicy: unknown,
			CommandPrefix: policy.CommandPrefix,
			Logger:        logger,
		})
		if err != nil {
			return err
		}
		if err := commands.Register(disp, commands.Deps{
			Registry:  reg,
			Gateway:   gw,
			Store:     store,
			Publisher: publisher,
			Policy:    policy,
			Logger:    logger,
		}); err != nil {
			return err
		}

		nariServer, err := server.NewNariServer(server.Options{
			Dispatcher: disp,
			Registry:   reg,
			Store:      store,
			Hub:        hub,
			Logger:     logger,
		})
		if err != nil {
			return err
		}

		// Inbound invocations from the platform gateway.
		var listener *gateway.Listener
		if nc != nil {
			listener = gateway.NewListener(nc, disp, cfg.Workers, logger)
			if err := listener.Start(); err != nil {
				return err
			}
		}

		grpcServer := server.NewGRPCServer(nariServer, cfg.AuthToken)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           nariServer.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		scheduler := startSync(cfg, store, logger)

		if cfg.AuthToken == "" {
			logger.Warn("auth disabled (NARI_AUTH_TOKEN not set)")
		}
		logger.Info("nari server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"commands", len(disp.Handlers()),
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if listener != nil {
			if err := listener.Stop(); err != nil {
				logger.Error("command listener shutdown error", "err", err)
			}
			logger.Info("command listener stopped")
		}

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
})

// startSync starts the backup scheduler when an interval and at least one
// destination are configured.
func startSync(cfg *config.Config, s store.Store, logger *slog.Logger) *narisync.Scheduler {
	if cfg.SyncInterval <= 0 {
		return nil
	}
	var dests []narisync.Destination

	if cfg.SyncS3Bucket != "" {
		s3Dest, err := narisync.NewS3Destination(
			context.Background(),
			cfg.SyncS3Bucket,
			cfg.SyncS3Key,
			cfg.SyncS3Region,
			cfg.SyncS3Endpoint,
		)
		if err != nil {
			logger.Error("failed to create S3 sync destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}

	if cfg.SyncGitRepo != "" {
		dests = append(dests, narisync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
		logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
	}

	if len(dests) == 0 {
		return nil
	}
	scheduler := narisync.NewScheduler(s, dests, cfg.SyncInterval, logger)
	scheduler.Start()
	logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
	return scheduler
}
