// Command brokercore dials the cluster's shared KVS and exposes the session,
// subscription, retained, and matcher operations of internal/store to the
// MQTT front-end process running on this node. The TCP/MQTT packet codec
// itself is an external collaborator (see spec.md §1) and is not part of
// this binary.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/qttmesh/core/internal/config"
	"github.com/qttmesh/core/internal/logger"
	"github.com/qttmesh/core/internal/store"
)

func main() {
	cfg, err := config.Load("config.yml")
	if err != nil {
		logger.Global().Error("failed to load config", logger.Field("error", err))
		os.Exit(1)
	}

	logger.InitGlobal(logger.Config{
		Level:       parseLevel(cfg.Logging.Level),
		Format:      cfg.Logging.Format,
		Service:     cfg.Name,
		NodeID:      cfg.Node.ID,
		Environment: "production",
	})
	log := logger.Component("brokercore")

	st := store.Dial(cfg.Redis.Addr, cfg.Redis.DialTimeout, store.Options{
		MatchConcurrency: cfg.Redis.MatchFanout,
		PacketIDLimit:    cfg.Redis.PacketIDWindow,
		Logger:           logger.Component("store"),
	})
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout)
	err = st.Ping(ctx)
	cancel()
	if err != nil {
		log.Error("cannot reach kvs", logger.Field("addr", cfg.Redis.Addr), logger.Field("error", err))
		os.Exit(1)
	}
	log.Info("connected to kvs", logger.Field("addr", cfg.Redis.Addr), logger.Field("node_id", cfg.Node.ID))

	// The MQTT front-end (packet decode/encode, connection lifecycle) is an
	// external collaborator; this process only needs to keep the store's
	// KVS connection alive and release it cleanly on shutdown.
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("brokercore ready", logger.Field("port", cfg.Server.Port))
	<-sigCtx.Done()

	log.Info("graceful shutdown triggered")
	if err := st.Close(); err != nil {
		log.Error("error closing kvs connection", logger.Field("error", err))
	}
	log.Info("graceful shutdown complete")
}

func parseLevel(s string) logger.Level {
	switch s {
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}
