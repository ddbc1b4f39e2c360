package commands

import (
	"context"
	"errors"
	"fmt"
	redisSvc "mpc_match/internal/service/redis"
	"mpc_match/internal/service/server"
	"mpc_match/internal/utils/log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := buildCore(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close(context.Background())

			rdb := redisSvc.NewRedis(redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			}))
			defer rdb.Close()
			if err := rdb.Ping(ctx); err != nil {
				return fmt.Errorf("connect redis: %w", err)
			}

			s := server.NewHttpServer(&cfg.Server, cfg.Storage.MaxShareSize, server.Deps{
				Registry: c.registry,
				Shares:   c.shares,
				Matcher:  c.scheduler,
				Splitter: c.engine,
				Tokens:   redisSvc.NewTokenStore(rdb, cfg.Redis.TokenTTL),
				Mailbox:  redisSvc.NewMailbox(rdb, cfg.Redis.TokenTTL),
			})
			c.scheduler.SetNotifier(s)

			if err := s.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			log.Info("server stopped", zap.String("addr", cfg.Server.Addr))
			return nil
		},
	}
}
