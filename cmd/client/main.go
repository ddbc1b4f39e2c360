package main

import (
	"context"
	"fmt"
	"mpc_match/internal/service/app"
	redisSvc "mpc_match/internal/service/redis"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func main() {
	var host, redisAddr string

	root := &cobra.Command{
		Use:   "matchc",
		Short: "Terminal client for the matching server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var cache *redisSvc.RedisService
			if redisAddr != "" {
				cache = redisSvc.NewRedis(redis.NewClient(&redis.Options{Addr: redisAddr}))
				pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				err := cache.Ping(pctx)
				cancel()
				if err != nil {
					fmt.Fprintf(os.Stderr, "session cache disabled: %v\n", err)
					cache = nil
				}
			}

			c := app.NewApp(app.NewAPI(host), cache)
			c.Run(ctx)
			c.Stop()
			return nil
		},
	}
	root.Flags().StringVar(&host, "server", "localhost:8000", "matching server host:port")
	root.Flags().StringVar(&redisAddr, "redis", "", "redis address for caching sessions (optional)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
