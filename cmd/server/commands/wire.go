package commands

import (
	"context"
	"fmt"
	"mpc_match/internal/config"
	"mpc_match/internal/protocol/mpc"
	"mpc_match/internal/protocol/mpc/transcript"
	matchRepo "mpc_match/internal/repository/match"
	shareRepo "mpc_match/internal/repository/share"
	userRepo "mpc_match/internal/repository/user"
	"mpc_match/internal/service/matching"
	"mpc_match/internal/service/registry"
	"mpc_match/internal/service/session"
	"mpc_match/internal/service/sharestore"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// core is everything a match run needs.
type core struct {
	mongo     *mongo.Client
	registry  *registry.Registry
	shares    *sharestore.Store
	engine    mpc.Engine
	scheduler *matching.Scheduler
}

func buildCore(ctx context.Context, cfg *config.Config) (*core, error) {
	client, err := initMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	db := client.Database(cfg.Mongo.Database)

	users := userRepo.NewUserRepo(db)
	matches := matchRepo.NewMatchRepo(db)
	if err := users.EnsureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	if err := matches.EnsureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	circuit, err := mpc.LoadCircuit(&cfg.Circuit)
	if err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	engine := transcript.New()
	reg := registry.NewRegistry(users, matches, cfg.Registry.MaxHandleLength)
	store := sharestore.NewStore(&cfg.Storage, shareRepo.NewHashRepo(db))
	runner := session.NewRunner(&cfg.Session, engine, circuit)

	return &core{
		mongo:     client,
		registry:  reg,
		shares:    store,
		engine:    engine,
		scheduler: matching.NewScheduler(&cfg.Matching, reg, store, engine, runner),
	}, nil
}

func (c *core) Close(ctx context.Context) error {
	return c.mongo.Disconnect(ctx)
}

func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
