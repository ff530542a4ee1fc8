package main

import (
	"context"
	"database/sql"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/learnchain/gatehouse/adapters/events"
	"github.com/learnchain/gatehouse/adapters/store"
	"github.com/learnchain/gatehouse/adapters/tokenizer"
	"github.com/learnchain/gatehouse/adapters/verifier"
	"github.com/learnchain/gatehouse/config"
	"github.com/learnchain/gatehouse/service"
	transport "github.com/learnchain/gatehouse/transport/http"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log := logrus.New()

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("auth.jwt_secret (GATEHOUSE_AUTH_JWT_SECRET) is required")
	}

	ctx := context.Background()

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("failed to parse redis URL: %v", err)
	}
	redisClient := redis.NewClient(opts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.DSN))
	db := bun.NewDB(sql.OpenDB(connector), pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	if err := store.CreateTables(ctx, db); err != nil {
		log.Fatalf("failed to create tables: %v", err)
	}

	wmLogger := watermill.NewStdLogger(false, false)
	wmPublisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: redisClient},
		wmLogger,
	)
	if err != nil {
		log.Fatalf("failed to create redis publisher: %v", err)
	}

	identities := store.NewBunIdentityStore(db)
	sessions := store.NewBunSessionStore(db)
	eventLog := store.NewBunEventStore(db)
	progress := store.NewBunProgressStore(db)
	nonceStore := store.NewRedisNonceStore(redisClient)
	adminMirror := store.NewRedisAdminMirror(redisClient)
	publisher := events.NewWatermillPublisher(wmPublisher)
	tokens := tokenizer.NewJWTTokenizer(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL)

	nonceService := service.NewNonceService(nonceStore, cfg.Auth.NonceTTL, log)
	adminResolver := service.NewAdminResolver(
		[]service.AdminLookup{
			service.IdentityAdminLookup{Store: identities},
			service.MirrorAdminLookup{Mirror: adminMirror},
		},
		identities,
		adminMirror,
		cfg.Auth.AdminCacheTTL,
		log,
	)
	gateService := service.NewGateService(
		nonceService, identities, adminResolver,
		verifier.NewEthVerifier(), tokens, eventLog, publisher, log,
	)
	sessionService := service.NewSessionService(sessions, cfg.Auth.SessionTimeout, log)
	trackerService := service.NewTrackerService(eventLog, progress, publisher, log)

	handlers := transport.NewHandlers(nonceService, gateService, sessionService, trackerService, log)
	router := transport.SetupRouter(handlers, tokens)

	log.WithField("addr", cfg.Server.Addr).Info("starting gatehouse")
	if err := router.Run(cfg.Server.Addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
