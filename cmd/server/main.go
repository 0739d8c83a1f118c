package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	idmetrics "voteboard/internal/identity/metrics"
	idmodels "voteboard/internal/identity/models"
	"voteboard/internal/identity/provider"
	"voteboard/internal/identity/roles"
	idservice "voteboard/internal/identity/service"
	"voteboard/internal/identity/session"
	"voteboard/internal/identity/store/directory"
	httpapi "voteboard/internal/http"
	"voteboard/internal/platform/config"
	"voteboard/internal/platform/httpserver"
	"voteboard/internal/platform/logger"
	"voteboard/internal/platform/metrics"
	"voteboard/internal/platform/postgres"
	platformredis "voteboard/internal/platform/redis"
	rlmetrics "voteboard/internal/ratelimit/metrics"
	rlmiddleware "voteboard/internal/ratelimit/middleware"
	rlmodels "voteboard/internal/ratelimit/models"
	rlservice "voteboard/internal/ratelimit/service"
	"voteboard/internal/ratelimit/store/bucket"
	"voteboard/internal/vote/cache"
	votehandler "voteboard/internal/vote/handler"
	votemetrics "voteboard/internal/vote/metrics"
	"voteboard/internal/vote/ports"
	voteservice "voteboard/internal/vote/service"
	votestore "voteboard/internal/vote/store"
	"voteboard/pkg/platform/audit"
	auditkafka "voteboard/pkg/platform/audit/kafka"
	auditmemory "voteboard/pkg/platform/audit/store/memory"
	"voteboard/pkg/platform/audit/publisher"
)

// directoryStore is what main needs from a community directory backend.
type directoryStore interface {
	FindByID(ctx context.Context, userID string) (*idmodels.CommunityUser, error)
	Upsert(ctx context.Context, user idmodels.CommunityUser) error
	Ping(ctx context.Context) error
}

// main wires dependencies and runs the HTTP server and the rate limit sweeper
// until SIGINT or SIGTERM.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "voteboard:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level)
	if cfg.Identity.SessionSecret == config.DevSessionSecret {
		log.Warn("using the development session secret; set VOTEBOARD_IDENTITY_SESSION_SECRET")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	voteMetrics := votemetrics.New(reg)

	auditPublisher, auditSink, closeAudit, err := buildAudit(ctx, cfg.Audit, log)
	if err != nil {
		return err
	}
	defer closeAudit()

	var (
		votes ports.Store
		dir   directoryStore
	)
	if cfg.Postgres.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
		}
		votes, dir = postgresStores(db, cfg.Vote, log, voteMetrics)
		log.Info("using postgres vote store")
	} else {
		votes, dir = votestore.NewInMemoryStore(), directory.NewInMemoryStore()
		log.Warn("VOTEBOARD_POSTGRES_DSN not set, votes are kept in memory")
	}

	rdb, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	var (
		buckets    rlservice.BucketStore = bucket.New()
		boardCache ports.Cache           = cache.NewInMemoryCache()
	)
	if rdb != nil {
		defer rdb.Close()
		buckets = bucket.NewRedis(rdb.Client)
		boardCache = cache.NewRedisCache(rdb.Client)
		log.Info("using redis rate limit buckets and board cache")
	}

	limiter, err := rlservice.New(buckets,
		rlservice.WithLogger(log),
		rlservice.WithAuditPublisher(auditPublisher),
		rlservice.WithMetrics(rlmetrics.New(reg)),
		rlservice.WithLimits(rlservice.Limits{
			IP:   rlmodels.Limit{Requests: cfg.RateLimit.IPLimit, Window: cfg.RateLimit.IPWindow},
			User: rlmodels.Limit{Requests: cfg.RateLimit.UserLimit, Window: cfg.RateLimit.UserWindow},
			Read: rlmodels.Limit{Requests: cfg.RateLimit.ReadLimit, Window: cfg.RateLimit.ReadWindow},
		}),
	)
	if err != nil {
		return err
	}

	table, err := roleTable(cfg.Identity)
	if err != nil {
		return err
	}
	if err := seedDirectory(ctx, dir, cfg.Identity, auditPublisher, log); err != nil {
		return err
	}

	codec := session.NewCodec(cfg.Identity.SessionSecret, cfg.Identity.SessionIssuer, cfg.Identity.SessionTTL)
	verifier, err := idservice.New(codec,
		provider.New(cfg.Identity.ProviderBaseURL,
			provider.WithTimeout(cfg.Identity.ProviderTimeout),
			provider.WithLogger(log),
		),
		dir,
		cfg.Identity.RequiredServerID,
		idservice.WithLogger(log),
		idservice.WithAuditPublisher(auditPublisher),
		idservice.WithMetrics(idmetrics.New(reg)),
	)
	if err != nil {
		return fmt.Errorf("identity verifier (set VOTEBOARD_IDENTITY_REQUIRED_SERVER_ID): %w", err)
	}

	svc, err := voteservice.New(votes, boardCache, limiter, verifier, codec, table,
		voteservice.WithLogger(log),
		voteservice.WithAuditPublisher(auditPublisher),
		voteservice.WithMetrics(voteMetrics),
		voteservice.WithCacheTTL(cfg.Vote.CacheTTL),
	)
	if err != nil {
		return err
	}

	checks := []httpapi.Check{
		{Name: "store", Ping: votes.Ping},
		{Name: "cache", Ping: boardCache.Ping},
	}
	if rdb != nil {
		checks = append(checks, httpapi.Check{Name: "redis", Ping: rdb.Health})
	}
	if auditSink != nil {
		checks = append(checks, httpapi.Check{Name: "audit_kafka", Ping: auditSink.Ping})
	}
	router := httpapi.NewRouter(httpapi.Config{
		Logger:            log,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		RequestTimeout:    cfg.Server.RequestTimeout,
		Metrics:           reg.Handler(),
		Checks:            checks,
		Votes:             votehandler.New(svc, log),
		ReadLimit:         rlmiddleware.New(limiter, log).RateLimitRead,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return limiter.RunSweeper(gctx, cfg.RateLimit.SweepInterval)
	})
	g.Go(func() error {
		return httpserver.Serve(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("voteboard stopped")
	return nil
}

func postgresStores(db *sql.DB, cfg config.VoteConfig, log *slog.Logger, m *votemetrics.Metrics) (ports.Store, directoryStore) {
	return votestore.NewPostgresStore(db,
			votestore.WithTxTimeout(cfg.TxTimeout),
			votestore.WithMaxAttempts(cfg.TxMaxRetries),
			votestore.WithLogger(log),
			votestore.WithMetrics(m),
		),
		directory.NewPostgresStore(db)
}

// buildAudit returns a publisher backed by an in-memory ring and, when brokers
// are configured, the Kafka sink it also writes to.
func buildAudit(ctx context.Context, cfg config.AuditConfig, log *slog.Logger) (*publisher.Publisher, *auditkafka.Sink, func(), error) {
	opts := []publisher.Option{
		publisher.WithAsyncBuffer(cfg.BufferSize),
		publisher.WithLogger(log),
	}
	var sink *auditkafka.Sink
	if len(cfg.Brokers) > 0 {
		var err error
		sink, err = auditkafka.New(cfg.Brokers, cfg.Topic, auditkafka.WithLogger(log))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("audit kafka sink: %w", err)
		}
		if err := sink.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("could not ensure audit topic", "topic", cfg.Topic, "error", err)
		}
		opts = append(opts, publisher.WithSinks(sink))
		log.Info("publishing audit events to kafka", "topic", cfg.Topic)
	}

	pub := publisher.NewPublisher(auditmemory.NewInMemoryStore(cfg.Retain), opts...)
	return pub, sink, func() {
		pub.Close()
		if sink != nil {
			sink.Close()
		}
	}, nil
}

func roleTable(cfg config.IdentityConfig) (*roles.Table, error) {
	tiers, err := cfg.ParseRoleTiers()
	if err != nil {
		return nil, err
	}
	out := make([]idmodels.Role, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, idmodels.Role{ID: t.ID, Name: t.Name, Weight: t.Weight})
	}
	return roles.NewTable(out)
}

func seedDirectory(ctx context.Context, dir directoryStore, cfg config.IdentityConfig, pub *publisher.Publisher, log *slog.Logger) error {
	users, err := cfg.ParseSeedUsers()
	if err != nil || len(users) == 0 {
		return err
	}
	for _, u := range users {
		if err := dir.Upsert(ctx, idmodels.CommunityUser{UserID: u.ID, DisplayName: u.DisplayName, RoleIDs: u.RoleIDs}); err != nil {
			return fmt.Errorf("seed community user %s: %w", u.ID, err)
		}
	}
	_ = pub.Emit(ctx, audit.Event{
		Action: string(audit.EventDirectorySeeded),
		Reason: fmt.Sprintf("%d users", len(users)),
	})
	log.Info("seeded community directory", "users", len(users))
	return nil
}
