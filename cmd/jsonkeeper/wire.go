package main

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/totegamma/jsonkeeper/client"
	"github.com/totegamma/jsonkeeper/internal/config"
	"github.com/totegamma/jsonkeeper/internal/domain"
	"github.com/totegamma/jsonkeeper/internal/infra/cache"
	"github.com/totegamma/jsonkeeper/internal/infra/database"
	"github.com/totegamma/jsonkeeper/internal/infra/gateway"
	"github.com/totegamma/jsonkeeper/internal/infra/repository"
	"github.com/totegamma/jsonkeeper/internal/logger"
	"github.com/totegamma/jsonkeeper/internal/metrics"
	"github.com/totegamma/jsonkeeper/internal/service"
	"github.com/totegamma/jsonkeeper/internal/usecase"
	"github.com/totegamma/jsonkeeper/internal/utils"
)

// app is the fully wired process.
type app struct {
	conf    config.Config
	cfg     domain.Config
	log     zerolog.Logger
	metrics *metrics.Metrics

	redis  *redis.Client
	signal *service.SignalService

	document *usecase.DocumentUsecase
	activity *usecase.ActivityLog
	gc       *usecase.GarbageCollector
}

func loadConfig(path string) (config.Config, zerolog.Logger, error) {
	conf, err := config.Load(path)
	if err != nil {
		return config.Config{}, zerolog.Nop(), errors.Wrap(err, "load config")
	}
	log := logger.New(logger.Config{
		Level:  conf.Log.Level,
		Pretty: conf.Log.Pretty,
	})
	return conf, log, nil
}

func build(ctx context.Context, conf config.Config, log zerolog.Logger) (*app, func(), error) {
	cfg := conf.ToDomain()
	m := metrics.New()
	closers := []func(){}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	db, err := database.NewPostgres(conf.Storage.PostgresDsn, os.Stderr)
	if err != nil {
		return nil, cleanup, errors.Wrap(err, "connect postgres")
	}
	if sqlDB, err := db.DB(); err == nil {
		closers = append(closers, func() { sqlDB.Close() })
	}
	if err := database.MigratePostgres(db); err != nil {
		return nil, cleanup, errors.Wrap(err, "migrate postgres")
	}

	a := &app{conf: conf, cfg: cfg, log: log, metrics: m}

	var publisher usecase.ActivityPublisher
	if conf.Storage.RedisAddr != "" {
		rdb, err := database.NewRedis(ctx, conf.Storage.RedisAddr, conf.Storage.RedisPassword, conf.Storage.RedisDB)
		if err != nil {
			return nil, cleanup, errors.Wrap(err, "connect redis")
		}
		closers = append(closers, func() { rdb.Close() })
		a.redis = rdb
		a.signal = service.NewSignalService(rdb, conf.Storage.RealtimeChannel)
		publisher = a.signal
	}

	var documentCache usecase.DocumentCache
	if conf.Storage.MemcachedAddr != "" {
		mc := database.NewMemcached(
			time.Duration(conf.Storage.TimeoutMillis)*time.Millisecond,
			conf.Storage.MemcachedAddr,
		)
		documentCache = cache.NewDocumentCache(mc, time.Duration(conf.Storage.CacheTTLSeconds)*time.Second)
	}

	var verifiers []usecase.IdentityVerifier
	if conf.Identity.Audience != "" {
		verifiers = append(verifiers, service.NewAuthService(conf.Identity.Audience))
	}
	if conf.Identity.Endpoint != "" {
		verifiers = append(verifiers, client.New(
			conf.Identity.Endpoint,
			cfg.VerifyTimeout,
			time.Duration(conf.Identity.CacheTTLSeconds)*time.Second,
		))
	}
	var verifier usecase.IdentityVerifier
	if identity := gateway.NewIdentityGateway(verifiers...); !identity.Empty() {
		verifier = identity
	}

	expander := gateway.NewJSONLDGateway(nil, time.Duration(conf.JSONLD.TimeoutSeconds)*time.Second, time.Hour)
	for url, path := range conf.JSONLD.Preload {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, cleanup, errors.Wrapf(err, "read preloaded context %s", url)
		}
		document, err := utils.DecodeOrdered(raw)
		if err != nil {
			return nil, cleanup, errors.Wrapf(err, "decode preloaded context %s", url)
		}
		expander.Preload(url, utils.ToPlain(document))
	}

	a.activity = usecase.NewActivityLog(repository.NewActivityRepository(db), publisher, cfg, m)
	a.document = usecase.NewDocumentUsecase(
		repository.NewDocumentRepository(db),
		documentCache,
		usecase.NewAccessGuard(verifier, cfg.VerifyTimeout),
		usecase.NewIdentifierRewriter(expander, cfg.Rewrite),
		a.activity,
		cfg,
		m,
	)
	a.gc = usecase.NewGarbageCollector(a.document, cfg.GC, m)

	log.Info().
		Str("server", cfg.ServerURL).
		Bool("activity", cfg.Activity.Enabled()).
		Bool("gc", cfg.GC.Enabled()).
		Bool("identity", verifier != nil).
		Bool("realtime", a.signal != nil).
		Bool("cache", documentCache != nil).
		Msg("components wired")

	return a, cleanup, nil
}
