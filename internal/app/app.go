package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/lineup/internal/asset"
	"github.com/MrSnakeDoc/lineup/internal/config"
	"github.com/MrSnakeDoc/lineup/internal/crypt"
	"github.com/MrSnakeDoc/lineup/internal/httpserver"
	"github.com/MrSnakeDoc/lineup/internal/httpserver/deps"
	"github.com/MrSnakeDoc/lineup/internal/logger"
	"github.com/MrSnakeDoc/lineup/internal/metrics"
	"github.com/MrSnakeDoc/lineup/internal/probe"
	"github.com/MrSnakeDoc/lineup/internal/redis"
	"github.com/MrSnakeDoc/lineup/internal/reporter"
	"github.com/MrSnakeDoc/lineup/internal/resolver"
	"github.com/MrSnakeDoc/lineup/internal/scheduler"
	"github.com/MrSnakeDoc/lineup/internal/sources/seed"
	"github.com/MrSnakeDoc/lineup/internal/store"
	redisstore "github.com/MrSnakeDoc/lineup/internal/store/redis"
	"github.com/MrSnakeDoc/lineup/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	seeder      *scheduler.SeedSyncer
	loop        *scheduler.ResolutionLoop
	reporter    *reporter.Reporter
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Host store: Redis when configured (fail fast if unavailable), memory otherwise
	var (
		hostStore   store.HostStore
		redisClient *goredis.Client
		backend     = "memory"
	)
	if cfg.UseRedis() {
		client, err := redis.New(context.Background(), redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient)
		if err != nil {
			loggerClient.Errorf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		redisClient = client
		hostStore = redisstore.NewStore(client)
		backend = "redis"
	} else {
		loggerClient.Info("no redis configured, host store kept in memory")
		hostStore = store.NewMemory()
	}

	initialSeed, err := seed.Build(cfg.SeedFile, cfg.APIHosts)
	if err != nil {
		loggerClient.Errorf("Failed to load seed: %v", err)
		os.Exit(1)
	}

	// One cipher context per scheme, each with its own secrets
	envelope, err := crypt.NewEnvelope(cfg.EnvelopeKey, cfg.EnvelopeIV, cfg.SignKey, cfg.ClientName)
	if err != nil {
		loggerClient.Errorf("Invalid envelope secrets: %v", err)
		os.Exit(1)
	}
	cloudList, err := crypt.NewCloudList(cfg.CloudKey)
	if err != nil {
		loggerClient.Errorf("Invalid cloud list key: %v", err)
		os.Exit(1)
	}
	assetCipher, err := crypt.NewAssetCipher(cfg.AssetKey, cfg.AssetIV)
	if err != nil {
		loggerClient.Errorf("Invalid asset secrets: %v", err)
		os.Exit(1)
	}

	rep := reporter.New(reporter.Options{
		BaseURL: cfg.ReportAPIBase,
		Timeout: cfg.ProbeTimeout,
		Logger:  loggerClient,
		Metrics: m,
	})

	res := resolver.New(resolver.Options{
		Store: hostStore,
		Prober: probe.New(probe.Options{
			Envelope: envelope,
			Timeout:  cfg.ProbeTimeout,
			Logger:   loggerClient,
			Metrics:  m,
		}),
		Reporter: rep,
		Images: asset.New(asset.Options{
			ImageHost: cfg.ImageHost,
			Cipher:    assetCipher,
			Logger:    loggerClient,
			Metrics:   m,
		}),
		Tokens:  cloudList,
		Logger:  loggerClient,
		Metrics: m,
	})

	// Create manual resolution trigger channel
	resolveTrigger := make(chan struct{}, 1)

	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		TimeNow:        time.Now,
		AllowedCIDRS:   cfg.AllowedCIDRS,
		TrustProxy:     cfg.TrustProxy,
		Store:          hostStore,
		StoreBackend:   backend,
		Session:        res,
		ResolveTrigger: resolveTrigger,
		ResolveBurst:   3,
		ResolvePerMin:  6,
		Gatherer:       reg,
	}

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      httpserver.New(cfg, loggerClient, d),
		redisClient: redisClient,
		seeder:      scheduler.NewSeedSyncer(hostStore, initialSeed, cfg.ReseedOnStart, loggerClient),
		loop:        scheduler.NewResolutionLoop(res, loggerClient, cfg.ResolveInterval, resolveTrigger),
		reporter:    rep,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting lineup v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.seeder.Sync(ctx); err != nil {
		return fmt.Errorf("failed to seed host store: %w", err)
	}

	// Probes are never cancelled mid-session; Stop waits for the running one.
	a.loop.Start(context.WithoutCancel(ctx))
	a.logger.Info("resolution loop started",
		logger.Duration("interval", a.cfg.ResolveInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		a.loop.Stop()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	a.loop.Stop()
	a.reporter.Wait()

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ lineup stopped cleanly")
	_ = a.logger.Sync()
	return nil
}
