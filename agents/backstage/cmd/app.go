package main

import (
	"context"
	"fmt"

	"backstage/agents/backstage"
	"backstage/agents/backstage/youtube"
	"backstage/shared/ai"
	"backstage/shared/config"
	"backstage/shared/monitoring"
	"backstage/shared/pipeline"
	"backstage/shared/research"
	"backstage/shared/settings"
	"backstage/shared/storage"
	"backstage/shared/transcript"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg *config.Config
	log *logrus.Logger

	store      storage.Store
	closeStore func() error
	cache      *storage.VideoCache
	settings   *settings.Store
	registry   *prometheus.Registry
	monitor    *monitoring.Monitor

	newClient pipeline.ClientFactory
	fetcher   transcript.Fetcher
	searcher  research.Searcher
	resolver  backstage.VideoResolver
}

type appOption func(*app)

func withClientFactory(f pipeline.ClientFactory) appOption {
	return func(a *app) { a.newClient = f }
}

func withFetcher(f transcript.Fetcher) appOption {
	return func(a *app) { a.fetcher = f }
}

func withSearcher(s research.Searcher) appOption {
	return func(a *app) { a.searcher = s }
}

func newApp(ctx context.Context, cfg *config.Config, log *logrus.Logger, opts ...appOption) (*app, error) {
	store, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{
		cfg:        cfg,
		log:        log,
		store:      store,
		closeStore: closeStore,
		cache:      storage.NewVideoCache(store, log),
		settings:   settings.NewStore(store, cfg.SettingsSeed(), log),
		registry:   registry,
		monitor:    monitoring.NewMonitor(monitoring.NewMetrics(registry), log),
		newClient:  pipeline.ClientFactory(ai.NewFactory(ai.WithBaseURLs(cfg.AI.BaseURLs))),
		fetcher:    transcript.NewYouTubeFetcher(log),
		searcher:   research.NewTavilyClient(cfg.Search.TavilyURL),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.settings.Load(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, func() error, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		rdb, err := storage.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisStore(rdb), rdb.Close, nil
	default:
		fs, err := storage.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open file store: %w", err)
		}
		return fs, func() error { return nil }, nil
	}
}

// connectYouTube sets up metadata lookups when credentials are configured.
// Failing to connect only disables the lookups.
func (a *app) connectYouTube(ctx context.Context) {
	if a.resolver != nil || !a.cfg.YouTube.Enabled() {
		return
	}
	client, err := youtube.NewClient(ctx, a.cfg.YouTube, a.log)
	if err != nil {
		a.log.WithError(err).Warn("YouTube Data API unavailable, video metadata will not be resolved")
		return
	}
	a.resolver = client
	a.log.Info("YouTube client initialized")
}

func (a *app) newAgent() *backstage.Agent {
	p := pipeline.New(a.cache, a.fetcher, a.searcher, a.newClient, a.log, pipeline.WithObserver(a.monitor))
	return backstage.NewAgent(backstage.Deps{
		Pipeline:  p,
		Settings:  a.settings,
		NewClient: a.newClient,
		Resolver:  a.resolver,
		Observer:  a.monitor,
		Log:       a.log,
	})
}

func (a *app) Close() error {
	return a.closeStore()
}
