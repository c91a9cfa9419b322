package main

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/provider-gateway/internal/platform/auth"
	"github.com/example/provider-gateway/internal/platform/events"
	"github.com/example/provider-gateway/internal/platform/grpcserver"
	"github.com/example/provider-gateway/internal/platform/httpserver"
	"github.com/example/provider-gateway/internal/platform/logging"
	"github.com/example/provider-gateway/internal/platform/metrics"
	"github.com/example/provider-gateway/internal/platform/natsconn"
	"github.com/example/provider-gateway/internal/platform/run"
	"github.com/example/provider-gateway/services/provider-fetch/internal/apitoken"
	"github.com/example/provider-gateway/services/provider-fetch/internal/config"
	"github.com/example/provider-gateway/services/provider-fetch/internal/enablement"
	"github.com/example/provider-gateway/services/provider-fetch/internal/endpoints"
	"github.com/example/provider-gateway/services/provider-fetch/internal/extension"
	"github.com/example/provider-gateway/services/provider-fetch/internal/fetcher"
	"github.com/example/provider-gateway/services/provider-fetch/internal/handlers"
	"github.com/example/provider-gateway/services/provider-fetch/internal/kvstore"
	"github.com/example/provider-gateway/services/provider-fetch/internal/rotation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.App.LogLevel, cfg.App.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, err := kvstore.Open(startCtx, cfg.StoreDriver, cfg.StoreDSN)
	cancel()
	if err != nil {
		log.Error("open kv store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
		run.Exit(1)
	}

	pools := endpoints.NewPools(endpoints.Lists{
		Proxies:      cfg.Proxies,
		ProviderAPIs: cfg.ProviderAPIs,
		M3U8Proxies:  cfg.M3U8Proxies,
	})
	var reloader *endpoints.Reloader
	if cfg.EndpointsFile != "" {
		reloader = endpoints.NewReloader(cfg.EndpointsFile, pools, log)
		if err := reloader.Reload(); err != nil {
			log.Error("load endpoints file", zap.String("path", cfg.EndpointsFile), zap.Error(err))
			run.Exit(1)
		}
		if err := reloader.Start(cfg.EndpointsReloadSchedule); err != nil {
			log.Error("schedule endpoints reload", zap.Error(err))
			run.Exit(1)
		}
	}

	m := metrics.New("provider_gateway")
	filter := enablement.New(store, log)
	selectors := rotation.NewSet(rotation.Sources{
		Proxy:       pools.Proxies,
		ProviderAPI: pools.ProviderAPIs,
		M3U8Proxy:   filter.Source(pools.M3U8Proxies),
	}, rotation.WithObserver(m.Selection))

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.App.ServiceName, Logger: log})
		if err != nil {
			log.Error("nats connect", zap.Error(err))
			run.Exit(1)
		}
		defer nc.Close()
	}
	publisher := events.New(nil, log)
	if nc != nil && cfg.EventsStream != "" {
		js, err := eventsStream(nc, cfg.EventsStream)
		if err != nil {
			log.Warn("events disabled", zap.String("stream", cfg.EventsStream), zap.Error(err))
		} else {
			publisher = events.New(js, log)
		}
	}

	var f fetcher.Fetcher
	switch cfg.FetcherMode {
	case config.ModeExtension:
		f = fetcher.NewExtension(extension.NewNATSTransport(nc, extension.Options{
			Subject:          cfg.ExtensionSubject,
			Timeout:          cfg.ExtensionTimeout,
			FailureThreshold: cfg.CBFailureThreshold,
			OpenTimeout:      cfg.CBTimeout,
			Logger:           log,
		}))
	default:
		tokens := &apitoken.Transport{
			Tokens: apitoken.NewStore(store),
			Log:    log,
			OnRefresh: func() {
				m.TokenRefreshed()
				publisher.Publish(events.SubjectTokenRefreshed, "token_refreshed", "", nil)
			},
		}
		client := tokens.Client()
		client.Timeout = cfg.UpstreamTimeout
		f = fetcher.NewLoadBalanced(selectors.Proxy, client)
	}
	log.Info("fetcher ready", zap.String("mode", cfg.FetcherMode),
		zap.Int("proxies", len(pools.Proxies())),
		zap.Int("m3u8_proxies", len(pools.M3U8Proxies())))

	ready := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return err
		}
		if cfg.FetcherMode == config.ModeExtension && (nc == nil || !nc.IsConnected()) {
			return errors.New("nats not connected")
		}
		return nil
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc:   ready,
		CORSOrigins: cfg.App.HTTP.CORSOrigins,
		Metrics:     m.Handler(),
	})

	settings := handlers.SettingsDeps{All: pools.M3U8Proxies, Store: filter, Log: log}
	r.Group(func(r chi.Router) {
		if cfg.RateLimitRPS > 0 {
			r.Use(httpserver.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware)
		}
		r.Post("/v1/fetch", handlers.Fetch(handlers.FetchDeps{
			Fetcher: f,
			Mode:    cfg.FetcherMode,
			Metrics: m,
			Events:  publisher,
			Log:     log,
		}))
		r.Get("/v1/endpoints/{pool}", handlers.NextEndpoint(selectors))
		r.Get("/v1/settings/m3u8-proxies", handlers.GetM3U8Proxies(settings))
		r.With(auth.RequireRole(auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}, "admin")).
			Put("/v1/settings/m3u8-proxies", handlers.PutM3U8Proxies(settings))
	})

	srv := httpserver.New(httpserver.Options{
		Addr:         cfg.App.HTTP.Addr,
		Router:       r,
		WriteTimeout: cfg.UpstreamTimeout + cfg.ExtensionTimeout,
	})

	var grpcSrv *grpcserver.Server
	if cfg.App.GRPC.Addr != "" {
		grpcSrv = grpcserver.New(cfg.App.ServiceName, log)
	}

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if grpcSrv != nil {
			lis, err := net.Listen("tcp", cfg.App.GRPC.Addr)
			if err != nil {
				return err
			}
			go grpcSrv.WatchReady(ctx, 5*time.Second, ready)
			go func() {
				if err := grpcSrv.Serve(lis); err != nil {
					log.Error("grpc serve", zap.Error(err))
				}
			}()
		}
		return srv.Start(log)
	})

	shutdown := []func(context.Context) error{srv.Shutdown}
	if grpcSrv != nil {
		shutdown = append(shutdown, grpcSrv.Shutdown)
	}
	runner.Graceful(shutdown...)
	if reloader != nil {
		reloader.Stop()
	}
	if nc != nil {
		_ = nc.Drain()
	}
	_ = store.Close()

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// eventsStream makes sure the events stream exists and returns a JetStream
// context for async publishing.
func eventsStream(nc *nats.Conn, stream string) (nats.JetStreamContext, error) {
	js, err := nc.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		return nil, err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     stream,
		Subjects: []string{"events.provider.>"},
		MaxAge:   72 * time.Hour,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil, err
	}
	return js, nil
}
