package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avlabs/authgate/internal/auth"
	"github.com/avlabs/authgate/internal/config"
	"github.com/avlabs/authgate/internal/gateway"
	"github.com/avlabs/authgate/internal/health"
	"github.com/avlabs/authgate/internal/middleware"
	"github.com/avlabs/authgate/internal/observability"
	"github.com/avlabs/authgate/internal/prober"
	"github.com/avlabs/authgate/internal/proxy"
	"github.com/avlabs/authgate/internal/session"
)

const metricsNamespace = "authgate"

// application holds all wired components of the proxy.
type application struct {
	cfg      *config.Config
	logger   observability.Logger
	store    session.Store
	verifier *auth.Verifier
	gate     *auth.Gate
	limiter  *middleware.RateLimiter
	prober   *prober.Prober
	gateway  *gateway.Gateway
	metrics  *observability.Metrics
}

// initApplication wires every component from configuration.
// Wiring errors are fatal.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	app, err := buildApplication(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", observability.Error(err))
	}
	return app
}

func buildApplication(cfg *config.Config, logger observability.Logger) (*application, error) {
	upstream, err := cfg.UpstreamURL()
	if err != nil {
		return nil, fmt.Errorf("upstream url: %w", err)
	}

	metrics := observability.NewMetrics(metricsNamespace)
	metrics.SetBuildInfo(version, gitCommit)

	store, err := buildStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	metrics.RegisterSessionGauge(metricsNamespace, func() float64 {
		n, err := store.Len(context.Background())
		if err != nil {
			return 0
		}
		return float64(n)
	})

	verifier := auth.NewVerifier(cfg.Auth.Username, cfg.Auth.Password)

	gate := auth.NewGate(store, cfg.Session.CookieName, cfg.Auth.Username,
		auth.WithGateLogger(logger),
		auth.WithPublicPaths(cfg.PublicPaths),
	)

	limiter := middleware.NewRateLimiter(cfg.Login.RPS, cfg.Login.Burst,
		middleware.WithRateLimiterLogger(logger),
	)

	handlers := auth.NewHandlers(store, verifier, cfg.Session.CookieName,
		auth.WithHandlerLogger(logger),
		auth.WithLoginLimiter(limiter),
		auth.WithAuthMetrics(metrics),
		auth.WithTrustedProxyHeaders(cfg.TrustProxyHeaders),
	)

	upstreamProber := prober.New(upstream, cfg.Probe.Path,
		prober.WithLogger(logger),
		prober.WithInterval(cfg.Probe.Interval.Duration()),
		prober.WithTimeout(cfg.Probe.Timeout.Duration()),
		prober.WithOnChange(metrics.SetUpstreamUp),
	)

	rewriter := proxy.NewRewriter(proxy.WithRewriterLogger(logger))

	forwarder := proxy.NewForwarder(upstream,
		proxy.WithForwarderLogger(logger),
		proxy.WithHealthGate(upstreamProber),
		proxy.WithUpstreamTimeout(cfg.Upstream.Timeout.Duration()),
		proxy.WithRewriter(rewriter),
		proxy.WithBreakerStateCallback(metrics.SetBreakerState),
		proxy.WithTrustedProxyHeaders(cfg.TrustProxyHeaders),
	)

	checker := health.NewChecker(upstreamProber.ProbeOnce)

	gw := gateway.New(cfg, logger, gateway.Components{
		Gate:      gate,
		Handlers:  handlers,
		Forwarder: forwarder,
		Checker:   checker,
		Metrics:   metrics,
	})

	return &application{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		verifier: verifier,
		gate:     gate,
		limiter:  limiter,
		prober:   upstreamProber,
		gateway:  gw,
		metrics:  metrics,
	}, nil
}

// buildStore selects the session backend from configuration.
func buildStore(cfg *config.Config, logger observability.Logger) (session.Store, error) {
	switch cfg.Session.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Session.Redis.Addr, err)
		}
		logger.Info("using redis session store",
			observability.String("addr", cfg.Session.Redis.Addr),
		)
		return session.NewRedisStore(client, cfg.Session.TTL.Duration(),
			session.WithRedisLogger(logger),
		), nil
	default:
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(cfg.Session.TTL.Duration(),
			session.WithMemoryLogger(logger),
		), nil
	}
}
