package agrichat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/harunnryd/agrichat/pkg/agrodata"
	"github.com/harunnryd/agrichat/pkg/catalog"
	"github.com/harunnryd/agrichat/pkg/chain"
	"github.com/harunnryd/agrichat/pkg/chat"
	"github.com/harunnryd/agrichat/pkg/configutil"
	"github.com/harunnryd/agrichat/pkg/intent"
	"github.com/harunnryd/agrichat/pkg/language"
	"github.com/harunnryd/agrichat/pkg/llm"
	"github.com/harunnryd/agrichat/pkg/logging"
	"github.com/harunnryd/agrichat/pkg/metrics"
	"github.com/harunnryd/agrichat/pkg/notify/twilio"
	"github.com/harunnryd/agrichat/pkg/redact"
	"github.com/harunnryd/agrichat/pkg/resilience"
	"github.com/harunnryd/agrichat/pkg/runner"
	"github.com/harunnryd/agrichat/pkg/transports"
	"github.com/harunnryd/agrichat/pkg/transports/ws"
)

type EngineOptions struct {
	Config Config
	// Providers defaults to DefaultProviderRegistry.
	Providers *ProviderRegistry
	// Source and Pager override what the config would build.
	Source agrodata.Source
	Pager  chat.ExpertPager
	// LogOutput defaults to stdout.
	LogOutput io.Writer
	// Banner receives the startup banner; io.Discard silences it.
	Banner io.Writer
}

// Engine owns every long-lived component of the service.
type Engine struct {
	cfg       Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	asyncObs  *metrics.AsyncObserver
	events    *os.File
	redis     redis.UniversalClient
	chain     *chain.Chain
	orch      *chat.Orchestrator
	hub       *chat.Hub
	transport transports.Transport
	runner    *runner.LifecycleRunner
	closeOnce sync.Once
}

func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	logger := logging.InitLogger(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: opts.LogOutput})
	redact.SetEnabled(cfg.Privacy.RedactPII)

	e := &Engine{cfg: cfg, logger: logging.NewComponentLogger(logger, "engine")}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	set, err := languageSet(cfg.Languages.Default)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Builtin()
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if cat.DefaultLanguage() != set.Default() {
		if cat, err = cat.WithDefault(set.Default()); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}

	obs, err := e.buildObservers(cfg, logger)
	if err != nil {
		return nil, err
	}

	providers := opts.Providers
	if providers == nil {
		providers = DefaultProviderRegistry()
	}
	descriptors, err := buildDescriptors(ctx, cfg, providers, obs)
	if err != nil {
		return nil, err
	}
	e.chain, err = chain.New(chain.Config{
		Timeout:  configutil.Millis(cfg.Chain.TimeoutMS, chain.DefaultTimeout),
		Catalog:  cat,
		Names:    set,
		Observer: obs,
		Logger:   logger,
	}, descriptors...)
	if err != nil {
		return nil, err
	}

	source := opts.Source
	if source == nil {
		if source, err = e.buildSource(ctx, cfg, logger); err != nil {
			return nil, err
		}
	}

	var pager chat.ExpertPager = opts.Pager
	routes := map[string]http.Handler{}
	if cfg.ExpertSMS.Enabled {
		smsCfg := twilio.Config{
			AccountSID: cfg.ExpertSMS.AccountSID,
			AuthToken:  cfg.ExpertSMS.AuthToken,
			From:       cfg.ExpertSMS.From,
			PublicURL:  cfg.ExpertSMS.PublicURL,
			StatusPath: cfg.ExpertSMS.StatusPath,
		}
		if pager == nil {
			pager = twilio.NewPager(smsCfg)
		}
		routes[configutil.StringOr(cfg.ExpertSMS.StatusPath, twilio.DefaultStatusPath)] = twilio.NewStatusHandler(smsCfg, logger)
	}
	if cfg.Metrics.Prometheus && e.registry != nil {
		routes[configutil.StringOr(cfg.Server.MetricsPath, "/metrics")] = promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
	}

	e.orch, err = chat.NewOrchestrator(chat.Options{
		Matcher:         language.NewMatcher(set),
		Classifier:      intent.NewClassifier(nil),
		Chain:           e.chain,
		Catalog:         cat,
		Source:          source,
		Pager:           pager,
		PageTimeout:     configutil.Millis(cfg.ExpertSMS.TimeoutMS, chat.DefaultPageTimeout),
		DefaultLocation: cfg.Chat.DefaultLocation,
		Observer:        obs,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	e.hub = chat.NewHub(e.orch, cfg.Chat.QueueSize)
	e.transport = ws.New(ws.Config{
		ServerAddr:     cfg.Server.Addr,
		ChatPath:       cfg.Server.ChatPath,
		AllowAnyOrigin: cfg.Server.AllowAnyOrigin,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Routes:         routes,
	}, e.hub, logger)

	e.runner = e.buildRunner()
	e.runner.Banner = opts.Banner

	e.logger.Info("agrichat_init",
		"environment", cfg.Environment,
		"default_language", set.Default(),
		"providers", strings.Join(e.chain.Providers(), ","),
		"data_source", strings.ToLower(cfg.Data.Source),
		"redis", cfg.Redis.Enabled,
		"expert_sms", cfg.ExpertSMS.Enabled,
	)
	ok = true
	return e, nil
}

func languageSet(defaultCode string) (*language.Set, error) {
	set, err := language.Builtin()
	if err != nil {
		return nil, fmt.Errorf("languages: %w", err)
	}
	code := strings.ToLower(strings.TrimSpace(defaultCode))
	if code == "" || code == set.Default() {
		return set, nil
	}
	if !set.Supported(code) {
		return nil, fmt.Errorf("languages.default %q is not one of %s", defaultCode, strings.Join(set.Codes(), ", "))
	}
	return set.WithDefault(code)
}

func (e *Engine) buildObservers(cfg Config, logger *slog.Logger) (metrics.Observer, error) {
	list := metrics.Multi{metrics.NewLogObserver(logging.NewComponentLogger(logger, "metrics"))}
	if cfg.Metrics.Prometheus {
		e.registry = prometheus.NewRegistry()
		e.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		list = append(list, metrics.NewPrometheusObserver(e.registry))
	}
	if path := strings.TrimSpace(cfg.Metrics.EventsPath); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("metrics.events_path: %w", err)
		}
		e.events = f
		list = append(list, metrics.NewJSONLObserver(f))
	}
	e.asyncObs = metrics.NewAsyncObserver(list, 2048)
	return e.asyncObs, nil
}

// buildDescriptors builds every enabled provider and wraps it in a circuit
// breaker whose state backs IsAvailable.
func buildDescriptors(ctx context.Context, cfg Config, registry *ProviderRegistry, obs metrics.Observer) ([]chain.Descriptor, error) {
	cooldown := configutil.Millis(cfg.Chain.BreakerCooldownMS, 30*time.Second)
	out := make([]chain.Descriptor, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		if pc.Disabled {
			continue
		}
		p, err := registry.Build(ctx, pc)
		if err != nil {
			return nil, err
		}
		breaker := llm.NewCircuitBreakerProvider(p, resilience.NewCircuitBreaker(cfg.Chain.BreakerThreshold, cooldown))
		breaker.SetObserver(obs)
		out = append(out, chain.Descriptor{Provider: breaker, Priority: pc.Priority})
	}
	return out, nil
}

func (e *Engine) buildSource(ctx context.Context, cfg Config, logger *slog.Logger) (agrodata.Source, error) {
	var source agrodata.Source
	switch strings.ToLower(strings.TrimSpace(cfg.Data.Source)) {
	case "none":
		return nil, nil
	case "http":
		source = agrodata.NewHTTPSource(cfg.Data.BaseURL, cfg.Data.APIKey, configutil.Millis(cfg.Data.TimeoutMS, 5*time.Second))
	default:
		static, err := agrodata.BuiltinStatic()
		if err != nil {
			return nil, fmt.Errorf("static data: %w", err)
		}
		source = static
	}
	if !cfg.Redis.Enabled {
		return source, nil
	}
	e.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := e.redis.Ping(pingCtx).Err(); err != nil {
		// The cache degrades to the inner source, so a cold redis is not fatal.
		e.logger.Warn("redis_unreachable", "addr", cfg.Redis.Addr, "error", err.Error())
	}
	return agrodata.NewCached(source, e.redis, agrodata.CacheOptions{
		TTL:    time.Duration(cfg.Redis.TTLSeconds) * time.Second,
		Prefix: cfg.Redis.Prefix,
		Logger: logger,
	}), nil
}

func (e *Engine) buildRunner() *runner.LifecycleRunner {
	hooks := runner.Hooks{
		OnStart: func() error {
			if err := e.transport.Start(context.Background()); err != nil {
				return fmt.Errorf("transport %s: %w", e.transport.Name(), err)
			}
			fields := []any{"transport", e.transport.Name()}
			if rr, ok := e.transport.(transports.ReadyReporter); ok {
				for k, v := range rr.ReadyFields() {
					fields = append(fields, k, v)
				}
			}
			e.logger.Info("engine_ready", fields...)
			return nil
		},
		OnStop: func() {
			e.logger.Info("shutdown", "goroutines", runtime.NumGoroutine(), "open_conversations", e.hub.Len())
			e.Close()
		},
	}
	drainer := runner.DrainerFunc(func(ctx context.Context) error {
		return errors.Join(e.transport.Stop(), e.hub.Drain(ctx))
	})
	return runner.NewLifecycleRunner(drainer, hooks, configutil.Millis(e.cfg.Server.DrainTimeoutMS, 10*time.Second))
}

// Run serves until ctx is done or Stop is called, then drains.
func (e *Engine) Run(ctx context.Context) error {
	return e.runner.Run(ctx)
}

func (e *Engine) Stop() error {
	return e.runner.Stop()
}

func (e *Engine) Hub() *chat.Hub { return e.hub }

func (e *Engine) Orchestrator() *chat.Orchestrator { return e.orch }

func (e *Engine) Chain() *chain.Chain { return e.chain }

// Health reports whether the optional dependencies answer.
func (e *Engine) Health(ctx context.Context) error {
	if e.redis == nil {
		return nil
	}
	if err := e.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close waits for expert pages still in flight, then releases observers
// and connections. It is safe to call more than once and is called by Run
// on shutdown.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if e.orch != nil {
			e.orch.Wait()
		}
		if e.asyncObs != nil {
			e.asyncObs.Close()
		}
		if e.events != nil {
			_ = e.events.Close()
		}
		if e.redis != nil {
			_ = e.redis.Close()
		}
	})
}
