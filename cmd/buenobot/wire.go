package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	appai "github.com/ahrav/buenobot/internal/app/ai"
	"github.com/ahrav/buenobot/internal/app/contracts"
	"github.com/ahrav/buenobot/internal/app/evidence"
	appscanning "github.com/ahrav/buenobot/internal/app/scanning"
	"github.com/ahrav/buenobot/internal/config"
	"github.com/ahrav/buenobot/internal/domain/rules"
	infraai "github.com/ahrav/buenobot/internal/infra/ai"
	"github.com/ahrav/buenobot/internal/infra/checks"
	"github.com/ahrav/buenobot/internal/infra/eventbus/memory"
	progressreporter "github.com/ahrav/buenobot/internal/infra/progress_reporter"
	"github.com/ahrav/buenobot/internal/infra/storage/cache"
	"github.com/ahrav/buenobot/internal/infra/storage/reports"
	"github.com/ahrav/buenobot/pkg/common/logger"
	"github.com/ahrav/buenobot/pkg/common/otel"
)

// loadConfig parses args into fs and loads the layered configuration.
// bindings maps flag names to config keys.
func loadConfig(ctx context.Context, fs *pflag.FlagSet, args []string, bindings map[string]string) (*config.Config, error) {
	configPath := fs.String("config", "", "path to a YAML, JSON or TOML config file")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}

	cfg, err := config.NewViperLoader(
		config.WithConfigFile(*configPath),
		config.WithFlags(fs, bindings),
	).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	return cfg, nil
}

// app holds the wired component graph for one process.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	tracer    trace.Tracer
	providers otel.Providers
	shutdown  func(context.Context)

	registry *appscanning.Registry
	runner   *appscanning.Runner
	store    *reports.Store
	broker   *memory.Broker
	cache    *cache.FileCache
}

func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		a.store.Close()
	}
	if a.shutdown != nil {
		a.shutdown(ctx)
	}
}

// newApp wires every component from cfg. Logs go to logOut.
func newApp(cfg *config.Config, logOut, stderr io.Writer) (*app, error) {
	log := newLogger(cfg, logOut, stderr)

	providers, shutdown, err := initTelemetry(log, cfg)
	if err != nil {
		return nil, fmt.Errorf("starting telemetry: %w", err)
	}
	a := &app{
		cfg:       cfg,
		log:       log,
		tracer:    providers.Tracer.Tracer("buenobot"),
		providers: providers,
		shutdown:  shutdown,
		broker:    memory.NewBroker(),
	}

	a.store, err = reports.New(cfg.Storage.ReportsDir, cfg.Storage.Compress, log, a.tracer)
	if err != nil {
		return nil, fmt.Errorf("opening report store: %w", err)
	}

	httpClient := &http.Client{
		Timeout:   cfg.Scan.RequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	contractRegistry := contracts.NewRegistry(cfg.Contracts.Dir, log, a.tracer)
	validator := contracts.NewValidator(
		contracts.ValidatorConfig{
			BaseURL:   cfg.Scan.BaseURL,
			Timeout:   cfg.Scan.RequestTimeout,
			Headers:   cfg.Contracts.Headers,
			RateLimit: cfg.Contracts.RateLimit,
			Burst:     cfg.Contracts.Burst,
		},
		rules.NewEvaluator(log),
		log,
		a.tracer,
		contracts.WithHTTPClient(httpClient),
	)

	a.registry = appscanning.NewRegistry()
	if err := checks.RegisterDefaults(a.registry, checks.Deps{
		HTTPClient:          httpClient,
		HealthPath:          cfg.Checks.HealthPath,
		Contracts:           contractRegistry,
		Validator:           validator,
		ContractConcurrency: cfg.Contracts.Concurrency,
		ContractParams:      cfg.Contracts.ParamsByKey(),
		MaxFileBytes:        cfg.Checks.MaxFileBytes,
		Logger:              log,
		Tracer:              a.tracer,
	}); err != nil {
		return nil, fmt.Errorf("registering checks: %w", err)
	}

	runnerMetrics, err := appscanning.NewRunnerMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("creating runner metrics: %w", err)
	}

	opts := []appscanning.RunnerOption{
		appscanning.WithReportStore(a.store),
		appscanning.WithProgressReporter(progressreporter.New(a.broker, log, a.tracer)),
		appscanning.WithSaveInterval(cfg.Scan.SaveInterval),
	}
	if cfg.AI.Enabled {
		enricher, err := a.newEnricher()
		if err != nil {
			return nil, err
		}
		opts = append(opts, appscanning.WithEnricher(enricher))
	}
	a.runner = appscanning.NewRunner(a.registry, runnerMetrics, log, a.tracer, opts...)

	return a, nil
}

func (a *app) newEnricher() (*appai.ReportEnricher, error) {
	cfg := a.cfg.AI

	engines, cloud := buildEngines(cfg, a.log, a.tracer)
	if !hasEngine(engines, cfg.LocalEngine) {
		engines = append(engines, infraai.NewMockEngine(cfg.LocalEngine))
	}

	router := appai.NewRouter(appai.RouterConfig{
		CloudEngines:       cloud,
		LocalEngine:        cfg.LocalEngine,
		RouteCritical:      cfg.RouteCritical,
		RouteComplex:       cfg.RouteComplex,
		ComplexityTriggers: cfg.ComplexityTriggers,
		FindingsThreshold:  cfg.FindingsThreshold,
	})

	metrics, err := appai.NewGatewayMetrics(a.providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("creating gateway metrics: %w", err)
	}

	var gatewayOpts []appai.GatewayOption
	if cfg.CacheEnabled {
		a.cache, err = cache.New(cfg.CacheDir, cfg.CacheTTL, a.log, a.tracer)
		if err != nil {
			return nil, fmt.Errorf("opening ai cache: %w", err)
		}
		gatewayOpts = append(gatewayOpts, appai.WithCache(a.cache))
	}

	gateway := appai.NewGateway(
		appai.GatewayConfig{
			Enabled:      true,
			CacheEnabled: cfg.CacheEnabled,
			Retry: appai.RetryPolicy{
				MaxRetries:          cfg.Retry.MaxRetries,
				InitialInterval:     cfg.Retry.InitialInterval,
				MaxInterval:         cfg.Retry.MaxInterval,
				Multiplier:          2,
				RandomizationFactor: cfg.Retry.Jitter,
			},
		},
		router,
		engines,
		cfg.LocalEngine,
		metrics,
		a.log,
		a.tracer,
		gatewayOpts...,
	)

	builder := evidence.NewBuilder(evidence.Config{
		MaxFindings:    a.cfg.Evidence.MaxFindings,
		MaxPerCategory: a.cfg.Evidence.MaxPerCategory,
	}, evidence.NewSanitizer())

	return appai.NewReportEnricher(builder, gateway), nil
}

// buildEngines creates the configured engines and returns, in preference
// order, the names of cloud engines that have credentials.
func buildEngines(cfg config.AIConfig, log *logger.Logger, tracer trace.Tracer) ([]appai.Engine, []string) {
	var (
		engines []appai.Engine
		cloud   []string
	)
	for _, ec := range cfg.Engines {
		engineCfg := infraai.EngineConfig{
			Name:        ec.Name,
			BaseURL:     ec.BaseURL,
			Model:       ec.Model,
			Timeout:     ec.Timeout,
			MaxTokens:   ec.MaxTokens,
			Temperature: ec.Temperature,
		}
		if engineCfg.Timeout <= 0 {
			engineCfg.Timeout = cfg.Timeout
		}
		if ec.APIKeyEnv != "" {
			engineCfg.APIKey = os.Getenv(ec.APIKeyEnv)
		}

		var e appai.Engine
		switch ec.Kind {
		case config.EngineKindChat:
			e = infraai.NewChatEngine(engineCfg, nil, log, tracer)
		case config.EngineKindMessages:
			e = infraai.NewMessagesEngine(engineCfg, nil, log, tracer)
		case config.EngineKindGenerate:
			e = infraai.NewGenerateEngine(engineCfg, nil, log, tracer)
		default:
			e = infraai.NewMockEngine(ec.Name)
		}
		engines = append(engines, e)

		if e.Cloud() && engineCfg.APIKey != "" {
			cloud = append(cloud, e.Name())
		}
	}
	return engines, cloud
}

func hasEngine(engines []appai.Engine, name string) bool {
	for _, e := range engines {
		if e.Name() == name {
			return true
		}
	}
	return false
}
