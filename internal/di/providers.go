package di

import (
	"fmt"

	"MacroPull/internal/domain/models"
	"MacroPull/internal/domain/repository"
	"MacroPull/internal/handler/api"
	internalrepo "MacroPull/internal/repository"
	icache "MacroPull/internal/service/cache"
	"MacroPull/internal/service/chinamoney"
	"MacroPull/internal/service/eastmoney"
	"MacroPull/internal/service/fallback"
	"MacroPull/internal/service/yahoo"
	"MacroPull/internal/usecase"
	pkgcache "MacroPull/pkg/cache"
	"MacroPull/pkg/config"
	xhttp "MacroPull/pkg/http"
	pkgkafka "MacroPull/pkg/kafka"
	applogger "MacroPull/pkg/logger"
	"MacroPull/pkg/metrics"

	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithClientID(cfg.Kafka.ClientID),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithBatchTimeout(cfg.Kafka.BatchTimeout),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger. With Kafka and the
// collector enabled, repeated warnings and errors are aggregated and
// shipped to the log topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	if producer != nil && cfg.Log.Collector.Enabled {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      internalrepo.NewKafkaLogPublisher(producer),
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates the snapshot metrics recorder on reg. main passes
// prometheus.DefaultRegisterer, which /metrics serves.
func ProvideMetrics(reg prometheus.Registerer) repository.Metrics {
	return metrics.New(reg)
}

// ProvideSnapshotPublisher publishes refreshed snapshots to Kafka, or
// discards them when Kafka is disabled.
func ProvideSnapshotPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.Publisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaSnapshotPublisher(producer, cfg.Kafka.Topic)
}

// ProvideHTTPClient is the outbound transport shared by every source.
func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(
		xhttp.WithTimeout(cfg.Sources.Timeout),
		xhttp.WithUserAgent(cfg.Sources.UserAgent),
	)
}

// ProvideSources lists the adapters in call order. Both metals come from
// the same provider so their prices share one cycle.
func ProvideSources(cfg *config.Config, client *xhttp.Client) ([]repository.Source, error) {
	divisor, err := decimal.NewFromString(cfg.Sources.Eastmoney.FlowDivisor)
	if err != nil {
		return nil, fmt.Errorf("sources.eastmoney.flow_divisor: %w", err)
	}
	if divisor.IsZero() {
		return nil, fmt.Errorf("sources.eastmoney.flow_divisor must not be zero")
	}

	em := cfg.Sources.Eastmoney
	yh := cfg.Sources.Yahoo
	return []repository.Source{
		eastmoney.NewIndexQuote(client, em.QuoteURL, em.IndexSecID),
		chinamoney.NewFXSpotQuote(client, cfg.Sources.Chinamoney.SpotURL, cfg.Sources.Chinamoney.Pair),
		yahoo.NewCommodityQuote(client, yh.BaseURL, yh.Gold, models.FieldGold),
		yahoo.NewCommodityQuote(client, yh.BaseURL, yh.Silver, models.FieldSilver),
		yahoo.NewCommodityQuote(client, yh.BaseURL, yh.Oil, models.FieldOil),
		yahoo.NewCommodityQuote(client, yh.BaseURL, yh.VIX, models.FieldVIX),
		eastmoney.NewFlowQuote(client, em.FlowURL, em.MutualType, divisor),
	}, nil
}

// ProvideFallbackStore merges configured values over the built-in table.
func ProvideFallbackStore(cfg *config.Config) (*fallback.Store, error) {
	table := fallback.DefaultTable()
	for k, v := range cfg.Fallback.Values {
		f, ok := models.ParseField(k)
		if !ok {
			return nil, fmt.Errorf("fallback.values: unknown field %q", k)
		}
		table[f] = v
	}

	store, err := fallback.New(cfg.Fallback.Version, table)
	if err != nil {
		return nil, fmt.Errorf("fallback store: %w", err)
	}
	return store, nil
}

func ProvideAggregator(
	cfg *config.Config,
	sources []repository.Source,
	store *fallback.Store,
	m repository.Metrics,
	pub repository.Publisher,
	l *applogger.Logger,
) (*usecase.SnapshotAggregator, error) {
	return usecase.NewSnapshotAggregator(sources, store,
		usecase.WithFallbackMode(usecase.FallbackMode(cfg.Fallback.Mode)),
		usecase.WithSourceTimeout(cfg.Sources.Timeout),
		usecase.WithMetrics(m),
		usecase.WithPublisher(pub),
		usecase.WithLogger(l),
	)
}

// ProvideSharedCache builds the shared tier backend when it is enabled and
// returns nil otherwise. The memory backend runs the same lock and adopt
// protocol inside one process.
func ProvideSharedCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Cache.Shared {
		return nil, nil
	}
	if cfg.Cache.SharedBackend == "memory" {
		return pkgcache.NewMemoryCache(
			pkgcache.WithMemoryMaxSize(cfg.Cache.Memory.MaxSize),
			pkgcache.WithMemoryCleanup(cfg.Cache.Memory.Cleanup),
		), nil
	}

	r := cfg.Redis
	c, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(r.Host),
		pkgcache.WithRedisPort(r.Port),
		pkgcache.WithRedisPassword(r.Password),
		pkgcache.WithRedisDB(r.DB),
		pkgcache.WithRedisPool(r.PoolSize, r.MinIdleConns, r.PoolTimeout),
		pkgcache.WithRedisDialTimeout(r.DialTimeout),
		pkgcache.WithRedisPrefix(r.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("shared cache: %w", err)
	}
	return c, nil
}

func ProvideSnapshotCache(
	cfg *config.Config,
	agg *usecase.SnapshotAggregator,
	shared pkgcache.Service,
	m repository.Metrics,
	l *applogger.Logger,
) *icache.SnapshotCache {
	opts := []icache.Option{
		icache.WithTTL(cfg.Cache.TTL),
		icache.WithMetrics(m),
		icache.WithLogger(l),
	}
	if shared != nil {
		opts = append(opts, icache.WithSharedStore(icache.NewSharedSnapshotStore(shared), cfg.Cache.LockWait))
	}
	return icache.NewSnapshotCache(agg, opts...)
}

// ProvideRateLimiter returns the per-client bucket store for /api, or nil
// when rate limiting is disabled.
func ProvideRateLimiter(cfg *config.Config) echomw.RateLimiterStore {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RateLimit.RefillPerSec),
		Burst:     cfg.RateLimit.Burst,
		ExpiresIn: cfg.RateLimit.ExpiresIn,
	})
}

func ProvideSnapshotHandler(
	cfg *config.Config,
	l *applogger.Logger,
	snapshots *icache.SnapshotCache,
	store *fallback.Store,
	limiter echomw.RateLimiterStore,
) *api.SnapshotEchoHandler {
	return api.NewSnapshotEchoHandler(l, snapshots, store.Version(), cfg.Cache.TTL, limiter)
}

func ProvideStreamHandler(
	cfg *config.Config,
	l *applogger.Logger,
	snapshots *icache.SnapshotCache,
	store *fallback.Store,
) *api.SnapshotStreamHandler {
	return api.NewSnapshotStreamHandler(l, snapshots, store.Version(), cfg.WebSocket.AllowedOrigins)
}

func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	snapshot *api.SnapshotEchoHandler,
	stream *api.SnapshotStreamHandler,
) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{snapshot, stream},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORSOrigins),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(l),
	)
}
