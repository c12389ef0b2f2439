// Command proxy-gateway runs C5: the fail-closed interceptor in front
// of every upstream call an agent makes.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/pathwell/agentcore/pkg/gateway"
	"github.com/pathwell/agentcore/pkg/platform/envconfig"
	"github.com/pathwell/agentcore/pkg/platform/server"
	"github.com/pathwell/agentcore/pkg/platform/tracing"
	"github.com/pathwell/agentcore/pkg/policy"
	"github.com/pathwell/agentcore/pkg/shared/logging"
)

func main() {
	logger, err := logging.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("proxy-gateway exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	otel.SetLogger(zapr.NewLogger(logger))
	shutdownTracing := tracing.Init("proxy-gateway")
	defer shutdownTracing()

	cfg, err := envconfig.LoadProxyGateway()
	if err != nil {
		return err
	}

	var cache gateway.ValidationCache
	if cfg.HasValidationCache() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		cache = gateway.NewRedisValidationCache(redis.NewClient(opts), logger)
	}

	identity := gateway.NewRegistryIdentityClient(cfg.IdentityRegistryURL, cache)
	engine := policy.NewEngineClient(cfg.PolicyEngineURL)
	receipts := gateway.NewReceiptStoreClient(cfg.ReceiptStoreURL, logger)

	handler, err := gateway.NewHandler(identity, engine, receipts, cfg.TargetBackendURL, 30*time.Second, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	router := gateway.NewRouter(handler, logger, reg)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.RunUntilSignal(srv, logger, "proxy-gateway")
}
