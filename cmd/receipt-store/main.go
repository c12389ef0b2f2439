// Command receipt-store runs C4: hash-chained receipt persistence,
// best-effort stream and archive fan-out, and the trace read-side API.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pathwell/agentcore/pkg/platform/envconfig"
	"github.com/pathwell/agentcore/pkg/platform/migrate"
	"github.com/pathwell/agentcore/pkg/platform/server"
	"github.com/pathwell/agentcore/pkg/receiptstore"
	"github.com/pathwell/agentcore/pkg/shared/logging"
)

func main() {
	logger, err := logging.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("receipt-store exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := envconfig.LoadReceiptStore()
	if err != nil {
		return err
	}

	db, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate.Up(db.DB); err != nil {
		return err
	}

	sinks, err := buildSinks(cfg, logger)
	if err != nil {
		return err
	}

	store := receiptstore.NewSQLStore(db, logger, sinks...)
	handlers := receiptstore.NewHandlers(store, logger)
	reg := prometheus.NewRegistry()
	router := receiptstore.NewRouter(handlers, logger, reg)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.RunUntilSignal(srv, logger, "receipt-store")
}

func buildSinks(cfg envconfig.ReceiptStoreConfig, logger *zap.Logger) ([]receiptstore.Sink, error) {
	var sinks []receiptstore.Sink

	if cfg.HasKafka() {
		sinks = append(sinks, receiptstore.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger))
	}

	if cfg.HasS3() {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.S3Region))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, receiptstore.NewS3Sink(s3.NewFromConfig(awsCfg), cfg.S3Bucket, logger))
	}

	return sinks, nil
}
