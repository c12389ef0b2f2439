// Command identity-registry runs C2: developer/agent enrollment,
// certificate issuance, tenant hierarchy, and trust score storage.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pathwell/agentcore/pkg/ca"
	"github.com/pathwell/agentcore/pkg/platform/envconfig"
	"github.com/pathwell/agentcore/pkg/platform/migrate"
	"github.com/pathwell/agentcore/pkg/platform/server"
	"github.com/pathwell/agentcore/pkg/registry"
	"github.com/pathwell/agentcore/pkg/shared/logging"
)

func main() {
	logger, err := logging.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("identity-registry exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := envconfig.LoadIdentityRegistry()
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

	authority, err := ca.New()
	if err != nil {
		return err
	}

	store := registry.NewSQLStore(db, authority)
	handlers := registry.NewHandlers(store, authority, logger)
	reg := prometheus.NewRegistry()
	router := registry.NewRouter(handlers, logger, reg)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.RunUntilSignal(srv, logger, "identity-registry")
}
