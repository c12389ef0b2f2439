// Command policy-engine runs C3: the stateless HTTP adapter to the
// external decision point, exposing the v1 boolean and v2 document
// evaluate contracts.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pathwell/agentcore/pkg/platform/envconfig"
	"github.com/pathwell/agentcore/pkg/platform/server"
	"github.com/pathwell/agentcore/pkg/policy"
	"github.com/pathwell/agentcore/pkg/policyengine"
	"github.com/pathwell/agentcore/pkg/shared/logging"
)

func main() {
	logger, err := logging.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("policy-engine exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := envconfig.LoadPolicyEngine()
	if err != nil {
		return err
	}

	var engine policy.Engine
	if cfg.UsesEmbeddedEvaluator() {
		rego, err := policy.NewRegoEvaluator(cfg.PolicyFile, logger)
		if err != nil {
			return err
		}
		defer rego.Close()
		engine = rego
	} else {
		engine = policy.NewOPAAdapter(cfg.OPAURL)
	}

	handlers := policyengine.NewHandlers(engine, logger)
	reg := prometheus.NewRegistry()
	router := policyengine.NewRouter(handlers, logger, reg)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.RunUntilSignal(srv, logger, "policy-engine")
}
