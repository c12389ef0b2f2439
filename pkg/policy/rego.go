package policy

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"
)

// defaultModule is the fallback policy evaluated when no policy file is
// configured: an agent is allowed if valid and not revoked, and a v2
// evaluation additionally blocks once the carried trust score falls
// below the default threshold.
const defaultModule = `package pathwell.authz

default allow = false

allow {
	input.agent.valid
	not input.agent.revoked
}

default threshold = 0.3

default trust_action = "none"

trust_action = "block" {
	input.agent.trust_score < threshold
}

v2_allow = false {
	trust_action == "block"
}

v2_allow = allow {
	trust_action != "block"
}

v2 = {
	"allow": v2_allow,
	"trust_action": trust_action,
	"applied_threshold": threshold,
}
`

// RegoEvaluator is an embedded Engine implementation for local
// development and any deployment that runs without a standalone
// decision point: it evaluates the same v1/v2 query shapes OPAAdapter
// calls over HTTP, but in-process against a Rego module loaded from
// disk (or defaultModule when no file is configured). When a file is
// configured, a filesystem watcher recompiles the module on every
// write so an operator can edit policy without restarting the process.
type RegoEvaluator struct {
	mu      sync.RWMutex
	v1Query rego.PreparedEvalQuery
	v2Query rego.PreparedEvalQuery

	filePath string
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
}

// NewRegoEvaluator compiles the module at filePath (or defaultModule
// when filePath is empty) and, if a file was given, starts watching it
// for changes.
func NewRegoEvaluator(filePath string, logger *zap.Logger) (*RegoEvaluator, error) {
	e := &RegoEvaluator{filePath: filePath, logger: logger}
	if err := e.reload(context.Background()); err != nil {
		return nil, err
	}
	if filePath != "" {
		if err := e.watch(); err != nil {
			logger.Warn("policy file watch failed, hot reload disabled", zap.String("path", filePath), zap.Error(err))
		}
	}
	return e, nil
}

// Close stops the filesystem watcher, if one was started.
func (e *RegoEvaluator) Close() error {
	if e.watcher == nil {
		return nil
	}
	return e.watcher.Close()
}

func (e *RegoEvaluator) moduleSource() (string, error) {
	if e.filePath == "" {
		return defaultModule, nil
	}
	data, err := os.ReadFile(e.filePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (e *RegoEvaluator) reload(ctx context.Context) error {
	src, err := e.moduleSource()
	if err != nil {
		return err
	}

	v1, err := rego.New(
		rego.Query("data.pathwell.authz.allow"),
		rego.Module("pathwell_authz.rego", src),
	).PrepareForEval(ctx)
	if err != nil {
		return err
	}

	v2, err := rego.New(
		rego.Query("data.pathwell.authz.v2"),
		rego.Module("pathwell_authz.rego", src),
	).PrepareForEval(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.v1Query = v1
	e.v2Query = v2
	e.mu.Unlock()
	return nil
}

func (e *RegoEvaluator) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(e.filePath); err != nil {
		_ = w.Close()
		return err
	}
	e.watcher = w

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := e.reload(context.Background()); err != nil {
					e.logger.Warn("policy file reload failed", zap.String("path", e.filePath), zap.Error(err))
					continue
				}
				e.logger.Info("policy file reloaded", zap.String("path", e.filePath))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				e.logger.Warn("policy file watch error", zap.Error(err))
			}
		}
	}()
	return nil
}

func toRegoInput(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// EvaluateV1 evaluates data.pathwell.authz.allow against req.
func (e *RegoEvaluator) EvaluateV1(ctx context.Context, req V1Request) (Decision, error) {
	start := time.Now()
	input, err := toRegoInput(req)
	if err != nil {
		return Decision{}, err
	}

	e.mu.RLock()
	q := e.v1Query
	e.mu.RUnlock()

	rs, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, err
	}

	var allowed bool
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		if b, ok := rs[0].Expressions[0].Value.(bool); ok {
			allowed = b
		}
	}
	return DecisionFromV1(V1Response{Result: allowed}, time.Since(start)), nil
}

// EvaluateV2 evaluates data.pathwell.authz.v2 against req.
func (e *RegoEvaluator) EvaluateV2(ctx context.Context, req V2Request, trustScore *float64) (Decision, error) {
	start := time.Now()
	input, err := toRegoInput(req)
	if err != nil {
		return Decision{}, err
	}

	e.mu.RLock()
	q := e.v2Query
	e.mu.RUnlock()

	rs, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, err
	}

	var doc V2Document
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		if b, err := json.Marshal(rs[0].Expressions[0].Value); err == nil {
			_ = json.Unmarshal(b, &doc)
		}
	}
	return DecisionFromV2(doc, trustScore, time.Since(start)), nil
}
