// Package envconfig loads each service's process configuration from
// environment variables, applying the documented defaults and failing
// fast on the mandatory ones (TARGET_BACKEND_URL for the proxy gateway,
// DATABASE_URL for the services that own a database).
package envconfig

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort       = "8080"
	defaultListenHost = "0.0.0.0"
)

var (
	overlayOnce sync.Once
	overlay     map[string]string
)

// loadOverlay reads an optional on-disk config file (CONFIG_FILE, or
// ./config.yaml if unset) consulted between the environment and the
// documented defaults, so operators can check in a base config without
// pinning every variable into the process environment. Absence of the
// file is not an error.
func loadOverlay() map[string]string {
	overlayOnce.Do(func() {
		path := os.Getenv("CONFIG_FILE")
		if path == "" {
			path = "config.yaml"
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return
		}
		var parsed map[string]string
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return
		}
		overlay = parsed
	})
	return overlay
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v, ok := loadOverlay()[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Shared holds the environment configuration common to all four
// services: the bind address and, when the service persists state, the
// database connection string.
type Shared struct {
	ListenHost  string
	Port        string
	DatabaseURL string
}

func loadShared() Shared {
	return Shared{
		ListenHost:  getenv("LISTEN_HOST", defaultListenHost),
		Port:        getenv("PORT", defaultPort),
		DatabaseURL: getenv("DATABASE_URL", ""),
	}
}

// Addr returns the host:port pair a net/http.Server should bind.
func (s Shared) Addr() string {
	return s.ListenHost + ":" + s.Port
}

// IdentityRegistryConfig is C2's process configuration.
type IdentityRegistryConfig struct {
	Shared
}

// LoadIdentityRegistry reads C2's configuration. DATABASE_URL is
// required for the identity registry to start; it carries no other
// service's documented default.
func LoadIdentityRegistry() (IdentityRegistryConfig, error) {
	cfg := IdentityRegistryConfig{Shared: loadShared()}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// PolicyEngineConfig is C3's process configuration: stateless, so its
// only dependency is the external decision point.
type PolicyEngineConfig struct {
	Shared
	OPAURL     string
	PolicyFile string
}

// LoadPolicyEngine reads C3's configuration. When OPA_URL is unset, C3
// falls back to its own embedded evaluator reading POLICY_FILE (or a
// built-in default policy when that too is unset), so a local run
// never needs a standalone decision point.
func LoadPolicyEngine() (PolicyEngineConfig, error) {
	cfg := PolicyEngineConfig{
		Shared:     loadShared(),
		OPAURL:     getenv("OPA_URL", ""),
		PolicyFile: getenv("POLICY_FILE", ""),
	}
	return cfg, nil
}

// UsesEmbeddedEvaluator reports whether C3 should evaluate policy
// in-process rather than calling an external decision point.
func (c PolicyEngineConfig) UsesEmbeddedEvaluator() bool { return c.OPAURL == "" }

// ReceiptStoreConfig is C4's process configuration, including the
// best-effort fan-out sinks.
type ReceiptStoreConfig struct {
	Shared
	KafkaBrokers []string
	KafkaTopic   string
	S3Bucket     string
	S3Region     string
}

// LoadReceiptStore reads C4's configuration. DATABASE_URL is required;
// the stream and archive sinks are optional and are simply omitted
// when their variables are unset.
func LoadReceiptStore() (ReceiptStoreConfig, error) {
	cfg := ReceiptStoreConfig{
		Shared:     loadShared(),
		KafkaTopic: getenv("KAFKA_TOPIC", "pathwell.receipts"),
		S3Bucket:   getenv("S3_BUCKET", ""),
		S3Region:   getenv("S3_REGION", "us-east-1"),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if brokers := getenv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg, nil
}

// HasKafka reports whether the stream sink should be wired.
func (c ReceiptStoreConfig) HasKafka() bool { return len(c.KafkaBrokers) > 0 }

// HasS3 reports whether the archive sink should be wired.
func (c ReceiptStoreConfig) HasS3() bool { return c.S3Bucket != "" }

// ProxyGatewayConfig is C5's process configuration.
type ProxyGatewayConfig struct {
	Shared
	TargetBackendURL    string
	IdentityRegistryURL string
	PolicyEngineURL     string
	ReceiptStoreURL     string
	RedisURL            string
}

// LoadProxyGateway reads C5's configuration. A missing
// TARGET_BACKEND_URL is fatal, per §6.4; the three sibling-service URLs
// fall back to their in-cluster default hostnames.
func LoadProxyGateway() (ProxyGatewayConfig, error) {
	cfg := ProxyGatewayConfig{
		Shared:              loadShared(),
		TargetBackendURL:    getenv("TARGET_BACKEND_URL", ""),
		IdentityRegistryURL: getenv("IDENTITY_REGISTRY_URL", "http://identity-registry:3001"),
		PolicyEngineURL:     getenv("POLICY_ENGINE_URL", "http://policy-engine:3002"),
		ReceiptStoreURL:     getenv("RECEIPT_STORE_URL", "http://receipt-store:3003"),
		RedisURL:            getenv("REDIS_URL", ""),
	}
	if cfg.TargetBackendURL == "" {
		return cfg, fmt.Errorf("TARGET_BACKEND_URL is required")
	}
	return cfg, nil
}

// HasValidationCache reports whether REDIS_URL was configured.
func (c ProxyGatewayConfig) HasValidationCache() bool { return c.RedisURL != "" }
