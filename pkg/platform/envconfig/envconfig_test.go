package envconfig

import "testing"

func TestLoadProxyGatewayRequiresTargetBackendURL(t *testing.T) {
	t.Setenv("TARGET_BACKEND_URL", "")
	if _, err := LoadProxyGateway(); err == nil {
		t.Fatal("expected error when TARGET_BACKEND_URL is unset")
	}
}

func TestLoadProxyGatewayDefaults(t *testing.T) {
	t.Setenv("TARGET_BACKEND_URL", "http://backend:9000")
	cfg, err := LoadProxyGateway()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IdentityRegistryURL != "http://identity-registry:3001" {
		t.Errorf("IdentityRegistryURL = %q", cfg.IdentityRegistryURL)
	}
	if cfg.HasValidationCache() {
		t.Error("HasValidationCache() should be false when REDIS_URL is unset")
	}
}

func TestLoadProxyGatewayWithRedis(t *testing.T) {
	t.Setenv("TARGET_BACKEND_URL", "http://backend:9000")
	t.Setenv("REDIS_URL", "redis://cache:6379")
	cfg, err := LoadProxyGateway()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.HasValidationCache() {
		t.Error("HasValidationCache() should be true when REDIS_URL is set")
	}
}

func TestLoadIdentityRegistryRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadIdentityRegistry(); err == nil {
		t.Fatal("expected error when DATABASE_URL is unset")
	}
}

func TestLoadReceiptStoreParsesKafkaBrokers(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pathwell")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	cfg, err := LoadReceiptStore()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if !cfg.HasKafka() {
		t.Error("HasKafka() should be true")
	}
	if cfg.HasS3() {
		t.Error("HasS3() should be false when S3_BUCKET is unset")
	}
}

func TestAddr(t *testing.T) {
	s := Shared{ListenHost: "0.0.0.0", Port: "3001"}
	if s.Addr() != "0.0.0.0:3001" {
		t.Errorf("Addr() = %q", s.Addr())
	}
}
