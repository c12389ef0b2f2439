package http

import (
	"testing"
	"time"
)

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.DisableSSLVerification {
		t.Error("DisableSSLVerification should default false")
	}
	if cfg.MaxIdleConns != 10 {
		t.Errorf("MaxIdleConns = %d, want 10", cfg.MaxIdleConns)
	}
}

func TestNewClient(t *testing.T) {
	cfg := ClientConfig{
		Timeout:               30 * time.Second,
		MaxIdleConns:          5,
		IdleConnTimeout:       60 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
	}
	client := NewClient(cfg)
	if client.Timeout != cfg.Timeout {
		t.Errorf("Timeout = %v, want %v", client.Timeout, cfg.Timeout)
	}
	if client.Transport == nil {
		t.Error("expected transport to be configured")
	}
}

func TestNewClientWithTimeout(t *testing.T) {
	client := NewClientWithTimeout(15 * time.Second)
	if client.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", client.Timeout)
	}
}

func TestIdentityAndPolicyClientConfig(t *testing.T) {
	if cfg := IdentityClientConfig(); cfg.Timeout != 5*time.Second {
		t.Errorf("IdentityClientConfig timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg := PolicyClientConfig(); cfg.Timeout != 5*time.Second {
		t.Errorf("PolicyClientConfig timeout = %v, want 5s", cfg.Timeout)
	}
}

func TestPrometheusClientConfig(t *testing.T) {
	cfg := PrometheusClientConfig(20 * time.Second)
	if cfg.ResponseHeaderTimeout != 10*time.Second {
		t.Errorf("ResponseHeaderTimeout = %v, want 10s", cfg.ResponseHeaderTimeout)
	}
}

func TestUpstreamClientConfigDefault(t *testing.T) {
	cfg := UpstreamClientConfig(0)
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want default 30s", cfg.Timeout)
	}
}
