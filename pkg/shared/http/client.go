// Package http provides a shared outbound http.Client factory so the
// gateway's cross-service calls (to the identity registry, policy
// engine and receipt store) carry an explicit timeout and transport
// tuning instead of relying on http.DefaultClient. The gateway's
// forward to the upstream backend uses its own plain http.Client.
package http

import (
	"crypto/tls"
	"net/http"
	"time"
)

// ClientConfig tunes the transport and deadline of a client built by
// NewClient.
type ClientConfig struct {
	Timeout                 time.Duration
	MaxRetries              int
	DisableSSLVerification  bool
	MaxIdleConns            int
	IdleConnTimeout         time.Duration
	TLSHandshakeTimeout     time.Duration
	ResponseHeaderTimeout   time.Duration
}

// DefaultClientConfig is the baseline used when a caller has no
// service-specific needs.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:               30 * time.Second,
		MaxRetries:            3,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
}

// IdentityClientConfig is used by the gateway for identity registry
// calls: a 5s deadline on the identity check.
func IdentityClientConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.Timeout = 5 * time.Second
	cfg.ResponseHeaderTimeout = 5 * time.Second
	return cfg
}

// PolicyClientConfig is used by the gateway for policy engine calls: a
// 5s deadline on the policy check.
func PolicyClientConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.Timeout = 5 * time.Second
	cfg.ResponseHeaderTimeout = 5 * time.Second
	return cfg
}

// UpstreamClientConfig builds the config for forwarding to the
// configured target backend; timeout is operator-configurable.
func UpstreamClientConfig(timeout time.Duration) ClientConfig {
	cfg := DefaultClientConfig()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg.Timeout = timeout
	cfg.ResponseHeaderTimeout = timeout
	return cfg
}

// PrometheusClientConfig builds a metrics-scrape-shaped client: a
// slower response-header allowance relative to the overall timeout.
func PrometheusClientConfig(timeout time.Duration) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.Timeout = timeout
	cfg.ResponseHeaderTimeout = timeout / 2
	return cfg
}

// NewClient builds an *http.Client from config.
func NewClient(config ClientConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          config.MaxIdleConns,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
	}
	if config.DisableSSLVerification {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in for local/dev only
	}
	return &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}
}

// NewClientWithTimeout is a shortcut for NewClient(DefaultClientConfig()
// with Timeout overridden).
func NewClientWithTimeout(timeout time.Duration) *http.Client {
	cfg := DefaultClientConfig()
	cfg.Timeout = timeout
	return NewClient(cfg)
}

// NewDefaultClient builds a client from DefaultClientConfig.
func NewDefaultClient() *http.Client {
	return NewClient(DefaultClientConfig())
}
