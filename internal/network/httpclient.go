// File: internal/network/httpclient.go
package network

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Defaults for the outbound client shared by the reasoning and automation
// backends. Request deadlines come from the caller's context, so the client
// itself sets no overall timeout.
const (
	DefaultDialTimeout         = 5 * time.Second
	DefaultKeepAliveInterval   = 15 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultMaxIdleConns        = 64
	DefaultMaxIdleConnsPerHost = 16
	DefaultIdleConnTimeout     = 90 * time.Second
)

// ClientConfig holds the configuration for the HTTP client and transport layers.
type ClientConfig struct {
	DialTimeout         time.Duration
	KeepAlive           time.Duration
	TLSHandshakeTimeout time.Duration

	// TLSConfig is cloned before use. Nil selects secure defaults.
	TLSConfig *tls.Config

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// ForceHTTP2 negotiates HTTP/2 with TLS endpoints such as the model APIs.
	// Plain-HTTP endpoints keep using HTTP/1.1.
	ForceHTTP2 bool

	Logger *zap.Logger
}

// NewDefaultClientConfig returns the configuration used for all outbound calls.
func NewDefaultClientConfig(logger *zap.Logger) *ClientConfig {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientConfig{
		DialTimeout:         DefaultDialTimeout,
		KeepAlive:           DefaultKeepAliveInterval,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		ForceHTTP2:          true,
		Logger:              logger.Named("httpclient"),
	}
}

// NewHTTPTransport creates an http.Transport from config. Proxy settings
// are taken from the environment.
func NewHTTPTransport(config *ClientConfig) *http.Transport {
	if config == nil {
		config = NewDefaultClientConfig(nil)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	dialer := &net.Dialer{Timeout: config.DialTimeout, KeepAlive: config.KeepAlive}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSClientConfig:     configureTLS(config),
		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
	}

	if config.ForceHTTP2 {
		// http2.ConfigureTransport modifies the transport in place to add HTTP/2 support.
		if err := http2.ConfigureTransport(transport); err != nil {
			config.Logger.Warn("Failed to configure HTTP/2 transport, falling back to HTTP/1.1", zap.Error(err))
		}
	} else if len(transport.TLSClientConfig.NextProtos) == 0 {
		transport.TLSClientConfig.NextProtos = []string{"http/1.1"}
	}

	return transport
}

// NewClient creates an *http.Client on a transport built from config. The
// client is safe for concurrent use and is meant to be shared.
func NewClient(config *ClientConfig) *http.Client {
	return &http.Client{Transport: NewHTTPTransport(config)}
}

func configureTLS(config *ClientConfig) *tls.Config {
	if config.TLSConfig != nil {
		return config.TLSConfig.Clone()
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ClientSessionCache: tls.NewLRUClientSessionCache(64),
	}
}
