// internal/network/httpclient_test.go
package network

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewDefaultClientConfig(t *testing.T) {
	config := NewDefaultClientConfig(zaptest.NewLogger(t))

	assert.Equal(t, DefaultDialTimeout, config.DialTimeout)
	assert.Equal(t, DefaultMaxIdleConnsPerHost, config.MaxIdleConnsPerHost)
	assert.True(t, config.ForceHTTP2, "HTTP/2 should be preferred by default")
	assert.NotNil(t, config.Logger)
}

func TestNewHTTPTransport(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		transport := NewHTTPTransport(nil)

		require.NotNil(t, transport.TLSClientConfig)
		assert.Equal(t, uint16(tls.VersionTLS12), transport.TLSClientConfig.MinVersion)
		assert.False(t, transport.TLSClientConfig.InsecureSkipVerify)
		assert.Contains(t, transport.TLSClientConfig.NextProtos, "h2")
		assert.Equal(t, DefaultMaxIdleConns, transport.MaxIdleConns)
	})

	t.Run("custom TLS config is cloned", func(t *testing.T) {
		custom := &tls.Config{ServerName: "api.example.com"}
		config := NewDefaultClientConfig(nil)
		config.TLSConfig = custom

		transport := NewHTTPTransport(config)

		assert.Equal(t, "api.example.com", transport.TLSClientConfig.ServerName)
		assert.NotSame(t, custom, transport.TLSClientConfig)
		assert.Empty(t, custom.NextProtos, "the caller's config must not be modified")
	})

	t.Run("HTTP/1.1 only", func(t *testing.T) {
		config := NewDefaultClientConfig(nil)
		config.ForceHTTP2 = false

		transport := NewHTTPTransport(config)
		assert.Equal(t, []string{"http/1.1"}, transport.TLSClientConfig.NextProtos)
	})
}

func TestNewClient_Protocols(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Proto)
	})

	t.Run("plain HTTP stays on HTTP/1.1", func(t *testing.T) {
		srv := httptest.NewServer(handler)
		defer srv.Close()

		resp, err := NewClient(NewDefaultClientConfig(nil)).Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, 1, resp.ProtoMajor)
	})

	t.Run("TLS negotiates HTTP/2", func(t *testing.T) {
		srv := httptest.NewUnstartedServer(handler)
		srv.EnableHTTP2 = true
		srv.StartTLS()
		defer srv.Close()

		pool := x509.NewCertPool()
		pool.AddCert(srv.Certificate())
		config := NewDefaultClientConfig(zaptest.NewLogger(t))
		config.TLSConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}

		resp, err := NewClient(config).Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, 2, resp.ProtoMajor)
		assert.Equal(t, "HTTP/2.0", string(body))
	})
}
