package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/driftbox/driftbox/internal/config"
	"github.com/driftbox/driftbox/internal/constants"
)

// CreateOptimizedClient creates the HTTP client shared by the S3 and Azure
// blob backends and the signed URL fetcher.
//
// Key features:
//   - Proxy support (uses ConfigureHTTPClient as base)
//   - Large connection pool for concurrent tasks
//   - HTTP/2 unless a proxy is active (DRIFTBOX_DISABLE_HTTP2 / DRIFTBOX_FORCE_HTTP2 override)
//   - No client-wide timeout; each operation bounds itself with its context
//   - Compression disabled, uploads are opaque bytes
func CreateOptimizedClient(cfg *config.ProxyConfig) (*nethttp.Client, error) {
	baseClient, err := ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport in a Negotiator; leave it as configured.
		baseClient.Timeout = 0
		return baseClient, nil
	}

	tr.MaxIdleConns = 512
	tr.MaxIdleConnsPerHost = 100
	tr.MaxConnsPerHost = 100
	tr.IdleConnTimeout = constants.HTTPIdleConnTimeout
	tr.TLSHandshakeTimeout = constants.HTTPTLSHandshakeTimeout
	tr.ExpectContinueTimeout = constants.HTTPExpectContinueTimeout
	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true

	_ = http2.ConfigureTransport(tr)

	disable := os.Getenv(constants.EnvPrefix+"DISABLE_HTTP2") == "true"
	// Proxies often break HTTP/2 multiplexing mid-transfer.
	if proxyActive(cfg, os.Getenv) && os.Getenv(constants.EnvPrefix+"FORCE_HTTP2") != "true" {
		disable = true
	}
	if disable {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	baseClient.Transport = tr
	baseClient.Timeout = 0
	return baseClient, nil
}
