package httpx

import (
	"crypto/tls"
	"net/http"
	"time"
)

// NewClient creates the client used for outbound calls such as remote
// imports. tlsCfg may be nil to use the system roots.
func NewClient(timeout time.Duration, tlsCfg *tls.Config) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		TLSClientConfig:     tlsCfg,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
