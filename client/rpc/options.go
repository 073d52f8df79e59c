package rpc

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ipfs/kubo-rpc-backend/config"
	"github.com/ipfs/kubo-rpc-backend/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Option configures a Backend at construction.
type Option func(*Backend) error

// WithHeader adds a static header sent with every request.
func WithHeader(key, value string) Option {
	return func(b *Backend) error {
		if key == "" {
			return errors.New("empty header name")
		}
		b.headers.Add(key, value)
		return nil
	}
}

// WithHeaders adds every header in h to every request.
func WithHeaders(h http.Header) Option {
	return func(b *Backend) error {
		for k, vs := range h {
			for _, v := range vs {
				b.headers.Add(k, v)
			}
		}
		return nil
	}
}

// WithAuthorization sets the Authorization header from an RPC auth secret in
// the "type:value" format of the daemon's API.Authorizations config, e.g.
// "basic:user:pass" or "bearer:token".
func WithAuthorization(secret string) Option {
	return func(b *Backend) error {
		value := config.ConvertAuthSecret(secret)
		if value == "" {
			return fmt.Errorf("unsupported auth secret type in %q", redactSecret(secret))
		}
		b.httpcli.Transport = newAuthenticatedTransport(b.httpcli.Transport, "Authorization", value)
		return nil
	}
}

// WithUserAgent replaces the default User-Agent.
func WithUserAgent(ua string) Option {
	return func(b *Backend) error {
		b.userAgent = ua
		return nil
	}
}

// WithTracing instruments the transport with otelhttp, so every request gets
// a client span under the caller's span.
func WithTracing(opts ...otelhttp.Option) Option {
	return func(b *Backend) error {
		b.httpcli.Transport = otelhttp.NewTransport(b.httpcli.Transport, opts...)
		return nil
	}
}

// WithMetrics registers request metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(b *Backend) error {
		m, err := metrics.New(reg)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		b.metrics = m
		return nil
	}
}

func redactSecret(secret string) string {
	for i := 0; i < len(secret); i++ {
		if secret[i] == ':' {
			return secret[:i] + ":***"
		}
	}
	return "***"
}
