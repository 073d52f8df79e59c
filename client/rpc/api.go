// Package rpc is an HTTP backend for kubo's RPC API.
//
// A Backend turns apireq requests into HTTP requests against one daemon,
// sends them and normalizes the responses: buffered calls return the status
// and body bytes, streaming calls return a lazy sequence of decoded records.
// Every failure is reported as an *Error whose Kind tells where it came from.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"

	logging "github.com/ipfs/go-log/v2"
	ipfs "github.com/ipfs/kubo-rpc-backend"
	"github.com/ipfs/kubo-rpc-backend/config"
	"github.com/ipfs/kubo-rpc-backend/metrics"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

var log = logging.Logger("rpc")

// ErrApiNotFound if we fail to find a running daemon.
var ErrApiNotFound = config.ErrApiNotFound

// Backend sends RPC requests to one daemon.
//
// A Backend only holds configuration fixed at construction, so it is safe for
// concurrent use.
type Backend struct {
	url       *url.URL
	httpcli   http.Client
	headers   http.Header
	userAgent string
	metrics   *metrics.Metrics
}

// NewLocalBackend tries to construct a new Backend communicating with the
// local IPFS daemon.
//
// Daemon api address is pulled from the $IPFS_PATH/api file.
// If $IPFS_PATH env var is not present, it defaults to ~/.ipfs.
func NewLocalBackend(opts ...Option) (*Backend, error) {
	baseDir := os.Getenv(config.EnvDir)
	if baseDir == "" {
		baseDir = config.DefaultPathRoot
	}

	return NewPathBackend(baseDir, opts...)
}

// NewPathBackend constructs a new Backend by pulling the api address from the
// specified ipfspath. Api file should be located at $ipfspath/api.
func NewPathBackend(ipfspath string, opts ...Option) (*Backend, error) {
	a, err := config.ApiAddr(ipfspath)
	if err != nil {
		return nil, &Error{Kind: KindConfig, Op: "read api file", Err: err}
	}
	return NewBackend(a, opts...)
}

// NewDefaultBackend connects to the endpoint of a running daemon if one can
// be found, then to the address in the repo's config file, and finally to
// /ip4/127.0.0.1/tcp/5001.
func NewDefaultBackend(opts ...Option) (*Backend, error) {
	root, err := config.PathRoot()
	if err != nil {
		return nil, &Error{Kind: KindConfig, Op: "find repo", Err: err}
	}

	a, err := config.ApiAddr(root)
	if errors.Is(err, config.ErrApiNotFound) {
		a, err = config.ConfiguredApiAddr(root)
	}
	if errors.Is(err, config.ErrApiNotFound) {
		log.Debugf("no api address under %s, using %s", root, config.DefaultAPIAddress)
		a, err = ma.NewMultiaddr(config.DefaultAPIAddress)
	}
	if err != nil {
		return nil, &Error{Kind: KindConfig, Op: "find api address", Err: err}
	}
	return NewBackend(a, opts...)
}

// NewBackend constructs a Backend with the specified endpoint.
func NewBackend(a ma.Multiaddr, opts ...Option) (*Backend, error) {
	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: true,
	}

	network, address, err := manet.DialArgs(a)
	if err != nil {
		return nil, &Error{Kind: KindConfig, Op: "dial args", Err: fmt.Errorf("%w: %s: %w", ErrInvalidEndpoint, a, err)}
	}
	if network == "unix" {
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", address)
		}
		c := &http.Client{
			Transport: transport,
		}
		// This will create a backend which makes requests to `http://unix`.
		return NewURLBackendWithClient("http://unix", c, opts...)
	}

	c := &http.Client{
		Transport: transport,
	}

	return NewBackendWithClient(a, c, opts...)
}

// NewBackendWithClient constructs a Backend with the specified endpoint and
// custom http client.
func NewBackendWithClient(a ma.Multiaddr, c *http.Client, opts ...Option) (*Backend, error) {
	_, host, err := manet.DialArgs(a)
	if err != nil {
		return nil, &Error{Kind: KindConfig, Op: "dial args", Err: fmt.Errorf("%w: %s: %w", ErrInvalidEndpoint, a, err)}
	}

	if a, err := ma.NewMultiaddr(host); err == nil {
		_, h, err := manet.DialArgs(a)
		if err == nil {
			host = h
		}
	}

	proto := "http://"

	// By default, DialArgs is going to provide details suitable for connecting
	// a socket to, but not really suitable for making an informed choice of http
	// protocol.  For multiaddresses specifying tls and/or https we want to make
	// a https request instead of a http request.
	for _, p := range a.Protocols() {
		if p.Code == ma.P_HTTPS || p.Code == ma.P_TLS {
			proto = "https://"
			break
		}
	}

	return NewURLBackendWithClient(proto+host, c, opts...)
}

// NewURLBackendWithClient constructs a Backend for an http(s) base URL. The
// base is validated here, so a malformed endpoint fails before any request
// is attempted.
func NewURLBackendWithClient(base string, c *http.Client, opts ...Option) (*Backend, error) {
	u, err := parseBase(base)
	if err != nil {
		return nil, &Error{Kind: KindConfig, Op: "parse endpoint", Err: err}
	}
	if c == nil {
		c = &http.Client{}
	}

	b := &Backend{
		url:       u,
		httpcli:   *c,
		headers:   make(http.Header),
		userAgent: ipfs.GetUserAgentVersion(),
	}
	if b.httpcli.Transport == nil {
		b.httpcli.Transport = http.DefaultTransport
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, &Error{Kind: KindConfig, Op: "apply option", Err: err}
		}
	}

	// We don't support redirects.
	b.httpcli.CheckRedirect = func(_ *http.Request, _ []*http.Request) error {
		return fmt.Errorf("unexpected redirect")
	}

	return b, nil
}

func parseBase(base string) (*url.URL, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return nil, fmt.Errorf("%w: %q: scheme must be http or https", ErrInvalidEndpoint, base)
	case u.Host == "":
		return nil, fmt.Errorf("%w: %q: missing host", ErrInvalidEndpoint, base)
	case u.User != nil:
		return nil, fmt.Errorf("%w: %q: credentials belong in WithAuthorization", ErrInvalidEndpoint, base)
	case u.RawQuery != "" || u.Fragment != "":
		return nil, fmt.Errorf("%w: %q: endpoint must not carry a query or fragment", ErrInvalidEndpoint, base)
	}
	return u, nil
}

// URL returns the base endpoint.
func (b *Backend) URL() string {
	return b.url.String()
}
