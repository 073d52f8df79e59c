package rpc

import (
	"context"
	"io"
	"net/http"
	"strings"

	ipfs "github.com/ipfs/kubo-rpc-backend"
	"github.com/ipfs/kubo-rpc-backend/client/apireq"
	"github.com/ipfs/kubo-rpc-backend/client/form"
)

// BuildRequest translates req into an HTTP request against the backend's
// endpoint. If f is not nil its multipart encoding becomes the body. Nothing
// is sent and nothing is read from f until the request is.
func (b *Backend) BuildRequest(ctx context.Context, req apireq.Request, f *form.Form) (*http.Request, error) {
	if v, ok := req.(apireq.Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, &Error{Kind: KindClient, Op: "validate request", Err: err}
		}
	}

	u, err := apireq.AbsoluteURL(b.url, req)
	if err != nil {
		return nil, &Error{Kind: KindRequest, Op: "resolve url", Err: err}
	}

	method := req.Method()
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader = http.NoBody
	var contentType string
	if f != nil {
		body, contentType = f.Encode()
	}

	hr, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &Error{Kind: KindRequest, Op: "new request", Err: err}
	}

	hr.Header = b.headers.Clone()
	if b.userAgent != "" {
		hr.Header.Set("User-Agent", b.userAgent)
	}
	if f != nil {
		hr.Header.Set("Content-Type", contentType)
		hr.Header.Set("Content-Disposition", `form-data; name="files"`)
	}

	log.Debugf("%s %s", method, u.Redacted())
	return hr, nil
}

// commandName is the RPC command an URL path calls, e.g. "pin/add", used to
// name errors, spans and metric labels.
func (b *Backend) commandName(p string) string {
	p = strings.TrimPrefix(p, strings.TrimSuffix(b.url.Path, "/"))
	p = strings.TrimPrefix(p, ipfs.ApiVersion)
	p = strings.Trim(p, "/")
	if p == "" {
		return "/"
	}
	return p
}
