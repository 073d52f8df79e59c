package rpc

import "net/http"

// transport sets one header on every request. The request is cloned first,
// since a RoundTripper must not modify the request it was given.
type transport struct {
	header, value string
	httptr        http.RoundTripper
}

func newAuthenticatedTransport(tr http.RoundTripper, header, value string) *transport {
	return &transport{
		header: header,
		value:  value,
		httptr: tr,
	}
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set(t.header, t.value)
	return t.httptr.RoundTrip(req)
}
