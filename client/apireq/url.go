package apireq

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// AbsoluteURL resolves req against base: the request path is joined below
// the base path and the request query replaces any base query. It does not
// run Validate; callers decide how to report invalid requests.
func AbsoluteURL(base *url.URL, req Request) (*url.URL, error) {
	if base == nil {
		return nil, fmt.Errorf("no base endpoint")
	}

	p := req.Path()
	if err := validatePath(p); err != nil {
		return nil, err
	}

	u := *base
	u.Path = path.Join("/", base.Path, p)
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawPath = ""
	u.RawQuery = ""
	if q := req.Query(); len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	u.Fragment = ""
	u.RawFragment = ""
	return &u, nil
}
