// Package apireq describes RPC API calls independently of how they are sent.
//
// A Request names the HTTP method, the path below the daemon's base endpoint
// and the query parameters of one call. Requests are immutable values; a
// backend only reads them to build its own transport request.
package apireq

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	ipfs "github.com/ipfs/kubo-rpc-backend"
)

// Request is one RPC API call.
type Request interface {
	// Method is the HTTP method. An empty method means POST.
	Method() string
	// Path is the URL path relative to the base endpoint, e.g. "/api/v0/version".
	Path() string
	// Query is the encoded query string parameters.
	Query() url.Values
}

// Validator is implemented by requests that can detect their own mistakes
// before anything is sent.
type Validator interface {
	Validate() error
}

// ErrInvalidRequest is matched by every *InvalidRequestError.
var ErrInvalidRequest = errors.New("invalid api request")

// InvalidRequestError reports a request that cannot be sent as described.
type InvalidRequestError struct {
	Path   string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid api request: %s", e.Reason)
	}
	return fmt.Sprintf("invalid api request %q: %s", e.Path, e.Reason)
}

func (e *InvalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// Raw is a literal request for callers that already know the method, path
// and query.
type Raw struct {
	HTTPMethod string
	URLPath    string
	Params     url.Values
}

func (r Raw) Method() string    { return r.HTTPMethod }
func (r Raw) Path() string      { return r.URLPath }
func (r Raw) Query() url.Values { return r.Params }

var _ Request = Raw{}

// CommandPath maps a command name like "pin/add" or "pin add" to its RPC path.
func CommandPath(command string) string {
	command = strings.Trim(strings.Join(strings.Fields(command), "/"), "/")
	return ipfs.ApiVersion + "/" + command
}

func validatePath(p string) error {
	if p == "" {
		return &InvalidRequestError{Reason: "empty path"}
	}
	if strings.ContainsAny(p, "?#") {
		return &InvalidRequestError{Path: p, Reason: "path must not carry a query or fragment"}
	}
	return nil
}
