package rpc

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/multierr"
)

const streamErrHeader = "X-Stream-Error"

// Response is an unconsumed RPC response. Its body must be consumed exactly
// once: with Bytes, by reading Body and then calling Close or Cancel, or by
// handing it to a stream.
type Response struct {
	StatusCode int
	Header     http.Header
	Command    string

	resp     *http.Response
	body     io.ReadCloser
	consumed bool
	closed   bool
}

func newResponse(command string, resp *http.Response, body io.ReadCloser) *Response {
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Command:    command,
		resp:       resp,
		body:       body,
	}
}

// Success reports whether the status is 200 OK, the only status the daemon
// sends a command's output with.
func (r *Response) Success() bool {
	return r.StatusCode == http.StatusOK
}

// HeaderValue returns a copy of the first value of the named header.
func (r *Response) HeaderValue(key string) (string, bool) {
	vs := r.Header.Values(key)
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// Header returns a copy of the first value of the named response header.
func Header(res *Response, key string) (string, bool) {
	return res.HeaderValue(key)
}

// Body returns the response body as a reader. If the body ends with an
// error and the daemon set an X-Stream-Error trailer, the trailer is
// returned as an API error instead.
func (r *Response) Body() io.Reader {
	r.consumed = true
	return &trailerReader{r: r}
}

// Bytes reads the whole body and closes it.
func (r *Response) Bytes() ([]byte, error) {
	if r.consumed {
		return nil, &Error{Kind: KindRequest, Op: "read " + r.Command, Err: ErrConsumed}
	}
	r.consumed = true

	data, err := io.ReadAll(&trailerReader{r: r})
	if cerr := r.closeBody(); cerr != nil {
		err = multierr.Append(err, &Error{Kind: KindTransport, Op: "close " + r.Command, Err: cerr})
	}
	return data, err
}

// Close drains the remaining body and closes it.
func (r *Response) Close() error {
	if r.closed {
		return nil
	}
	r.consumed = true
	var err error
	if _, derr := io.Copy(io.Discard, r.body); derr != nil {
		err = &Error{Kind: KindTransport, Op: "drain " + r.Command, Err: derr}
	}
	if cerr := r.closeBody(); cerr != nil {
		err = multierr.Append(err, &Error{Kind: KindTransport, Op: "close " + r.Command, Err: cerr})
	}
	return err
}

// Cancel closes the body without draining it, aborting the transfer.
func (r *Response) Cancel() error {
	if r.closed {
		return nil
	}
	r.consumed = true
	if err := r.closeBody(); err != nil {
		return &Error{Kind: KindTransport, Op: "close " + r.Command, Err: err}
	}
	return nil
}

func (r *Response) closeBody() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.body.Close()
}

// failure drains the body of a failed response and turns it into an error.
// A failed drain hides the payload and is reported as a transport error. A
// failed close after a complete drain does not.
func (r *Response) failure() error {
	r.consumed = true
	body, err := io.ReadAll(r.body)
	if cerr := r.closeBody(); cerr != nil {
		log.Debugf("%s: closing error response: %s", r.Command, cerr)
	}
	if err != nil {
		return &Error{Kind: KindTransport, Op: "drain error response", Err: err}
	}
	log.Debugf("%s: status %d: %s", r.Command, r.StatusCode, trimForLog(body))
	return &Error{
		Kind: KindAPI,
		Op:   r.Command,
		Err:  parseAPIError(r.Command, r.StatusCode, r.Header.Get("Content-Type"), body),
	}
}

type trailerReader struct {
	r *Response
}

func (tr *trailerReader) Read(b []byte) (int, error) {
	n, err := tr.r.body.Read(b)
	if err != nil {
		if e := tr.r.resp.Trailer.Get(streamErrHeader); e != "" {
			err = &Error{
				Kind: KindAPI,
				Op:   tr.r.Command,
				Err: &APIError{
					Command: tr.r.Command,
					Message: e,
					Status:  tr.r.StatusCode,
					wrapped: parseErrNotFound(e),
				},
			}
		} else if !errors.Is(err, io.EOF) {
			err = &Error{Kind: KindTransport, Op: "read " + tr.r.Command, Err: err}
		}
	}
	return n, err
}
