package rpc

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/ipfs/go-cid"
	ipld "github.com/ipfs/go-ipld-format"
	mbase "github.com/multiformats/go-multibase"
	"github.com/tidwall/gjson"
)

// Kind classifies where a failure originated.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindConfig is a bad base endpoint or backend option.
	KindConfig
	// KindRequest is a request that could not be constructed: an unresolvable
	// target URL or a multipart body that failed to encode.
	KindRequest
	// KindTransport is a connection, TLS, timeout, malformed response or body
	// read failure.
	KindTransport
	// KindAPI is a well-formed failure reported by the daemon. The error
	// carries an *APIError.
	KindAPI
	// KindClient is an invalid request detected by the request model before
	// anything was sent.
	KindClient
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindRequest:
		return "request"
	case KindTransport:
		return "transport"
	case KindAPI:
		return "api"
	case KindClient:
		return "client"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidEndpoint is wrapped by configuration errors about the base
	// endpoint.
	ErrInvalidEndpoint = errors.New("invalid rpc endpoint")
	// ErrConsumed is returned when a response body is consumed twice.
	ErrConsumed = errors.New("response already consumed")
)

// Error is the single error type returned by the backend.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %s", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Error codes the daemon puts in the Code field of its error payload.
const (
	ErrNormal         = 0
	ErrClient         = 1
	ErrImplementation = 2
	ErrNotFound       = 3
	ErrFatal          = 4
	ErrRateLimited    = 5
	ErrForbidden      = 6
)

// APIError is the error payload of a failed RPC call.
type APIError struct {
	Command string
	Message string
	Code    int
	Type    string
	// Status is the HTTP status the payload came with.
	Status int

	// typed form of Message, when it has one
	wrapped error
}

func (e *APIError) Error() string {
	var out string
	if e.Code != 0 {
		out = fmt.Sprintf("%s%d: ", out, e.Code)
	}
	return out + e.Message
}

func (e *APIError) Unwrap() error {
	return e.wrapped
}

// parseAPIError builds the APIError for a failure status from the fully
// drained body.
func parseAPIError(command string, status int, contentType string, body []byte) *APIError {
	e := &APIError{Command: command, Status: status}

	if gjson.ValidBytes(body) {
		payload := gjson.ParseBytes(body)
		if msg := payload.Get("Message"); payload.IsObject() && msg.Exists() {
			e.Message = msg.String()
			e.Code = int(payload.Get("Code").Int())
			e.Type = payload.Get("Type").String()
			e.wrapped = parseErrNotFound(e.Message)
			return e
		}
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	text := strings.TrimSpace(string(body))
	switch {
	case status == http.StatusNotFound:
		e.Message = "command not found"
		e.Code = ErrClient
	case mediaType == "text/plain" || mediaType == "":
		e.Message = text
	default:
		log.Warnf("unhandled error response (%d) encoding: %s", status, contentType)
		e.Message = fmt.Sprintf("unknown error encoding: %q - %q", contentType, text)
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	e.wrapped = parseErrNotFound(e.Message)
	return e
}

// The daemon flattens errors to text. The helpers below recover the
// not-found errors callers commonly test for, so errors.Is against
// ipld.ErrNotFound keeps working across the wire.

type prePostWrappedNotFoundError struct {
	pre  string
	post string

	wrapped ipld.ErrNotFound
}

func (e prePostWrappedNotFoundError) String() string {
	return e.Error()
}

func (e prePostWrappedNotFoundError) Error() string {
	return e.pre + e.wrapped.Error() + e.post
}

func (e prePostWrappedNotFoundError) Unwrap() error {
	return e.wrapped
}

// blockstoreNotFoundError keeps the daemon's message but matches
// ipld.ErrNotFound, for code that still checks for
// "blockstore: block not found" textually.
type blockstoreNotFoundError struct {
	msg string
}

func (e blockstoreNotFoundError) Error() string {
	return e.msg
}

func (e blockstoreNotFoundError) Is(err error) bool {
	_, ok := err.(ipld.ErrNotFound)
	return ok
}

func (e blockstoreNotFoundError) NotFound() bool {
	return true
}

// parseErrNotFound returns nil when msg is not a not-found error.
func parseErrNotFound(msg string) error {
	if msg == "" {
		return nil
	}
	if err := parseIPLDErrNotFound(msg); err != nil {
		return err
	}
	if strings.Contains(msg, "blockstore: block not found") {
		return blockstoreNotFoundError{msg: msg}
	}
	return nil
}

// Assume CIDs break on:
// - Whitespaces: " \t\n\r\v\f"
// - Semicolon: ";" this is to parse ipld.ErrNotFound wrapped in multierr
// - Double Quotes: "\"" this is for parsing %q and %#v formatting.
const cidBreakSet = " \t\n\r\v\f;\""

func parseIPLDErrNotFound(msg string) error {
	// We accept "node" in place of the CID because that means it's an
	// Undefined CID.
	const key = "ipld: could not find "

	keyIndex := strings.Index(msg, key)
	if keyIndex < 0 {
		return nil
	}

	rest := msg[keyIndex+len(key):]
	var c cid.Cid
	var end int
	if strings.HasPrefix(rest, "node") {
		c = cid.Undef
		end = len("node")
	} else {
		end = strings.IndexAny(rest, cidBreakSet)
		if end < 0 {
			end = len(rest)
		}

		cidStr := rest[:end]
		var err error
		c, err = cid.Decode(cidStr)
		if err != nil {
			return nil
		}

		// ipld.ErrNotFound prints CIDv1 in base32, anything else is not ours.
		if c.Version() != 0 {
			baseRune, _ := utf8.DecodeRuneInString(cidStr)
			if baseRune == utf8.RuneError || baseRune != mbase.Base32 {
				return nil
			}
		}
	}

	err := ipld.ErrNotFound{Cid: c}
	pre := msg[:keyIndex]
	post := rest[end:]
	if len(pre) > 0 || len(post) > 0 {
		return prePostWrappedNotFoundError{pre: pre, post: post, wrapped: err}
	}
	return err
}

// trimForLog shortens a body for log output.
func trimForLog(body []byte) string {
	const max = 256
	body = bytes.TrimSpace(body)
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
