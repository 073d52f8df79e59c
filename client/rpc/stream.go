package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ipfs/kubo-rpc-backend/client/apireq"
	"github.com/ipfs/kubo-rpc-backend/client/form"
	"github.com/ipfs/kubo-rpc-backend/metrics"
	"github.com/ipfs/kubo-rpc-backend/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultChunkSize is the chunk size of ByteStream.
const DefaultChunkSize = 32 << 10

// Decoder turns a successful response into records. It reads the body
// through res.Body and must stop at the first error it yields. The backend
// closes the body once the sequence ends.
type Decoder[T any] func(res *Response) iter.Seq2[T, error]

// Stream builds req and streams its response through dec. See StreamRequest.
func Stream[T any](ctx context.Context, b *Backend, req apireq.Request, f *form.Form, dec Decoder[T]) iter.Seq2[T, error] {
	hr, err := b.BuildRequest(ctx, req, f)
	if err != nil {
		return func(yield func(T, error) bool) {
			var zero T
			yield(zero, err)
		}
	}
	return StreamRequest(b, hr, dec)
}

// StreamRequest returns the records of hr's response. The request is sent
// when iteration starts, and the sequence can be iterated only once.
//
// A 200 response is handed to process and its records are yielded as they
// are decoded. Any other status yields one error: the body is read to the
// end and returned as an API error, or as a transport error when reading it
// fails. Breaking out of the loop closes the body without draining it.
func StreamRequest[T any](b *Backend, hr *http.Request, process Decoder[T]) iter.Seq2[T, error] {
	var used atomic.Bool
	return func(yield func(T, error) bool) {
		var zero T
		if used.Swap(true) {
			yield(zero, &Error{Kind: KindRequest, Op: "stream", Err: ErrConsumed})
			return
		}

		command := b.commandName(hr.URL.Path)
		ctx, span := tracing.Span(hr.Context(), "RPC", "Stream", trace.WithAttributes(attribute.String("command", command)))
		start := time.Now()
		var err error
		label := ""
		defer func() {
			tracing.EndWithError(span, err)
			if label == "" {
				label = outcome(err)
			}
			b.metrics.RecordRequest(command, label, time.Since(start))
		}()

		res, err := b.Do(hr.WithContext(ctx))
		if err != nil {
			yield(zero, err)
			return
		}
		span.SetAttributes(attribute.Int("status", res.StatusCode))

		if !res.Success() {
			err = res.failure()
			yield(zero, err)
			return
		}
		defer res.Cancel()

		for v, derr := range process(res) {
			if derr != nil {
				derr = decodeError(res.Command, derr)
				err = derr
			}
			if !yield(v, derr) {
				if derr == nil {
					label = metrics.OutcomeCanceled
				}
				return
			}
		}
	}
}

// decodeError makes sure an error from a decoder is an *Error. Anything the
// decoder did not get from the body itself means the response was malformed.
func decodeError(command string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	log.Desugar().Warn("decoding rpc response", zap.String("command", command), zap.Error(err))
	return &Error{Kind: KindTransport, Op: "decode " + command, Err: err}
}

// ByteStream returns the body of res as a sequence of chunks. Each chunk is
// a new slice owned by the caller. The body is closed when the sequence
// ends, without draining it if the caller stops early.
func ByteStream(res *Response) iter.Seq2[[]byte, error] {
	return chunks(res, DefaultChunkSize)
}

// ChunkDecoder passes the body through as chunks of at most size bytes.
func ChunkDecoder(size int) Decoder[[]byte] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return func(res *Response) iter.Seq2[[]byte, error] {
		return chunks(res, size)
	}
}

func chunks(res *Response, size int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		defer res.Cancel()
		body := res.Body()
		for {
			buf := make([]byte, size)
			n, err := body.Read(buf)
			if n > 0 {
				if !yield(buf[:n], nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// JSONDecoder decodes a body of concatenated JSON values, the encoding kubo
// uses for streaming commands like `pin/ls --stream` or `add`.
func JSONDecoder[T any]() Decoder[T] {
	return func(res *Response) iter.Seq2[T, error] {
		return func(yield func(T, error) bool) {
			dec := json.NewDecoder(res.Body())
			for {
				var v T
				err := dec.Decode(&v)
				if errors.Is(err, io.EOF) {
					return
				}
				if err != nil {
					var zero T
					yield(zero, err)
					return
				}
				if !yield(v, nil) {
					return
				}
			}
		}
	}
}
