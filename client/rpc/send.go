package rpc

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ipfs/kubo-rpc-backend/client/apireq"
	"github.com/ipfs/kubo-rpc-backend/client/form"
	"github.com/ipfs/kubo-rpc-backend/metrics"
	"github.com/ipfs/kubo-rpc-backend/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Do sends an already built request and returns the unconsumed response,
// whatever its status. The caller owns the response body.
func (b *Backend) Do(hr *http.Request) (*Response, error) {
	command := b.commandName(hr.URL.Path)

	resp, err := b.httpcli.Do(hr)
	if err != nil {
		var ee *form.EncodeError
		if errors.As(err, &ee) {
			return nil, &Error{Kind: KindRequest, Op: "encode " + command, Err: ee}
		}
		log.Desugar().Debug("rpc call failed", zap.String("command", command), zap.Error(err))
		return nil, &Error{Kind: KindTransport, Op: hr.Method + " " + command, Err: err}
	}

	return newResponse(command, resp, b.metrics.MeterBody(resp.Body, command)), nil
}

// SendRaw sends req and returns the status and the whole body, without
// looking at the status.
func (b *Backend) SendRaw(ctx context.Context, req apireq.Request, f *form.Form) (int, []byte, error) {
	return b.send(ctx, "SendRaw", req, f, false)
}

// Send is SendRaw, except that any status but 200 OK is returned as an API error
// built from the body.
func (b *Backend) Send(ctx context.Context, req apireq.Request, f *form.Form) (int, []byte, error) {
	return b.send(ctx, "Send", req, f, true)
}

func (b *Backend) send(ctx context.Context, name string, req apireq.Request, f *form.Form, check bool) (status int, body []byte, err error) {
	ctx, span := tracing.Span(ctx, "RPC", name, trace.WithAttributes(attribute.String("path", req.Path())))
	start := time.Now()
	command := req.Path()
	defer func() {
		tracing.EndWithError(span, err)
		b.metrics.RecordRequest(command, outcome(err), time.Since(start))
	}()

	hr, err := b.BuildRequest(ctx, req, f)
	if err != nil {
		return 0, nil, err
	}
	command = b.commandName(hr.URL.Path)

	res, err := b.Do(hr)
	if err != nil {
		return 0, nil, err
	}
	span.SetAttributes(attribute.Int("status", res.StatusCode))

	if check && !res.Success() {
		return res.StatusCode, nil, res.failure()
	}

	body, err = res.Bytes()
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, body, nil
}

// outcome is the metrics label for a finished call.
func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, context.Canceled):
		return metrics.OutcomeCanceled
	default:
		return KindOf(err).String()
	}
}
