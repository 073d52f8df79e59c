package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ipfs/kubo-rpc-backend/client/apireq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinLsRecord struct {
	Cid  string
	Type string
}

func pinLsServer(t *testing.T, hits *atomic.Int32, n int) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		assert.Equal(t, "/api/v0/pin/ls", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("stream"))
		w.Header().Set("Content-Type", "application/json")
		for i := 0; i < n; i++ {
			fmt.Fprintf(w, "{\"Cid\":\"Qm%d\",\"Type\":\"recursive\"}\n", i)
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestStream_JSON(t *testing.T) {
	t.Parallel()

	ts := pinLsServer(t, nil, 3)
	b, err := NewURLBackendWithClient(ts.URL, nil)
	require.NoError(t, err)

	req := apireq.NewCommand("pin/ls").Option("stream", true)
	var got []pinLsRecord
	for rec, err := range Stream(context.Background(), b, req, nil, JSONDecoder[pinLsRecord]()) {
		require.NoError(t, err)
		got = append(got, rec)
	}

	require.Len(t, got, 3)
	for i, rec := range got {
		assert.Equal(t, fmt.Sprintf("Qm%d", i), rec.Cid)
		assert.Equal(t, "recursive", rec.Type)
	}
}

func TestStream_Lazy(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	ts := pinLsServer(t, &hits, 1)
	b, err := NewURLBackendWithClient(ts.URL, nil)
	require.NoError(t, err)

	seq := Stream(context.Background(), b, apireq.NewCommand("pin/ls").Option("stream", true), nil, JSONDecoder[pinLsRecord]())
	assert.Zero(t, hits.Load())

	for _, err := range seq {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, hits.Load())

	// a stream runs once
	var errs []error
	for _, err := range seq {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrConsumed)
	assert.EqualValues(t, 1, hits.Load())
}

func TestStream_EarlyStopIsNotDrained(t *testing.T) {
	t.Parallel()

	var payload bytes.Buffer
	for i := 0; i < 10000; i++ {
		fmt.Fprintf(&payload, "{\"Cid\":\"Qm%d\",\"Type\":\"direct\"}\n", i)
	}
	b, tb := fakeBackend(t, http.StatusOK, "application/json", payload.Bytes())

	n := 0
	for rec, err := range Stream(context.Background(), b, apireq.NewCommand("pin/ls"), nil, JSONDecoder[pinLsRecord]()) {
		require.NoError(t, err)
		assert.Equal(t, "Qm0", rec.Cid)
		n++
		break
	}

	assert.Equal(t, 1, n)
	assert.True(t, tb.closed)
	assert.Less(t, tb.read, payload.Len())
}

func TestStream_FailureIsDrained(t *testing.T) {
	t.Parallel()

	payload := errorPayload(t, "pin/ls: invalid type", ErrClient)
	b, tb := fakeBackend(t, http.StatusInternalServerError, "application/json", payload)

	var errs []error
	for rec, err := range Stream(context.Background(), b, apireq.NewCommand("pin/ls"), nil, JSONDecoder[pinLsRecord]()) {
		assert.Zero(t, rec)
		errs = append(errs, err)
	}

	require.Len(t, errs, 1)
	assert.Equal(t, KindAPI, KindOf(errs[0]))
	var apiErr *APIError
	require.ErrorAs(t, errs[0], &apiErr)
	assert.Equal(t, "pin/ls: invalid type", apiErr.Message)
	assert.Equal(t, ErrClient, apiErr.Code)
	assert.Equal(t, "1: pin/ls: invalid type", apiErr.Error())

	assert.Equal(t, len(payload), tb.read)
	assert.True(t, tb.closed)
}

func TestStream_DecoderNotCalledOnFailure(t *testing.T) {
	t.Parallel()

	b, _ := fakeBackend(t, http.StatusBadRequest, "text/plain", []byte("nope"))

	called := false
	var dec Decoder[string] = func(res *Response) iter.Seq2[string, error] {
		called = true
		return func(func(string, error) bool) {}
	}
	for _, err := range Stream(context.Background(), b, apireq.NewCommand("id"), nil, dec) {
		require.Error(t, err)
	}
	assert.False(t, called)
}

func TestStream_MalformedRecord(t *testing.T) {
	t.Parallel()

	b, tb := fakeBackend(t, http.StatusOK, "application/json", []byte("{\"Cid\":\"Qm0\"}\n{\"Cid\":"))

	var recs []pinLsRecord
	var errs []error
	for rec, err := range Stream(context.Background(), b, apireq.NewCommand("pin/ls"), nil, JSONDecoder[pinLsRecord]()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}

	require.Len(t, recs, 1)
	require.Len(t, errs, 1)
	assert.Equal(t, KindTransport, KindOf(errs[0]))
	assert.ErrorIs(t, errs[0], io.ErrUnexpectedEOF)
	assert.True(t, tb.closed)
}

func TestStream_TrailerError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Trailer", streamErrHeader)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{\"Cid\":\"Qm0\",\"Type\":\"recursive\"}\n"))
		w.(http.Flusher).Flush()
		w.Header().Set(streamErrHeader, "context deadline exceeded")
	}))
	t.Cleanup(ts.Close)

	b, err := NewURLBackendWithClient(ts.URL, nil)
	require.NoError(t, err)

	var recs []pinLsRecord
	var errs []error
	for rec, err := range Stream(context.Background(), b, apireq.NewCommand("pin/ls"), nil, JSONDecoder[pinLsRecord]()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}

	require.Len(t, recs, 1)
	require.Len(t, errs, 1)
	assert.Equal(t, KindAPI, KindOf(errs[0]))
	var apiErr *APIError
	require.ErrorAs(t, errs[0], &apiErr)
	assert.Equal(t, "context deadline exceeded", apiErr.Message)
}

func TestStream_BuildError(t *testing.T) {
	t.Parallel()

	b, err := NewURLBackendWithClient("http://localhost:5001", nil)
	require.NoError(t, err)

	var errs []error
	for _, err := range Stream(context.Background(), b, apireq.NewCommand(""), nil, ChunkDecoder(0)) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.Equal(t, KindClient, KindOf(errs[0]))
}

func TestStream_TransportError(t *testing.T) {
	t.Parallel()

	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, io.ErrClosedPipe
	})
	b, err := NewURLBackendWithClient("http://localhost:5001", &http.Client{Transport: rt})
	require.NoError(t, err)

	var errs []error
	for _, err := range Stream(context.Background(), b, apireq.NewCommand("cat", "QmA"), nil, ChunkDecoder(8)) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.Equal(t, KindTransport, KindOf(errs[0]))
	assert.ErrorIs(t, errs[0], io.ErrClosedPipe)
}

func TestChunkDecoder(t *testing.T) {
	t.Parallel()

	data := strings.Repeat("0123456789", 10)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(data))
	}))
	t.Cleanup(ts.Close)

	b, err := NewURLBackendWithClient(ts.URL, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	for chunk, err := range Stream(context.Background(), b, apireq.NewCommand("cat", "QmA"), nil, ChunkDecoder(7)) {
		require.NoError(t, err)
		assert.LessOrEqual(t, len(chunk), 7)
		out.Write(chunk)
	}
	assert.Equal(t, data, out.String())
}

func TestByteStream(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Chunked-Output", "1")
		w.Write([]byte("raw block bytes"))
	}))
	t.Cleanup(ts.Close)

	b, err := NewURLBackendWithClient(ts.URL, nil)
	require.NoError(t, err)

	hr, err := b.BuildRequest(context.Background(), apireq.NewCommand("block/get", "QmA"), nil)
	require.NoError(t, err)
	res, err := b.Do(hr)
	require.NoError(t, err)
	require.True(t, res.Success())

	v, ok := Header(res, "X-Chunked-Output")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	_, ok = res.HeaderValue("X-Missing")
	assert.False(t, ok)

	var out []byte
	for chunk, err := range ByteStream(res) {
		require.NoError(t, err)
		out = append(out, chunk...)
	}
	assert.Equal(t, "raw block bytes", string(out))

	_, err = res.Bytes()
	assert.ErrorIs(t, err, ErrConsumed)
	assert.Equal(t, KindRequest, KindOf(err))
}

func TestStreamRequest_Custom(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("a\nb\nc\n"))
	}))
	t.Cleanup(ts.Close)

	b, err := NewURLBackendWithClient(ts.URL, nil)
	require.NoError(t, err)
	hr, err := b.BuildRequest(context.Background(), apireq.NewCommand("log/tail"), nil)
	require.NoError(t, err)

	var lines Decoder[string] = func(res *Response) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			data, err := io.ReadAll(res.Body())
			if err != nil {
				yield("", err)
				return
			}
			for _, l := range strings.Fields(string(data)) {
				if !yield(l, nil) {
					return
				}
			}
		}
	}

	var got []string
	for l, err := range StreamRequest(b, hr, lines) {
		require.NoError(t, err)
		got = append(got, l)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestStream_OnlyOKIsDecoded(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusAccepted, http.StatusNoContent, http.StatusPartialContent} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()

			payload := errorPayload(t, "partial failure", 0)
			b, tb := fakeBackend(t, status, "application/json", payload)

			var recs []pinLsRecord
			var errs []error
			for rec, err := range Stream(context.Background(), b, apireq.NewCommand("pin/ls"), nil, JSONDecoder[pinLsRecord]()) {
				if err != nil {
					errs = append(errs, err)
					continue
				}
				recs = append(recs, rec)
			}

			assert.Empty(t, recs)
			require.Len(t, errs, 1)
			var apiErr *APIError
			require.ErrorAs(t, errs[0], &apiErr)
			assert.Equal(t, "partial failure", apiErr.Message)
			assert.Equal(t, status, apiErr.Status)
			assert.Equal(t, len(payload), tb.read)
		})
	}
}
