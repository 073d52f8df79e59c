package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

type meteredBody struct {
	io.ReadCloser

	// counter for bytes received
	recv prometheus.Counter
}

func newMeteredBody(base io.ReadCloser, recv prometheus.Counter) io.ReadCloser {
	return &meteredBody{
		ReadCloser: base,
		recv:       recv,
	}
}

func (b *meteredBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)

	// Log bytes read
	if n > 0 {
		b.recv.Add(float64(n))
	}

	return n, err
}
