// Command ipfs-rpc runs one kubo RPC command and prints its response.
//
//	ipfs-rpc [flags] <command> [args...]
//	ipfs-rpc -api /ip4/127.0.0.1/tcp/5001 -o stream=true -stream pin/ls
//	ipfs-rpc -F file=./README.md add
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/blang/semver/v4"
	"github.com/dustin/go-humanize"
	logging "github.com/ipfs/go-log/v2"
	ipfs "github.com/ipfs/kubo-rpc-backend"
	"github.com/ipfs/kubo-rpc-backend/client/apireq"
	"github.com/ipfs/kubo-rpc-backend/client/form"
	"github.com/ipfs/kubo-rpc-backend/client/rpc"
	"github.com/ipfs/kubo-rpc-backend/tracing"
	ma "github.com/multiformats/go-multiaddr"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// listFlag collects a repeatable flag.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

var userAgentOnce sync.Once

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	userAgentOnce.Do(func() { ipfs.SetUserAgentSuffix("ipfs-rpc") })

	fs := flag.NewFlagSet("ipfs-rpc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: ipfs-rpc [flags] <command> [args...]")
		fs.PrintDefaults()
	}

	var headers, opts, files listFlag
	api := fs.String("api", "", "daemon RPC multiaddr or http(s) URL (default: discovered from $IPFS_PATH)")
	auth := fs.String("api-auth", "", "RPC auth secret, e.g. basic:user:pass or bearer:token")
	fs.Var(&headers, "H", "extra request header `key:value` (repeatable)")
	fs.Var(&opts, "o", "command option `key=value` (repeatable)")
	fs.Var(&files, "F", "attach a file or directory as `name=path` (repeatable)")
	stream := fs.Bool("stream", false, "decode the response as a stream of JSON records")
	minVersion := fs.String("min-version", "", "refuse daemons older than this version")
	timeout := fs.Duration("timeout", 0, "overall deadline (0 for none)")
	trace := fs.Bool("trace", false, "print spans to stderr")
	logLevel := fs.String("log-level", "", "log level of the rpc subsystem")
	verbose := fs.Bool("v", false, "print a response summary to stderr")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	if *logLevel != "" {
		if err := logging.SetLogLevel("rpc", *logLevel); err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", err)
			return 2
		}
	}

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	var options []rpc.Option
	exporters := tracing.ExportersFromEnv()
	if *trace {
		exporters = append(exporters, "console")
	}
	if len(exporters) > 0 {
		tp, err := tracing.NewTracerProvider(exporters, stderr)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", err)
			return 2
		}
		prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(autoprop.NewTextMapPropagator())
		defer func() {
			_ = tp.Shutdown(context.Background())
			otel.SetTracerProvider(prevTP)
			otel.SetTextMapPropagator(prevProp)
		}()
		options = append(options, rpc.WithTracing())
	}

	for _, h := range headers {
		k, v, ok := strings.Cut(h, ":")
		if !ok {
			fmt.Fprintf(stderr, "Error: header %q is not key:value\n", h)
			return 2
		}
		options = append(options, rpc.WithHeader(strings.TrimSpace(k), strings.TrimSpace(v)))
	}
	if *auth != "" {
		options = append(options, rpc.WithAuthorization(*auth))
	}

	b, err := newBackend(*api, options)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}

	if *minVersion != "" {
		if err := checkVersion(ctx, b, *minVersion); err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", err)
			return 1
		}
	}

	req := apireq.NewCommand(fs.Arg(0), fs.Args()[1:]...)
	for _, o := range opts {
		k, v, ok := strings.Cut(o, "=")
		if !ok {
			fmt.Fprintf(stderr, "Error: option %q is not key=value\n", o)
			return 2
		}
		req = req.Option(k, v)
	}

	var f *form.Form
	if len(files) > 0 {
		f = form.New()
		defer f.Close()
		for _, e := range files {
			name, path, ok := strings.Cut(e, "=")
			if !ok {
				fmt.Fprintf(stderr, "Error: file %q is not name=path\n", e)
				return 2
			}
			if err := f.AddPath(name, path); err != nil {
				fmt.Fprintf(stderr, "Error: %s\n", err)
				return 1
			}
		}
	}

	start := time.Now()
	if *stream {
		var records, size int
		for rec, err := range rpc.Stream(ctx, b, req, f, rpc.JSONDecoder[json.RawMessage]()) {
			if err != nil {
				fmt.Fprintf(stderr, "Error: %s\n", err)
				return 1
			}
			var line bytes.Buffer
			if err := json.Compact(&line, rec); err != nil {
				line.Reset()
				line.Write(rec)
			}
			line.WriteByte('\n')
			size += line.Len()
			stdout.Write(line.Bytes())
			records++
		}
		if *verbose {
			fmt.Fprintf(stderr, "%s records, %s in %s\n", humanize.Comma(int64(records)), humanize.Bytes(uint64(size)), time.Since(start).Round(time.Millisecond))
		}
		return 0
	}

	status, body, err := b.Send(ctx, req, f)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	stdout.Write(body)
	if len(body) > 0 && body[len(body)-1] != '\n' {
		fmt.Fprintln(stdout)
	}
	if *verbose {
		fmt.Fprintf(stderr, "%d %s, %s in %s\n", status, http.StatusText(status), humanize.Bytes(uint64(len(body))), time.Since(start).Round(time.Millisecond))
	}
	return 0
}

func newBackend(api string, opts []rpc.Option) (*rpc.Backend, error) {
	switch {
	case api == "":
		return rpc.NewDefaultBackend(opts...)
	case strings.HasPrefix(api, "/"):
		a, err := ma.NewMultiaddr(api)
		if err != nil {
			return nil, fmt.Errorf("parsing -api: %w", err)
		}
		return rpc.NewBackend(a, opts...)
	default:
		return rpc.NewURLBackendWithClient(api, &http.Client{}, opts...)
	}
}

var errTooOld = errors.New("daemon version too old")

func checkVersion(ctx context.Context, b *rpc.Backend, minimum string) error {
	want, err := semver.ParseTolerant(minimum)
	if err != nil {
		return fmt.Errorf("parsing -min-version: %w", err)
	}

	_, body, err := b.Send(ctx, apireq.NewCommand("version"), nil)
	if err != nil {
		return err
	}
	var info ipfs.VersionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return fmt.Errorf("decoding version: %w", err)
	}
	have, err := semver.ParseTolerant(info.Version)
	if err != nil {
		return fmt.Errorf("daemon version %q: %w", info.Version, err)
	}
	if have.LT(want) {
		return fmt.Errorf("%w: %s < %s", errTooOld, have, want)
	}
	return nil
}
