// Package form builds the multipart bodies kubo RPC commands like `add` and
// `block/put` accept.
//
// Entries are encoded with boxo's MultiFileReader, so directories keep their
// structure and every part name carries the entry path. The encoding is
// streamed: nothing is read from entries until the body is read.
package form

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ipfs/boxo/files"
)

// ErrInvalidName is returned for empty, nested or duplicate entry names.
var ErrInvalidName = errors.New("invalid form entry name")

// EncodeError marks a failure that happened while producing the multipart
// body, as opposed to while sending it.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return "encoding multipart form: " + e.Err.Error()
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// Form is an ordered set of named entries. A Form is meant to be encoded once;
// reader entries are consumed by the encoding.
type Form struct {
	entries []files.DirEntry
	names   map[string]struct{}
}

// New returns an empty form.
func New() *Form {
	return &Form{names: make(map[string]struct{})}
}

// Len is the number of top-level entries.
func (f *Form) Len() int {
	return len(f.entries)
}

// AddBytes adds an in-memory file.
func (f *Form) AddBytes(name string, data []byte) error {
	return f.add(name, files.NewBytesFile(data))
}

// AddReader adds a file whose content is streamed from r.
func (f *Form) AddReader(name string, r io.Reader) error {
	return f.add(name, files.NewReaderFile(r))
}

// AddPath adds the file or directory at path. Hidden files are skipped when
// path is a directory.
func (f *Form) AddPath(name, path string) error {
	stat, err := os.Lstat(path)
	if err != nil {
		return err
	}
	nd, err := files.NewSerialFile(path, false, stat)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	return f.add(name, nd)
}

// AddNode adds an existing boxo files node, e.g. a files.Directory.
func (f *Form) AddNode(name string, nd files.Node) error {
	return f.add(name, nd)
}

func (f *Form) add(name string, nd files.Node) error {
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if _, ok := f.names[name]; ok {
		return fmt.Errorf("%w: duplicate %q", ErrInvalidName, name)
	}
	f.names[name] = struct{}{}
	f.entries = append(f.entries, files.FileEntry(name, nd))
	return nil
}

// Encode returns the multipart body and its Content-Type header value.
func (f *Form) Encode() (io.Reader, string) {
	mfr := files.NewMultiFileReader(files.NewSliceDirectory(f.entries), true, false)
	return &encodeReader{r: mfr}, "multipart/form-data; boundary=" + mfr.Boundary()
}

// Close releases file handles held by entries added with AddPath.
func (f *Form) Close() error {
	var errs []error
	for _, e := range f.entries {
		if err := e.Node().Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type encodeReader struct {
	r io.Reader
}

func (r *encodeReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF {
		err = &EncodeError{Err: err}
	}
	return n, err
}
