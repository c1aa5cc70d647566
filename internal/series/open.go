// Package series loads discharge time series and simulator event logs.
package series

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ulikunitz/xz"
)

var (
	// ErrMissingColumns indicates a flow file without Time, NoPTotal and NoPOriginalTotal
	ErrMissingColumns = errors.New("series: required columns missing")
	// ErrNoRows indicates a file with a header but no usable rows
	ErrNoRows = errors.New("series: no usable rows")
	// ErrUnreadable indicates a file that could not be opened or decoded
	ErrUnreadable = errors.New("series: unreadable source")
)

// FormatError reports a source file that could not be turned into samples
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Compression is the encoding of a source file
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionBzip2
	CompressionXZ
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionBzip2:
		return "bzip2"
	case CompressionXZ:
		return "xz"
	default:
		return "none"
	}
}

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte{0x42, 0x5a, 0x68}
	xzMagic    = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
)

// DetectCompression inspects the leading magic bytes of header
func DetectCompression(header []byte) Compression {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(header, xzMagic):
		return CompressionXZ
	case bytes.HasPrefix(header, bzip2Magic):
		return CompressionBzip2
	}
	return CompressionNone
}

// Open opens path for reading, transparently decoding gzip, bzip2 and xz
// content. The compression is detected from the file contents, not its name.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FormatError{Path: path, Err: fmt.Errorf("%w: %v", ErrUnreadable, err)}
	}

	rc, err := decode(f)
	if err != nil {
		f.Close()
		return nil, &FormatError{Path: path, Err: fmt.Errorf("%w: %v", ErrUnreadable, err)}
	}
	return rc, nil
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func decode(f *os.File) (io.ReadCloser, error) {
	br := bufio.NewReader(f)
	header, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF {
		return nil, err
	}

	switch DetectCompression(header) {
	case CompressionGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return &readCloser{Reader: gz, closers: []io.Closer{gz, f}}, nil
	case CompressionBzip2:
		return &readCloser{Reader: bzip2.NewReader(br), closers: []io.Closer{f}}, nil
	case CompressionXZ:
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return &readCloser{Reader: xr, closers: []io.Closer{f}}, nil
	}
	return &readCloser{Reader: br, closers: []io.Closer{f}}, nil
}
