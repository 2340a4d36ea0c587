// Package source reads capture-tool output into Records. Formats register
// themselves by name and file extension; compressed traces (.gz, .zst) are
// unwrapped transparently.
package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/mitchellh/mapstructure"

	"firestige.xyz/proclat/internal/core"
)

// Meta labels the records of one trace.
type Meta struct {
	Trace    string // Source label, usually the file path
	Function string // Capturing network function
}

// Reader decodes one trace. A trace cut off after at least one complete
// packet yields the records read so far and a *TruncatedError.
type Reader interface {
	Name() string
	Read(ctx context.Context, r io.Reader, meta Meta) ([]*core.Record, error)
}

// Factory builds a Reader from its format options.
type Factory func(opts map[string]any) (Reader, error)

type registration struct {
	factory    Factory
	extensions []string
}

var (
	mu       sync.RWMutex
	formats  = make(map[string]registration)
	byExt    = make(map[string]string)
	wrappers = []string{".gz", ".zst"}
)

// Register makes a format available under name and its file extensions.
// It panics on duplicates, as it is only called from package init.
func Register(name string, extensions []string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := formats[name]; exists {
		panic(fmt.Sprintf("source: format %q already registered", name))
	}
	formats[name] = registration{factory: f, extensions: extensions}
	for _, ext := range extensions {
		byExt[strings.ToLower(ext)] = name
	}
}

// Formats lists registered format names.
func Formats() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(formats))
	for name := range formats {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FormatFor picks the format of path from its extension, ignoring a
// compression suffix.
func FormatFor(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, w := range wrappers {
		if ext == w {
			ext = strings.ToLower(filepath.Ext(strings.TrimSuffix(path, filepath.Ext(path))))
			break
		}
	}
	mu.RLock()
	name, ok := byExt[ext]
	mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", core.ErrUnknownFormat, path)
	}
	return name, nil
}

// New builds the reader of a format.
func New(format string, opts map[string]any) (Reader, error) {
	mu.RLock()
	reg, ok := formats[format]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownFormat, format)
	}
	return reg.factory(opts)
}

// DecodeOptions decodes a loosely typed option map into out, rejecting
// unknown keys.
func DecodeOptions(opts map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(opts); err != nil {
		return fmt.Errorf("%w: source options: %v", core.ErrConfigInvalid, err)
	}
	return nil
}

// Open opens path, unwrapping gzip or zstd compression by suffix.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSourceOpen, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(bufio.NewReader(f))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: gzip %s: %v", core.ErrSourceOpen, path, err)
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case ".zst":
		zr, err := zstd.NewReader(bufio.NewReader(f))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: zstd %s: %v", core.ErrSourceOpen, path, err)
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zstdCloser{zr}, f}}, nil
	default:
		return f, nil
	}
}

// ReadFile reads every record of a trace file. An empty format is detected
// from the file name.
func ReadFile(ctx context.Context, path, format, function string, opts map[string]any) ([]*core.Record, error) {
	if format == "" {
		var err error
		if format, err = FormatFor(path); err != nil {
			return nil, err
		}
	}
	reader, err := New(format, opts)
	if err != nil {
		return nil, err
	}
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return reader.Read(ctx, rc, Meta{Trace: path, Function: function})
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// zstdCloser adapts zstd.Decoder, whose Close returns nothing.
type zstdCloser struct {
	d *zstd.Decoder
}

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}
