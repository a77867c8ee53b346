// Package source resolves log source identifiers to readable content.
// A source is either a local path or an s3://bucket/key URL. Every fetched
// object carries an xxhash digest of its raw bytes so analysis results can
// be checkpointed by content.
package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	lverrors "github.com/logflow/logvar/pkg/errors"
	"github.com/logflow/logvar/pkg/parser"
)

// Object is the fetched content of one source.
type Object struct {
	// ID is the source identifier as given.
	ID string

	// Name is the object's base name, used for format detection.
	Name string

	// Path is the local file path; empty for remote objects.
	Path string

	Size   int64
	Digest string

	data []byte
}

// Local reports whether the object is a local file.
func (o *Object) Local() bool {
	return o.Path != ""
}

// Format returns the input format implied by the object name.
func (o *Object) Format() parser.Format {
	return parser.DetectFormat(o.Name)
}

// Open returns a reader over the object's content, decompressing gzip
// transparently. Uncompressed local files are returned as *os.File so
// random-access formats can use them directly.
func (o *Object) Open() (io.ReadCloser, error) {
	var raw io.ReadCloser
	if o.Local() {
		f, err := os.Open(o.Path)
		if err != nil {
			return nil, openError(o.ID, err)
		}
		raw = f
	} else {
		raw = io.NopCloser(bytes.NewReader(o.data))
	}

	if !parser.IsGzip(o.Name) {
		return raw, nil
	}
	gz, err := gzip.NewReader(raw)
	if err != nil {
		raw.Close()
		return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "invalid gzip stream").
			WithContext("source", o.ID)
	}
	return &gzipReadCloser{Reader: gz, raw: raw}, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	raw io.Closer
}

func (g *gzipReadCloser) Close() error {
	g.Reader.Close()
	return g.raw.Close()
}

// Fetcher retrieves objects for source identifiers.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (*Object, error)
}

// Resolver dispatches identifiers to the local or S3 fetcher. The S3
// client is created on first use.
type Resolver struct {
	local Fetcher

	s3cfg   S3Config
	s3once  sync.Once
	s3      Fetcher
	s3Error error
}

// NewResolver creates a resolver. s3cfg is only used for s3:// sources.
func NewResolver(s3cfg S3Config) *Resolver {
	return &Resolver{local: LocalFetcher{}, s3cfg: s3cfg}
}

// NewResolverWith creates a resolver around explicit fetchers.
func NewResolverWith(local, remote Fetcher) *Resolver {
	r := &Resolver{local: local, s3: remote}
	r.s3once.Do(func() {})
	return r
}

// Fetch implements Fetcher.
func (r *Resolver) Fetch(ctx context.Context, id string) (*Object, error) {
	if !IsS3(id) {
		return r.local.Fetch(ctx, id)
	}
	r.s3once.Do(func() {
		r.s3, r.s3Error = NewS3Fetcher(ctx, r.s3cfg)
	})
	if r.s3Error != nil {
		return nil, r.s3Error
	}
	return r.s3.Fetch(ctx, id)
}

// LocalFetcher reads files from the local filesystem.
type LocalFetcher struct{}

// Fetch hashes the file; the content is read again by Object.Open.
func (LocalFetcher) Fetch(ctx context.Context, id string) (*Object, error) {
	p := strings.TrimPrefix(id, "file://")
	f, err := os.Open(p)
	if err != nil {
		return nil, openError(id, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, openError(id, err)
	}
	if info.IsDir() {
		return nil, lverrors.New(lverrors.CodeSourceAccess, "log source is a directory").
			WithContext("source", id)
	}

	h := xxhash.New()
	n, err := io.Copy(h, &ctxReader{ctx: ctx, r: f})
	if err != nil {
		if ctx.Err() != nil {
			return nil, lverrors.Wrap(err, lverrors.CodeContextCanceled, "hashing canceled")
		}
		return nil, lverrors.Wrap(err, lverrors.CodeSourceAccess, "read log source").
			WithContext("source", id)
	}

	return &Object{
		ID:     id,
		Name:   path.Base(strings.ReplaceAll(p, "\\", "/")),
		Path:   p,
		Size:   n,
		Digest: digestString(h.Sum64()),
	}, nil
}

// Digest returns the content digest of b as used in Object.Digest.
func Digest(b []byte) string {
	return digestString(xxhash.Sum64(b))
}

func digestString(sum uint64) string {
	s := strconv.FormatUint(sum, 16)
	return strings.Repeat("0", 16-len(s)) + s
}

func openError(id string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return lverrors.SourceNotFound(id)
	}
	return lverrors.Wrap(err, lverrors.CodeSourceAccess, "open log source").
		WithContext("source", id)
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
