package photo

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/Eskedar21/VIMS-sub000/internal/download"
	"github.com/Eskedar21/VIMS-sub000/internal/safety"
)

// Fetcher retrieves remote photos. *download.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, opts download.FetchOptions) (*download.FetchResult, error)
}

// DefaultMaxPixels bounds the decoded size of a photo when Options.MaxPixels
// is unset.
const DefaultMaxPixels = 40_000_000

// Options controls normalization.
type Options struct {
	Root         string // FileSource paths must resolve under Root when set
	MaxBytes     int64
	MaxPixels    int
	MaxDimension int
	Quality      int
	FetchRetries int // attempts per URL source, 0 uses the fetcher default
}

// Normalizer converts photo sources into Encoded photos.
type Normalizer struct {
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger
}

// NewNormalizer creates a Normalizer. fetcher may be nil, in which case URL
// sources are rejected.
func NewNormalizer(fetcher Fetcher, opts Options, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = download.DefaultMaxBytes
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	return &Normalizer{fetcher: fetcher, opts: opts, logger: logger}
}

var supportedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Normalize loads the photo behind src and returns it as a bounded data URL.
// filename overrides the name derived from the source.
func (n *Normalizer) Normalize(ctx context.Context, src Source, filename string) (*Encoded, error) {
	var (
		data      []byte
		mediaType string
		name      string
	)

	switch s := src.(type) {
	case URLSource:
		if n.fetcher == nil {
			return nil, fmt.Errorf("%w: remote photo fetching is disabled", ErrUnsupportedSource)
		}
		res, err := n.fetcher.Fetch(ctx, download.FetchOptions{
			URL:        s.URL,
			MaxBytes:   n.opts.MaxBytes,
			RetryCount: n.opts.FetchRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch photo: %w", err)
		}
		n.logger.Debug("photo fetched", "url", s.URL, "bytes", len(res.Data),
			"sha256", res.SHA256, "attempts", res.Attempts, "duration", res.Duration)
		data, mediaType = res.Data, res.ContentType
		if u, err := url.Parse(s.URL); err == nil {
			name = path.Base(u.Path)
		}

	case FileSource:
		p, err := safety.ResolveUnder(n.opts.Root, s.Path)
		if err != nil {
			return nil, fmt.Errorf("invalid photo path: %w", err)
		}
		data, err = safety.ReadFileWithLimit(p, n.opts.MaxBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to read photo: %w", err)
		}
		mediaType = mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
		name = filepath.Base(p)

	case EncodedSource:
		var err error
		mediaType, data, err = ParseDataURL(s.DataURL)
		if err != nil {
			return nil, fmt.Errorf("invalid encoded photo: %w", err)
		}
		if int64(len(data)) > n.opts.MaxBytes {
			return nil, fmt.Errorf("invalid encoded photo: %w", safety.ErrBodyTooLarge)
		}

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedSource, src)
	}

	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	if _, ok := supportedTypes[mediaType]; !ok {
		mediaType = http.DetectContentType(data)
	}
	if _, ok := supportedTypes[mediaType]; !ok {
		return nil, fmt.Errorf("%w: photo is not a supported image type: %s", ErrUnsupportedSource, mediaType)
	}

	c, err := compressImage(data, n.opts.MaxDimension, n.opts.Quality, n.opts.MaxPixels)
	if err != nil {
		return nil, err
	}
	if c.changed {
		n.logger.Debug("photo compressed", "source", Kind(src),
			"from_bytes", len(data), "to_bytes", len(c.data), "width", c.width, "height", c.height)
	}

	if filename != "" {
		name = filename
	}
	name = fixExtension(name, c.mimeType)

	return &Encoded{
		DataURL:  FormatDataURL(c.mimeType, c.data),
		MIMEType: c.mimeType,
		Filename: name,
		Size:     int64(len(c.data)),
		Width:    c.width,
		Height:   c.height,
	}, nil
}

// fixExtension makes a filename's extension agree with its media type.
func fixExtension(name, mediaType string) string {
	ext := supportedTypes[mediaType]
	if name == "" || name == "." || name == "/" {
		return "photo" + ext
	}
	cur := strings.ToLower(filepath.Ext(name))
	if cur == ext || (ext == ".jpg" && cur == ".jpeg") {
		return name
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}
