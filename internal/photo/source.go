// Package photo turns the different ways a kiosk can hand over a photo into
// one embeddable form: a base64 data URL of a bounded-size image.
package photo

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedSource is returned for photo inputs of an unrecognised kind
// or image type.
var ErrUnsupportedSource = errors.New("unsupported photo source")

// ErrTooManyPixels is returned for images whose declared dimensions exceed
// the pixel limit.
var ErrTooManyPixels = errors.New("photo has too many pixels")

// Source is where a photo comes from. It is implemented only by URLSource,
// FileSource and EncodedSource.
type Source interface {
	sourceKind() string
}

// URLSource is a photo reachable over HTTP(S).
type URLSource struct {
	URL string
}

// FileSource is a photo on the local filesystem.
type FileSource struct {
	Path string
}

// EncodedSource is a photo already encoded as a data URL.
type EncodedSource struct {
	DataURL string
}

func (URLSource) sourceKind() string     { return "url" }
func (FileSource) sourceKind() string    { return "file" }
func (EncodedSource) sourceKind() string { return "encoded" }

// Kind names the source variant for logging.
func Kind(src Source) string {
	if src == nil {
		return "none"
	}
	return src.sourceKind()
}

// Encoded is a normalized photo.
type Encoded struct {
	DataURL  string
	MIMEType string
	Filename string
	Size     int64 // decoded byte length
	Width    int
	Height   int
}

// ParseDataURL splits a base64 data URL into its media type and payload.
func ParseDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data URL has no payload")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("data URL must be base64 encoded")
	}
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return strings.ToLower(mediaType), data, nil
}

// FormatDataURL encodes data as a base64 data URL.
func FormatDataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
