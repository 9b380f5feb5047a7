package photo

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Eskedar21/VIMS-sub000/internal/download"
	"github.com/Eskedar21/VIMS-sub000/internal/safety"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makePNG renders a solid w x h PNG.
func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func decodeDataURL(t *testing.T, dataURL string) (image.Image, string) {
	t.Helper()
	_, data, err := ParseDataURL(dataURL)
	if err != nil {
		t.Fatalf("ParseDataURL: %v", err)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("image.Decode: %v", err)
	}
	return img, format
}

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantType string
		wantData string
		wantErr  bool
	}{
		{"png", "data:image/png;base64,aGVsbG8=", "image/png", "hello", false},
		{"params", "data:image/JPEG;name=a.jpg;base64,aGVsbG8=", "image/jpeg", "hello", false},
		{"no type", "data:;base64,aGVsbG8=", "application/octet-stream", "hello", false},
		{"not base64", "data:text/plain,hello", "", "", true},
		{"no payload", "data:image/png;base64", "", "", true},
		{"bad base64", "data:image/png;base64,@@@", "", "", true},
		{"plain string", "hello", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mediaType, data, err := ParseDataURL(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDataURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if mediaType != tt.wantType || string(data) != tt.wantData {
				t.Errorf("got (%q, %q), want (%q, %q)", mediaType, data, tt.wantType, tt.wantData)
			}
		})
	}

	if got := FormatDataURL("image/png", []byte("hello")); got != "data:image/png;base64,aGVsbG8=" {
		t.Errorf("FormatDataURL() = %q", got)
	}
}

func TestNormalizeEncodedSmallImageUnchanged(t *testing.T) {
	raw := makePNG(t, 20, 10)
	n := NewNormalizer(nil, Options{MaxDimension: 1280, Quality: 85}, testLogger())

	enc, err := n.Normalize(context.Background(), EncodedSource{DataURL: FormatDataURL("image/png", raw)}, "")
	if err != nil {
		t.Fatalf("Normalize() failed: %v", err)
	}

	if enc.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want image/png", enc.MIMEType)
	}
	if enc.Filename != "photo.png" {
		t.Errorf("Filename = %q, want photo.png", enc.Filename)
	}
	if enc.Size != int64(len(raw)) {
		t.Errorf("Size = %d, want %d", enc.Size, len(raw))
	}
	if enc.DataURL != FormatDataURL("image/png", raw) {
		t.Error("small upright image should pass through untouched")
	}
	if enc.Width != 20 || enc.Height != 10 {
		t.Errorf("dimensions = %dx%d", enc.Width, enc.Height)
	}
}

func TestNormalizeLargeImageIsScaled(t *testing.T) {
	raw := makePNG(t, 400, 200)
	n := NewNormalizer(nil, Options{MaxDimension: 100, Quality: 80}, testLogger())

	enc, err := n.Normalize(context.Background(), EncodedSource{DataURL: FormatDataURL("image/png", raw)}, "registration.png")
	if err != nil {
		t.Fatalf("Normalize() failed: %v", err)
	}

	if enc.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want image/jpeg", enc.MIMEType)
	}
	if enc.Filename != "registration.jpg" {
		t.Errorf("Filename = %q, want registration.jpg", enc.Filename)
	}
	if !strings.HasPrefix(enc.DataURL, "data:image/jpeg;base64,") {
		t.Errorf("unexpected data URL prefix: %.40s", enc.DataURL)
	}

	img, format := decodeDataURL(t, enc.DataURL)
	if format != "jpeg" {
		t.Errorf("format = %q, want jpeg", format)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Errorf("scaled size = %dx%d, want 100x50", b.Dx(), b.Dy())
	}
}

func TestNormalizeFileSource(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "front.png"), makePNG(t, 8, 8), 0644); err != nil {
		t.Fatal(err)
	}
	n := NewNormalizer(nil, Options{Root: root, MaxDimension: 1280}, testLogger())

	enc, err := n.Normalize(context.Background(), FileSource{Path: "front.png"}, "")
	if err != nil {
		t.Fatalf("Normalize() failed: %v", err)
	}
	if enc.Filename != "front.png" || enc.MIMEType != "image/png" {
		t.Errorf("got %s (%s)", enc.Filename, enc.MIMEType)
	}

	if _, err := n.Normalize(context.Background(), FileSource{Path: "../outside.png"}, ""); err == nil {
		t.Error("expected error for path outside root")
	}
	if _, err := n.Normalize(context.Background(), FileSource{Path: "missing.png"}, ""); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestNormalizeFileSourceTooLarge(t *testing.T) {
	root := t.TempDir()
	raw := makePNG(t, 64, 64)
	if err := os.WriteFile(filepath.Join(root, "big.png"), raw, 0644); err != nil {
		t.Fatal(err)
	}
	n := NewNormalizer(nil, Options{Root: root, MaxBytes: 10}, testLogger())

	_, err := n.Normalize(context.Background(), FileSource{Path: "big.png"}, "")
	if !errors.Is(err, safety.ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestNormalizeURLSource(t *testing.T) {
	raw := makePNG(t, 16, 12)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(raw)
	}))
	defer server.Close()

	client := download.NewClient(testLogger(), 5*time.Second)
	n := NewNormalizer(client, Options{MaxDimension: 1280}, testLogger())

	enc, err := n.Normalize(context.Background(), URLSource{URL: server.URL + "/photos/plate.png"}, "")
	if err != nil {
		t.Fatalf("Normalize() failed: %v", err)
	}
	if enc.Filename != "plate.png" {
		t.Errorf("Filename = %q, want plate.png", enc.Filename)
	}
	if enc.Size != int64(len(raw)) {
		t.Errorf("Size = %d, want %d", enc.Size, len(raw))
	}
}

// recordingFetcher serves fixed bytes and remembers the options it was given.
type recordingFetcher struct {
	data []byte
	got  download.FetchOptions
}

func (f *recordingFetcher) Fetch(_ context.Context, opts download.FetchOptions) (*download.FetchResult, error) {
	f.got = opts
	return &download.FetchResult{
		Data:        f.data,
		ContentType: "image/png",
		SHA256:      "abc123",
		Attempts:    2,
		Duration:    40 * time.Millisecond,
	}, nil
}

func TestNormalizeURLSourcePassesFetchOptions(t *testing.T) {
	fetcher := &recordingFetcher{data: makePNG(t, 8, 8)}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	n := NewNormalizer(fetcher, Options{MaxBytes: 1 << 20, FetchRetries: 5}, logger)

	if _, err := n.Normalize(context.Background(), URLSource{URL: "https://photos.example.com/a.png"}, ""); err != nil {
		t.Fatalf("Normalize() failed: %v", err)
	}
	if fetcher.got.RetryCount != 5 || fetcher.got.MaxBytes != 1<<20 {
		t.Errorf("fetch options = %+v", fetcher.got)
	}
	out := logs.String()
	if !strings.Contains(out, "sha256=abc123") || !strings.Contains(out, "attempts=2") {
		t.Errorf("fetch details not logged: %s", out)
	}
}

// pngHeader returns a PNG signature and IHDR chunk declaring w x h pixels
// with no image data behind it.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8], ihdr[9] = 8, 6 // 8-bit RGBA

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestNormalizeRejectsOversizedDimensions(t *testing.T) {
	n := NewNormalizer(nil, Options{MaxDimension: 1280}, testLogger())

	src := EncodedSource{DataURL: FormatDataURL("image/png", pngHeader(50_000, 50_000))}
	_, err := n.Normalize(context.Background(), src, "")
	if !errors.Is(err, ErrTooManyPixels) {
		t.Fatalf("expected ErrTooManyPixels, got %v", err)
	}

	small := NewNormalizer(nil, Options{MaxPixels: 100}, testLogger())
	_, err = small.Normalize(context.Background(), EncodedSource{DataURL: FormatDataURL("image/png", makePNG(t, 20, 20))}, "")
	if !errors.Is(err, ErrTooManyPixels) {
		t.Errorf("expected ErrTooManyPixels for 400 pixels over a limit of 100, got %v", err)
	}
}

func TestNormalizeURLSourceWithoutFetcher(t *testing.T) {
	n := NewNormalizer(nil, Options{}, testLogger())

	_, err := n.Normalize(context.Background(), URLSource{URL: "https://example.com/a.jpg"}, "")
	if !errors.Is(err, ErrUnsupportedSource) {
		t.Fatalf("expected ErrUnsupportedSource, got %v", err)
	}
}

func TestNormalizeUnsupported(t *testing.T) {
	n := NewNormalizer(nil, Options{}, testLogger())

	if _, err := n.Normalize(context.Background(), nil, ""); !errors.Is(err, ErrUnsupportedSource) {
		t.Errorf("nil source: expected ErrUnsupportedSource, got %v", err)
	}

	_, err := n.Normalize(context.Background(), EncodedSource{DataURL: FormatDataURL("text/plain", []byte("not a photo"))}, "")
	if err == nil || !strings.Contains(err.Error(), "not a supported image type") {
		t.Errorf("expected unsupported image type error, got %v", err)
	}

	_, err = n.Normalize(context.Background(), EncodedSource{DataURL: FormatDataURL("image/png", []byte("\x89PNG\r\n\x1a\ngarbage"))}, "")
	if err == nil {
		t.Error("expected decode error for corrupt png")
	}
}

func TestApplyOrientation(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}

	// 2x1: red on the left, blue on the right
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, red)
	src.Set(1, 0, blue)

	tests := []struct {
		orientation int
		w, h        int
		redAt       image.Point
		blueAt      image.Point
	}{
		{1, 2, 1, image.Pt(0, 0), image.Pt(1, 0)},
		{2, 2, 1, image.Pt(1, 0), image.Pt(0, 0)},
		{3, 2, 1, image.Pt(1, 0), image.Pt(0, 0)},
		{4, 2, 1, image.Pt(0, 0), image.Pt(1, 0)},
		{5, 1, 2, image.Pt(0, 0), image.Pt(0, 1)},
		{6, 1, 2, image.Pt(0, 0), image.Pt(0, 1)},
		{7, 1, 2, image.Pt(0, 1), image.Pt(0, 0)},
		{8, 1, 2, image.Pt(0, 1), image.Pt(0, 0)},
	}

	for _, tt := range tests {
		out := applyOrientation(src, tt.orientation)
		b := out.Bounds()
		if b.Dx() != tt.w || b.Dy() != tt.h {
			t.Errorf("orientation %d: size %dx%d, want %dx%d", tt.orientation, b.Dx(), b.Dy(), tt.w, tt.h)
			continue
		}
		if got := color.RGBAModel.Convert(out.At(tt.redAt.X, tt.redAt.Y)); got != red {
			t.Errorf("orientation %d: expected red at %v, got %v", tt.orientation, tt.redAt, got)
		}
		if got := color.RGBAModel.Convert(out.At(tt.blueAt.X, tt.blueAt.Y)); got != blue {
			t.Errorf("orientation %d: expected blue at %v, got %v", tt.orientation, tt.blueAt, got)
		}
	}
}

func TestImageOrientationWithoutExif(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil); err != nil {
		t.Fatal(err)
	}
	if got := imageOrientation(buf.Bytes()); got != 1 {
		t.Errorf("imageOrientation() = %d, want 1", got)
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{100, 50, 200, 100, 50},
		{400, 200, 100, 100, 50},
		{200, 400, 100, 50, 100},
		{5000, 1, 100, 100, 1},
		{300, 300, 0, 300, 300},
	}
	for _, tt := range tests {
		w, h := fitWithin(tt.w, tt.h, tt.max)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("fitWithin(%d, %d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.max, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestFixExtension(t *testing.T) {
	tests := []struct{ name, mediaType, want string }{
		{"", "image/jpeg", "photo.jpg"},
		{"a.jpeg", "image/jpeg", "a.jpeg"},
		{"a.PNG", "image/jpeg", "a.jpg"},
		{"scan", "image/webp", "scan.webp"},
	}
	for _, tt := range tests {
		if got := fixExtension(tt.name, tt.mediaType); got != tt.want {
			t.Errorf("fixExtension(%q, %q) = %q, want %q", tt.name, tt.mediaType, got, tt.want)
		}
	}
}
