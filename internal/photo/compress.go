package photo

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// imageOrientation reads the EXIF orientation tag, 1 when absent.
func imageOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// applyOrientation returns img transformed so it displays upright for the
// given EXIF orientation.
func applyOrientation(img image.Image, orientation int) image.Image {
	if orientation <= 1 || orientation > 8 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	dstW, dstH := w, h
	if orientation >= 5 {
		dstW, dstH = h, w
	}

	// maps a source pixel to its destination
	var mapping func(x, y int) (int, int)
	switch orientation {
	case 2:
		mapping = func(x, y int) (int, int) { return w - 1 - x, y }
	case 3:
		mapping = func(x, y int) (int, int) { return w - 1 - x, h - 1 - y }
	case 4:
		mapping = func(x, y int) (int, int) { return x, h - 1 - y }
	case 5:
		mapping = func(x, y int) (int, int) { return y, x }
	case 6:
		mapping = func(x, y int) (int, int) { return h - 1 - y, x }
	case 7:
		mapping = func(x, y int) (int, int) { return h - 1 - y, w - 1 - x }
	case 8:
		mapping = func(x, y int) (int, int) { return y, w - 1 - x }
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := mapping(x, y)
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// fitWithin scales w x h down to fit a maxDim square, preserving aspect ratio.
func fitWithin(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	scale := float64(maxDim) / float64(w)
	if s := float64(maxDim) / float64(h); s < scale {
		scale = s
	}
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return min(nw, maxDim), min(nh, maxDim)
}

// compressed is the outcome of compressImage.
type compressed struct {
	data     []byte
	mimeType string
	width    int
	height   int
	changed  bool
}

// compressImage bounds an image to maxDim pixels on its longest side and
// corrects EXIF orientation. Images already within bounds and upright are
// returned untouched; anything else is re-encoded as JPEG at quality.
// Images declaring more than maxPixels pixels are rejected before decoding.
func compressImage(data []byte, maxDim, quality, maxPixels int) (*compressed, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooManyPixels, cfg.Width, cfg.Height, maxPixels)
	}

	orientation := 1
	if format == "jpeg" {
		orientation = imageOrientation(data)
	}

	nw, nh := fitWithin(cfg.Width, cfg.Height, maxDim)
	if orientation == 1 && nw == cfg.Width && nh == cfg.Height {
		return &compressed{
			data:     data,
			mimeType: "image/" + format,
			width:    cfg.Width,
			height:   cfg.Height,
		}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	img = applyOrientation(img, orientation)
	b := img.Bounds()
	nw, nh = fitWithin(b.Dx(), b.Dy(), maxDim)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	if quality <= 0 || quality > 100 {
		quality = 85
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode compressed image: %w", err)
	}

	return &compressed{
		data:     buf.Bytes(),
		mimeType: "image/jpeg",
		width:    nw,
		height:   nh,
		changed:  true,
	}, nil
}
