package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"

	defaultQuality = 85

	// DefaultMaxPixels matches the decompression-bomb limit of common imaging
	// libraries (about 89.5 megapixels).
	DefaultMaxPixels = 1024 * 1024 * 1024 / 4 / 3
)

var (
	ErrEmpty             = errors.New("imaging: empty image")
	ErrUnsupportedFormat = errors.New("imaging: unsupported image format")
	ErrTooLarge          = errors.New("imaging: image dimensions exceed pixel limit")
)

// Image is an uploaded picture ready to be sent to the model gateway.
type Image struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// Decoder validates uploads. Only JPEG and PNG are accepted.
type Decoder struct {
	maxWidth  int
	maxPixels int
	quality   int
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxWidth downscales wider images to width w (aspect preserved) and
// re-encodes them as JPEG. Zero disables resizing.
func WithMaxWidth(w int) Option {
	return func(d *Decoder) {
		if w > 0 {
			d.maxWidth = w
		}
	}
}

// WithMaxPixels rejects images whose width*height exceeds n before any pixel
// data is decoded. Zero keeps DefaultMaxPixels.
func WithMaxPixels(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxPixels = n
		}
	}
}

func WithQuality(q int) Option {
	return func(d *Decoder) {
		if q > 0 && q <= 100 {
			d.quality = q
		}
	}
}

// NewDecoder returns a Decoder that keeps images at their original size
// unless WithMaxWidth is given.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{quality: defaultQuality, maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode checks that data is a complete JPEG or PNG image and returns it with
// its MIME type and dimensions.
func (d *Decoder) Decode(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrEmpty
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return Image{}, ErrUnsupportedFormat
		}
		return Image{}, fmt.Errorf("imaging: decode header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Image{}, fmt.Errorf("imaging: invalid image size: %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(d.maxPixels) {
		return Image{}, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return Image{}, ErrUnsupportedFormat
		}
		return Image{}, fmt.Errorf("imaging: decode: %w", err)
	}

	var mime string
	switch format {
	case "jpeg":
		mime = MIMEJPEG
	case "png":
		mime = MIMEPNG
	default:
		return Image{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return Image{}, fmt.Errorf("imaging: invalid image size: %dx%d", b.Dx(), b.Dy())
	}

	if d.maxWidth == 0 || b.Dx() <= d.maxWidth {
		return Image{Data: data, MIMEType: mime, Width: b.Dx(), Height: b.Dy()}, nil
	}

	width := d.maxWidth
	height := max(1, b.Dy()*width/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: d.quality}); err != nil {
		return Image{}, fmt.Errorf("imaging: encode resized image: %w", err)
	}
	return Image{Data: buf.Bytes(), MIMEType: MIMEJPEG, Width: width, Height: height}, nil
}
