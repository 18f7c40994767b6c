package imageprocessor

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/gift"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/example/ecovision/internal/classification"
)

// MaxDimension bounds the longest side of a normalized image.
const MaxDimension = 1024

// MaxPixels is the largest decoded area accepted, checked from the header
// before any pixel data is allocated.
const MaxPixels = 40_000_000

// ErrImageTooLarge is returned when the declared dimensions exceed the pixel
// budget.
var ErrImageTooLarge = errors.New("image dimensions exceed pixel budget")

// CheckDimensions reads only the image header and rejects images whose
// width*height exceeds maxPixels.
func CheckDimensions(data []byte, maxPixels int) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return cfg, fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return cfg, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return cfg, nil
}

// NormalizedImage is a JPEG-encoded RGB image ready for the remote call.
type NormalizedImage struct {
	Data   []byte
	Width  int
	Height int
}

// Options tune the enhancement applied before classification.
type Options struct {
	MaxDimension    int
	MaxPixels       int
	ContrastPercent float32
	SharpenSigma    float32
	SharpenAmount   float32
	BlurSigma       float32
	JPEGQuality     int
}

// DefaultOptions returns a ~1.2x contrast, ~1.5x sharpness and sigma 0.5
// denoise pipeline capped at MaxDimension.
func DefaultOptions() Options {
	return Options{
		MaxDimension:    MaxDimension,
		MaxPixels:       MaxPixels,
		ContrastPercent: 20,
		SharpenSigma:    1.0,
		SharpenAmount:   0.5,
		BlurSigma:       0.5,
		JPEGQuality:     90,
	}
}

// Normalizer decodes, bounds and enhances images. It is safe for concurrent
// use; every call works on its own buffers.
type Normalizer struct {
	opts    Options
	buffers sync.Pool
}

// NewNormalizer constructs a Normalizer with the given options.
func NewNormalizer(opts Options) *Normalizer {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = MaxDimension
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = MaxPixels
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 90
	}
	return &Normalizer{
		opts: opts,
		buffers: sync.Pool{
			New: func() interface{} { return new(bytes.Buffer) },
		},
	}
}

// Normalize returns an enhanced JPEG copy of data. Decode failures and
// images over the pixel budget are reported as
// classification.ErrPreprocessing.
func (n *Normalizer) Normalize(data []byte) (*NormalizedImage, error) {
	if _, err := CheckDimensions(data, n.opts.MaxPixels); err != nil {
		return nil, fmt.Errorf("%w: %w", classification.ErrPreprocessing, err)
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", classification.ErrPreprocessing, err)
	}

	img := flatten(src)
	bounds := img.Bounds()
	if bounds.Dx() > n.opts.MaxDimension || bounds.Dy() > n.opts.MaxDimension {
		img = imaging.Fit(img, n.opts.MaxDimension, n.opts.MaxDimension, imaging.Lanczos)
	}

	filters := gift.New(
		gift.Contrast(n.opts.ContrastPercent),
		gift.UnsharpMask(n.opts.SharpenSigma, n.opts.SharpenAmount, 0),
		gift.GaussianBlur(n.opts.BlurSigma),
	)
	enhanced := image.NewNRGBA(filters.Bounds(img.Bounds()))
	filters.Draw(enhanced, img)

	buf := n.buffers.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		n.buffers.Put(buf)
	}()

	if err := imaging.Encode(buf, enhanced, imaging.JPEG, imaging.JPEGQuality(n.opts.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", classification.ErrPreprocessing, err)
	}

	out := enhanced.Bounds()
	return &NormalizedImage{
		Data:   append([]byte(nil), buf.Bytes()...),
		Width:  out.Dx(),
		Height: out.Dy(),
	}, nil
}

// flatten drops any alpha channel by compositing over white.
func flatten(src image.Image) *image.NRGBA {
	cloned := imaging.Clone(src)
	b := cloned.Bounds()
	background := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(background, cloned, image.Pt(0, 0), 1.0)
}

// Encode converts image bytes into the base64 text sent inline to the model.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
