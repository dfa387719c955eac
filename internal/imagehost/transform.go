package imagehost

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/nfnt/resize"

	"snapify/internal/media/sniffer"
	"snapify/internal/rules"
)

const jpegQuality = 85

// DefaultMaxPixels bounds the decoded size of an upload. Compressed size says
// little about it: a few hundred kilobytes of PNG can declare a 16000x16000
// canvas.
const DefaultMaxPixels = 40_000_000

type Prepared struct {
	Data   []byte
	Width  int
	Height int
}

// LimitWidth scales JPEG and PNG photos down so they are at most maxWidth
// pixels wide, keeping the aspect ratio. GIF is measured but never re-encoded
// so animations survive. WebP and HEIC pass through with unknown dimensions.
// A maxWidth of zero disables scaling.
//
// The declared dimensions are read from the header before anything is
// decoded; images above maxPixels are rejected. A maxPixels of zero or less
// uses DefaultMaxPixels.
func LimitWidth(data []byte, kind sniffer.Result, maxWidth, maxPixels int) (Prepared, error) {
	var decodeConfig func(r io.Reader) (image.Config, error)
	switch kind.Type {
	case sniffer.TypeJPEG:
		decodeConfig = jpeg.DecodeConfig
	case sniffer.TypePNG:
		decodeConfig = png.DecodeConfig
	case sniffer.TypeGIF:
		decodeConfig = gif.DecodeConfig
	default:
		return Prepared{Data: data}, nil
	}

	cfg, err := decodeConfig(bytes.NewReader(data))
	if err != nil {
		return Prepared{}, fmt.Errorf("%w: decode %s header: %v", rules.ErrInvalidInput, kind.Type, err)
	}
	if err := checkPixels(cfg, maxPixels); err != nil {
		return Prepared{}, err
	}
	if kind.Type == sniffer.TypeGIF {
		return Prepared{Data: data, Width: cfg.Width, Height: cfg.Height}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Prepared{}, fmt.Errorf("%w: decode %s: %v", rules.ErrInvalidInput, kind.Type, err)
	}

	bounds := img.Bounds()
	if maxWidth <= 0 || bounds.Dx() <= maxWidth {
		return Prepared{Data: data, Width: bounds.Dx(), Height: bounds.Dy()}, nil
	}

	scaled := resize.Resize(uint(maxWidth), 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	if kind.Type == sniffer.TypePNG {
		err = png.Encode(&buf, scaled)
	} else {
		err = jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: jpegQuality})
	}
	if err != nil {
		return Prepared{}, fmt.Errorf("encode %s: %w", kind.Type, err)
	}

	out := scaled.Bounds()
	return Prepared{Data: buf.Bytes(), Width: out.Dx(), Height: out.Dy()}, nil
}

func checkPixels(cfg image.Config, maxPixels int) error {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: image has no pixels", rules.ErrInvalidInput)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return fmt.Errorf("%w: image is %dx%d, at most %d pixels are allowed",
			rules.ErrInvalidInput, cfg.Width, cfg.Height, maxPixels)
	}
	return nil
}
