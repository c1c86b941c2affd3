// Package thumbnail generates small cropped previews of uploaded images.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/disintegration/imaging"
)

// Default thumbnail size in pixels.
const (
	DefaultWidth  = 50
	DefaultHeight = 50
)

// ErrUnsupported is returned for extensions the processor cannot encode.
var ErrUnsupported = errors.New("thumbnail: unsupported image format")

// Processor turns image bytes into a thumbnail encoded like the source.
type Processor interface {
	Thumbnail(ctx context.Context, src io.Reader, ext string) ([]byte, error)
}

// Imaging crops images to fill Width x Height around the center.
type Imaging struct {
	Width  int
	Height int
}

// NewImaging returns a processor for w x h thumbnails; non-positive sizes
// fall back to the defaults.
func NewImaging(w, h int) *Imaging {
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	return &Imaging{Width: w, Height: h}
}

// FormatFor maps a file extension to the encoder used for its thumbnail.
func FormatFor(ext string) (imaging.Format, error) {
	return imaging.FormatFromExtension(strings.ToLower(strings.TrimPrefix(ext, ".")))
}

func (p *Imaging) Thumbnail(ctx context.Context, src io.Reader, ext string) ([]byte, error) {
	format, err := FormatFor(ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	thumb := imaging.Fill(img, p.Width, p.Height, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, format); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
