package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode sample: %v", err)
	}
	return buf.Bytes()
}

func TestImaging_CropsToSize(t *testing.T) {
	p := NewImaging(0, 0)
	out, err := p.Thumbnail(context.Background(), bytes.NewReader(samplePNG(t, 200, 120)), "PNG")
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if format != "png" {
		t.Errorf("format = %q, want png", format)
	}
	if cfg.Width != DefaultWidth || cfg.Height != DefaultHeight {
		t.Errorf("size = %dx%d, want %dx%d", cfg.Width, cfg.Height, DefaultWidth, DefaultHeight)
	}
}

func TestImaging_EncodesLikeExtension(t *testing.T) {
	p := NewImaging(20, 10)
	out, err := p.Thumbnail(context.Background(), bytes.NewReader(samplePNG(t, 64, 64)), "jpg")
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if format != "jpeg" || cfg.Width != 20 || cfg.Height != 10 {
		t.Errorf("got %s %dx%d", format, cfg.Width, cfg.Height)
	}
}

func TestImaging_Errors(t *testing.T) {
	p := NewImaging(50, 50)

	if _, err := p.Thumbnail(context.Background(), strings.NewReader("x"), "txt"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("txt: got %v, want ErrUnsupported", err)
	}
	if _, err := p.Thumbnail(context.Background(), strings.NewReader("not an image"), "png"); err == nil {
		t.Error("expected decode error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Thumbnail(ctx, bytes.NewReader(samplePNG(t, 10, 10)), "png"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: got %v", err)
	}
}

func TestFormatFor(t *testing.T) {
	for _, ext := range []string{"png", "jpg", "JPEG", ".gif", "bmp"} {
		if _, err := FormatFor(ext); err != nil {
			t.Errorf("FormatFor(%q): %v", ext, err)
		}
	}
}
