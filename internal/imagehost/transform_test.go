package imagehost

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"snapify/internal/media/sniffer"
	"snapify/internal/rules"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func detect(t *testing.T, data []byte) sniffer.Result {
	t.Helper()
	kind, err := sniffer.DetectHead(data)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	return kind
}

func TestLimitWidthScalesWidePNG(t *testing.T) {
	data := encodePNG(t, 400, 200)

	got, err := LimitWidth(data, detect(t, data), 100, 0)
	if err != nil {
		t.Fatalf("LimitWidth: %v", err)
	}
	if got.Width != 100 || got.Height != 50 {
		t.Fatalf("got %dx%d, want 100x50", got.Width, got.Height)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(got.Data))
	if err != nil {
		t.Fatalf("output is not png: %v", err)
	}
	if cfg.Width != 100 {
		t.Fatalf("encoded width = %d", cfg.Width)
	}
}

func TestLimitWidthScalesWideJPEG(t *testing.T) {
	data := encodeJPEG(t, 300, 300)

	got, err := LimitWidth(data, detect(t, data), 150, 0)
	if err != nil {
		t.Fatalf("LimitWidth: %v", err)
	}
	if got.Width != 150 || got.Height != 150 {
		t.Fatalf("got %dx%d, want 150x150", got.Width, got.Height)
	}
}

func TestLimitWidthKeepsNarrowImage(t *testing.T) {
	data := encodePNG(t, 80, 40)

	got, err := LimitWidth(data, detect(t, data), 100, 0)
	if err != nil {
		t.Fatalf("LimitWidth: %v", err)
	}
	if !bytes.Equal(got.Data, data) {
		t.Fatal("narrow image should pass through untouched")
	}
	if got.Width != 80 || got.Height != 40 {
		t.Fatalf("got %dx%d", got.Width, got.Height)
	}
}

func TestLimitWidthZeroDisablesScaling(t *testing.T) {
	data := encodePNG(t, 400, 10)

	got, err := LimitWidth(data, detect(t, data), 0, 0)
	if err != nil {
		t.Fatalf("LimitWidth: %v", err)
	}
	if got.Width != 400 {
		t.Fatalf("width = %d, want 400", got.Width)
	}
}

func TestLimitWidthRejectsCorruptData(t *testing.T) {
	data := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0}

	_, err := LimitWidth(data, detect(t, data), 100, 0)
	if !errors.Is(err, rules.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

// pngHeader returns a PNG holding only a valid IHDR chunk for a w x h 8-bit
// grayscale canvas. It is enough for DecodeConfig but would need w*h bytes
// once decoded.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestLimitWidthRejectsOversizedCanvas(t *testing.T) {
	data := pngHeader(16000, 16000)

	_, err := LimitWidth(data, detect(t, data), 1200, 0)
	if !errors.Is(err, rules.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestLimitWidthPixelBudget(t *testing.T) {
	var gifBuf bytes.Buffer
	if err := gif.Encode(&gifBuf, image.NewPaletted(image.Rect(0, 0, 50, 50), color.Palette{color.Black, color.White}), nil); err != nil {
		t.Fatalf("encode gif: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"png", encodePNG(t, 100, 100)},
		{"jpeg", encodeJPEG(t, 100, 100)},
		{"gif", gifBuf.Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind := detect(t, tt.data)
			if _, err := LimitWidth(tt.data, kind, 1200, 1000); !errors.Is(err, rules.ErrInvalidInput) {
				t.Fatalf("over budget err = %v, want ErrInvalidInput", err)
			}
			if _, err := LimitWidth(tt.data, kind, 1200, 10000); err != nil {
				t.Fatalf("within budget: %v", err)
			}
		})
	}
}

func TestLimitWidthPassesThroughWebP(t *testing.T) {
	data := append([]byte("RIFF\x00\x00\x00\x00WEBP"), make([]byte, 16)...)

	got, err := LimitWidth(data, detect(t, data), 100, 0)
	if err != nil {
		t.Fatalf("LimitWidth: %v", err)
	}
	if got.Width != 0 || !bytes.Equal(got.Data, data) {
		t.Fatalf("webp should pass through, got %+v", got)
	}
}

func TestFolderHelpers(t *testing.T) {
	folder := EventFolder("ABC123")
	if folder != "snapify/events/ABC123" {
		t.Fatalf("EventFolder = %q", folder)
	}
	if !InFolder(folder+"/photo.jpg", folder) {
		t.Fatal("expected photo inside folder")
	}
	if InFolder("snapify/events/ABC1234/photo.jpg", folder) {
		t.Fatal("sibling folder must not match")
	}
	if InFolder(folder+"/../XYZ/photo.jpg", folder) {
		t.Fatal("path traversal must not match")
	}
}
