package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 7 {
		for x := 0; x < w; x += 7 {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// dimensions reports the pixel size of an encoded data URI.
func dimensions(t *testing.T, uri string) (int, int, error) {
	t.Helper()
	raw, err := decodeDataURI(uri)
	if err != nil {
		return 0, 0, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func TestScaleDimensions(t *testing.T) {
	tests := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{"landscape", 3000, 2000, 1200, 1200, 800},
		{"portrait", 2000, 3000, 1200, 800, 1200},
		{"square", 2400, 2400, 1200, 1200, 1200},
		{"already small", 800, 600, 1200, 800, 600},
		{"never upscales", 10, 20, 1200, 10, 20},
		{"extreme ratio", 5000, 2, 1200, 1200, 1},
		{"no limit", 3000, 2000, 0, 3000, 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := ScaleDimensions(tt.w, tt.h, tt.max)
			require.Equal(t, tt.wantW, w)
			require.Equal(t, tt.wantH, h)
		})
	}
}

func TestEncodeBytes_Downscales(t *testing.T) {
	enc := NewEncoder(nil)

	out, err := enc.EncodeBytes(pngBytes(t, 3000, 2000))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "data:image/jpeg;base64,"))

	w, h, err := dimensions(t, out)
	require.NoError(t, err)
	require.Equal(t, 1200, w)
	require.Equal(t, 800, h)
}

func TestEncodeBytes_KeepsSmallDimensions(t *testing.T) {
	enc := NewEncoder(nil)

	out, err := enc.EncodeBytes(pngBytes(t, 320, 240))
	require.NoError(t, err)

	w, h, err := dimensions(t, out)
	require.NoError(t, err)
	require.Equal(t, 320, w)
	require.Equal(t, 240, h)
}

func TestEncode_FallsBackToOriginalBytes(t *testing.T) {
	enc := NewEncoder(nil)
	garbage := []byte("definitely not an image")

	out := enc.Encode(Input{Data: garbage})
	require.Equal(t, "data:text/plain;base64,"+base64.StdEncoding.EncodeToString(garbage), out)
}

func TestEncode_SmallURIPassesThrough(t *testing.T) {
	enc := NewEncoder(nil)
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 16, 16))

	require.Equal(t, uri, enc.Encode(Input{URI: uri}))
	require.Equal(t, "https://example.com/a.jpg", enc.Encode(Input{URI: "https://example.com/a.jpg"}))
}

func TestEncode_LargeURIIsRecompressed(t *testing.T) {
	enc := NewEncoder(nil)
	enc.ReencodeThreshold = 1024

	// Noise keeps the PNG large enough to cross the threshold
	img := image.NewRGBA(image.Rect(0, 0, 1600, 400))
	rng := rand.New(rand.NewSource(1))
	rng.Read(img.Pix)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	require.Greater(t, EstimatedSize(uri), enc.ReencodeThreshold)

	out := enc.Encode(Input{URI: uri})
	require.True(t, strings.HasPrefix(out, "data:image/jpeg;base64,"))

	w, h, err := dimensions(t, out)
	require.NoError(t, err)
	require.Equal(t, 1200, w)
	require.Equal(t, 300, h)
}

func TestEncode_CorruptLargeURIKeepsOriginal(t *testing.T) {
	enc := NewEncoder(nil)
	enc.ReencodeThreshold = 10
	uri := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte(strings.Repeat("junk", 64)))

	require.Equal(t, uri, enc.Encode(Input{URI: uri}))
}

func TestEstimatedSize(t *testing.T) {
	require.Equal(t, 3, EstimatedSize("abcd"))
	require.Equal(t, 750, EstimatedSize(strings.Repeat("a", 1000)))
}

func TestEncodeAll_PreservesOrderAndDropsEmpty(t *testing.T) {
	enc := NewEncoder(nil)
	carried := "data:image/jpeg;base64,AAAA"

	out, err := enc.EncodeAll(context.Background(), []Input{
		{URI: carried},
		{},
		{Data: pngBytes(t, 40, 30)},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, carried, out[0])
	require.True(t, strings.HasPrefix(out[1], "data:image/jpeg;base64,"))
}

func TestEncodeAll_Canceled(t *testing.T) {
	enc := NewEncoder(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := enc.EncodeAll(ctx, []Input{{Data: pngBytes(t, 8, 8)}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestEncodeBytes_RejectsOversizedSource(t *testing.T) {
	enc := NewEncoder(nil)
	enc.MaxPixels = 40 * 40

	_, err := enc.EncodeBytes(pngBytes(t, 50, 50))
	require.ErrorIs(t, err, ErrImageTooLarge)

	_, err = enc.EncodeBytes(pngBytes(t, 40, 40))
	require.NoError(t, err)

	src := pngBytes(t, 50, 50)
	out := enc.Encode(Input{Data: src})
	require.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(src), out)
}
