// Package imaging turns uploaded or previously stored listing photos into compact
// embeddable JPEG data URIs.
package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxDimension      = 1200
	DefaultQuality           = 0.7
	DefaultReencodeThreshold = 500 * 1024
	// DefaultMaxPixels caps the source raster decoded into memory (about 200 MB as RGBA).
	DefaultMaxPixels = 50_000_000

	jpegMIME   = "image/jpeg"
	dataPrefix = "data:"
)

var (
	// ErrEmptyImage indicates an input without bytes or URI.
	ErrEmptyImage = errors.New("empty image")
	// ErrNotDataURI indicates a string that is not a base64 data URI.
	ErrNotDataURI = errors.New("not a base64 data URI")
	// ErrImageTooLarge indicates a source raster above MaxPixels.
	ErrImageTooLarge = errors.New("image too large")
)

// Input is one image handed in by a caller: either freshly uploaded bytes or an
// encoded string carried over from an earlier save.
type Input struct {
	Data []byte
	URI  string
}

// Encoder downsizes and re-encodes listing images.
type Encoder struct {
	MaxDimension      int
	Quality           float64
	ReencodeThreshold int
	MaxPixels         int
	logger            *slog.Logger
}

// NewEncoder returns an Encoder with the default policy.
func NewEncoder(logger *slog.Logger) *Encoder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Encoder{
		MaxDimension:      DefaultMaxDimension,
		Quality:           DefaultQuality,
		ReencodeThreshold: DefaultReencodeThreshold,
		MaxPixels:         DefaultMaxPixels,
		logger:            logger,
	}
}

// Encode never fails: when the image cannot be decoded or re-encoded the original
// content is returned so a single bad photo does not block publishing.
func (e *Encoder) Encode(in Input) string {
	if len(in.Data) > 0 {
		out, err := e.EncodeBytes(in.Data)
		if err != nil {
			e.logger.Warn("image compression failed, keeping original", "error", err, "bytes", len(in.Data))
			return toDataURI(http.DetectContentType(in.Data), in.Data)
		}
		return out
	}

	if in.URI == "" {
		return ""
	}
	if EstimatedSize(in.URI) <= e.ReencodeThreshold || !strings.HasPrefix(in.URI, "data:image") {
		return in.URI
	}

	raw, err := decodeDataURI(in.URI)
	if err != nil {
		e.logger.Warn("stored image unreadable, keeping original", "error", err)
		return in.URI
	}
	out, err := e.EncodeBytes(raw)
	if err != nil {
		e.logger.Warn("stored image compression failed, keeping original", "error", err)
		return in.URI
	}
	return out
}

// EncodeAll encodes inputs concurrently and returns them in input order.
// Empty inputs are dropped; only context cancellation is reported as an error.
func (e *Encoder) EncodeAll(ctx context.Context, inputs []Input) ([]string, error) {
	results := make([]string, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = e.Encode(in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(results))
	for _, r := range results {
		if r != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

// EncodeBytes decodes a raster, scales it to fit MaxDimension and returns a JPEG data URI.
func (e *Encoder) EncodeBytes(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image header: %w", err)
	}
	if e.MaxPixels > 0 && cfg.Width*cfg.Height > e.MaxPixels {
		return "", fmt.Errorf("%dx%d exceeds %d pixels: %w", cfg.Width, cfg.Height, e.MaxPixels, ErrImageTooLarge)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := ScaleDimensions(b.Dx(), b.Dy(), e.MaxDimension)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality(e.Quality)}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return toDataURI(jpegMIME, buf.Bytes()), nil
}

// ScaleDimensions fits w×h inside maxDim×maxDim keeping the aspect ratio. It only shrinks.
func ScaleDimensions(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || w <= 0 || h <= 0 {
		return w, h
	}
	if w > h {
		if w > maxDim {
			h = atLeastOne(h * maxDim / w)
			w = maxDim
		}
	} else if h > maxDim {
		w = atLeastOne(w * maxDim / h)
		h = maxDim
	}
	return w, h
}

// EstimatedSize approximates the decoded byte size of a base64 string (4 chars ≈ 3 bytes).
func EstimatedSize(encoded string) int {
	return len(encoded) * 3 / 4
}

func decodeDataURI(uri string) ([]byte, error) {
	if !strings.HasPrefix(uri, dataPrefix) {
		return nil, ErrNotDataURI
	}
	header, payload, ok := strings.Cut(uri[len(dataPrefix):], ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, ErrNotDataURI
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	return raw, nil
}

func toDataURI(mime string, data []byte) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return dataPrefix + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func jpegQuality(q float64) int {
	switch {
	case q <= 0:
		return int(DefaultQuality * 100)
	case q > 1:
		return 100
	default:
		return int(q*100 + 0.5)
	}
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
