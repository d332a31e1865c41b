// Package imaging turns raster images into model-ready tensors and
// rasterizes images into the JPEG data URLs the AI backend accepts.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/Toowiredd/excalidraw-Ty/internal/apperr"
)

const (
	// InputSize is the square edge every model input is resized to.
	InputSize = 256
	// Channels is the number of color channels kept (alpha is dropped).
	Channels = 3

	DefaultJPEGQuality = 92

	// MaxPixels caps the declared width×height of a decoded image. It bounds
	// the decoder's allocation, which the header alone determines.
	MaxPixels = 4096 * 4096
)

var supportedMIME = []string{"image/png", "image/jpeg", "image/gif", "image/webp", "image/bmp"}

// Tensor is a dense float32 tensor in NHWC order.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Len is the number of elements implied by Shape.
func (t Tensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Decode sniffs data and decodes it when it is a supported raster format.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, apperr.InvalidImageSource("empty payload", nil)
	}
	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), supportedMIME...) {
		return nil, apperr.InvalidImageSource(fmt.Sprintf("unsupported type %s", mt.String()), nil)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.InvalidImageSource("cannot be rasterized", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxPixels/cfg.Height {
		return nil, apperr.InvalidImageSource(fmt.Sprintf("image too large: %dx%d", cfg.Width, cfg.Height), nil)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.InvalidImageSource("cannot be rasterized", err)
	}
	return img, nil
}

// DecodeDataURL decodes a base64 "data:<mime>;base64,<payload>" URL.
func DecodeDataURL(s string) (image.Image, error) {
	header, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, apperr.InvalidImageSource("malformed data URL", nil)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperr.InvalidImageSource("malformed data URL", err)
	}
	return Decode(data)
}

// Normalize resizes img to InputSize×InputSize with nearest-neighbor
// sampling and returns a [1, InputSize, InputSize, 3] tensor in [0,1].
func Normalize(img image.Image) (Tensor, error) {
	return NormalizeSize(img, InputSize, InputSize)
}

// NormalizeSize is Normalize with an explicit target size.
func NormalizeSize(img image.Image, width, height int) (Tensor, error) {
	if err := checkSource(img); err != nil {
		return Tensor{}, err
	}
	if width <= 0 || height <= 0 {
		return Tensor{}, fmt.Errorf("imaging: invalid target size %dx%d", width, height)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	data := make([]float32, 0, width*height*Channels)
	for y := 0; y < height; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+width*4]
		for x := 0; x < width; x++ {
			px := row[x*4 : x*4+4]
			data = append(data,
				float32(px[0])/255,
				float32(px[1])/255,
				float32(px[2])/255,
			)
		}
	}

	return Tensor{Shape: []int{1, height, width, Channels}, Data: data}, nil
}

// EncodeJPEGDataURL rasterizes img into a "data:image/jpeg;base64,..." URL.
// quality <= 0 selects DefaultJPEGQuality.
func EncodeJPEGDataURL(img image.Image, quality int) (string, error) {
	if err := checkSource(img); err != nil {
		return "", err
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", apperr.InvalidImageSource("cannot be rasterized", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func checkSource(img image.Image) error {
	if img == nil {
		return apperr.InvalidImageSource("no image", nil)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return apperr.InvalidImageSource(fmt.Sprintf("zero-sized image %dx%d", b.Dx(), b.Dy()), nil)
	}
	return nil
}
