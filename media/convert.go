package media

import (
	"bytes"
	"image"
	"image/png"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/image/webp"
)

// MaxConvertedImageBytes is the largest PNG we will produce when converting WebP images
const MaxConvertedImageBytes = 5 * 1024 * 1024

// minimum edge of a downscaled image
const minImageEdge = 100

// IsWebP returns whether data starts with a RIFF WEBP header, regardless of the declared format
func IsWebP(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

// ConvertWebPToPNG decodes a WebP image and re-encodes it as PNG, downscaling until it fits in maxBytes
func ConvertWebPToPNG(data []byte, maxBytes int) ([]byte, error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode webp image")
	}

	img, err = fitImage(img, maxBytes)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	encoder := &png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "unable to encode png image")
	}

	if buf.Len() > maxBytes {
		return nil, errors.Errorf("converted image is %d bytes, over the limit of %d", buf.Len(), maxBytes)
	}
	return buf.Bytes(), nil
}

// fitImage scales img down with nearest neighbour sampling until its PNG encoding is at most maxBytes
func fitImage(img image.Image, maxBytes int) (image.Image, error) {
	for {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, errors.Wrap(err, "unable to encode png for size check")
		}
		if buf.Len() <= maxBytes {
			return img, nil
		}

		bounds := img.Bounds()
		width, height := bounds.Dx(), bounds.Dy()
		if width <= minImageEdge && height <= minImageEdge {
			return img, nil
		}

		// encoded size tracks pixel count, so shrink each edge by the root of the overshoot
		factor := 1.0 / math.Sqrt(float64(buf.Len())/float64(maxBytes)/0.9)
		img = scale(img, max(int(float64(width)*factor), minImageEdge), max(int(float64(height)*factor), minImageEdge))
	}
}

func scale(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	scaled := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			srcX := bounds.Min.X + x*srcW/width
			srcY := bounds.Min.Y + y*srcH/height
			scaled.Set(x, y, img.At(srcX, srcY))
		}
	}
	return scaled
}
