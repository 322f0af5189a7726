package inference

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	xdraw "golang.org/x/image/draw"
)

// Decoder turns encoded image bytes into a normalized NHWC tensor of
// shape [1, H, W, 3] with values in [0, 1]. The two implementations
// differ only in mechanism; their observable contract is identical.
type Decoder interface {
	Decode(data []byte) (*Tensor, error)
}

// ByteDecoder decodes compressed pixel data and bilinear-resizes it to
// the model input size.
type ByteDecoder struct {
	height int
	width  int
}

// NewByteDecoder builds a decoder producing [1, height, width, 3] tensors.
func NewByteDecoder(height, width int) *ByteDecoder {
	return &ByteDecoder{height: height, width: width}
}

func (d *ByteDecoder) Decode(data []byte) (*Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	resized := resize.Resize(uint(d.width), uint(d.height), img, resize.Bilinear)

	out := make([]float32, d.height*d.width*InputChannels)
	bounds := resized.Bounds()
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			out[i] = float32(r>>8) / 255.0
			out[i+1] = float32(g>>8) / 255.0
			out[i+2] = float32(b>>8) / 255.0
			i += InputChannels
		}
	}

	return &Tensor{
		Data:  out,
		Shape: []int64{1, int64(d.height), int64(d.width), InputChannels},
	}, nil
}

// SurfaceDecoder draws the image onto an offscreen RGBA surface sized
// to the model input and reads the raw pixels back.
type SurfaceDecoder struct {
	height int
	width  int
}

// NewSurfaceDecoder builds a decoder producing [1, height, width, 3] tensors.
func NewSurfaceDecoder(height, width int) *SurfaceDecoder {
	return &SurfaceDecoder{height: height, width: width}
}

func (d *SurfaceDecoder) Decode(data []byte) (*Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	surface := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	xdraw.BiLinear.Scale(surface, surface.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	out := make([]float32, d.height*d.width*InputChannels)
	i := 0
	for p := 0; p < len(surface.Pix); p += 4 {
		out[i] = float32(surface.Pix[p]) / 255.0
		out[i+1] = float32(surface.Pix[p+1]) / 255.0
		out[i+2] = float32(surface.Pix[p+2]) / 255.0
		i += InputChannels
	}

	return &Tensor{
		Data:  out,
		Shape: []int64{1, int64(d.height), int64(d.width), InputChannels},
	}, nil
}
