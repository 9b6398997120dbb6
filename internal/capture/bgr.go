package capture

import (
	"fmt"
	"image"
	"image/color"
)

// BGR is an in-memory image of packed 8-bit blue, green, red samples. It
// satisfies image.Image so it can be handed to encoders and displays as-is.
type BGR struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// NewBGRView reinterprets data as a w x h BGR image. The pixels are not
// copied.
func NewBGRView(data []byte, w, h int) (*BGR, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", w, h)
	}
	if len(data) < w*h*3 {
		return nil, fmt.Errorf("frame holds %d bytes, %dx%d bgr needs %d", len(data), w, h, w*h*3)
	}
	return &BGR{Pix: data[:w*h*3], Stride: w * 3, Rect: image.Rect(0, 0, w, h)}, nil
}

func (p *BGR) ColorModel() color.Model { return color.RGBAModel }

func (p *BGR) Bounds() image.Rectangle { return p.Rect }

func (p *BGR) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := p.PixOffset(x, y)
	s := p.Pix[i : i+3 : i+3]
	return color.RGBA{R: s[2], G: s[1], B: s[0], A: 0xff}
}

// PixOffset returns the index of the first element of Pix that corresponds
// to the pixel at (x, y).
func (p *BGR) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
}

// Opaque reports true; BGR has no alpha. The PNG encoder uses this to
// write 3-channel truecolor.
func (p *BGR) Opaque() bool { return true }

// Clone copies the pixels so the image outlives the device buffer.
func (p *BGR) Clone() *BGR {
	pix := make([]uint8, len(p.Pix))
	copy(pix, p.Pix)
	return &BGR{Pix: pix, Stride: p.Stride, Rect: p.Rect}
}

// ToRGBA converts into dst, reusing it when the bounds match.
func (p *BGR) ToRGBA(dst *image.RGBA) *image.RGBA {
	if dst == nil || dst.Rect != p.Rect {
		dst = image.NewRGBA(p.Rect)
	}
	w, h := p.Rect.Dx(), p.Rect.Dy()
	for y := 0; y < h; y++ {
		src := p.Pix[y*p.Stride : y*p.Stride+w*3]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		for x := 0; x < w; x++ {
			out[x*4] = src[x*3+2]
			out[x*4+1] = src[x*3+1]
			out[x*4+2] = src[x*3]
			out[x*4+3] = 0xff
		}
	}
	return dst
}

// Bytes exposes the packed pixels with their dimensions, for libraries
// that wrap raw memory.
func (p *BGR) Bytes() (pix []byte, width, height int) {
	return p.Pix, p.Rect.Dx(), p.Rect.Dy()
}
