// Package display defines the preview window abstraction. Backends live
// in subpackages so that headless builds need no windowing toolkit.
package display

import (
	"context"
	"image"
	"image/draw"
)

// Display previews captured frames in a window.
type Display interface {
	// Show presents img. It is called from the capture goroutine and must
	// not retain img after returning.
	Show(img image.Image) error
	// Run owns the window until ctx is done or the user closes it. Some
	// backends must be run from the main goroutine.
	Run(ctx context.Context) error
}

// rgbaConverter is implemented by images that convert to RGBA faster than
// the generic image/draw path, such as capture.BGR.
type rgbaConverter interface {
	ToRGBA(dst *image.RGBA) *image.RGBA
}

// ToRGBA copies img into dst, reusing dst when the bounds match, and
// returns the buffer holding the copy.
func ToRGBA(dst *image.RGBA, img image.Image) *image.RGBA {
	if c, ok := img.(rgbaConverter); ok {
		return c.ToRGBA(dst)
	}
	b := img.Bounds()
	if dst == nil || dst.Rect != b {
		dst = image.NewRGBA(b)
	}
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// Headless discards frames. It is used when no preview is wanted.
type Headless struct{}

func (Headless) Show(image.Image) error { return nil }

func (Headless) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
