//go:build gocv

package cvview

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// bgrBytes is implemented by images backed by packed BGR memory, which
// OpenCV can wrap without conversion.
type bgrBytes interface {
	Bytes() (pix []byte, width, height int)
}

// Window renders frames with OpenCV highgui. The window is pumped
// from the goroutine calling Show, which must stay locked to its OS thread.
type Window struct {
	title string

	mu     sync.Mutex
	window *gocv.Window
}

// New creates a display whose window opens on the first Show.
func New(title string) *Window {
	return &Window{title: title}
}

func (d *Window) Show(img image.Image) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.window == nil {
		d.window = gocv.NewWindow(d.title)
	}

	var (
		mat gocv.Mat
		err error
	)
	if b, ok := img.(bgrBytes); ok {
		pix, w, h := b.Bytes()
		mat, err = gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, pix)
	} else {
		mat, err = gocv.ImageToMatRGB(img)
	}
	if err != nil {
		return fmt.Errorf("wrap frame: %w", err)
	}
	defer mat.Close()

	d.window.IMShow(mat)
	d.window.WaitKey(1)
	return nil
}

func (d *Window) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Close destroys the window. Call it from the goroutine that called Show.
func (d *Window) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.window == nil {
		return nil
	}
	err := d.window.Close()
	d.window = nil
	return err
}
