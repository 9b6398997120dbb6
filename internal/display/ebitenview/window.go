// Package ebitenview shows frames in an Ebitengine window.
package ebitenview

import (
	"context"
	"image"
	"math"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/junsooki/rscapture/internal/display"
)

// Window renders frames using Ebitengine. It implements display.Display.
type Window struct {
	title string

	mu          sync.Mutex
	frame       *image.RGBA
	spare       *image.RGBA
	dirty       bool
	ebitenImage *ebiten.Image

	ctx context.Context
}

// New creates a window titled title. It opens when Run is called.
func New(title string) *Window {
	return &Window{title: title}
}

// Show copies img into the display's own buffer; the caller may reuse its
// memory as soon as Show returns.
func (d *Window) Show(img image.Image) error {
	d.mu.Lock()
	dst := d.spare
	d.spare = nil
	d.mu.Unlock()

	dst = display.ToRGBA(dst, img)

	d.mu.Lock()
	d.spare = d.frame
	d.frame = dst
	d.dirty = true
	d.mu.Unlock()
	return nil
}

// SetFrame replaces the displayed frame without copying. The display owns
// img afterwards.
func (d *Window) SetFrame(img *image.RGBA) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = img
	d.spare = nil
	d.dirty = true
}

// Run starts the Ebitengine game loop. Must be called from the main goroutine.
func (d *Window) Run(ctx context.Context) error {
	d.ctx = ctx
	ebiten.SetWindowSize(640, 480)
	ebiten.SetWindowTitle(d.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	err := ebiten.RunGame(d)
	if err == ebiten.Termination {
		return nil
	}
	return err
}

// --- ebiten.Game interface ---

func (d *Window) Update() error {
	if d.ctx != nil && d.ctx.Err() != nil {
		return ebiten.Termination
	}
	return nil
}

func (d *Window) Draw(screen *ebiten.Image) {
	d.mu.Lock()
	frame := d.frame
	dirty := d.dirty
	d.dirty = false
	if frame != nil && dirty {
		if d.ebitenImage == nil ||
			d.ebitenImage.Bounds().Dx() != frame.Bounds().Dx() ||
			d.ebitenImage.Bounds().Dy() != frame.Bounds().Dy() {
			d.ebitenImage = ebiten.NewImage(frame.Bounds().Dx(), frame.Bounds().Dy())
		}
		d.ebitenImage.WritePixels(frame.Pix)
	}
	d.mu.Unlock()

	if d.ebitenImage == nil {
		return
	}

	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	fw, fh := float64(d.ebitenImage.Bounds().Dx()), float64(d.ebitenImage.Bounds().Dy())
	scale, offsetX, offsetY := aspectFitTransform(float64(sw), float64(sh), fw, fh)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(offsetX, offsetY)
	screen.DrawImage(d.ebitenImage, op)
}

func (d *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// aspectFitTransform returns scale and offsets to fit frame into view with letterboxing.
func aspectFitTransform(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}
