//go:build !gocv

package main

import (
	"github.com/junsooki/rscapture/internal/display"
	"github.com/junsooki/rscapture/internal/display/ebitenview"
)

// newPreview returns the preview window for this build.
func newPreview(title string) display.Display {
	return ebitenview.New(title)
}
