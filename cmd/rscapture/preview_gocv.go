//go:build gocv

package main

import (
	"github.com/junsooki/rscapture/internal/display"
	"github.com/junsooki/rscapture/internal/display/cvview"
)

// newPreview returns the preview window for this build. OpenCV windows are
// pumped from the capture goroutine.
func newPreview(title string) display.Display {
	return cvview.New(title)
}
