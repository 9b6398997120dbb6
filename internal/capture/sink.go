package capture

import (
	"fmt"
	"image"
	"os"

	"github.com/junsooki/rscapture/internal/encoder"
)

// Sink consumes one frame per loop iteration. img aliases device memory:
// a sink that keeps pixels after Consume returns must Clone them.
type Sink interface {
	Consume(name string, img *BGR) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(name string, img *BGR) error

func (f SinkFunc) Consume(name string, img *BGR) error { return f(name, img) }

// FileSink encodes each frame and writes it to the path it is given,
// replacing any file already there. Frames are converted into one reused
// RGBA buffer first, which the encoders read without per-pixel calls.
type FileSink struct {
	enc  encoder.Encoder
	rgba *image.RGBA
}

// NewFileSink creates a FileSink using enc.
func NewFileSink(enc encoder.Encoder) *FileSink {
	return &FileSink{enc: enc}
}

func (s *FileSink) Consume(name string, img *BGR) error {
	s.rgba = img.ToRGBA(s.rgba)
	data, err := s.enc.Encode(s.rgba)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
