package encoder

import (
	"bytes"
	"image"
	"image/png"
)

// PNGEncoder encodes persisted frames losslessly.
type PNGEncoder struct {
	enc png.Encoder
	buf bytes.Buffer
}

// NewPNGEncoder creates a PNG encoder. BestSpeed keeps the write inside
// the frame budget on most disks.
func NewPNGEncoder(level png.CompressionLevel) *PNGEncoder {
	return &PNGEncoder{enc: png.Encoder{CompressionLevel: level}}
}

// Encode returns bytes that stay valid until the next call.
func (e *PNGEncoder) Encode(img image.Image) ([]byte, error) {
	e.buf.Reset()
	if err := e.enc.Encode(&e.buf, img); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}
