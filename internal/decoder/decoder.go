package decoder

import "image"

// Decoder decodes a preview frame received from a camera.
type Decoder interface {
	Decode(data []byte) (*image.RGBA, error)
}
