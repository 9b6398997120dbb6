package capture

import (
	"context"
	"image"
	"log"

	"github.com/junsooki/rscapture/internal/encoder"
	"github.com/junsooki/rscapture/internal/transport"
)

// RelaySink forwards every Nth frame to a remote viewer. Frames are copied
// before they leave the loop goroutine and dropped when the sender is still
// busy with the previous one, so a slow network never stalls capture.
type RelaySink struct {
	every  uint64
	enc    encoder.Encoder
	sender transport.FrameSender

	seq    uint64
	frames chan *image.RGBA
	// spare is handed back by the sender goroutine for reuse.
	spare chan *image.RGBA
}

// NewRelaySink creates a relay sending one frame out of every.
func NewRelaySink(every int, enc encoder.Encoder, sender transport.FrameSender) *RelaySink {
	if every < 1 {
		every = 1
	}
	return &RelaySink{
		every:  uint64(every),
		enc:    enc,
		sender: sender,
		frames: make(chan *image.RGBA, 1),
		spare:  make(chan *image.RGBA, 1),
	}
}

func (r *RelaySink) Consume(_ string, img *BGR) error {
	seq := r.seq
	r.seq++
	if seq%r.every != 0 || len(r.frames) == cap(r.frames) {
		return nil
	}

	var dst *image.RGBA
	select {
	case dst = <-r.spare:
	default:
	}

	select {
	case r.frames <- img.ToRGBA(dst):
	default:
	}
	return nil
}

// Run encodes and sends queued frames until ctx is done.
func (r *RelaySink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-r.frames:
			data, err := r.enc.Encode(frame)
			select {
			case r.spare <- frame:
			default:
			}
			if err != nil {
				log.Printf("encode preview frame: %v", err)
				continue
			}
			// Nobody watching is the normal case.
			_ = r.sender.SendFrame(data)
		}
	}
}
