package transport

import "errors"

// ErrNotConnected is returned when no frames channel is attached yet.
var ErrNotConnected = errors.New("frames data channel not set")

// FrameSender sends encoded preview frames.
type FrameSender interface {
	SendFrame(data []byte) error
}

// FrameReceiver receives encoded preview frames.
type FrameReceiver interface {
	OnFrame(callback func(data []byte))
}
