package capture

import (
	"fmt"
	"path/filepath"
)

// Frame is one color frame borrowed from the device. Data aliases device
// memory and is only valid until the next wait on the device.
type Frame struct {
	Width  int
	Height int
	Data   []byte
}

// Image wraps the frame's bytes without copying.
func (f *Frame) Image() (*BGR, error) {
	return NewBGRView(f.Data, f.Width, f.Height)
}

// Namer produces sequential output paths: Dir/0000000000.png,
// Dir/0000000001.png, ... Ten digits keep lexical order equal to capture
// order.
type Namer struct {
	Dir  string
	Ext  string
	next uint64
}

// NewNamer returns a Namer starting at zero.
func NewNamer(dir string) *Namer {
	return &Namer{Dir: dir, Ext: ".png"}
}

// Next returns the path for the current counter value and increments it.
func (n *Namer) Next() string {
	name := filepath.Join(n.Dir, fmt.Sprintf("%010d%s", n.next, n.Ext))
	n.next++
	return name
}

// Count is the number of names handed out.
func (n *Namer) Count() uint64 {
	return n.next
}
