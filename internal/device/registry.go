package device

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// Options carries backend specific settings from the command line.
type Options struct {
	// V4L2Path pins the v4l2 backend to one video node, e.g. /dev/video4.
	V4L2Path string
	// SimFrames is the number of frames the sim backend delivers before it
	// reports a disconnect. Zero means unlimited.
	SimFrames int
}

// OpenFunc creates a Context for one backend.
type OpenFunc func(opts Options) (Context, error)

// autoOrder is the preference order used by the "auto" backend. The sim
// backend is never picked automatically.
var autoOrder = []string{"realsense", "v4l2"}

var (
	registryMu sync.RWMutex
	backends   = map[string]OpenFunc{}
)

// Register makes a backend available under name. Backends register from
// init functions guarded by build constraints.
func Register(name string, open OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := backends[name]; dup {
		panic("device: Register called twice for backend " + name)
	}
	backends[name] = open
}

// Backends lists the registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the named backend. "auto" tries hardware backends in
// preference order and returns the first one that sees a device; when none
// does, it returns the last context it opened so the caller still observes
// a zero device count.
func Open(name string, opts Options) (Context, error) {
	if name != "auto" {
		open, ok := lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown device backend %q (available: %v)", name, Backends())
		}
		return open(opts)
	}

	var last Context
	for _, candidate := range autoOrder {
		open, ok := lookup(candidate)
		if !ok {
			continue
		}
		ctx, err := open(opts)
		if err != nil {
			log.Printf("backend %s unavailable: %v", candidate, err)
			continue
		}
		n, err := ctx.DeviceCount()
		if err == nil && n > 0 {
			if last != nil {
				last.Close()
			}
			return ctx, nil
		}
		if last != nil {
			last.Close()
		}
		last = ctx
	}
	if last == nil {
		return nil, newError(NoDevice, "open", "auto", fmt.Errorf("no hardware backend compiled in (available: %v)", Backends()))
	}
	return last, nil
}

func lookup(name string) (OpenFunc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	open, ok := backends[name]
	return open, ok
}
