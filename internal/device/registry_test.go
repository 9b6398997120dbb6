package device

import (
	"errors"
	"testing"
)

var (
	emptyCtx   = NewSim(SimOptions{Devices: 0})
	presentCtx = NewSim(SimOptions{Devices: 1})
)

func init() {
	Register("test-broken", func(Options) (Context, error) { return nil, errors.New("driver missing") })
	Register("test-empty", func(Options) (Context, error) { return emptyCtx, nil })
	Register("test-present", func(Options) (Context, error) { return presentCtx, nil })
}

func TestOpenAuto(t *testing.T) {
	tests := []struct {
		name  string
		order []string
		want  Context
		kind  ErrorKind
	}{
		{"first with a device wins", []string{"test-empty", "test-present"}, presentCtx, 0},
		{"open errors are skipped", []string{"test-broken", "test-present"}, presentCtx, 0},
		{"unregistered names are skipped", []string{"test-nope", "test-present"}, presentCtx, 0},
		{"zero devices returns last context", []string{"test-broken", "test-empty"}, emptyCtx, 0},
		{"nothing opens", []string{"test-broken", "test-nope"}, nil, NoDevice},
		{"nothing compiled in", nil, nil, NoDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saved := autoOrder
			autoOrder = tt.order
			t.Cleanup(func() { autoOrder = saved })

			got, err := Open("auto", Options{})
			if tt.want == nil {
				if !errors.Is(err, tt.kind) {
					t.Fatalf("err = %v, want %v", err, tt.kind)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("Open returned %p, want %p", got, tt.want)
			}
		})
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Register("test-present", nil)
}
