package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/junsooki/rscapture/internal/device"
	"github.com/junsooki/rscapture/internal/encoder"
)

func TestNamerIsZeroPaddedAndMonotonic(t *testing.T) {
	n := NewNamer("images")
	var names []string
	for i := 0; i < 12; i++ {
		names = append(names, n.Next())
	}
	if names[0] != filepath.Join("images", "0000000000.png") {
		t.Fatalf("first name = %q", names[0])
	}
	if names[11] != filepath.Join("images", "0000000011.png") {
		t.Fatalf("twelfth name = %q", names[11])
	}
	if !sort.StringsAreSorted(names) {
		t.Fatalf("names not in lexical order: %v", names)
	}
	if n.Count() != 12 {
		t.Fatalf("Count() = %d", n.Count())
	}
}

func TestBGRViewSwapsChannels(t *testing.T) {
	data := []byte{
		10, 20, 30, 40, 50, 60,
		70, 80, 90, 100, 110, 120,
	}
	img, err := NewBGRView(data, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := img.At(1, 0), (color.RGBA{R: 60, G: 50, B: 40, A: 255}); got != want {
		t.Fatalf("At(1,0) = %v, want %v", got, want)
	}
	if got := img.At(5, 5); got != (color.RGBA{}) {
		t.Fatalf("out of bounds At = %v", got)
	}

	// The view aliases the caller's memory.
	data[0] = 99
	if got := img.At(0, 0).(color.RGBA).B; got != 99 {
		t.Fatalf("view did not observe write, B = %d", got)
	}

	clone := img.Clone()
	data[0] = 1
	if got := clone.At(0, 0).(color.RGBA).B; got != 99 {
		t.Fatalf("clone changed with source, B = %d", got)
	}

	rgba := img.ToRGBA(nil)
	if got, want := rgba.RGBAAt(0, 1), (color.RGBA{R: 90, G: 80, B: 70, A: 255}); got != want {
		t.Fatalf("ToRGBA(0,1) = %v, want %v", got, want)
	}
	if again := img.ToRGBA(rgba); again != rgba {
		t.Fatal("ToRGBA did not reuse destination")
	}
}

func TestBGRViewRejectsShortFrame(t *testing.T) {
	if _, err := NewBGRView(make([]byte, 10), 2, 2); err == nil {
		t.Fatal("expected error")
	}
}

func startSim(t *testing.T, opts device.SimOptions) device.Device {
	t.Helper()
	dev, err := device.NewSim(opts).Device(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.EnableStream(device.ColorVGA); err != nil {
		t.Fatal(err)
	}
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	return dev
}

func TestLoopWritesFramesUntilDeviceFails(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	l := &Loop{
		Device: startSim(t, device.SimOptions{Devices: 1, Frames: 3}),
		Stream: device.ColorVGA,
		Namer:  NewNamer(dir),
		Sinks:  []Sink{NewFileSink(encoder.NewPNGEncoder(png.BestSpeed))},
		Out:    &out,
	}

	err := l.Run(context.Background())
	var de *device.Error
	if !errors.As(err, &de) || de.Op != "wait_for_frames" {
		t.Fatalf("Run err = %v, want wait_for_frames device error", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	want := []string{"0000000000.png", "0000000001.png", "0000000002.png"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("files = %v, want %v", got, want)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || lines[2] != filepath.Join(dir, "0000000002.png") {
		t.Fatalf("stdout lines = %q", lines)
	}

	f, err := os.Open(filepath.Join(dir, "0000000001.png"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 640 || cfg.Height != 480 || cfg.ColorModel != color.RGBAModel {
		t.Fatalf("png config = %dx%d %v", cfg.Width, cfg.Height, cfg.ColorModel)
	}
}

func TestLoopPNGIsTruecolor(t *testing.T) {
	dir := t.TempDir()
	l := &Loop{
		Device: startSim(t, device.SimOptions{Devices: 1, Frames: 1}),
		Stream: device.ColorVGA,
		Namer:  NewNamer(dir),
		Sinks:  []Sink{NewFileSink(encoder.NewPNGEncoder(png.BestSpeed))},
		Out:    &bytes.Buffer{},
	}
	_ = l.Run(context.Background())

	data, err := os.ReadFile(filepath.Join(dir, "0000000000.png"))
	if err != nil {
		t.Fatal(err)
	}
	// IHDR: bit depth at byte 24, color type at byte 25.
	if data[24] != 8 || data[25] != 2 {
		t.Fatalf("bit depth %d color type %d, want 8-bit truecolor", data[24], data[25])
	}
}

func TestLoopOverwritesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "0000000000.png")
	if err := os.WriteFile(stale, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := &Loop{
		Device: startSim(t, device.SimOptions{Devices: 1, Frames: 1}),
		Stream: device.ColorVGA,
		Namer:  NewNamer(dir),
		Sinks:  []Sink{NewFileSink(encoder.NewPNGEncoder(png.BestSpeed))},
		Out:    &bytes.Buffer{},
	}
	_ = l.Run(context.Background())

	f, err := os.Open(stale)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := png.DecodeConfig(f); err != nil {
		t.Fatalf("stale file not replaced: %v", err)
	}
}

func TestLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var seen int
	l := &Loop{
		Device: startSim(t, device.SimOptions{Devices: 1}),
		Stream: device.ColorVGA,
		Namer:  NewNamer(t.TempDir()),
		Sinks: []Sink{SinkFunc(func(string, *BGR) error {
			seen++
			if seen == 5 {
				cancel()
			}
			return nil
		})},
		Out: &bytes.Buffer{},
	}
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run err = %v, want nil", err)
	}
	if seen != 5 {
		t.Fatalf("sink saw %d frames, want 5", seen)
	}
}

func TestLoopCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	l := &Loop{
		Device: startSim(t, device.SimOptions{Devices: 1, Stall: true}),
		Stream: device.ColorVGA,
		Namer:  NewNamer(t.TempDir()),
		Out:    &bytes.Buffer{},
	}
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run err = %v, want nil", err)
	}
	if l.Namer.Count() != 0 {
		t.Fatalf("named %d frames", l.Namer.Count())
	}
}

func TestLoopReportsFrameTimeout(t *testing.T) {
	l := &Loop{
		Device:  startSim(t, device.SimOptions{Devices: 1, Stall: true}),
		Stream:  device.ColorVGA,
		Namer:   NewNamer(t.TempDir()),
		Out:     &bytes.Buffer{},
		Timeout: 10 * time.Millisecond,
	}
	if err := l.Run(context.Background()); !errors.Is(err, device.FrameTimeout) {
		t.Fatalf("Run err = %v, want FrameTimeout", err)
	}
}

func TestLoopSinkErrorStopsLoop(t *testing.T) {
	boom := errors.New("disk full")
	l := &Loop{
		Device: startSim(t, device.SimOptions{Devices: 1}),
		Stream: device.ColorVGA,
		Namer:  NewNamer(t.TempDir()),
		Sinks:  []Sink{SinkFunc(func(string, *BGR) error { return boom })},
		Out:    &bytes.Buffer{},
	}
	if err := l.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run err = %v, want %v", err, boom)
	}
}

type recordingSender struct {
	mu   sync.Mutex
	sent [][]byte
	done chan struct{}
}

func (s *recordingSender) SendFrame(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, data)
	if len(s.sent) == 1 {
		close(s.done)
	}
	return nil
}

func TestRelaySinkCopiesAndSends(t *testing.T) {
	sender := &recordingSender{done: make(chan struct{})}
	relay := NewRelaySink(2, encoder.NewJPEGEncoder(70), sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	data := make([]byte, 8*8*3)
	img, _ := NewBGRView(data, 8, 8)
	if err := relay.Consume("a", img); err != nil {
		t.Fatal(err)
	}
	// Overwriting the device buffer must not affect the queued copy.
	for i := range data {
		data[i] = 0xff
	}

	select {
	case <-sender.done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay never sent a frame")
	}

	sender.mu.Lock()
	first := sender.sent[0]
	sender.mu.Unlock()
	decoded, _, err := image.Decode(bytes.NewReader(first))
	if err != nil {
		t.Fatal(err)
	}
	if r, _, _, _ := decoded.At(0, 0).RGBA(); r>>8 > 0x20 {
		t.Fatalf("relay sent the overwritten buffer, r = %d", r>>8)
	}
}

func TestRelaySinkSkipsFrames(t *testing.T) {
	relay := NewRelaySink(3, encoder.NewJPEGEncoder(70), &recordingSender{done: make(chan struct{})})
	img, _ := NewBGRView(make([]byte, 4*4*3), 4, 4)
	for i := 0; i < 3; i++ {
		_ = relay.Consume("x", img)
	}
	if n := len(relay.frames); n != 1 {
		t.Fatalf("queued %d frames, want 1", n)
	}
}

func TestFrameImageAliasesDeviceMemory(t *testing.T) {
	data := make([]byte, 4*2*3)
	f := Frame{Width: 4, Height: 2, Data: data}
	img, err := f.Image()
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] = 200 // R of the last pixel
	if got := img.At(3, 1).(color.RGBA).R; got != 200 {
		t.Fatalf("R = %d, want the device byte", got)
	}
}

func TestFileSinkReusesConversionBuffer(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(encoder.NewPNGEncoder(png.BestSpeed))

	data := make([]byte, 8*8*3)
	data[0], data[1], data[2] = 10, 20, 30
	img, _ := NewBGRView(data, 8, 8)

	first := filepath.Join(dir, "a.png")
	if err := sink.Consume(first, img); err != nil {
		t.Fatal(err)
	}
	buf := sink.rgba
	if err := sink.Consume(filepath.Join(dir, "b.png"), img); err != nil {
		t.Fatal(err)
	}
	if sink.rgba != buf {
		t.Fatal("conversion buffer reallocated for a same-sized frame")
	}

	raw, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	if raw[25] != 2 {
		t.Fatalf("color type %d, want truecolor", raw[25])
	}
	decoded, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := decoded.At(0, 0).RGBA()
	if r>>8 != 30 || g>>8 != 20 || b>>8 != 10 {
		t.Fatalf("pixel = %d,%d,%d, want 30,20,10", r>>8, g>>8, b>>8)
	}
}
