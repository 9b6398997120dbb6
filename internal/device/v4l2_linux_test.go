package device

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blackjack/webcam"
)

const fourccZ16 webcam.PixelFormat = 0x2036315a

func TestColorNodesSkipsDepthAndMetadata(t *testing.T) {
	dir := t.TempDir()
	// Node layout of one D435: depth, infrared, color, metadata.
	offers := map[string]map[webcam.PixelFormat]string{
		"video0":  {fourccZ16: "Z16"},
		"video2":  {0x20203859: "GREY"},
		"video4":  {fourccYUYV: "YUYV"},
		"video10": {fourccBGR3: "BGR3", fourccYUYV: "YUYV"},
	}
	for _, name := range []string{"video0", "video2", "video4", "video5", "video10", "vbi0"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	list := func(path string) (map[webcam.PixelFormat]string, error) {
		f, ok := offers[filepath.Base(path)]
		if !ok {
			return nil, errors.New("not a capture device")
		}
		return f, nil
	}

	nodes, err := colorNodes(dir, list)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, n := range nodes {
		got = append(got, filepath.Base(n))
	}
	if strings.Join(got, ",") != "video4,video10" {
		t.Fatalf("nodes = %v, want [video4 video10]", got)
	}

	ctx := &v4l2Context{paths: nodes}
	if n, _ := ctx.DeviceCount(); n != 2 {
		t.Fatalf("DeviceCount = %d, want 2", n)
	}
}

func TestColorNodesEmptyDir(t *testing.T) {
	nodes, err := colorNodes(t.TempDir(), func(string) (map[webcam.PixelFormat]string, error) {
		t.Fatal("formats listed without nodes")
		return nil, nil
	})
	if err != nil || len(nodes) != 0 {
		t.Fatalf("nodes = %v, err = %v", nodes, err)
	}
}

func TestPinnedNodeSkipsEnumeration(t *testing.T) {
	ctx, err := openV4L2(Options{V4L2Path: "/dev/video4"})
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := ctx.DeviceCount(); n != 1 {
		t.Fatalf("DeviceCount = %d", n)
	}
}
