package device

import "fmt"

// yuyvToBGR converts packed YUYV 4:2:2 into packed BGR using BT.601
// integer coefficients. dst must hold 3 bytes for every 2 bytes of src.
func yuyvToBGR(dst, src []byte) error {
	if len(src)%4 != 0 {
		return fmt.Errorf("yuyv frame length %d is not a multiple of 4", len(src))
	}
	if len(dst) < len(src)/2*3 {
		return fmt.Errorf("bgr buffer too small: %d < %d", len(dst), len(src)/2*3)
	}
	j := 0
	for i := 0; i < len(src); i += 4 {
		y0 := int(src[i])
		u := int(src[i+1]) - 128
		y1 := int(src[i+2])
		v := int(src[i+3]) - 128

		j = putBGR(dst, j, y0, u, v)
		j = putBGR(dst, j, y1, u, v)
	}
	return nil
}

func putBGR(dst []byte, j, y, u, v int) int {
	c := (y - 16) * 298
	dst[j] = clamp8((c + 516*u + 128) >> 8)
	dst[j+1] = clamp8((c - 100*u - 208*v + 128) >> 8)
	dst[j+2] = clamp8((c + 409*v + 128) >> 8)
	return j + 3
}

func clamp8(x int) uint8 {
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return uint8(x)
}
