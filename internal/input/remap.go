package input

// Transform maps client view coordinates into server screen space using
// the current render geometry.
type Transform struct {
	ViewWidth, ViewHeight     int
	ServerWidth, ServerHeight int
}

// ToServer rescales a view coordinate to server space, clamping to the
// capture bounds.
func (t Transform) ToServer(x, y int) (int16, int16) {
	if t.ViewWidth <= 0 || t.ViewHeight <= 0 || t.ServerWidth <= 0 || t.ServerHeight <= 0 {
		return clamp16(x), clamp16(y)
	}
	sx := x * t.ServerWidth / t.ViewWidth
	sy := y * t.ServerHeight / t.ViewHeight
	if sx < 0 {
		sx = 0
	} else if sx >= t.ServerWidth {
		sx = t.ServerWidth - 1
	}
	if sy < 0 {
		sy = 0
	} else if sy >= t.ServerHeight {
		sy = t.ServerHeight - 1
	}
	return clamp16(sx), clamp16(sy)
}

func clamp16(v int) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
