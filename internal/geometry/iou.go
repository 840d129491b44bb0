// Package geometry implements the axis-aligned box math shared by the
// tracker's data association, the fuser's similarity scoring, and
// non-maximum suppression: intersection-over-union on centre-format boxes.
package geometry

import "github.com/kstaniek/zl-offload/internal/model"

// IoU computes intersection-over-union for two centre-format boxes.
func IoU(a, b model.BoundingBox) float64 {
	ax, ay, aw, ah := float64(a.X), float64(a.Y), float64(a.W), float64(a.H)
	bx, by, bw, bh := float64(b.X), float64(b.Y), float64(b.W), float64(b.H)
	aLeft, aRight := ax-aw/2, ax+aw/2
	aTop, aBottom := ay-ah/2, ay+ah/2
	bLeft, bRight := bx-bw/2, bx+bw/2
	bTop, bBottom := by-bh/2, by+bh/2

	ix := min64(aRight, bRight) - max64(aLeft, bLeft)
	if ix < 0 {
		ix = 0
	}
	iy := min64(aBottom, bBottom) - max64(aTop, bTop)
	if iy < 0 {
		iy = 0
	}
	inter := ix * iy
	union := aw*ah + bw*bh - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
