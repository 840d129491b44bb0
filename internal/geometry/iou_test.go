package geometry

import (
	"math"
	"testing"

	"github.com/kstaniek/zl-offload/internal/model"
)

func box(x, y, w, h float32) model.BoundingBox { return model.BoundingBox{X: x, Y: y, W: w, H: h} }

func TestIoU_Identical(t *testing.T) {
	a := box(0.5, 0.5, 0.2, 0.2)
	got := IoU(a, a)
	if math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("IoU(a,a) = %v, want 1.0", got)
	}
}

func TestIoU_Disjoint(t *testing.T) {
	a := box(0.1, 0.1, 0.1, 0.1)
	b := box(0.9, 0.9, 0.1, 0.1)
	if got := IoU(a, b); got != 0 {
		t.Fatalf("IoU(disjoint) = %v, want 0", got)
	}
}

func TestIoU_PartialOverlap(t *testing.T) {
	a := box(0.5, 0.5, 0.5, 0.5)   // [0.25,0.75]x[0.25,0.75]
	b := box(0.625, 0.5, 0.5, 0.5) // [0.375,0.875]x[0.25,0.75]
	// intersection: [0.375,0.75]x[0.25,0.75] = 0.375*0.5 = 0.1875
	// union: 0.25+0.25-0.1875 = 0.3125
	want := 0.1875 / 0.3125 // 0.6
	if got := IoU(a, b); math.Abs(got-want) > 1e-9 {
		t.Fatalf("IoU = %v, want %v", got, want)
	}
}
