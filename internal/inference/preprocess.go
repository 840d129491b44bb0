package inference

// Workspace holds a per-worker scratch buffer so preprocessing never
// reallocates on the hot path (§4.3: "a per-worker scratch buffer avoids
// reallocation").
type Workspace struct {
	scratch []float32
	width   int
	height  int
}

// NewWorkspace allocates a scratch buffer sized for dstW x dstH, 3-plane
// CHW output.
func NewWorkspace(dstW, dstH int) *Workspace {
	return &Workspace{scratch: make([]float32, 3*dstW*dstH), width: dstW, height: dstH}
}

// Preprocess resizes an RGB24 payload (srcW x srcH x 3 bytes) to the
// workspace's target dimensions via bilinear interpolation, then packs the
// result into planar CHW with per-plane normalization pixel/255 (§4.3).
// The returned Tensor aliases the workspace's scratch buffer and is only
// valid until the next Preprocess call on the same Workspace.
func (w *Workspace) Preprocess(payload []byte, srcW, srcH int) Tensor {
	dstW, dstH := w.width, w.height
	planeSize := dstW * dstH
	if srcW <= 0 || srcH <= 0 || len(payload) < srcW*srcH*3 {
		for i := range w.scratch {
			w.scratch[i] = 0
		}
		return Tensor{Data: w.scratch, Shape: []int{1, 3, dstH, dstW}}
	}

	xScale := float64(srcW) / float64(dstW)
	yScale := float64(srcH) / float64(dstH)

	for dy := 0; dy < dstH; dy++ {
		sy := (float64(dy) + 0.5) * yScale
		y0 := clampInt(int(sy), 0, srcH-1)
		y1 := clampInt(y0+1, 0, srcH-1)
		fy := sy - float64(y0)

		for dx := 0; dx < dstW; dx++ {
			sx := (float64(dx) + 0.5) * xScale
			x0 := clampInt(int(sx), 0, srcW-1)
			x1 := clampInt(x0+1, 0, srcW-1)
			fx := sx - float64(x0)

			for c := 0; c < 3; c++ {
				p00 := float64(payload[(y0*srcW+x0)*3+c])
				p01 := float64(payload[(y0*srcW+x1)*3+c])
				p10 := float64(payload[(y1*srcW+x0)*3+c])
				p11 := float64(payload[(y1*srcW+x1)*3+c])
				top := p00 + (p01-p00)*fx
				bot := p10 + (p11-p10)*fx
				v := top + (bot-top)*fy
				w.scratch[c*planeSize+dy*dstW+dx] = float32(v / 255.0)
			}
		}
	}
	return Tensor{Data: w.scratch, Shape: []int{1, 3, dstH, dstW}}
}

// PreprocessZeroCopy builds the same CHW tensor directly from an
// already-decoded, process-accessible RGB buffer without an intermediate
// copy step beyond the resize itself (§4.3 "zero-copy variant"). It is
// identical to Preprocess except for the doc contract: callers promise
// payload will not be mutated concurrently.
func (w *Workspace) PreprocessZeroCopy(payload []byte, srcW, srcH int) Tensor {
	return w.Preprocess(payload, srcW, srcH)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
