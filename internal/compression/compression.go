// Package compression implements the client's frame-encoding settings of §6
// (compression.{quality, keyframe_interval, use_difference_encoding,
// use_roi_encoding, roi_padding}), grounded on original_source's
// src/client/screen_capture.cpp: keyframe cadence, a sampled-grid frame
// difference region, and region-of-interest cropping. The core transport
// and inference path never parse this payload (spec: "the core neither
// assumes nor parses compression"); this package only shapes what the
// client puts on the wire before FRAME_DATA is sent.
package compression

import (
	"github.com/kstaniek/zl-offload/internal/capture"
)

// Config mirrors §6's compression.* keys.
type Config struct {
	Quality               int // 1-100; lower values widen the subsample stride
	KeyframeInterval      int
	UseDifferenceEncoding bool
	UseROIEncoding        bool
	ROIPadding            int
}

// DefaultConfig mirrors original_source's CompressionSettings defaults.
func DefaultConfig() Config {
	return Config{
		Quality:               75,
		KeyframeInterval:      30,
		UseDifferenceEncoding: false,
		UseROIEncoding:        false,
		ROIPadding:            16,
	}
}

// sampleStep is the grid-sampling stride used for both difference
// detection and the diff threshold, matching screen_capture.cpp's
// sample_step=4 / threshold=10.
const (
	sampleStep    = 4
	diffThreshold = 10
	regionAlign   = 8
)

// Region is a rectangular sub-area of a captured frame.
type Region struct {
	X, Y, W, H int
	Active     bool
}

// Encoded is the payload placed on the wire, with the dimensions that
// actually describe it (possibly smaller than the source capture after
// ROI/diff cropping or quality subsampling).
type Encoded struct {
	Width, Height int
	RGB           []byte
	Keyframe      bool
	Empty         bool // true when diff encoding found no change to send
}

// Encoder holds the most recent keyframe, which difference encoding
// compares each later frame against; it is not safe for concurrent use (one per client connection,
// matching the render driver's single-writer use, §5).
type Encoder struct {
	cfg Config

	frameCount  uint64
	hasPrev     bool
	prev        capture.Frame
	externalROI Region // last externally supplied region of interest
}

// NewEncoder constructs an Encoder for cfg.
func NewEncoder(cfg Config) *Encoder {
	return &Encoder{cfg: cfg}
}

// SetROI records the region of interest a caller (e.g. the aim-assist
// target selector) wants preserved at full detail; only consulted when
// UseROIEncoding is set.
func (e *Encoder) SetROI(r Region) { e.externalROI = r }

// Encode applies the configured encoding strategy to frame and returns the
// wire-ready payload (screen_capture.cpp's captureFrame body).
func (e *Encoder) Encode(frame capture.Frame) Encoded {
	isKeyframe := !e.hasPrev || e.cfg.KeyframeInterval <= 0 || e.frameCount%uint64(e.cfg.KeyframeInterval) == 0
	e.frameCount++

	var out Encoded
	switch {
	case e.cfg.UseROIEncoding && e.externalROI.Active:
		out = encodeRegion(frame, e.externalROI)
	case e.cfg.UseDifferenceEncoding && e.hasPrev:
		region := calculateFrameDifference(frame, e.prev, e.cfg.ROIPadding)
		if region.Active {
			out = encodeRegion(frame, region)
		} else {
			out = Encoded{Empty: true}
		}
	default:
		out = subsample(frame, e.cfg.Quality)
	}
	out.Keyframe = isKeyframe

	if isKeyframe || !e.hasPrev {
		e.prev = frame
		e.hasPrev = true
	}
	return out
}

// encodeRegion crops frame to r and returns it as a standalone RGB24 image;
// the receiver treats Encoded.Width/Height as the frame's true dimensions
// (§3 FrameData.payload "opaque to the core pipeline").
func encodeRegion(frame capture.Frame, r Region) Encoded {
	out := make([]byte, r.W*r.H*3)
	for y := 0; y < r.H; y++ {
		srcOff := ((r.Y+y)*frame.Width + r.X) * 3
		dstOff := y * r.W * 3
		copy(out[dstOff:dstOff+r.W*3], frame.RGB[srcOff:srcOff+r.W*3])
	}
	return Encoded{Width: r.W, Height: r.H, RGB: out}
}

// calculateFrameDifference grid-samples cur against prev and returns the
// padded bounding region of pixels that changed beyond diffThreshold, or an
// inactive Region if nothing changed or the frames aren't comparable.
func calculateFrameDifference(cur, prev capture.Frame, padding int) Region {
	if cur.Width != prev.Width || cur.Height != prev.Height || len(cur.RGB) != len(prev.RGB) {
		return Region{}
	}
	minX, minY := cur.Width, cur.Height
	maxX, maxY := 0, 0
	found := false

	for y := 0; y < cur.Height; y += sampleStep {
		for x := 0; x < cur.Width; x += sampleStep {
			idx := (y*cur.Width + x) * 3
			if idx+2 >= len(cur.RGB) {
				continue
			}
			if absDiff(cur.RGB[idx], prev.RGB[idx]) > diffThreshold ||
				absDiff(cur.RGB[idx+1], prev.RGB[idx+1]) > diffThreshold ||
				absDiff(cur.RGB[idx+2], prev.RGB[idx+2]) > diffThreshold {
				found = true
				if x < minX {
					minX = x
				}
				if y < minY {
					minY = y
				}
				if x > maxX {
					maxX = x
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}
	if !found {
		return Region{}
	}

	minX = maxInt(0, minX-padding)
	minY = maxInt(0, minY-padding)
	maxX = minInt(cur.Width-1, maxX+padding)
	maxY = minInt(cur.Height-1, maxY+padding)

	r := Region{X: minX, Y: minY, W: maxX - minX + 1, H: maxY - minY + 1, Active: true}
	return alignRegion(r, cur.Width, cur.Height, regionAlign)
}

// alignRegion rounds r's extent up to a multiple of align, clamped inside
// the frame, matching adjustRegionForAlignment's block-codec friendliness.
func alignRegion(r Region, frameW, frameH, align int) Region {
	r.W = ((r.W + align - 1) / align) * align
	r.H = ((r.H + align - 1) / align) * align
	if r.X+r.W > frameW {
		r.W = frameW - r.X
	}
	if r.Y+r.H > frameH {
		r.H = frameH - r.Y
	}
	return r
}

// subsample reduces resolution by a stride derived from quality (1-100):
// quality=100 keeps every pixel, lower values widen the stride, trading
// fidelity for payload size the way JPEG's quality knob would.
func subsample(frame capture.Frame, quality int) Encoded {
	stride := qualityStride(quality)
	if stride <= 1 {
		out := make([]byte, len(frame.RGB))
		copy(out, frame.RGB)
		return Encoded{Width: frame.Width, Height: frame.Height, RGB: out}
	}
	dstW := (frame.Width + stride - 1) / stride
	dstH := (frame.Height + stride - 1) / stride
	out := make([]byte, 0, dstW*dstH*3)
	for y := 0; y < frame.Height; y += stride {
		for x := 0; x < frame.Width; x += stride {
			idx := (y*frame.Width + x) * 3
			if idx+2 >= len(frame.RGB) {
				out = append(out, 0, 0, 0)
				continue
			}
			out = append(out, frame.RGB[idx], frame.RGB[idx+1], frame.RGB[idx+2])
		}
	}
	return Encoded{Width: dstW, Height: dstH, RGB: out}
}

func qualityStride(quality int) int {
	if quality <= 0 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	stride := 100 / quality
	if stride < 1 {
		stride = 1
	}
	return stride
}

func absDiff(a, b byte) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
