// Package kalman implements the constant-velocity box filter shared by the
// server tracker and the client predictor (§4.4): an 8-state vector
// [x, y, w, h, vx, vy, vw, vh] with a 4-dim box measurement. The linear
// algebra is expressed with gonum/mat rather than hand-rolled fixed arrays.
package kalman

import (
	"github.com/kstaniek/zl-offload/internal/model"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultPositionProcessNoise is q_pos (§4.4).
	DefaultPositionProcessNoise = 1e-2
	// DefaultVelocityProcessNoise is q_vel (§4.4).
	DefaultVelocityProcessNoise = 5e-2
	// DefaultMeasurementNoise is r_meas (§4.4).
	DefaultMeasurementNoise = 1e-1

	// MinDeltaSeconds and MaxDeltaSeconds bound the Δt fed into the
	// transition matrix (§4.4's "clamped to ≥ 0.001, ≤ 1.0").
	MinDeltaSeconds = 0.001
	MaxDeltaSeconds = 1.0
)

// Filter is an 8-state constant-velocity Kalman filter over a centre-format
// box. It is not safe for concurrent use; callers serialize access (the
// tracker is single-writer, §5).
type Filter struct {
	x *mat.VecDense // 8x1 state
	p *mat.Dense    // 8x8 posterior covariance
	q *mat.Dense    // 8x8 process noise (diagonal)
	r *mat.Dense    // 4x4 measurement noise (diagonal)
	h *mat.Dense    // 4x8 measurement matrix
}

// NewFilter initializes a filter at the given box with zero velocity and an
// identity posterior covariance, using the package's default process noise
// (§4.4).
func NewFilter(box model.BoundingBox) *Filter {
	return NewFilterWithNoise(box, DefaultPositionProcessNoise, DefaultVelocityProcessNoise, DefaultMeasurementNoise)
}

// NewFilterWithNoise is NewFilter with caller-supplied process/measurement
// noise, letting callers tune tracking responsiveness (the client predictor
// exposes this as prediction.position_uncertainty/velocity_uncertainty,
// §6) instead of hard-coding the package defaults.
func NewFilterWithNoise(box model.BoundingBox, posNoise, velNoise, measNoise float64) *Filter {
	f := &Filter{
		x: mat.NewVecDense(8, []float64{float64(box.X), float64(box.Y), float64(box.W), float64(box.H), 0, 0, 0, 0}),
		p: identity(8),
		q: diag([]float64{
			posNoise, posNoise, posNoise, posNoise,
			velNoise, velNoise, velNoise, velNoise,
		}),
		r: diag([]float64{measNoise, measNoise, measNoise, measNoise}),
		h: measurementMatrix(),
	}
	return f
}

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

func diag(v []float64) *mat.Dense {
	d := mat.NewDense(len(v), len(v), nil)
	for i, x := range v {
		d.Set(i, i, x)
	}
	return d
}

func measurementMatrix() *mat.Dense {
	h := mat.NewDense(4, 8, nil)
	for i := 0; i < 4; i++ {
		h.Set(i, i, 1)
	}
	return h
}

func transitionMatrix(dt float64) *mat.Dense {
	f := identity(8)
	f.Set(0, 4, dt)
	f.Set(1, 5, dt)
	f.Set(2, 6, dt)
	f.Set(3, 7, dt)
	return f
}

func clampDelta(dt float64) float64 {
	if dt < MinDeltaSeconds {
		return MinDeltaSeconds
	}
	if dt > MaxDeltaSeconds {
		return MaxDeltaSeconds
	}
	return dt
}

// Predict advances the filter by dtSeconds (clamped) and returns the
// predicted box, clamped to the unit square (§4.4 "predict-only step").
func (f *Filter) Predict(dtSeconds float64) model.BoundingBox {
	dt := clampDelta(dtSeconds)
	ft := transitionMatrix(dt)

	var xNew mat.VecDense
	xNew.MulVec(ft, f.x)
	f.x = &xNew

	var ftP, ftPFt, pNew mat.Dense
	ftP.Mul(ft, f.p)
	ftPFt.Mul(&ftP, ft.T())
	pNew.Add(&ftPFt, f.q)
	f.p = &pNew

	return f.Box().Clamp()
}

// Correct runs the measurement-update half of the filter against meas,
// after the caller has already advanced the state with Predict (§4.4
// "update step": predict then correct).
func (f *Filter) Correct(meas model.BoundingBox) {
	z := mat.NewVecDense(4, []float64{float64(meas.X), float64(meas.Y), float64(meas.W), float64(meas.H)})

	var hx mat.VecDense
	hx.MulVec(f.h, f.x)
	var y mat.VecDense
	y.SubVec(z, &hx)

	var hp, s mat.Dense
	hp.Mul(f.h, f.p)
	var hpht mat.Dense
	hpht.Mul(&hp, f.h.T())
	s.Add(&hpht, f.r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		// Singular innovation covariance: skip the correction rather than
		// propagate NaNs through the state.
		return
	}

	var pht mat.Dense
	pht.Mul(f.p, f.h.T())
	var k mat.Dense
	k.Mul(&pht, &sInv)

	var ky mat.VecDense
	ky.MulVec(&k, &y)
	var xNew mat.VecDense
	xNew.AddVec(f.x, &ky)
	f.x = &xNew

	var kh mat.Dense
	kh.Mul(&k, f.h)
	ikh := identity(8)
	ikh.Sub(ikh, &kh)
	var pNew mat.Dense
	pNew.Mul(ikh, f.p)
	f.p = &pNew
}

// Box returns the current position/size state as a box (not clamped).
func (f *Filter) Box() model.BoundingBox {
	return model.BoundingBox{
		X: float32(f.x.AtVec(0)),
		Y: float32(f.x.AtVec(1)),
		W: float32(f.x.AtVec(2)),
		H: float32(f.x.AtVec(3)),
	}
}

// Velocity returns the velocity component of the state vector
// [vx, vy, vw, vh].
func (f *Filter) Velocity() (vx, vy, vw, vh float64) {
	return f.x.AtVec(4), f.x.AtVec(5), f.x.AtVec(6), f.x.AtVec(7)
}

// VelocityMagnitude returns the Euclidean norm of the velocity block, used
// by the convergence test in §8.
func (f *Filter) VelocityMagnitude() float64 {
	vx, vy, vw, vh := f.Velocity()
	return mat.Norm(mat.NewVecDense(4, []float64{vx, vy, vw, vh}), 2)
}
