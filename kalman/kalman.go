// Package kalman implements the per-tag constant-velocity 2-D position
// smoother: a scalar-gain Kalman filter over (x, y), with velocity derived
// from the corrected-position delta rather than carried as filter state.
package kalman

import "math"

// Filter smooths one tag's raw fixes into a position and velocity estimate.
// The zero value is not ready for use; construct with New.
type Filter struct {
	ProcessNoise     float64
	MeasurementNoise float64

	X, Y   float64
	VX, VY float64

	initialized bool
}

// New returns a Filter with the given process and measurement noise.
func New(processNoise, measurementNoise float64) *Filter {
	return &Filter{ProcessNoise: processNoise, MeasurementNoise: measurementNoise}
}

// Update folds in one measurement (mx, my) taken dt seconds after the
// previous update and returns the corrected (x, y). The caller is
// responsible for clamping dt to a sane range before calling.
func (f *Filter) Update(mx, my, dt float64) (x, y float64) {
	if !f.initialized {
		f.X, f.Y = mx, my
		f.VX, f.VY = 0, 0
		f.initialized = true
		return f.X, f.Y
	}

	prevX, prevY := f.X, f.Y

	// Predict.
	f.X += f.VX * dt
	f.Y += f.VY * dt

	// Correct with a scalar gain — the constant-velocity model's steady
	// state gain rather than a full covariance propagation.
	k := f.MeasurementNoise / (f.MeasurementNoise + f.ProcessNoise)
	f.X += k * (mx - f.X)
	f.Y += k * (my - f.Y)

	if dt > 0 {
		f.VX = (f.X - prevX) / dt
		f.VY = (f.Y - prevY) / dt
	}

	return f.X, f.Y
}

// Speed returns the current speed magnitude derived from the filter's
// velocity estimate.
func (f *Filter) Speed() float64 {
	return math.Hypot(f.VX, f.VY)
}
