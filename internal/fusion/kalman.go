package fusion

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/mec-fusion/internal/trackbatch"
)

// ErrSingularInnovation is returned by KalmanState.Update when the
// innovation covariance S is not invertible. The caller leaves the
// track's state untouched and keeps the track alive rather than abort
// the update.
var ErrSingularInnovation = errors.New("fusion: singular innovation covariance")

// observationNoise is σ_r², the diagonal observation variance used both
// in the update step's R matrix and in the gating distance.
const observationNoise = 0.1

// processNoiseRate is the per-second process noise coefficient; Q(dt) =
// processNoiseRate*dt added to the diagonal of the predicted covariance.
const processNoiseRate = 0.01

// KalmanState is the 6-dimensional constant-acceleration filter state
// carried by a FusedTrack: x = [x_pos, y_pos, vx, vy, ax, ay].
type KalmanState struct {
	X           *mat.VecDense
	P           *mat.Dense
	LastUpdate  time.Time
	Initialized bool
}

// newKalmanState allocates a zeroed, uninitialized 6-state filter.
func newKalmanState() *KalmanState {
	return &KalmanState{
		X: mat.NewVecDense(6, nil),
		P: mat.NewDense(6, 6, nil),
	}
}

// initFromMeasurement seeds the filter from a birth measurement:
// velocity is decomposed from the measurement's scalar speed and
// heading, acceleration starts at zero, and the covariance is
// initialized to a fixed diagonal reflecting modest position confidence
// and higher uncertainty in velocity and acceleration.
func (k *KalmanState) initFromMeasurement(m trackbatch.Measurement) {
	phi := m.HeadingDeg * math.Pi / 180.0
	k.X.SetVec(0, m.Position.X)
	k.X.SetVec(1, m.Position.Y)
	k.X.SetVec(2, m.VelocityScalar*math.Cos(phi))
	k.X.SetVec(3, m.VelocityScalar*math.Sin(phi))
	k.X.SetVec(4, 0)
	k.X.SetVec(5, 0)

	diag := [6]float64{0.5, 0.5, 2.0, 2.0, 5.0, 5.0}
	for i, v := range diag {
		k.P.Set(i, i, v)
	}

	k.LastUpdate = m.Timestamp
	k.Initialized = true
}

// transitionMatrix builds F(dt), the constant-acceleration state
// transition: pos' = pos + v*dt + 0.5*a*dt^2, v' = v + a*dt, a' = a.
func transitionMatrix(dt float64) *mat.Dense {
	f := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		f.Set(i, i, 1)
	}
	f.Set(0, 2, dt)
	f.Set(1, 3, dt)
	f.Set(0, 4, 0.5*dt*dt)
	f.Set(1, 5, 0.5*dt*dt)
	f.Set(2, 4, dt)
	f.Set(3, 5, dt)
	return f
}

// observationMatrix is H, the fixed 2x6 matrix that extracts position
// from the 6-dimensional state.
func observationMatrix() *mat.Dense {
	h := mat.NewDense(2, 6, nil)
	h.Set(0, 0, 1)
	h.Set(1, 1, 1)
	return h
}

// Predict advances the filter by dt seconds without a measurement:
// x <- F*x, P <- F*P*F^T + Q. last_update is deliberately left
// unchanged; only Update advances it, so a track left uncorrected
// accumulates dt relative to its last real measurement, not the last
// tick (matches the source fusion thread's behavior).
func (k *KalmanState) Predict(dt float64) {
	if !k.Initialized || dt <= 0 {
		return
	}
	f := transitionMatrix(dt)

	var nextX mat.VecDense
	nextX.MulVec(f, k.X)
	k.X = &nextX

	var fp mat.Dense
	fp.Mul(f, k.P)
	var fpft mat.Dense
	fpft.Mul(&fp, f.T())

	q := processNoiseRate * dt
	for i := 0; i < 6; i++ {
		fpft.Set(i, i, fpft.At(i, i)+q)
	}
	k.P = &fpft
}

// Update applies the Kalman correction step for a position measurement z
// taken at timestamp. It returns ErrSingularInnovation (and leaves the
// filter untouched) if the innovation covariance S is not invertible.
func (k *KalmanState) Update(z [2]float64, timestamp time.Time) error {
	h := observationMatrix()

	var hx mat.VecDense
	hx.MulVec(h, k.X)
	y := [2]float64{z[0] - hx.AtVec(0), z[1] - hx.AtVec(1)}

	var hp mat.Dense
	hp.Mul(h, k.P)
	var s mat.Dense
	s.Mul(&hp, h.T())
	s.Set(0, 0, s.At(0, 0)+observationNoise)
	s.Set(1, 1, s.At(1, 1)+observationNoise)

	s00, s01 := s.At(0, 0), s.At(0, 1)
	s10, s11 := s.At(1, 0), s.At(1, 1)
	det := s00*s11 - s01*s10
	if math.Abs(det) < 1e-9 {
		return ErrSingularInnovation
	}
	invDet := 1.0 / det
	sInv := mat.NewDense(2, 2, []float64{
		s11 * invDet, -s01 * invDet,
		-s10 * invDet, s00 * invDet,
	})

	var htSinv mat.Dense
	htSinv.Mul(h.T(), sInv)
	var kGain mat.Dense
	kGain.Mul(k.P, &htSinv)

	yVec := mat.NewVecDense(2, y[:])
	var ky mat.VecDense
	ky.MulVec(&kGain, yVec)
	var newX mat.VecDense
	newX.AddVec(k.X, &ky)
	k.X = &newX

	var kh mat.Dense
	kh.Mul(&kGain, h)
	var iMinusKH mat.Dense
	iMinusKH.Sub(identity6(), &kh)
	var newP mat.Dense
	newP.Mul(&iMinusKH, k.P)
	k.P = &newP

	k.LastUpdate = timestamp
	return nil
}

func identity6() *mat.Dense {
	id := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		id.Set(i, i, 1)
	}
	return id
}

// Velocity returns the filter's scalar speed, sqrt(vx^2+vy^2).
func (k *KalmanState) Velocity() float64 {
	vx, vy := k.X.AtVec(2), k.X.AtVec(3)
	return math.Sqrt(vx*vx + vy*vy)
}

// HeadingDeg returns atan2(vy, vx) in degrees.
func (k *KalmanState) HeadingDeg() float64 {
	vx, vy := k.X.AtVec(2), k.X.AtVec(3)
	return math.Atan2(vy, vx) * 180.0 / math.Pi
}
