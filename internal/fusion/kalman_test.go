package fusion

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mec-fusion/internal/trackbatch"
)

func TestPredictAdvancesConstantVelocityPosition(t *testing.T) {
	k := newKalmanState()
	k.initFromMeasurement(trackbatch.Measurement{
		Position:       trackbatch.SensorPosition{X: 0, Y: 0},
		VelocityScalar: 10,
		HeadingDeg:     0,
		Timestamp:      time.Now(),
	})

	k.Predict(1.0)
	require.InDelta(t, 10.0, k.X.AtVec(0), 1e-9)
	require.InDelta(t, 0.0, k.X.AtVec(1), 1e-9)
}

func TestPredictOnUninitializedFilterIsNoop(t *testing.T) {
	k := newKalmanState()
	k.Predict(1.0)
	require.False(t, k.Initialized)
	require.Equal(t, 0.0, k.X.AtVec(0))
}

// TestConvergesUnderRepeatedNoisyUpdates checks that a track fed a
// sequence of measurements scattered around a true constant-velocity
// trajectory converges to within a small tolerance of the truth, rather
// than diverging or tracking the noise.
func TestConvergesUnderRepeatedNoisyUpdates(t *testing.T) {
	start := time.Now()
	k := newKalmanState()
	k.initFromMeasurement(trackbatch.Measurement{
		Position:       trackbatch.SensorPosition{X: 0.2, Y: -0.1},
		VelocityScalar: 5,
		HeadingDeg:     0,
		Timestamp:      start,
	})

	truth := [2]float64{0, 0}
	const dt = 0.1
	noise := []float64{0.15, -0.12, 0.08, -0.2, 0.05, -0.05, 0.1, -0.1, 0.03, -0.03}

	ts := start
	for i, n := range noise {
		ts = ts.Add(time.Duration(float64(time.Second) * dt))
		k.Predict(dt)
		truth[0] += 5 * dt

		z := [2]float64{truth[0] + n, truth[1] + n*0.5}
		err := k.Update(z, ts)
		require.NoError(t, err, "update %d", i)
	}

	require.InDelta(t, truth[0], k.X.AtVec(0), 0.5)
	require.InDelta(t, truth[1], k.X.AtVec(1), 0.5)
}

func TestVelocityAndHeadingDerivedFromState(t *testing.T) {
	k := newKalmanState()
	k.X.SetVec(2, 3)
	k.X.SetVec(3, 4)
	require.InDelta(t, 5.0, k.Velocity(), 1e-9)
	require.InDelta(t, math.Atan2(4, 3)*180/math.Pi, k.HeadingDeg(), 1e-9)
}
