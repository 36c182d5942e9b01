package fusion_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mec-fusion/internal/fusion"
	"github.com/banshee-data/mec-fusion/internal/fusionconfig"
	"github.com/banshee-data/mec-fusion/internal/trackbatch"
)

func measurementAt(x, y, vel, heading, confidence float64, sensorID int, ts time.Time) trackbatch.Measurement {
	return trackbatch.Measurement{
		Type:           trackbatch.TargetVehicle,
		Position:       trackbatch.SensorPosition{X: x, Y: y},
		VelocityScalar: vel,
		HeadingDeg:     heading,
		Confidence:     confidence,
		Timestamp:      ts,
		SensorID:       sensorID,
	}
}

func singleMeasurementBatch(m trackbatch.Measurement) *trackbatch.Batch {
	b := trackbatch.New(1)
	b.Add(m)
	return b
}

// TestFirstMeasurementBirthsTrackOne checks that a single measurement
// with no live tracks births exactly one track with global ID 1, seeded
// directly from the measurement.
func TestFirstMeasurementBirthsTrackOne(t *testing.T) {
	now := time.Now()
	tr := fusion.New(fusionconfig.Empty())

	b := singleMeasurementBatch(measurementAt(100, 100, 10, 0, 0.9, 1, now))
	tr.Ingest(b)
	tr.Tick(now)

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	require.EqualValues(t, 1, snap[0].GlobalID)
	require.InDelta(t, 100, snap[0].X, 1e-9)
	require.InDelta(t, 100, snap[0].Y, 1e-9)
	require.InDelta(t, 10, snap[0].VelocityMS, 1e-6)
}

// TestSecondNearbyMeasurementUpdatesSameTrack checks that a second
// measurement close to an existing track associates rather than births a
// second track, and the corrected position moves toward but does not
// jump all the way to the new measurement.
func TestSecondNearbyMeasurementUpdatesSameTrack(t *testing.T) {
	now := time.Now()
	tr := fusion.New(fusionconfig.Empty())

	tr.Ingest(singleMeasurementBatch(measurementAt(100, 100, 10, 0, 0.9, 1, now)))
	tr.Tick(now)

	later := now.Add(100 * time.Millisecond)
	tr.Ingest(singleMeasurementBatch(measurementAt(100.5, 100.1, 10, 0, 0.9, 1, later)))
	tr.Tick(later)

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	require.EqualValues(t, 1, snap[0].GlobalID)
	require.InDelta(t, 100.2, snap[0].X, 0.3)
}

// TestDistantMeasurementBirthsSecondTrack checks that a measurement far
// outside the association gate births a new track instead of corrupting
// the existing one.
func TestDistantMeasurementBirthsSecondTrack(t *testing.T) {
	now := time.Now()
	cfg := fusionconfig.Empty()
	tr := fusion.New(cfg)

	tr.Ingest(singleMeasurementBatch(measurementAt(0, 0, 5, 0, 0.9, 1, now)))
	tr.Tick(now)

	tr.Ingest(singleMeasurementBatch(measurementAt(500, 500, 5, 0, 0.9, 1, now)))
	tr.Tick(now)

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	require.EqualValues(t, 1, snap[0].GlobalID)
	require.EqualValues(t, 2, snap[1].GlobalID)
}

// TestStaleTrackIsCulled checks that a track that ages past
// max_track_age without a correcting measurement is removed on Tick.
func TestStaleTrackIsCulled(t *testing.T) {
	now := time.Now()
	maxAge := 3
	cfg := fusionconfig.Empty()
	cfg.MaxTrackAge = &maxAge

	tr := fusion.New(cfg)
	tr.Ingest(singleMeasurementBatch(measurementAt(0, 0, 1, 0, 0.9, 1, now)))

	for i := 0; i < maxAge+2; i++ {
		tr.Tick(now.Add(time.Duration(i+1) * 50 * time.Millisecond))
	}

	require.Equal(t, 0, tr.TrackCount())
	require.Empty(t, tr.Snapshot())
}

// TestLowConfidenceTrackIsCulled verifies the confidence-floor half of
// the death condition independent of age.
func TestLowConfidenceTrackIsCulled(t *testing.T) {
	now := time.Now()
	confFloor := 0.5
	cfg := fusionconfig.Empty()
	cfg.ConfidenceThreshold = &confFloor

	tr := fusion.New(cfg)
	tr.Ingest(singleMeasurementBatch(measurementAt(0, 0, 1, 0, 0.1, 1, now)))
	tr.Tick(now)

	require.Equal(t, 0, tr.TrackCount())
}

// TestSensorMaskIsORed verifies two different sensors correcting the same
// track both leave their bit set, never clobbering the other's.
func TestSensorMaskIsORed(t *testing.T) {
	now := time.Now()
	tr := fusion.New(fusionconfig.Empty())

	tr.Ingest(singleMeasurementBatch(measurementAt(0, 0, 1, 0, 0.9, 1, now)))
	tr.Tick(now)

	later := now.Add(50 * time.Millisecond)
	tr.Ingest(singleMeasurementBatch(measurementAt(0.05, 0.02, 1, 0, 0.9, 2, later)))
	tr.Tick(later)

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, uint32(0b11), snap[0].SensorMask)
}

// TestGlobalIDsNeverReused checks that global IDs monotonically
// increase across the tracker's lifetime even after intervening deaths.
func TestGlobalIDsNeverReused(t *testing.T) {
	now := time.Now()
	maxAge := 1
	cfg := fusionconfig.Empty()
	cfg.MaxTrackAge = &maxAge

	tr := fusion.New(cfg)
	tr.Ingest(singleMeasurementBatch(measurementAt(0, 0, 1, 0, 0.9, 1, now)))
	tr.Tick(now)

	// Let the first track die of old age.
	tr.Tick(now.Add(time.Second))
	tr.Tick(now.Add(2 * time.Second))
	require.Equal(t, 0, tr.TrackCount())

	tr.Ingest(singleMeasurementBatch(measurementAt(900, 900, 1, 0, 0.9, 1, now)))
	tr.Tick(now.Add(2 * time.Second))

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	require.EqualValues(t, 2, snap[0].GlobalID)
}

// TestCapacityDropsExcessMeasurements checks the birth-capacity half:
// once the tracker is at capacity, further unassociated measurements are
// dropped rather than exceeding the cap.
func TestCapacityDropsExcessMeasurements(t *testing.T) {
	now := time.Now()
	tr := fusion.New(fusionconfig.Empty())

	b := trackbatch.New(200)
	for i := 0; i < 150; i++ {
		b.Add(measurementAt(float64(i)*1000, float64(i)*1000, 1, 0, 0.9, 1, now))
	}
	tr.Ingest(b)
	tr.Tick(now)

	require.LessOrEqual(t, tr.TrackCount(), 100)
}
