// Package fusion implements the fusion core: gated nearest-neighbor
// association of incoming measurements against live tracks, a 6-state
// constant-acceleration Kalman filter per track, and track-lifecycle
// management (birth, coasting, death). This is the component the rest
// of the pipeline exists to feed.
package fusion

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/mec-fusion/internal/corelog"
	"github.com/banshee-data/mec-fusion/internal/fusionconfig"
	"github.com/banshee-data/mec-fusion/internal/trackbatch"
)

// defaultCapacity bounds the number of simultaneously live tracks.
const defaultCapacity = 100

// FusedTrack is one maintained track: its filter state plus the
// bookkeeping lifecycle management needs.
type FusedTrack struct {
	GlobalID   uint64
	Type       trackbatch.TargetType
	Filter     *KalmanState
	Confidence float64
	AgeTicks   int
	SensorMask uint32
}

// Snapshot is a read-only, fully materialized view of one track at the
// moment Tick published it, safe to read from any goroutine without
// locking the Tracker.
type Snapshot struct {
	GlobalID   uint64
	Type       trackbatch.TargetType
	X, Y       float64
	VelocityMS float64
	HeadingDeg float64
	Confidence float64
	SensorMask uint32
	Timestamp  time.Time
}

// Tracker owns the live track set and publishes an immutable Snapshot
// slice on every tick. Ingest and Tick both take the same mutex; reading
// the published snapshot never does, so the pipeline's publication path
// never blocks behind the fusion loop.
type Tracker struct {
	mu           sync.Mutex
	tracks       []*FusedTrack
	nextGlobalID uint64
	capacity     int
	cfg          *fusionconfig.Config

	snapshot atomic.Pointer[[]Snapshot]
}

// New creates a Tracker governed by cfg (nil means all defaults apply).
func New(cfg *fusionconfig.Config) *Tracker {
	if cfg == nil {
		cfg = fusionconfig.Empty()
	}
	t := &Tracker{
		cfg:      cfg,
		capacity: defaultCapacity,
	}
	empty := []Snapshot{}
	t.snapshot.Store(&empty)
	return t
}

// Ingest associates every measurement in batch against the live track
// set and either updates the matched track or births a new one. It does
// not advance any track's prediction; that happens only in Tick, so
// Ingest may be called any number of times between ticks as sensor data
// arrives.
func (t *Tracker) Ingest(batch *trackbatch.Batch) {
	if batch == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := 0; i < batch.Len(); i++ {
		m := batch.At(i)
		best := t.findBestMatch(m)
		if best != nil {
			t.applyUpdate(best, m)
			continue
		}
		if len(t.tracks) >= t.capacity {
			corelog.Logf("fusion: track capacity %d reached, dropping measurement from sensor %d", t.capacity, m.SensorID)
			continue
		}
		t.birth(m)
	}
}

// findBestMatch returns the live track with the smallest gated distance
// to m, or nil if none falls within the association gate.
func (t *Tracker) findBestMatch(m trackbatch.Measurement) *FusedTrack {
	gate := t.cfg.GetAssociationThreshold()
	var best *FusedTrack
	bestDist := gate
	for _, tr := range t.tracks {
		d := gatedDistance(tr, m)
		if d < bestDist {
			bestDist = d
			best = tr
		}
	}
	return best
}

// gatedDistance is the diagonal Mahalanobis-flavored distance between a
// track's predicted position and a candidate measurement, inflating the
// track's positional variance by the fixed observation noise.
func gatedDistance(tr *FusedTrack, m trackbatch.Measurement) float64 {
	dx := m.Position.X - tr.Filter.X.AtVec(0)
	dy := m.Position.Y - tr.Filter.X.AtVec(1)
	varX := tr.Filter.P.At(0, 0) + observationNoise
	varY := tr.Filter.P.At(1, 1) + observationNoise
	if varX <= 0 || varY <= 0 {
		return singularDistanceRejection
	}
	return math.Sqrt(dx*dx/varX + dy*dy/varY)
}

// singularDistanceRejection mirrors the source's sentinel: a distance no
// legitimate gate will ever admit.
const singularDistanceRejection = 1e9

// applyUpdate corrects the track's filter from measurement m, smooths
// its confidence, and ORs in the contributing sensor's bit. A singular
// innovation covariance leaves the track's filter state untouched but
// still smooths its confidence, resets its age and ORs in the sensor
// bit, since the measurement was associated even though the correction
// could not be applied.
func (t *Tracker) applyUpdate(tr *FusedTrack, m trackbatch.Measurement) {
	z := [2]float64{m.Position.X, m.Position.Y}
	if err := tr.Filter.Update(z, m.Timestamp); err != nil {
		corelog.Logf("fusion: track %d: %v, skipping correction", tr.GlobalID, err)
	}
	tr.Confidence = 0.7*tr.Confidence + 0.3*m.Confidence
	tr.AgeTicks = 0
	if m.SensorID > 0 {
		tr.SensorMask |= 1 << uint(m.SensorID-1)
	}
}

// birth starts a new track from an unassociated measurement, assigning
// it the next monotonically increasing global ID (IDs are never reused,
// even across track death).
func (t *Tracker) birth(m trackbatch.Measurement) {
	t.nextGlobalID++
	filter := newKalmanState()
	filter.initFromMeasurement(m)

	tr := &FusedTrack{
		GlobalID:   t.nextGlobalID,
		Type:       m.Type,
		Filter:     filter,
		Confidence: m.Confidence,
		AgeTicks:   0,
	}
	if m.SensorID > 0 {
		tr.SensorMask = 1 << uint(m.SensorID-1)
	}
	t.tracks = append(t.tracks, tr)
}

// Tick predicts every live track forward to now, ages and culls tracks
// that have coasted too long or fallen below the confidence floor, and
// publishes a fresh Snapshot of whatever survives. dt for each track is
// computed from that track's own last real measurement update, not from
// the previous tick. Each prediction is applied on top of the state the
// previous tick already advanced, so a track left uncorrected across
// several ticks is moved by progressively larger dt values and its
// displacement compounds rather than advancing one tick at a time.
func (t *Tracker) Tick(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	maxAge := t.cfg.GetMaxTrackAge()
	confidenceFloor := t.cfg.GetConfidenceThreshold()

	for i := 0; i < len(t.tracks); i++ {
		tr := t.tracks[i]
		dt := now.Sub(tr.Filter.LastUpdate).Seconds()
		tr.Filter.Predict(dt)
		tr.AgeTicks++

		if tr.AgeTicks > maxAge || tr.Confidence < confidenceFloor {
			last := len(t.tracks) - 1
			t.tracks[i] = t.tracks[last]
			t.tracks = t.tracks[:last]
			i--
			continue
		}
	}

	snap := make([]Snapshot, 0, len(t.tracks))
	for _, tr := range t.tracks {
		if !tr.Filter.Initialized {
			continue
		}
		snap = append(snap, Snapshot{
			GlobalID:   tr.GlobalID,
			Type:       tr.Type,
			X:          tr.Filter.X.AtVec(0),
			Y:          tr.Filter.X.AtVec(1),
			VelocityMS: tr.Filter.Velocity(),
			HeadingDeg: tr.Filter.HeadingDeg(),
			Confidence: tr.Confidence,
			SensorMask: tr.SensorMask,
			Timestamp:  now,
		})
	}
	t.snapshot.Store(&snap)
}

// Snapshot returns the most recently published track set. The returned
// slice must not be mutated; callers that need to keep it past the next
// Tick should copy it.
func (t *Tracker) Snapshot() []Snapshot {
	return *t.snapshot.Load()
}

// TrackCount returns the number of currently live tracks, primarily for
// tests and the monitor's status surface.
func (t *Tracker) TrackCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracks)
}

// SetConfig swaps the tuning configuration the tracker consults on the
// next Ingest/Tick call. It is the hook the CLI's SIGHUP handler uses
// to apply a reloaded configuration file without restarting the core.
func (t *Tracker) SetConfig(cfg *fusionconfig.Config) {
	if cfg == nil {
		cfg = fusionconfig.Empty()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
}
