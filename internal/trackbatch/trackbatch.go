// Package trackbatch implements the reference-counted, append-only
// measurement container that sensor adapters publish into the
// fusion queue. A Batch crosses the producer/consumer boundary as a
// single retained handle instead of being copied.
package trackbatch

import (
	"sync/atomic"
	"time"
)

// TargetType enumerates the kinds of object a sensor can report.
type TargetType int

const (
	TargetUnknown TargetType = iota
	TargetVehicle
	TargetNonVehicle
	TargetPedestrian
	TargetObstacle
)

func (t TargetType) String() string {
	switch t {
	case TargetVehicle:
		return "vehicle"
	case TargetNonVehicle:
		return "non_vehicle"
	case TargetPedestrian:
		return "pedestrian"
	case TargetObstacle:
		return "obstacle"
	default:
		return "unknown"
	}
}

// SensorPosition is a planar-with-optional-height sensor-frame coordinate.
type SensorPosition struct {
	X, Y, Z float64 // Z is optional and defaults to 0; the fusion core only reads X, Y.
}

// Measurement is a single immutable sensor-frame observation. Once
// published into a Batch, a Measurement's fields must never be mutated;
// the producer starts a new Batch instead.
type Measurement struct {
	ID             uint64
	Type           TargetType
	Position       SensorPosition
	VelocityScalar float64
	HeadingDeg     float64
	Confidence     float64 // in [0, 1]
	Timestamp      time.Time
	SensorID       int // 1-based; sensor k contributes sensor_mask bit k-1
}

// Batch is an ordered, append-only, reference-counted list of
// Measurements produced by a single sensor adapter. Its reference count
// is the only field any thread other than the producer may touch, and
// only through Retain/Release.
type Batch struct {
	measurements []Measurement
	refCount     atomic.Int32
}

// New creates an empty Batch with the given initial capacity and a
// reference count of 1, owned by the caller.
func New(capacity int) *Batch {
	b := &Batch{
		measurements: make([]Measurement, 0, capacity),
	}
	b.refCount.Store(1)
	return b
}

// Retain atomically increments the reference count. Call this whenever a
// new owner (e.g. a queue message) takes a reference to the batch.
func (b *Batch) Retain() {
	b.refCount.Add(1)
}

// Release atomically decrements the reference count. When it reaches
// zero the batch's backing storage is dropped; any further use of the
// handle after that point is a use-after-release bug.
func (b *Batch) Release() {
	if b.refCount.Add(-1) == 0 {
		b.measurements = nil
	}
}

// RefCount returns the current reference count, primarily for tests.
func (b *Batch) RefCount() int32 {
	return b.refCount.Load()
}

// Add appends a measurement to the batch. Not safe to call concurrently
// with Retain/Release from other goroutines unless the caller is the
// batch's sole producer.
func (b *Batch) Add(m Measurement) {
	b.measurements = append(b.measurements, m)
}

// Clear sets the batch's length to zero without releasing its backing
// array, so the producer can reuse the allocation for the next cycle.
func (b *Batch) Clear() {
	b.measurements = b.measurements[:0]
}

// Len returns the number of measurements currently in the batch.
func (b *Batch) Len() int {
	return len(b.measurements)
}

// At returns the measurement at index i.
func (b *Batch) At(i int) Measurement {
	return b.measurements[i]
}

// All returns the batch's measurements. The returned slice aliases the
// batch's storage and must not be mutated or retained past the batch's
// lifetime.
func (b *Batch) All() []Measurement {
	return b.measurements
}
