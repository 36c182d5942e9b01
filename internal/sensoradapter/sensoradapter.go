// Package sensoradapter implements the per-sensor producer loops:
// a radar adapter that reads a serial line through internal/radarframe,
// and a mock video adapter that stands in for an external video
// detector. Both publish into the shared internal/fusionqueue, pacing
// themselves independently and dropping (never retrying) on queue
// overflow.
package sensoradapter

import (
	"context"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/mec-fusion/internal/corelog"
	"github.com/banshee-data/mec-fusion/internal/fusionqueue"
	"github.com/banshee-data/mec-fusion/internal/radarframe"
	"github.com/banshee-data/mec-fusion/internal/trackbatch"
)

// RadarPort is the minimal surface the radar adapter needs from a
// serial line; go.bug.st/serial.Port satisfies it directly, and tests
// supply a buffer-backed fake.
type RadarPort interface {
	Read(p []byte) (int, error)
}

// OpenRadarPort opens devicePath at baud with 8N1 framing, the line
// discipline the radar's serial output uses.
func OpenRadarPort(devicePath string, baud int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	return serial.Open(devicePath, mode)
}

const radarReadBufSize = 256

// radarPollInterval is the radar adapter's poll period: 100 Hz.
const radarPollInterval = 10 * time.Millisecond

// videoPollInterval is the mock video adapter's poll period: 10 Hz.
const videoPollInterval = 100 * time.Millisecond

// RadarAdapter reads raw bytes off a serial port, decodes frames with
// internal/radarframe, and publishes a Measurement batch per poll that
// yielded at least one detection.
type RadarAdapter struct {
	port     RadarPort
	queue    *fusionqueue.Queue
	sensorID int
	parser   *radarframe.Parser
}

// NewRadarAdapter wires a radar adapter for sensorID, reading from port
// and publishing into queue.
func NewRadarAdapter(port RadarPort, queue *fusionqueue.Queue, sensorID int) *RadarAdapter {
	return &RadarAdapter{
		port:     port,
		queue:    queue,
		sensorID: sensorID,
		parser:   radarframe.New(),
	}
}

// Run drives the adapter's producer loop until ctx is canceled.
func (a *RadarAdapter) Run(ctx context.Context) error {
	ticker := time.NewTicker(radarPollInterval)
	defer ticker.Stop()

	buf := make([]byte, radarReadBufSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := a.port.Read(buf)
			if err != nil {
				corelog.Logf("sensoradapter: radar %d read: %v", a.sensorID, err)
				continue
			}
			if n == 0 {
				continue
			}

			now := time.Now()
			batch := trackbatch.New(4)
			a.parser.FeedAll(buf[:n], func(d radarframe.Detection) {
				batch.Add(d.ToMeasurement(a.sensorID, now))
			})
			a.publish(batch, now)
		}
	}
}

func (a *RadarAdapter) publish(batch *trackbatch.Batch, now time.Time) {
	if batch.Len() == 0 {
		batch.Release()
		return
	}
	msg := fusionqueue.Message{SensorID: a.sensorID, Timestamp: now, Batch: batch}
	if err := a.queue.Push(msg); err != nil {
		corelog.Logf("sensoradapter: radar %d: %v, dropping batch", a.sensorID, err)
	}
	batch.Release()
}

// VideoSource produces a sensor-frame measurement set for one poll
// cycle; the mock video adapter calls it on its own cadence rather than
// reading real camera frames, standing in for an external video
// detector this core only consumes through this interface.
type VideoSource func(now time.Time) []trackbatch.Measurement

// VideoAdapter is the mock stand-in for the external video pipeline.
type VideoAdapter struct {
	source   VideoSource
	queue    *fusionqueue.Queue
	sensorID int
}

// NewVideoAdapter wires a video adapter for sensorID, pulling
// measurements from source and publishing into queue.
func NewVideoAdapter(source VideoSource, queue *fusionqueue.Queue, sensorID int) *VideoAdapter {
	return &VideoAdapter{source: source, queue: queue, sensorID: sensorID}
}

// Run drives the adapter's producer loop until ctx is canceled.
func (a *VideoAdapter) Run(ctx context.Context) error {
	ticker := time.NewTicker(videoPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now()
			measurements := a.source(now)
			if len(measurements) == 0 {
				continue
			}
			batch := trackbatch.New(len(measurements))
			for _, m := range measurements {
				m.SensorID = a.sensorID
				batch.Add(m)
			}
			msg := fusionqueue.Message{SensorID: a.sensorID, Timestamp: now, Batch: batch}
			if err := a.queue.Push(msg); err != nil {
				corelog.Logf("sensoradapter: video %d: %v, dropping batch", a.sensorID, err)
			}
			batch.Release()
		}
	}
}
