// Package simulator reads a recorded scenario file and replays it into
// the fusion queue on a wall-clock schedule, standing in for live
// sensor adapters during simulator mode.
package simulator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/mec-fusion/internal/corelog"
	"github.com/banshee-data/mec-fusion/internal/fusionqueue"
	"github.com/banshee-data/mec-fusion/internal/trackbatch"
)

// Record is one line of a scenario file: a sensor-frame measurement
// scheduled to be injected relTimeMs after playback starts.
type Record struct {
	RelTimeMs  int64
	SensorID   int
	TargetID   uint64
	Type       trackbatch.TargetType
	X, Y       float64
	Velocity   float64
	HeadingDeg float64
	Confidence float64
}

// ParseFile reads a scenario file from path: one whitespace-separated
// record per line (`rel_time_ms sensor_id target_id type lat lon vel
// heading confidence`); lines starting with `#` and blank lines are
// skipped.
func ParseFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("simulator: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads scenario records from r.
func Parse(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("simulator: line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("simulator: scan: %w", err)
	}
	return records, nil
}

func parseLine(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) != 9 {
		return Record{}, fmt.Errorf("expected 9 fields, got %d", len(fields))
	}

	relTimeMs, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("rel_time_ms: %w", err)
	}
	sensorID, err := strconv.Atoi(fields[1])
	if err != nil {
		return Record{}, fmt.Errorf("sensor_id: %w", err)
	}
	targetID, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("target_id: %w", err)
	}
	typeCode, err := strconv.Atoi(fields[3])
	if err != nil {
		return Record{}, fmt.Errorf("type: %w", err)
	}
	lat, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return Record{}, fmt.Errorf("lat: %w", err)
	}
	lon, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return Record{}, fmt.Errorf("lon: %w", err)
	}
	vel, err := strconv.ParseFloat(fields[6], 64)
	if err != nil {
		return Record{}, fmt.Errorf("vel: %w", err)
	}
	heading, err := strconv.ParseFloat(fields[7], 64)
	if err != nil {
		return Record{}, fmt.Errorf("heading: %w", err)
	}
	confidence, err := strconv.ParseFloat(fields[8], 64)
	if err != nil {
		return Record{}, fmt.Errorf("confidence: %w", err)
	}

	return Record{
		RelTimeMs:  relTimeMs,
		SensorID:   sensorID,
		TargetID:   targetID,
		Type:       trackbatch.TargetType(typeCode),
		X:          lat,
		Y:          lon,
		Velocity:   vel,
		HeadingDeg: heading,
		Confidence: confidence,
	}, nil
}

// Player replays a fixed set of records on a wall-clock schedule scaled
// by playbackSpeed, optionally looping.
type Player struct {
	records       []Record
	playbackSpeed float64
	loop          bool
}

// NewPlayer creates a Player. playbackSpeed must be positive; 1.0 plays
// records at their recorded real-time spacing, 2.0 plays twice as fast.
func NewPlayer(records []Record, playbackSpeed float64, loop bool) *Player {
	if playbackSpeed <= 0 {
		playbackSpeed = 1.0
	}
	return &Player{records: records, playbackSpeed: playbackSpeed, loop: loop}
}

// Run injects each record into queue at rel_time_ms/playback_speed wall
// time from the moment Run is called, looping if configured, until ctx
// is canceled or (non-looping) the scenario is exhausted.
func (p *Player) Run(ctx context.Context, queue *fusionqueue.Queue) error {
	for {
		start := time.Now()
		for _, rec := range p.records {
			deadline := start.Add(time.Duration(float64(rec.RelTimeMs) / p.playbackSpeed * float64(time.Millisecond)))
			if wait := time.Until(deadline); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			} else {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}
			p.inject(rec, queue)
		}
		if !p.loop {
			return nil
		}
	}
}

func (p *Player) inject(rec Record, queue *fusionqueue.Queue) {
	now := time.Now()
	batch := trackbatch.New(1)
	batch.Add(trackbatch.Measurement{
		ID:             rec.TargetID,
		Type:           rec.Type,
		Position:       trackbatch.SensorPosition{X: rec.X, Y: rec.Y},
		VelocityScalar: rec.Velocity,
		HeadingDeg:     rec.HeadingDeg,
		Confidence:     rec.Confidence,
		Timestamp:      now,
		SensorID:       rec.SensorID,
	})
	msg := fusionqueue.Message{SensorID: rec.SensorID, Timestamp: now, Batch: batch}
	if err := queue.Push(msg); err != nil {
		corelog.Logf("simulator: %v, dropping record for target %d", err, rec.TargetID)
	}
	batch.Release()
}
