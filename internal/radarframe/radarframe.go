// Package radarframe implements the byte-oriented DFA that resynchronizes
// on the radar's preamble, length-fixes its payload, and XOR-checksum
// validates a frame out of a noisy serial byte stream.
//
// Frame layout (17 bytes total):
//
//	byte 0      preamble high = 0xAA
//	byte 1      preamble low  = 0x55
//	bytes 2-15  payload P[0..13] (14 bytes), big-endian 16-bit fields
//	byte 16     XOR checksum over P[0..13]
//
// The payload's 14 data bytes carry target_id/range/angle/velocity/rcs
// (10 bytes) followed by 4 reserved bytes, ignored by the decoder.
package radarframe

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/banshee-data/mec-fusion/internal/corelog"
	"github.com/banshee-data/mec-fusion/internal/trackbatch"
)

const (
	preambleHigh = 0xAA
	preambleLow  = 0x55

	payloadDataSize = 14                      // P[0..13]
	frameSize       = 2 + payloadDataSize + 1 // preamble + payload + checksum = 17
	payloadBufSize  = payloadDataSize + 1     // data bytes plus the trailing checksum byte
)

// ErrChecksum is reported (not returned; the parser is a pure state
// machine with no error return path) via corelog.Logf when a frame's
// XOR checksum does not match. The frame is discarded and the DFA
// returns to Idle; the discarded byte is not reinterpreted as a preamble.
var ErrChecksum = errors.New("radarframe: checksum mismatch")

// state is the DFA's current position in the 17-byte frame.
type state int

const (
	stateIdle state = iota
	stateHead1
	stateData
	stateCheck
)

// Detection is a single decoded radar target, already converted from
// polar (range, angle) to the planar Cartesian pair the fusion core
// consumes.
type Detection struct {
	TargetID   uint16
	RangeM     float64
	AngleDeg   float64 // centered, -180..180
	VelocityMS float64
	RCSdB      float64
	X, Y       float64 // planar position, meters
}

// Parser is the byte-by-byte DFA. It is not safe for concurrent use;
// one adapter goroutine owns one Parser for one serial stream.
type Parser struct {
	st      state
	payload [payloadBufSize]byte
	pos     int // bytes of the payload collected so far
}

// New creates a Parser in the Idle state.
func New() *Parser {
	return &Parser{st: stateIdle}
}

// Feed advances the DFA by one byte. It returns a Detection and true
// when byte completes a validated frame; otherwise it returns false.
// Feed never blocks and never panics on garbage input; any byte
// sequence that never contains 0xAA 0x55 keeps the DFA in its preamble
// search (Idle or Head1) and never emits a detection.
func (p *Parser) Feed(b byte) (Detection, bool) {
	switch p.st {
	case stateIdle:
		if b == preambleHigh {
			p.st = stateHead1
		}
		return Detection{}, false

	case stateHead1:
		if b == preambleLow {
			p.st = stateData
			p.pos = 0
		} else if b == preambleHigh {
			// stay in HEAD1; this byte could itself be the real preamble high
		} else {
			p.st = stateIdle
		}
		return Detection{}, false

	case stateData:
		p.payload[p.pos] = b
		p.pos++
		if p.pos == payloadDataSize {
			p.st = stateCheck
		}
		return Detection{}, false

	case stateCheck:
		p.payload[payloadDataSize] = b
		p.st = stateIdle

		var checksum byte
		for i := 0; i < payloadDataSize; i++ {
			checksum ^= p.payload[i]
		}
		if checksum != p.payload[payloadDataSize] {
			corelog.Logf("radarframe: %v, frame discarded", ErrChecksum)
			return Detection{}, false
		}
		return decodePayload(p.payload), true

	default:
		p.st = stateIdle
		return Detection{}, false
	}
}

// FeedAll runs Feed over every byte of buf, invoking emit for each
// validated frame, in order. It is a convenience wrapper for adapters
// reading chunks off a serial port rather than one byte at a time.
func (p *Parser) FeedAll(buf []byte, emit func(Detection)) {
	for _, b := range buf {
		if d, ok := p.Feed(b); ok {
			emit(d)
		}
	}
}

func decodePayload(payload [payloadBufSize]byte) Detection {
	targetID := binary.BigEndian.Uint16(payload[0:2])
	rangeRaw := binary.BigEndian.Uint16(payload[2:4])
	angleRaw := binary.BigEndian.Uint16(payload[4:6])
	velRaw := binary.BigEndian.Uint16(payload[6:8])
	rcsRaw := binary.BigEndian.Uint16(payload[8:10])

	rangeM := float64(rangeRaw) / 10.0
	angleDeg := float64(angleRaw)/10.0 - 180.0
	velMS := float64(velRaw) / 10.0
	rcs := float64(rcsRaw)/10.0 - 50.0

	theta := angleDeg * math.Pi / 180.0
	x := rangeM * math.Cos(theta)
	y := rangeM * math.Sin(theta)

	return Detection{
		TargetID:   targetID,
		RangeM:     rangeM,
		AngleDeg:   angleDeg,
		VelocityMS: velMS,
		RCSdB:      rcs,
		X:          x,
		Y:          y,
	}
}

// Confidence returns a detection-confidence heuristic: a strong radar
// cross-section implies a more confident detection.
func (d Detection) Confidence() float64 {
	if d.RCSdB > -10 {
		return 0.8
	}
	return 0.5
}

// HeadingDeg returns atan2(y, x) in degrees, the heading derived from
// the Cartesian position rather than from the raw angle.
func (d Detection) HeadingDeg() float64 {
	return math.Atan2(d.Y, d.X) * 180.0 / math.Pi
}

// ToMeasurement converts a Detection into a sensor-frame Measurement
// ready for publication into a trackbatch.Batch.
func (d Detection) ToMeasurement(sensorID int, timestamp time.Time) trackbatch.Measurement {
	return trackbatch.Measurement{
		ID:             uint64(d.TargetID),
		Type:           trackbatch.TargetVehicle,
		Position:       trackbatch.SensorPosition{X: d.X, Y: d.Y},
		VelocityScalar: d.VelocityMS,
		HeadingDeg:     d.HeadingDeg(),
		Confidence:     d.Confidence(),
		Timestamp:      timestamp,
		SensorID:       sensorID,
	}
}
