// Package rsm implements the V2X Roadside Safety Message encoder: a
// fixed-field, little-endian binary packet carrying a fused track
// snapshot for broadcast.
package rsm

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/banshee-data/mec-fusion/internal/fusion"
	"github.com/banshee-data/mec-fusion/internal/trackbatch"
)

// ErrBufferTooSmall is returned by Encode when buf cannot hold the
// header plus one record per track; nothing is written in that case.
var ErrBufferTooSmall = errors.New("rsm: buffer too small")

const (
	headerSize = 16
	recordSize = 16

	magicByte   = 0x01
	versionByte = 0x01
	msgTypeRSM  = 0x01

	speedScale   = 50.0   // 0.02 m/s units
	headingScale = 80.0   // 0.0125 deg units
	latLonScale  = 1.0e7  // degrees * 1e7
	confScale    = 200.0  // confidence 0..1 -> 0..200
)

// rsmType maps a TargetType onto the wire's 0..4 type code. Types
// outside this set (there are none today) encode as 0 (unknown).
func rsmType(t trackbatch.TargetType) byte {
	switch t {
	case trackbatch.TargetVehicle:
		return 1 // small vehicle
	case trackbatch.TargetObstacle:
		return 2 // large vehicle
	case trackbatch.TargetPedestrian:
		return 3
	case trackbatch.TargetNonVehicle:
		return 4 // non-motor
	default:
		return 0
	}
}

// RequiredLen returns the number of bytes Encode needs to serialize n tracks.
func RequiredLen(n int) int {
	return headerSize + n*recordSize
}

// Encode serializes snapshot into buf as an RSM packet addressed from
// deviceID, stamped with timestampMs. It returns the number of bytes
// written. If buf is smaller than RequiredLen(len(snapshot)), it returns
// ErrBufferTooSmall and writes nothing.
func Encode(snapshot []fusion.Snapshot, deviceID uint32, timestampMs uint64, buf []byte) (int, error) {
	need := RequiredLen(len(snapshot))
	if len(buf) < need {
		return 0, ErrBufferTooSmall
	}

	buf[0] = magicByte
	buf[1] = versionByte
	buf[2] = msgTypeRSM
	binary.LittleEndian.PutUint32(buf[3:7], deviceID)
	binary.LittleEndian.PutUint64(buf[7:15], timestampMs)
	buf[15] = clampCount(len(snapshot))

	off := headerSize
	for _, tr := range snapshot {
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(tr.GlobalID))
		buf[off+2] = rsmType(tr.Type)
		binary.LittleEndian.PutUint32(buf[off+3:off+7], uint32(int32(math.Round(tr.X*latLonScale))))
		binary.LittleEndian.PutUint32(buf[off+7:off+11], uint32(int32(math.Round(tr.Y*latLonScale))))
		binary.LittleEndian.PutUint16(buf[off+11:off+13], clampU16(tr.VelocityMS*speedScale))
		binary.LittleEndian.PutUint16(buf[off+13:off+15], clampU16(normalizedHeading(tr.HeadingDeg)*headingScale))
		buf[off+15] = clampConfidence(tr.Confidence)
		off += recordSize
	}
	return off, nil
}

// clampCount saturates a track count to a single byte; a count this
// large would itself indicate a bug upstream, but the wire format only
// has one byte to spend on it.
func clampCount(n int) byte {
	if n > 255 {
		return 255
	}
	return byte(n)
}

// normalizedHeading folds a heading into [0, 360) so a negative
// atan2-derived heading still encodes to a valid (non-negative) field.
func normalizedHeading(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	return d
}

func clampU16(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(math.Round(v))
}

func clampConfidence(c float64) byte {
	v := c * confScale
	if v < 0 {
		return 0
	}
	if v > 200 {
		return 200
	}
	return byte(math.Round(v))
}
