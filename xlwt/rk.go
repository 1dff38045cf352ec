package xlwt

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/yamitzky/xlwt-go/internal/logging"
)

// RKTag selects the interpretation of the 30 payload bits of an RK value.
type RKTag uint8

const (
	RKRaw       RKTag = 0 // high 30 bits of an IEEE-754 double
	RKRawScaled RKTag = 1 // as RKRaw, divided by 100
	RKInt       RKTag = 2 // 30-bit signed integer
	RKIntScaled RKTag = 3 // as RKInt, divided by 100
)

func (t RKTag) String() string {
	switch t {
	case RKRaw:
		return "RAW"
	case RKRawScaled:
		return "RAW_SCALED"
	case RKInt:
		return "INT"
	default:
		return "INT_SCALED"
	}
}

// rkSuspicious is the smallest raw integer word that legacy producers are
// known to emit for out-of-range values.
const rkSuspicious = 4290773292

const (
	rkLow34    = 1<<34 - 1
	rkIntMin   = -(1 << 29)
	rkIntLimit = 1 << 29
)

// EncodeRK packs v into the 4-byte RK form. It returns false when v has no
// exact RK representation and must be written as a NUMBER record instead.
func EncodeRK(v float64) ([4]byte, bool) {
	var out [4]byte
	word, ok := encodeRKWord(v)
	if !ok {
		return out, false
	}
	if got := decodeRKWord(word); math.Float64bits(got) != math.Float64bits(v) {
		if rkStrict {
			panic(fmt.Sprintf("xlwt: RK word 0x%08x decodes to %v, want %v", word, got, v))
		}
		return out, false
	}
	binary.LittleEndian.PutUint32(out[:], word)
	return out, true
}

// DecodeRK widens a 4-byte RK value to a float64.
func DecodeRK(b [4]byte) float64 {
	word := binary.LittleEndian.Uint32(b[:])
	// Small negative integers also land here, so this stays at debug level.
	if word&2 != 0 && word >= rkSuspicious {
		logging.L().Debug().
			Uint32("raw", word).
			Str("tag", RKTagOf(b).String()).
			Msg("suspicious RK integer")
	}
	return decodeRKWord(word)
}

// RKTagOf returns the tag bits of an RK value.
func RKTagOf(b [4]byte) RKTag {
	return RKTag(b[0] & 3)
}

func encodeRKWord(v float64) (uint32, bool) {
	// Integral values take the integer form even when their low mantissa
	// bits are clear, so 100 encodes as INT rather than RAW.
	if i, ok := rkInteger(v); ok {
		return uint32(i<<2) | uint32(RKInt), true
	}
	if w, ok := rkRawBits(v); ok {
		return w | uint32(RKRaw), true
	}
	scaled := v * 100
	if w, ok := rkRawBits(scaled); ok {
		w |= uint32(RKRawScaled)
		if math.Float64bits(decodeRKWord(w)) == math.Float64bits(v) {
			return w, true
		}
	}
	if i, ok := rkInteger(scaled); ok {
		w := uint32(i<<2) | uint32(RKIntScaled)
		if math.Float64bits(decodeRKWord(w)) == math.Float64bits(v) {
			return w, true
		}
	}
	return 0, false
}

func decodeRKWord(word uint32) float64 {
	var v float64
	if word&2 != 0 {
		v = float64(int32(word) >> 2)
	} else {
		v = math.Float64frombits(uint64(word&^3) << 32)
	}
	if word&1 != 0 {
		v /= 100
	}
	return v
}

func rkInteger(v float64) (int32, bool) {
	if v != math.Trunc(v) || v < rkIntMin || v >= rkIntLimit {
		return 0, false
	}
	if v == 0 && math.Signbit(v) {
		return 0, false
	}
	return int32(v), true
}

func rkRawBits(v float64) (uint32, bool) {
	bits := math.Float64bits(v)
	if bits&rkLow34 != 0 {
		return 0, false
	}
	return uint32(bits >> 32), true
}
