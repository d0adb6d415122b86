package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// FrameLength is the fixed size of an acceleration data notification:
// frame type, client reference, uint32 sensor timestamp and three
// float32 channels, all little-endian.
const FrameLength = 18

// Byte offsets of the fields within a data frame.
const (
	offFrameType = 0
	offClientRef = 1
	offTimestamp = 2
	offAx        = 6
	offAy        = 10
	offAz        = 14
)

// Reading is one decoded acceleration sample. SensorMillis is the
// sensor-relative timestamp carried in the frame; Received is the local
// wall-clock arrival time recorded by the receiver, since the protocol
// carries no absolute time.
type Reading struct {
	SensorMillis uint32
	Received     time.Time
	Ax           float64
	Ay           float64
	Az           float64
}

// FailureKind classifies decode failures so callers can tell them apart
// with errors.Is.
type FailureKind string

const (
	LengthMismatch   FailureKind = "length_mismatch"
	UnknownFrameType FailureKind = "unknown_frame_type"
	RefMismatch      FailureKind = "ref_mismatch"
	SensorFault      FailureKind = "sensor_fault"
)

// DecodeError reports why a notification buffer could not be decoded.
type DecodeError struct {
	Kind FailureKind
	Msg  string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is to compare DecodeError values by Kind
func (e *DecodeError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*DecodeError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors for decode failure kinds
var (
	ErrLengthMismatch   = &DecodeError{Kind: LengthMismatch}
	ErrUnknownFrameType = &DecodeError{Kind: UnknownFrameType}
	ErrRefMismatch      = &DecodeError{Kind: RefMismatch}
	ErrSensorFault      = &DecodeError{Kind: SensorFault}
)

// Decoder decodes data notifications for one subscription. The zero
// value is not usable; construct with NewDecoder.
type Decoder struct {
	ref byte
}

// NewDecoder returns a decoder that accepts data frames carrying the
// given client reference byte.
func NewDecoder(ref byte) *Decoder {
	return &Decoder{ref: ref}
}

// Decode turns one raw notification buffer into a Reading. It validates
// the buffer length before touching any field and never panics on
// malformed input. received is the local arrival timestamp to stamp the
// reading with.
func (d *Decoder) Decode(data []byte, received time.Time) (Reading, error) {
	if len(data) != FrameLength {
		return Reading{}, &DecodeError{
			Kind: LengthMismatch,
			Msg:  fmt.Sprintf("got %d bytes, want %d", len(data), FrameLength),
		}
	}

	if data[offFrameType] != frameData {
		return Reading{}, &DecodeError{
			Kind: UnknownFrameType,
			Msg:  fmt.Sprintf("frame type 0x%02x", data[offFrameType]),
		}
	}

	if data[offClientRef] != d.ref {
		return Reading{}, &DecodeError{
			Kind: RefMismatch,
			Msg:  fmt.Sprintf("got ref %d, want %d", data[offClientRef], d.ref),
		}
	}

	r := Reading{
		SensorMillis: binary.LittleEndian.Uint32(data[offTimestamp:]),
		Received:     received,
		Ax:           float64(math.Float32frombits(binary.LittleEndian.Uint32(data[offAx:]))),
		Ay:           float64(math.Float32frombits(binary.LittleEndian.Uint32(data[offAy:]))),
		Az:           float64(math.Float32frombits(binary.LittleEndian.Uint32(data[offAz:]))),
	}

	// NaN or infinite channels are the sensor's fault sentinel.
	for _, v := range []float64{r.Ax, r.Ay, r.Az} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Reading{}, &DecodeError{
				Kind: SensorFault,
				Msg:  fmt.Sprintf("non-finite acceleration channel at ts %d", r.SensorMillis),
			}
		}
	}

	return r, nil
}
