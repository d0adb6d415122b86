package protocol

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFrame assembles a data notification from its fields, mirroring
// the wire layout independently of the decoder under test.
func buildFrame(frameType, ref byte, ts uint32, ax, ay, az float32) []byte {
	buf := make([]byte, FrameLength)
	buf[0] = frameType
	buf[1] = ref
	binary.LittleEndian.PutUint32(buf[2:], ts)
	binary.LittleEndian.PutUint32(buf[6:], math.Float32bits(ax))
	binary.LittleEndian.PutUint32(buf[10:], math.Float32bits(ay))
	binary.LittleEndian.PutUint32(buf[14:], math.Float32bits(az))
	return buf
}

func TestDecodeGoldenVectors(t *testing.T) {
	// GOAL: Verify every field of a valid frame decodes to the expected value
	//
	// TEST SCENARIO: Hand-built frames with known field values → decoded
	// Reading matches field-for-field

	received := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewDecoder(99)

	tests := []struct {
		name       string
		frame      []byte
		ts         uint32
		ax, ay, az float64
	}{
		{
			name:  "resting sensor, gravity on z",
			frame: buildFrame(0x02, 99, 1000, 0, 0, 9.81),
			ts:    1000, ax: 0, ay: 0, az: float64(float32(9.81)),
		},
		{
			name:  "negative channels",
			frame: buildFrame(0x02, 99, 4294967295, -1.5, -0.25, -9.81),
			ts:    4294967295, ax: -1.5, ay: -0.25, az: float64(float32(-9.81)),
		},
		{
			name:  "zero timestamp",
			frame: buildFrame(0x02, 99, 0, 2.5, 3.5, 4.5),
			ts:    0, ax: 2.5, ay: 3.5, az: 4.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := d.Decode(tt.frame, received)
			require.NoError(t, err)
			assert.Equal(t, tt.ts, r.SensorMillis)
			assert.Equal(t, tt.ax, r.Ax)
			assert.Equal(t, tt.ay, r.Ay)
			assert.Equal(t, tt.az, r.Az)
			assert.Equal(t, received, r.Received)
		})
	}
}

func TestDecodeGoldenBytes(t *testing.T) {
	// GOAL: Pin the exact wire layout against a literal byte vector
	//
	// TEST SCENARIO: Known-good raw buffer → known field values

	// ts=513 (0x0201), ax=1.0, ay=-2.0, az=0.5, ref=99
	frame := []byte{
		0x02, 0x63,
		0x01, 0x02, 0x00, 0x00,
		0x00, 0x00, 0x80, 0x3f,
		0x00, 0x00, 0x00, 0xc0,
		0x00, 0x00, 0x00, 0x3f,
	}

	r, err := NewDecoder(0x63).Decode(frame, time.Now())
	require.NoError(t, err)
	assert.Equal(t, uint32(513), r.SensorMillis)
	assert.Equal(t, 1.0, r.Ax)
	assert.Equal(t, -2.0, r.Ay)
	assert.Equal(t, 0.5, r.Az)
}

func TestDecodeLengthMismatch(t *testing.T) {
	// GOAL: Verify buffers of any wrong length are rejected without reading
	// out of bounds
	//
	// TEST SCENARIO: Lengths 0..FrameLength+8 except FrameLength → length
	// mismatch error, never a panic

	d := NewDecoder(99)
	for n := 0; n <= FrameLength+8; n++ {
		if n == FrameLength {
			continue
		}
		buf := make([]byte, n)
		_, err := d.Decode(buf, time.Now())
		require.Error(t, err, "length %d must be rejected", n)
		assert.ErrorIs(t, err, ErrLengthMismatch, "length %d", n)
	}
}

func TestDecodeFailureKinds(t *testing.T) {
	// GOAL: Each malformed-frame class yields its own distinguishable kind
	//
	// TEST SCENARIO: Bad frame type / wrong ref / non-finite channels →
	// matching sentinel via errors.Is, no cross-matching

	d := NewDecoder(99)
	nan := float32(math.NaN())

	tests := []struct {
		name  string
		frame []byte
		want  *DecodeError
	}{
		{"command echo frame", buildFrame(0x01, 99, 10, 0, 0, 0), ErrUnknownFrameType},
		{"unknown discriminator", buildFrame(0xff, 99, 10, 0, 0, 0), ErrUnknownFrameType},
		{"foreign client ref", buildFrame(0x02, 7, 10, 0, 0, 0), ErrRefMismatch},
		{"NaN channel", buildFrame(0x02, 99, 10, nan, 0, 0), ErrSensorFault},
		{"positive infinity", buildFrame(0x02, 99, 10, 0, float32(math.Inf(1)), 0), ErrSensorFault},
		{"negative infinity", buildFrame(0x02, 99, 10, 0, 0, float32(math.Inf(-1))), ErrSensorFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode(tt.frame, time.Now())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var derr *DecodeError
			require.True(t, errors.As(err, &derr))
			assert.Equal(t, tt.want.Kind, derr.Kind)
		})
	}
}

func TestCommandFrames(t *testing.T) {
	// GOAL: Verify the arm/disarm command frames match the protocol layout
	//
	// TEST SCENARIO: Build commands → exact byte sequences

	assert.Equal(t, append([]byte{0x01, 99}, []byte("/Meas/Acc/13")...), SubscribeCommand(99, 13))
	assert.Equal(t, append([]byte{0x01, 7}, []byte("/Meas/Acc/104")...), SubscribeCommand(7, 104))
	assert.Equal(t, []byte{0x02, 99}, UnsubscribeCommand(99))
}

func TestSchemaOrder(t *testing.T) {
	// GOAL: The output schema has a fixed, documented column order
	//
	// TEST SCENARIO: ColumnNames → exact ordered slice; renderers produce
	// expected strings

	assert.Equal(t, []string{"timestamp", "timestamp_local", "ax", "ay", "az"}, ColumnNames())

	r := Reading{
		SensorMillis: 42,
		Received:     time.Date(2024, 3, 1, 12, 0, 0, 500000000, time.UTC),
		Ax:           1.5, Ay: -2, Az: 0,
	}
	s := Schema()
	ts, _ := s.Get("timestamp")
	assert.Equal(t, "42", ts(r))
	local, _ := s.Get("timestamp_local")
	assert.Equal(t, "2024-03-01T12:00:00.5Z", local(r))
	ax, _ := s.Get("ax")
	assert.Equal(t, "1.5", ax(r))
	ay, _ := s.Get("ay")
	assert.Equal(t, "-2", ay(r))
}
