// Package protocol implements the Movesense GATT sensor-data protocol:
// the command frames that arm/disarm the acceleration stream and the
// decoder for the binary data notifications the sensor pushes back.
//
// The decoder is a pure function over a notification byte buffer and is
// fully testable without any BLE transport.
package protocol

import "fmt"

// GATT identifiers of the Movesense sensor-data service.
const (
	ServiceUUID     = "34802252-7185-4d5d-b431-630e7050e8f0"
	CommandCharUUID = "34800001-7185-4d5d-b431-630e7050e8f0"
	DataCharUUID    = "34800002-7185-4d5d-b431-630e7050e8f0"
)

// Command frame type bytes written to the command characteristic.
const (
	cmdSubscribe   byte = 0x01
	cmdUnsubscribe byte = 0x02
)

// frameData marks a data notification on the wire. The sensor echoes the
// client reference byte from the subscribe command in every data frame.
const frameData byte = 0x02

// DefaultClientRef is the client reference byte used when the caller does
// not pick one. The value itself is arbitrary; it only has to match
// between the subscribe command and inbound data frames.
const DefaultClientRef byte = 99

// DefaultSampleRate is the acceleration sampling rate in Hz requested by
// default. Movesense accepts 13, 26, 52, 104, 208 and 416.
const DefaultSampleRate = 13

// accResource is the whiteboard resource path prefix for the
// acceleration measurement stream.
const accResource = "/Meas/Acc/"

// SubscribeCommand builds the command frame that arms the acceleration
// stream at the given sampling rate.
func SubscribeCommand(ref byte, sampleRate int) []byte {
	path := fmt.Sprintf("%s%d", accResource, sampleRate)
	frame := make([]byte, 0, 2+len(path))
	frame = append(frame, cmdSubscribe, ref)
	frame = append(frame, path...)
	return frame
}

// UnsubscribeCommand builds the command frame that disarms the stream
// previously subscribed with the same reference byte.
func UnsubscribeCommand(ref byte) []byte {
	return []byte{cmdUnsubscribe, ref}
}
