// Package session holds the in-memory recording session: an append-only
// ordered buffer of decoded readings plus the metadata needed to
// serialize them at shutdown.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/srg/senselog/internal/protocol"
)

// Sink persists a session snapshot to durable storage.
type Sink interface {
	Write(s *Session) error
}

// ErrClosed is returned by Append once the session has been closed.
// An in-flight notification racing the shutdown path lands here and is
// cleanly excluded instead of corrupting the snapshot.
var ErrClosed = fmt.Errorf("session closed")

// Session owns one recording interval, from connection establishment to
// shutdown. All mutation and snapshotting goes through a single mutex,
// so an append can never interleave with a snapshot or a close.
type Session struct {
	mu sync.Mutex

	identifier    string
	deviceName    string
	deviceAddress string
	start         time.Time
	end           time.Time
	closed        bool

	readings       []protocol.Reading
	decodeFailures int
}

// New creates a session for the resolved peripheral. identifier is the
// operator-supplied sensor fragment; deviceName and deviceAddress are
// the advertisement values it resolved to.
func New(identifier, deviceName, deviceAddress string) *Session {
	return &Session{
		identifier:    identifier,
		deviceName:    deviceName,
		deviceAddress: deviceAddress,
		start:         time.Now(),
	}
}

// Append adds one decoded reading in arrival order. Returns ErrClosed
// if the session has already been closed.
func (s *Session) Append(r protocol.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.readings = append(s.readings, r)
	return nil
}

// RecordDecodeFailure counts one notification that failed to decode.
// Failures are counted even after close so the shutdown summary stays
// honest about what arrived.
func (s *Session) RecordDecodeFailure() {
	s.mu.Lock()
	s.decodeFailures++
	s.mu.Unlock()
}

// Close marks the end of the session. Safe to call more than once; only
// the first call records the end timestamp.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.end = time.Now()
}

// Snapshot returns a copy of the buffered readings in arrival order.
func (s *Session) Snapshot() []protocol.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Reading, len(s.readings))
	copy(out, s.readings)
	return out
}

// Len returns the number of buffered readings.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readings)
}

// DecodeFailures returns the count of notifications that failed to decode.
func (s *Session) DecodeFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decodeFailures
}

// Start returns the session start time.
func (s *Session) Start() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start
}

// DeviceName returns the advertised name of the resolved peripheral.
func (s *Session) DeviceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceName
}

// DeviceAddress returns the address of the resolved peripheral.
func (s *Session) DeviceAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceAddress
}

// Identifier returns the operator-supplied sensor fragment the session
// was recorded for.
func (s *Session) Identifier() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identifier
}

// DefaultFileName derives the output file name from the session start,
// so repeated runs never clobber each other: sensor_data_<start>.<ext>.
func (s *Session) DefaultFileName(ext string) string {
	return fmt.Sprintf("sensor_data_%s.%s", s.Start().Format("20060102-150405"), ext)
}
