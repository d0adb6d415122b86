// Package link drives the peripheral connection lifecycle: discover,
// connect, configure, subscribe, stream, disconnect. It consumes BLE
// through the narrow Transport/Link interfaces so the whole lifecycle
// is testable against a fake transport.
package link

import (
	"context"
	"errors"
	"strings"
)

// Advertisement is one peripheral advertisement event seen while
// scanning.
type Advertisement struct {
	Name    string
	Address string
	RSSI    int
}

// Transport is the BLE capability the controller consumes. The real
// implementation lives in link/goble; tests supply fakes.
type Transport interface {
	// Scan streams advertisement events to handler until ctx is done.
	// A nil return means the scan ended because ctx was cancelled.
	Scan(ctx context.Context, handler func(Advertisement)) error

	// Connect establishes a connection to the peripheral at address.
	Connect(ctx context.Context, address string) (Link, error)
}

// Link is an established peripheral connection.
type Link interface {
	// WriteCharacteristic writes value to the characteristic identified
	// by service and characteristic UUID.
	WriteCharacteristic(serviceUUID, charUUID string, value []byte, withResponse bool) error

	// Subscribe registers handler for notifications from the given
	// characteristic. handler must not retain the byte slice.
	Subscribe(serviceUUID, charUUID string, handler func(data []byte)) error

	// Unsubscribe stops notifications from the given characteristic.
	Unsubscribe(serviceUUID, charUUID string) error

	// Disconnected is closed when the link is lost, whichever side
	// initiated it.
	Disconnected() <-chan struct{}

	// Close tears the connection down.
	Close() error
}

// Controller-level terminal errors
var (
	// ErrDiscoveryTimeout indicates no matching peripheral advertised
	// within the scan window.
	ErrDiscoveryTimeout = errors.New("no matching peripheral found")

	// ErrLinkLost indicates the connection dropped mid-stream. Buffered
	// data is still persisted by the caller before this surfaces.
	ErrLinkLost = errors.New("connection lost")
)

// Matcher selects the target peripheral by advertised name. Matching is
// substring containment, case-sensitive unless CaseFold is set. The
// first advertisement that matches wins; ties between multiple matching
// peripherals resolve by scan order.
type Matcher struct {
	Fragment string
	CaseFold bool
}

// Match reports whether an advertised local name selects the target.
// Empty advertised names never match.
func (m Matcher) Match(name string) bool {
	if name == "" || m.Fragment == "" {
		return false
	}
	if m.CaseFold {
		return strings.Contains(strings.ToLower(name), strings.ToLower(m.Fragment))
	}
	return strings.Contains(name, m.Fragment)
}
