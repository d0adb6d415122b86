// Package testutils provides a scriptable fake BLE transport and
// assertion helpers shared by the package tests.
package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/srg/senselog/internal/link"
)

// FakeTransport is a scriptable link.Transport. Advertisements are
// replayed in order to every Scan call; Connect hands out the
// configured FakeLink.
type FakeTransport struct {
	Advertisements []link.Advertisement
	AdvertiseEvery time.Duration // optional delay between advertisements
	ScanErr        error
	ConnectErr     error
	Link           *FakeLink

	mu             sync.Mutex
	connectedAddrs []string
}

// NewFakeTransport returns a transport whose Connect yields a fresh
// FakeLink.
func NewFakeTransport(advs ...link.Advertisement) *FakeTransport {
	return &FakeTransport{
		Advertisements: advs,
		Link:           NewFakeLink(),
	}
}

// Scan replays the scripted advertisements, then blocks until ctx is
// done, mirroring a real radio that keeps scanning until cancelled.
func (t *FakeTransport) Scan(ctx context.Context, handler func(link.Advertisement)) error {
	if t.ScanErr != nil {
		return t.ScanErr
	}
	for _, adv := range t.Advertisements {
		if t.AdvertiseEvery > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(t.AdvertiseEvery):
			}
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		handler(adv)
	}
	<-ctx.Done()
	return nil
}

// Connect records the dialed address and returns the scripted link.
func (t *FakeTransport) Connect(_ context.Context, address string) (link.Link, error) {
	if t.ConnectErr != nil {
		return nil, t.ConnectErr
	}
	t.mu.Lock()
	t.connectedAddrs = append(t.connectedAddrs, address)
	t.mu.Unlock()
	return t.Link, nil
}

// ConnectedAddresses returns every address Connect was called with.
func (t *FakeTransport) ConnectedAddresses() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.connectedAddrs))
	copy(out, t.connectedAddrs)
	return out
}

// CharWrite is one recorded characteristic write.
type CharWrite struct {
	ServiceUUID  string
	CharUUID     string
	Value        []byte
	WithResponse bool
}

// FakeLink is a scriptable link.Link that records writes and lets tests
// inject notifications and connection loss.
type FakeLink struct {
	WriteErr       error
	SubscribeErr   error
	UnsubscribeErr error
	CloseErr       error

	mu           sync.Mutex
	writes       []CharWrite
	handler      func([]byte)
	unsubscribed bool
	closed       bool

	disconnected     chan struct{}
	disconnectedOnce sync.Once
}

// NewFakeLink returns a connected fake link.
func NewFakeLink() *FakeLink {
	return &FakeLink{disconnected: make(chan struct{})}
}

func (l *FakeLink) WriteCharacteristic(serviceUUID, charUUID string, value []byte, withResponse bool) error {
	if l.WriteErr != nil {
		return l.WriteErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	l.writes = append(l.writes, CharWrite{
		ServiceUUID:  serviceUUID,
		CharUUID:     charUUID,
		Value:        v,
		WithResponse: withResponse,
	})
	return nil
}

func (l *FakeLink) Subscribe(_, _ string, handler func(data []byte)) error {
	if l.SubscribeErr != nil {
		return l.SubscribeErr
	}
	l.mu.Lock()
	l.handler = handler
	l.mu.Unlock()
	return nil
}

func (l *FakeLink) Unsubscribe(_, _ string) error {
	l.mu.Lock()
	l.unsubscribed = true
	l.mu.Unlock()
	return l.UnsubscribeErr
}

func (l *FakeLink) Disconnected() <-chan struct{} {
	return l.disconnected
}

func (l *FakeLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return l.CloseErr
}

// Notify delivers one raw notification to the subscribed handler, as
// the radio would. No-op when nothing is subscribed.
func (l *FakeLink) Notify(data []byte) {
	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()
	if h != nil {
		h(data)
	}
}

// WaitSubscribed blocks until a handler is registered or the timeout
// elapses. Returns true when subscribed.
func (l *FakeLink) WaitSubscribed(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		ok := l.handler != nil
		l.mu.Unlock()
		if ok {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// DropConnection simulates mid-stream link loss.
func (l *FakeLink) DropConnection() {
	l.disconnectedOnce.Do(func() { close(l.disconnected) })
}

// Writes returns every recorded characteristic write in order.
func (l *FakeLink) Writes() []CharWrite {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CharWrite, len(l.writes))
	copy(out, l.writes)
	return out
}

// Unsubscribed reports whether Unsubscribe was called.
func (l *FakeLink) Unsubscribed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unsubscribed
}

// Closed reports whether Close was called.
func (l *FakeLink) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
