// Package goble implements the link.Transport capability on top of the
// go-ble library.
package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/senselog/internal/link"
)

// normalizeUUID converts a UUID string to the internal BLE library
// format (lowercase, no dashes). Handles both standard UUID format and
// already normalized input.
func normalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
}

// Transport is the go-ble backed BLE capability.
type Transport struct {
	logger *logrus.Logger

	initOnce sync.Once
	initErr  error
}

// NewTransport creates a go-ble transport. The radio device itself is
// created lazily on first use so construction never touches hardware.
func NewTransport(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{logger: logger}
}

// init creates the platform BLE device once and registers it as the
// go-ble default device.
func (t *Transport) init() error {
	t.initOnce.Do(func() {
		dev, err := newBLEDevice()
		if err != nil {
			t.initErr = fmt.Errorf("failed to create BLE device: %w", err)
			return
		}
		ble.SetDefaultDevice(dev)
	})
	return t.initErr
}

// Scan streams advertisement events until ctx is done. Cancellation and
// deadline expiry are a normal end of scan, not an error.
func (t *Transport) Scan(ctx context.Context, handler func(link.Advertisement)) error {
	if err := t.init(); err != nil {
		return err
	}

	err := ble.Scan(ctx, false, func(a ble.Advertisement) {
		handler(link.Advertisement{
			Name:    a.LocalName(),
			Address: a.Addr().String(),
			RSSI:    a.RSSI(),
		})
	}, nil)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Connect dials the peripheral and discovers its full GATT profile so
// characteristic lookups never hit the radio again.
func (t *Transport) Connect(ctx context.Context, address string) (link.Link, error) {
	if err := t.init(); err != nil {
		return nil, err
	}

	t.logger.WithField("address", address).Debug("Dialing peripheral")
	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("dial %q: %w", address, err)
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("discover profile: %w", err)
	}

	return &bleLink{client: client, profile: profile, logger: t.logger}, nil
}

// bleLink adapts a live go-ble client to link.Link.
type bleLink struct {
	client  ble.Client
	profile *ble.Profile
	logger  *logrus.Logger

	writeMu sync.Mutex
}

// findCharacteristic locates a characteristic in the discovered profile
// by normalized service and characteristic UUID.
func (l *bleLink) findCharacteristic(serviceUUID, charUUID string) (*ble.Characteristic, error) {
	wantSvc := normalizeUUID(serviceUUID)
	wantChar := normalizeUUID(charUUID)

	for _, svc := range l.profile.Services {
		if normalizeUUID(svc.UUID.String()) != wantSvc {
			continue
		}
		for _, char := range svc.Characteristics {
			if normalizeUUID(char.UUID.String()) == wantChar {
				return char, nil
			}
		}
		return nil, fmt.Errorf("characteristic %q not found in service %q", charUUID, serviceUUID)
	}
	return nil, fmt.Errorf("service %q not found", serviceUUID)
}

func (l *bleLink) WriteCharacteristic(serviceUUID, charUUID string, value []byte, withResponse bool) error {
	char, err := l.findCharacteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.client.WriteCharacteristic(char, value, !withResponse); err != nil {
		return fmt.Errorf("write characteristic %q: %w", charUUID, err)
	}
	return nil
}

func (l *bleLink) Subscribe(serviceUUID, charUUID string, handler func(data []byte)) error {
	char, err := l.findCharacteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}

	if err := l.client.Subscribe(char, false, func(req []byte) {
		handler(req)
	}); err != nil {
		return fmt.Errorf("subscribe to %q: %w", charUUID, err)
	}
	return nil
}

func (l *bleLink) Unsubscribe(serviceUUID, charUUID string) error {
	char, err := l.findCharacteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}

	if err := l.client.Unsubscribe(char, false); err != nil {
		return fmt.Errorf("unsubscribe from %q: %w", charUUID, err)
	}
	return nil
}

func (l *bleLink) Disconnected() <-chan struct{} {
	return l.client.Disconnected()
}

func (l *bleLink) Close() error {
	return l.client.CancelConnection()
}
