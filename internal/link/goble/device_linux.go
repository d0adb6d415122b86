//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// newBLEDevice creates the HCI-backed BLE device.
func newBLEDevice() (ble.Device, error) {
	return linux.NewDevice()
}
