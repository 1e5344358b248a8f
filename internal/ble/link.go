// Package ble provides the production pump.Link implementation, wrapping
// tinygo.org/x/bluetooth against the pump's single GATT characteristic.
package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// ServiceUUID and CharUUID identify the pump's primary service and its
// single read/write/notify characteristic.
const (
	ServiceUUID = "0000abf0-0000-1000-8000-00805f9b34fb"
	CharUUID    = "0000abf7-0000-1000-8000-00805f9b34fb"
)

// NameSubstrings are the case-insensitive advertised-name fragments a pump
// is recognized by when no explicit MAC/service match is available.
var NameSubstrings = []string{"XPG-GAgent", "XPG_GAgent", "Jebao", "Gizwits"}

var (
	ErrNotFound     = errors.New("ble: no matching device found during scan")
	ErrNotConnected = errors.New("ble: characteristic not available, link is not connected")
)

var adapterOnce sync.Once
var adapterErr error

func ensureAdapterEnabled() error {
	adapterOnce.Do(func() {
		adapterErr = bluetooth.DefaultAdapter.Enable()
	})
	return adapterErr
}

// Link implements pump.Link against a real device at a fixed MAC address.
type Link struct {
	mac         string
	scanTimeout time.Duration

	mu             sync.RWMutex
	device         *bluetooth.Device
	characteristic *bluetooth.DeviceCharacteristic
	connected      bool
	notify         chan []byte
	onDisconnect   func()
}

// NewLink builds a Link targeting the device at mac (canonical BLE address
// form). scanTimeout bounds how long Connect waits to find it advertising.
func NewLink(mac string, scanTimeout time.Duration) *Link {
	if scanTimeout <= 0 {
		scanTimeout = 10 * time.Second
	}
	return &Link{mac: mac, scanTimeout: scanTimeout}
}

// Connect scans for the configured MAC, connects, discovers the pump's
// service and characteristic, and enables notifications on it.
func (l *Link) Connect(ctx context.Context) error {
	if err := ensureAdapterEnabled(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	result, err := l.scan(ctx)
	if err != nil {
		return err
	}

	device, err := bluetooth.DefaultAdapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("ble: connect to %s: %w", l.mac, err)
	}

	srvUUID, err := bluetooth.ParseUUID(ServiceUUID)
	if err != nil {
		device.Disconnect()
		return fmt.Errorf("ble: parse service uuid: %w", err)
	}
	services, err := device.DiscoverServices([]bluetooth.UUID{srvUUID})
	if err != nil || len(services) == 0 {
		device.Disconnect()
		return fmt.Errorf("ble: discover service %s: %w", ServiceUUID, err)
	}

	charUUID, err := bluetooth.ParseUUID(CharUUID)
	if err != nil {
		device.Disconnect()
		return fmt.Errorf("ble: parse characteristic uuid: %w", err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil || len(chars) == 0 {
		device.Disconnect()
		return fmt.Errorf("ble: discover characteristic %s: %w", CharUUID, err)
	}

	notify := make(chan []byte, 16)
	char := chars[0]
	if err := char.EnableNotifications(func(buf []byte) {
		data := make([]byte, len(buf))
		copy(data, buf)
		select {
		case notify <- data:
		default:
		}
	}); err != nil {
		device.Disconnect()
		return fmt.Errorf("ble: enable notifications: %w", err)
	}

	l.mu.Lock()
	l.device = &device
	l.characteristic = &char
	l.notify = notify
	l.connected = true
	l.mu.Unlock()

	return nil
}

func (l *Link) scan(ctx context.Context) (bluetooth.ScanResult, error) {
	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)

	go func() {
		err := bluetooth.DefaultAdapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if matchesTarget(result, l.mac) {
				adapter.StopScan()
				found <- result
			}
		})
		if err != nil {
			scanErr <- err
		}
	}()

	timeout := time.NewTimer(l.scanTimeout)
	defer timeout.Stop()

	select {
	case result := <-found:
		return result, nil
	case err := <-scanErr:
		return bluetooth.ScanResult{}, fmt.Errorf("ble: scan: %w", err)
	case <-timeout.C:
		bluetooth.DefaultAdapter.StopScan()
		return bluetooth.ScanResult{}, ErrNotFound
	case <-ctx.Done():
		bluetooth.DefaultAdapter.StopScan()
		return bluetooth.ScanResult{}, ctx.Err()
	}
}

func matchesTarget(result bluetooth.ScanResult, mac string) bool {
	if mac != "" {
		return strings.EqualFold(result.Address.String(), mac)
	}
	name := result.LocalName()
	for _, substr := range NameSubstrings {
		if strings.Contains(strings.ToLower(name), strings.ToLower(substr)) {
			return true
		}
	}
	return false
}

// Close disconnects the device. Safe to call when never connected.
func (l *Link) Close() error {
	l.mu.Lock()
	device := l.device
	l.connected = false
	l.device = nil
	l.characteristic = nil
	l.mu.Unlock()

	if device != nil {
		device.Disconnect()
	}
	return nil
}

// WriteWithoutResponse writes frame using the write-without-response GATT
// subtype, the only write mode the pump's characteristic supports.
func (l *Link) WriteWithoutResponse(frame []byte) error {
	l.mu.RLock()
	char := l.characteristic
	l.mu.RUnlock()

	if char == nil {
		return ErrNotConnected
	}
	_, err := char.WriteWithoutResponse(frame)
	if err != nil {
		l.fireDisconnect()
	}
	return err
}

// Notifications returns the channel notification payloads arrive on for
// the current connection.
func (l *Link) Notifications() <-chan []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.notify
}

// IsConnected reports the link's last-known connection state.
func (l *Link) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// OnDisconnect registers cb to run when the link drops. tinygo's bluetooth
// central-role API exposes no portable disconnect event across backends,
// so unsolicited drops are detected from a failed WriteWithoutResponse
// call instead and fed through the same callback a real disconnect event
// would use.
func (l *Link) OnDisconnect(cb func()) {
	l.mu.Lock()
	l.onDisconnect = cb
	l.mu.Unlock()
}

// fireDisconnect marks the link down and invokes the registered callback
// exactly once per connection, mirroring what a native disconnect event
// would do on a backend that has one.
func (l *Link) fireDisconnect() {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return
	}
	l.connected = false
	cb := l.onDisconnect
	l.mu.Unlock()

	if cb != nil {
		cb()
	}
}
