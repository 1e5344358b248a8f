package pump

import "context"

// Link is the narrow surface a Session needs from a BLE GATT connection to
// a single pump. It exists so the state machine in session.go can be tested
// against a fake without any real Bluetooth stack, and so the production
// implementation (internal/ble) stays swappable.
//
// Modeled on the teacher's transport.Transport abstraction, narrowed down
// to exactly what one characteristic-bound session needs: connect, write
// without response, a notification stream, and a disconnect hook.
type Link interface {
	// Connect opens the GATT connection and discovers the service and
	// characteristic described by the implementation's configuration.
	// The Session registers its OnDisconnect callback right after Connect
	// returns successfully.
	Connect(ctx context.Context) error

	// Close tears down the GATT connection. Safe to call on an already
	// closed or never-connected Link.
	Close() error

	// WriteWithoutResponse writes frame to the pump's characteristic using
	// the "write without response" GATT subtype.
	WriteWithoutResponse(frame []byte) error

	// Notifications returns the channel notification payloads are
	// delivered on. The channel is valid for the lifetime of one Connect
	// call; it is not reused across reconnects.
	Notifications() <-chan []byte

	// IsConnected reports the link's last-known connection state.
	IsConnected() bool

	// OnDisconnect registers a callback invoked from the BLE stack's own
	// goroutine when the link drops unexpectedly; Close does not invoke it.
	// Implementations must tolerate being called with a nil previous
	// registration; only one callback is kept.
	OnDisconnect(func())
}
