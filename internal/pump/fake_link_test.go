package pump

import (
	"context"
	"sync"
)

// fakeLink is an in-memory Link used to drive the session state machine in
// tests without any real Bluetooth stack. onWrite lets a test script the
// device's side of the handshake (e.g. answering get_passcode with a
// passcode_response notification).
type fakeLink struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	connectCalls int
	writes       [][]byte
	notify       chan []byte
	onWrite      func(frame []byte, push func([]byte))
	onDisconnCB  func()
	writeErr     error
}

func newFakeLink() *fakeLink {
	return &fakeLink{notify: make(chan []byte, 8)}
}

func (f *fakeLink) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeLink) getConnectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeLink) WriteWithoutResponse(frame []byte) error {
	f.mu.Lock()
	writeErr := f.writeErr
	hook := f.onWrite
	f.writes = append(f.writes, append([]byte(nil), frame...))
	f.mu.Unlock()

	if writeErr != nil {
		return writeErr
	}
	if hook != nil {
		hook(frame, func(b []byte) { f.notify <- b })
	}
	return nil
}

func (f *fakeLink) Notifications() <-chan []byte { return f.notify }

func (f *fakeLink) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeLink) OnDisconnect(cb func()) {
	f.mu.Lock()
	f.onDisconnCB = cb
	f.mu.Unlock()
}

func (f *fakeLink) triggerDisconnect() {
	f.mu.Lock()
	f.connected = false
	cb := f.onDisconnCB
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (f *fakeLink) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeLink) lastWrite() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return nil
	}
	return f.writes[len(f.writes)-1]
}
