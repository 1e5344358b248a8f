package pump

import "errors"

// Sentinel errors a Session returns to callers. ErrNotConnected and
// ErrInvalidMode are the command path's NotConnected and CommandInvalid
// error kinds. Connect returns ErrAuthTimeout (or the Link's own transport
// error) to its caller, logs it, and schedules the reconnect loop.
// ErrStopped is returned once the session has been disconnected.
var (
	ErrNotConnected = errors.New("pump: session is not connected and authenticated")
	ErrInvalidMode  = errors.New("pump: mode is not one of the known codes")
	ErrStopped      = errors.New("pump: session has been stopped")
	ErrAuthTimeout  = errors.New("pump: authentication handshake timed out")
)
