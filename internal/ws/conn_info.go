package ws

import "time"

// ConnInfo is metadata captured when a websocket connects, carried along
// for audit events and error reporting.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
