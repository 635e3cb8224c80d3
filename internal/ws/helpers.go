package ws

import "github.com/google/uuid"

// newConnID labels a connection for audit events and error reporting.
func newConnID() string {
	return uuid.NewString()
}
