package session

import "errors"

// Lifecycle errors shared by the manager, store and RPC layers. Callers
// match them with errors.Is.
var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionAlreadyStopped = errors.New("session already stopped")
	ErrSessionAlreadyActive  = errors.New("session already active")
)
