package stream

import "errors"

// Connection lifecycle errors. Background stream failures (parse errors,
// failed reconnection) are delivered through the error callback instead,
// wrapping the same sentinels.
var (
	ErrCredentialsMissing       = errors.New("provider credentials missing")
	ErrProviderNotConnected     = errors.New("provider not connected")
	ErrProviderConnectionFailed = errors.New("provider connection failed")
	ErrReconnectionFailed       = errors.New("provider reconnection failed")
)
