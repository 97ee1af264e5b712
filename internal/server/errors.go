package server

import "errors"

var (
	// ErrHandlerRequired is returned by Run when no ConnectionHandler was
	// set via SetHandler.
	ErrHandlerRequired = errors.New("server: no connection handler configured")

	// ErrListenerTLSRequired is returned by Run when a listener is
	// configured for TLS but the server has no certificate loaded.
	ErrListenerTLSRequired = errors.New("server: TLS required but not configured")
)
