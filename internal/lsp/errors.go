package lsp

import (
	"errors"
	"fmt"
)

// Errors surfaced by the LSP subsystem. All of them are non-fatal to the
// editor: features degrade to "unavailable" and the status line shows a
// transient message.
var (
	// ErrTransportClosed means the server process died or its pipe broke.
	// Every request pending at that moment fails with it.
	ErrTransportClosed = errors.New("lsp: transport closed")

	// ErrServerNotReady means the session has not finished initializing
	// (or is shutting down). Requests are rejected, never queued.
	ErrServerNotReady = errors.New("lsp: server not ready")

	// ErrServerDisabled means the language hit the crash-restart limit
	// and needs an explicit reset.
	ErrServerDisabled = errors.New("lsp: server disabled after repeated crashes")

	// ErrNoServerConfigured means the language has no server entry in the
	// configuration.
	ErrNoServerConfigured = errors.New("lsp: no server configured for language")

	// ErrCapabilityUnavailable means the feature is switched off in the
	// configuration or was not negotiated at initialize time.
	ErrCapabilityUnavailable = errors.New("lsp: capability unavailable")

	// ErrRequestTimeout means the request outlived the configured ceiling.
	ErrRequestTimeout = errors.New("lsp: request timed out")
)

// RPCError is a JSON-RPC error object returned by the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
