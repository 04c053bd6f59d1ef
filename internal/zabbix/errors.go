package zabbix

import (
	"errors"
	"fmt"
)

var (
	// ErrBadMagic is reported when a frame does not start with Magic.
	ErrBadMagic = errors.New("bad frame magic")
	// ErrShortRead is reported when fewer bytes arrive than the frame declares.
	ErrShortRead = errors.New("short read")
)

// ProtocolError is a malformed or truncated sender-protocol frame.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("sender protocol: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TransportError is a connect, timeout or socket IO failure.
type TransportError struct {
	Addr string
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sender transport %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a failure reported by the query API in the "error" member of a
// JSON-RPC response, as opposed to an HTTP or network failure.
type APIError struct {
	Method  string `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *APIError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("%s: api error %d: %s %s", e.Method, e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("%s: api error %d: %s", e.Method, e.Code, e.Message)
}

// AuthError means the backend rejected the configured credentials.
type AuthError struct {
	User string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("incorrect user or password for %q: %v", e.User, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
