package backend

import (
	"errors"
	"fmt"
)

// Backend errors.
var (
	// ErrUnsupportedScheme is returned by Resolve for an unknown URL scheme.
	ErrUnsupportedScheme = errors.New("unsupported target scheme")

	// ErrInvalidTarget is returned by Resolve for an empty or malformed target.
	ErrInvalidTarget = errors.New("invalid crawl target")

	// ErrInvalidProxyAddress is returned when the proxy address format is invalid.
	// Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrProxyNotSOCKS5 is returned when the proxy does not speak SOCKS5.
	ErrProxyNotSOCKS5 = errors.New("proxy is not a SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when the proxy cannot be reached.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrSessionType is returned when a backend receives a session it did not create.
	ErrSessionType = errors.New("session was not created by this backend")

	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("session is closed")

	// ErrNotDirectory is returned when listing a path that is not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrUnexpectedStatus is returned for an HTTP status the index backend
	// cannot interpret.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
)

// FTPError is a negative FTP reply.
type FTPError struct {
	// Cmd is the command that was rejected (without arguments).
	Cmd string

	// Code is the reply code.
	Code int

	// Msg is the reply text.
	Msg string
}

// Error implements error.
func (e *FTPError) Error() string {
	return fmt.Sprintf("ftp %s: %d %s", e.Cmd, e.Code, e.Msg)
}
