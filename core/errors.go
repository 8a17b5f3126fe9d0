package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

type ErrorKind int

const (
	ErrKindTorConnection ErrorKind = iota
	ErrKindCircuitCreation
	ErrKindRequestFailed
	ErrKindTimeout
	ErrKindTls
	ErrKindDns
	ErrKindInvalidUrl
	ErrKindProtocol
)

var errorKindNames = map[ErrorKind]string{
	ErrKindTorConnection:   "tor connection failed",
	ErrKindCircuitCreation: "circuit creation failed",
	ErrKindRequestFailed:   "request failed",
	ErrKindTimeout:         "request timed out",
	ErrKindTls:             "tls error",
	ErrKindDns:             "dns resolution failed",
	ErrKindInvalidUrl:      "invalid url",
	ErrKindProtocol:        "protocol not supported",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return "unknown error"
}

// NetworkError is the only error type returned to callers of the network
// layer. Every failure from an external collaborator is wrapped into exactly
// one kind; none are retried internally.
type NetworkError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *NetworkError) Error() string {
	name := errorKindNames[e.Kind]
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", name, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", name, e.Err)
	}
	return name
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is matches any *NetworkError of the same kind, so callers can test with
// errors.Is(err, &NetworkError{Kind: ErrKindTimeout}).
func (e *NetworkError) Is(target error) bool {
	t, ok := target.(*NetworkError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func netError(kind ErrorKind, detail string) *NetworkError {
	return &NetworkError{Kind: kind, Detail: detail}
}

func wrapError(kind ErrorKind, err error) *NetworkError {
	return &NetworkError{Kind: kind, Err: err}
}

// ErrorKindOf extracts the kind from an error returned by this package.
// The second result is false when err is not a *NetworkError.
func ErrorKindOf(err error) (ErrorKind, bool) {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Kind, true
	}
	return 0, false
}

// classifyTransportError maps a raw failure from the dial / handshake / I/O
// path onto the error taxonomy. Timeouts must stay distinct from generic
// request failures, and DNS and TLS failures get their own kinds.
func classifyTransportError(err error) *NetworkError {
	if err == nil {
		return nil
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wrapError(ErrKindTimeout, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return wrapError(ErrKindTimeout, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return wrapError(ErrKindDns, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "tls") || strings.Contains(msg, "handshake") || strings.Contains(msg, "certificate"):
		return wrapError(ErrKindTls, err)
	// SOCKS5 reply 0x04 is how the proxy reports a name it could not resolve.
	case strings.Contains(msg, "host unreachable") || strings.Contains(msg, "no such host"):
		return wrapError(ErrKindDns, err)
	default:
		return wrapError(ErrKindRequestFailed, err)
	}
}
