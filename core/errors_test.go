package core

import (
	"context"
	"errors"
	"net"
	"testing"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"deadline exceeded", context.DeadlineExceeded, ErrKindTimeout},
		{"net timeout", timeoutError{}, ErrKindTimeout},
		{"dns error", &net.DNSError{Err: "no such host", Name: "example.onion"}, ErrKindDns},
		{"socks host unreachable", errors.New("socks connect: host unreachable"), ErrKindDns},
		{"tls failure", errors.New("remote error: tls: handshake failure"), ErrKindTls},
		{"certificate failure", errors.New("x509: certificate signed by unknown authority"), ErrKindTls},
		{"connection refused", errors.New("connect: connection refused"), ErrKindRequestFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ne := classifyTransportError(tt.err)
			if ne == nil {
				t.Fatal("expected a classified error")
			}
			if ne.Kind != tt.kind {
				t.Errorf("classified as %v, expected %v", ne.Kind, tt.kind)
			}
		})
	}
}

func TestClassifyTransportErrorNil(t *testing.T) {
	if classifyTransportError(nil) != nil {
		t.Error("nil input must classify to nil")
	}
}

func TestClassifyTransportErrorPreservesExistingKind(t *testing.T) {
	orig := netError(ErrKindInvalidUrl, "bad url")
	if ne := classifyTransportError(orig); ne.Kind != ErrKindInvalidUrl {
		t.Errorf("reclassified an already typed error to %v", ne.Kind)
	}
}

func TestNetworkErrorIsMatchesByKind(t *testing.T) {
	err := wrapError(ErrKindTimeout, context.DeadlineExceeded)
	if !errors.Is(err, &NetworkError{Kind: ErrKindTimeout}) {
		t.Error("errors.Is failed to match by kind")
	}
	if errors.Is(err, &NetworkError{Kind: ErrKindTls}) {
		t.Error("errors.Is matched a different kind")
	}
}

func TestNetworkErrorUnwrap(t *testing.T) {
	err := wrapError(ErrKindTimeout, context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("wrapped cause lost")
	}
}

func TestErrorKindOf(t *testing.T) {
	if kind, ok := ErrorKindOf(netError(ErrKindDns, "x")); !ok || kind != ErrKindDns {
		t.Errorf("ErrorKindOf on a typed error: %v %v", kind, ok)
	}
	if _, ok := ErrorKindOf(errors.New("plain")); ok {
		t.Error("ErrorKindOf claimed a kind for an untyped error")
	}
}

func TestErrorKindString(t *testing.T) {
	if ErrKindProtocol.String() != "protocol not supported" {
		t.Errorf("unexpected name: %s", ErrKindProtocol)
	}
	if ErrorKind(99).String() != "unknown error" {
		t.Errorf("unexpected name for out-of-range kind: %s", ErrorKind(99))
	}
}
