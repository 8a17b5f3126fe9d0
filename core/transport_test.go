package core

import (
	"net/http"
	"testing"
)

func TestParseRequestUrl(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		host    string
		port    int
		path    string
		wantErr bool
		errKind ErrorKind
	}{
		{name: "default port", input: "https://example.com/page", host: "example.com", port: 443, path: "/page"},
		{name: "explicit port", input: "https://example.com:8443/", host: "example.com", port: 8443, path: "/"},
		{name: "empty path", input: "https://example.com", host: "example.com", port: 443, path: "/"},
		{name: "query preserved", input: "https://example.com/search?q=a&b=c", host: "example.com", port: 443, path: "/search?q=a&b=c"},
		{name: "onion address", input: "https://duckduckgogg42xjoc72x3sjasowoarfbgcmvfimaftt6twagswzczad.onion/", host: "duckduckgogg42xjoc72x3sjasowoarfbgcmvfimaftt6twagswzczad.onion", port: 443, path: "/"},
		{name: "missing host", input: "https:///path", wantErr: true, errKind: ErrKindInvalidUrl},
		{name: "port out of range", input: "https://example.com:99999/", wantErr: true, errKind: ErrKindInvalidUrl},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRequestUrl(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				if kind, ok := ErrorKindOf(err); !ok || kind != tt.errKind {
					t.Errorf("expected kind %v, got %v", tt.errKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.host != tt.host || got.port != tt.port || got.path != tt.path {
				t.Errorf("parsed %q as %+v", tt.input, got)
			}
		})
	}
}

func TestFlattenHeaders(t *testing.T) {
	h := http.Header{}
	h.Add("Content-Type", "text/html")
	h.Add("Vary", "Accept-Encoding")
	h.Add("Vary", "User-Agent")

	out := flattenHeaders(h)
	if len(out) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(out))
	}
	// Sorted by name, multi-valued collapsed.
	if out[0].Name != "Content-Type" || out[0].Value != "text/html" {
		t.Errorf("unexpected first header: %+v", out[0])
	}
	if out[1].Name != "Vary" || out[1].Value != "Accept-Encoding, User-Agent" {
		t.Errorf("unexpected vary header: %+v", out[1])
	}
}
