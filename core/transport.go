package core

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"

	"github.com/veilnet/veilnet/log"
)

// Cap response bodies so a hostile server cannot exhaust memory.
const maxResponseBody = 32 * 1024 * 1024

type parsedUrl struct {
	host string
	port int
	path string
}

// parseRequestUrl validates and splits an already scheme-checked URL.
func parseRequestUrl(raw string) (*parsedUrl, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, wrapError(ErrKindInvalidUrl, err)
	}
	if u.Hostname() == "" {
		return nil, netError(ErrKindInvalidUrl, "missing host")
	}
	port := 443
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return nil, netError(ErrKindInvalidUrl, "invalid port")
		}
	}
	path := u.RequestURI()
	if path == "" {
		path = "/"
	}
	return &parsedUrl{host: u.Hostname(), port: port, path: path}, nil
}

type rawResponse struct {
	status  int
	headers []Header
	body    []byte
}

// torTransport performs one HTTPS round trip through the tor SOCKS proxy
// with the normalized handshake. Every call dials a fresh connection; nothing
// is pooled or reused, matching the one-circuit-per-request model.
type torTransport struct {
	ctrl          TransportController
	tlsNormalizer *TlsFingerprintNormalizer
}

func newTorTransport(ctrl TransportController, tn *TlsFingerprintNormalizer) *torTransport {
	return &torTransport{ctrl: ctrl, tlsNormalizer: tn}
}

// roundTrip issues the request. pad_len is the padding budget computed by the
// shaper; it is applied at the transport cell level below this layer, so here
// it only travels with the connection metadata.
func (t *torTransport) roundTrip(ctx context.Context, method string, target *parsedUrl, headers []Header, body []byte, pad_len int) (*rawResponse, error) {
	socks, err := proxy.SOCKS5("tcp", t.ctrl.ProxyAddress(), nil, proxy.Direct)
	if err != nil {
		return nil, wrapError(ErrKindTorConnection, err)
	}

	addr := net.JoinHostPort(target.host, strconv.Itoa(target.port))
	var conn net.Conn
	if cd, ok := socks.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = socks.Dial("tcp", addr)
	}
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	profile := t.tlsNormalizer.Profile()
	tls_cfg := &utls.Config{
		ServerName: target.host,
		NextProtos: profile.AlpnProtocols,
		MinVersion: profile.MinVersion,
		MaxVersion: profile.MaxVersion,
	}
	uconn := utls.UClient(conn, tls_cfg, t.tlsNormalizer.HelloID())
	if err := uconn.HandshakeContext(ctx); err != nil {
		return nil, wrapError(ErrKindTls, err)
	}

	log.Debug("tls established to %s via %s (alpn: %s, pad budget: %d)",
		target.host, t.ctrl.ProxyAddress(), uconn.ConnectionState().NegotiatedProtocol, pad_len)

	if uconn.ConnectionState().NegotiatedProtocol == "h2" {
		return t.roundTripH2(ctx, uconn, method, target, headers, body)
	}
	return t.roundTripH1(ctx, uconn, method, target, headers, body)
}

// roundTripH1 writes the request by hand so the header order chosen by
// NormalizeHeaderOrder survives onto the wire.
func (t *torTransport) roundTripH1(ctx context.Context, conn net.Conn, method string, target *parsedUrl, headers []Header, body []byte) (*rawResponse, error) {
	var req bytes.Buffer
	fmt.Fprintf(&req, "%s %s HTTP/1.1\r\n", method, target.path)
	fmt.Fprintf(&req, "Host: %s\r\n", target.host)
	for _, h := range headers {
		if strings.EqualFold(h.Name, "Host") {
			continue
		}
		fmt.Fprintf(&req, "%s: %s\r\n", h.Name, h.Value)
	}
	if len(body) > 0 {
		fmt.Fprintf(&req, "Content-Length: %d\r\n", len(body))
	}
	req.WriteString("\r\n")
	req.Write(body)

	if _, err := conn.Write(req.Bytes()); err != nil {
		return nil, classifyTransportError(err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	return readResponse(resp)
}

// roundTripH2 drives a single-connection HTTP/2 exchange over the already
// established tls session. HPACK decides the on-wire header layout here, so
// unlike h1 the normalized order is advisory.
func (t *torTransport) roundTripH2(ctx context.Context, conn net.Conn, method string, target *parsedUrl, headers []Header, body []byte) (*rawResponse, error) {
	tr := &http2.Transport{}
	cc, err := tr.NewClientConn(conn)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer cc.Close()

	var body_reader io.Reader
	if len(body) > 0 {
		body_reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method,
		fmt.Sprintf("https://%s:%d%s", target.host, target.port, target.path), body_reader)
	if err != nil {
		return nil, wrapError(ErrKindInvalidUrl, err)
	}
	for _, h := range headers {
		// h2 forbids the h1 connection-management headers.
		lower := strings.ToLower(h.Name)
		if lower == "connection" || lower == "keep-alive" || lower == "upgrade" {
			continue
		}
		req.Header.Add(h.Name, h.Value)
	}

	resp, err := cc.RoundTrip(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	return readResponse(resp)
}

func readResponse(resp *http.Response) (*rawResponse, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return &rawResponse{
		status:  resp.StatusCode,
		headers: flattenHeaders(resp.Header),
		body:    body,
	}, nil
}

// flattenHeaders turns the response header map into a deterministic, ordered,
// deduplicated list. Multi-valued headers collapse into one comma-joined
// entry.
func flattenHeaders(h http.Header) []Header {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Header, 0, len(names))
	for _, name := range names {
		out = append(out, Header{Name: name, Value: strings.Join(h[name], ", ")})
	}
	return out
}
