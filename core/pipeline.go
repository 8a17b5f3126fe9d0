package core

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/veilnet/veilnet/database"
	"github.com/veilnet/veilnet/log"
)

// Response headers removed before anything above this layer sees them.
// Cache validators and request/trace identifiers are re-identification
// vectors; CDN routing headers leak the serving edge.
var trackingResponseHeaders = []string{
	"set-cookie",
	"set-cookie2",
	"etag",
	"last-modified",
	"x-request-id",
	"x-correlation-id",
	"x-amzn-requestid",
	"x-amz-request-id",
	"cf-ray",
	"x-cache",
	"x-served-by",
	"x-timer",
	"x-trace-id",
}

// NetworkResponse is the result of one anonymized round trip. Immutable once
// constructed. CircuitId is for diagnostic display only and must never reach
// the content layer.
type NetworkResponse struct {
	Status    int
	Headers   []Header
	Body      []byte
	CircuitId string
}

type requestState int

const (
	stateValidating requestState = iota
	stateCircuitPending
	stateHeadersReady
	stateInFlight
	stateSuccess
	stateFailed
)

var requestStateNames = map[requestState]string{
	stateValidating:     "validating",
	stateCircuitPending: "circuit_pending",
	stateHeadersReady:   "headers_ready",
	stateInFlight:       "in_flight",
	stateSuccess:        "success",
	stateFailed:         "failed",
}

func (s requestState) String() string {
	return requestStateNames[s]
}

// AnonymizedNetwork is the per-request anonymization pipeline. Every outbound
// request gets a fresh circuit, synthetic headers, the normalized handshake
// and shaped timing; nothing is shared or remembered between requests.
type AnonymizedNetwork struct {
	cfg           NetworkConfig
	ctrl          TransportController
	circuits      *CircuitManager
	synthesizer   *HeaderSynthesizer
	shaper        *TrafficShaper
	tlsNormalizer *TlsFingerprintNormalizer
	transport     *torTransport
}

// NewAnonymizedNetwork builds the pipeline on top of an already bootstrapped
// transport controller. db may be nil to disable the diagnostics journal.
func NewAnonymizedNetwork(ctrl TransportController, db *database.Database) *AnonymizedNetwork {
	cfg := DefaultNetworkConfig()
	tn := NewTlsFingerprintNormalizer()
	return &AnonymizedNetwork{
		cfg:           cfg,
		ctrl:          ctrl,
		circuits:      NewCircuitManager(ctrl, db),
		synthesizer:   NewHeaderSynthesizer(),
		shaper:        NewTrafficShaper(cfg),
		tlsNormalizer: tn,
		transport:     newTorTransport(ctrl, tn),
	}
}

// Request performs one anonymized round trip.
//
// Steps run in strict order: validate, pre-jitter, fresh circuit, header
// synthesis and sanitization, padding budget, normalized handshake, the
// round trip under the configured timeout, response sanitization, post
// jitter. The first failure aborts the sequence; the circuit, once created,
// is closed on every exit path. No retries happen here: a retry would either
// reuse a circuit or silently create one per attempt, and that trade-off
// belongs to the caller.
func (an *AnonymizedNetwork) Request(ctx context.Context, method string, raw_url string, body []byte) (*NetworkResponse, error) {
	state := stateValidating

	u, err := url.Parse(raw_url)
	if err != nil {
		return nil, an.fail(&state, wrapError(ErrKindInvalidUrl, err))
	}
	if !strings.EqualFold(u.Scheme, "https") {
		scheme := u.Scheme
		if scheme == "" {
			scheme = "unknown"
		}
		return nil, an.fail(&state, netError(ErrKindProtocol, scheme))
	}
	target, err := parseRequestUrl(raw_url)
	if err != nil {
		return nil, an.fail(&state, err)
	}

	an.shaper.Jitter(ctx)

	state = stateCircuitPending
	circuit, err := an.circuits.NewCircuit(ctx)
	if err != nil {
		return nil, an.fail(&state, err)
	}
	// The circuit is single-use. Close it no matter how this request ends,
	// with a cleanup context independent of the request's own cancellation.
	defer func() {
		close_ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		an.circuits.CloseCircuit(close_ctx, circuit)
	}()

	state = stateHeadersReady
	// Sanitization always runs even though synthesis is trusted.
	headers := an.synthesizer.Generate()
	ordered := an.synthesizer.ToOrderedList(headers)
	ordered = StripDangerousHeaders(ordered)
	ordered = NormalizeHeaderOrder(ordered)

	pad_len := 0
	if len(body) > 0 {
		pad_len = an.shaper.PadLength(len(body))
	}

	state = stateInFlight
	req_ctx, cancel := context.WithTimeout(ctx, an.cfg.RequestTimeout())
	defer cancel()

	resp, err := an.transport.roundTrip(req_ctx, method, target, ordered, body, pad_len)
	if err != nil {
		return nil, an.fail(&state, err)
	}

	sanitized := sanitizeResponseHeaders(resp.headers)

	an.shaper.Jitter(ctx)

	state = stateSuccess
	log.Debug("request finished in state %s (status %d, %d headers, %d bytes)",
		state, resp.status, len(sanitized), len(resp.body))

	return &NetworkResponse{
		Status:    resp.status,
		Headers:   sanitized,
		Body:      resp.body,
		CircuitId: circuit.Id,
	}, nil
}

func (an *AnonymizedNetwork) fail(state *requestState, err error) error {
	log.Debug("request failed in state %s: %v", *state, err)
	*state = stateFailed
	return err
}

// sanitizeResponseHeaders removes the fixed tracking header set,
// case-insensitively. The remaining headers keep their order.
func sanitizeResponseHeaders(headers []Header) []Header {
	out := make([]Header, 0, len(headers))
	for _, h := range headers {
		if stringExists(strings.ToLower(h.Name), trackingResponseHeaders) {
			continue
		}
		out = append(out, h)
	}
	return out
}

// Shutdown force-closes every circuit still tracked.
func (an *AnonymizedNetwork) Shutdown(ctx context.Context) {
	an.circuits.CloseAll(ctx)
}

// IsHealthy reports whether the transport controller is connected.
// Diagnostic only.
func (an *AnonymizedNetwork) IsHealthy() bool {
	return an.ctrl.IsConnected()
}

// GetCircuitInfo returns current circuit details for display only.
func (an *AnonymizedNetwork) GetCircuitInfo() *CircuitInfo {
	return an.ctrl.CurrentCircuitInfo()
}

// ActiveCircuits reports how many circuits are tracked right now.
func (an *AnonymizedNetwork) ActiveCircuits() int {
	return an.circuits.ActiveCount()
}
