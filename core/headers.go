package core

import (
	"sort"
	"strings"
)

// User-Agent anonymity set, matching the Tor Browser 13.0 release train.
// Picking anything outside this list would re-introduce a distinguishable
// fingerprint, so the set is fixed and versioned together.
var torBrowserUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; rv:115.0) Gecko/20100101 Firefox/115.0",
	"Mozilla/5.0 (X11; Linux x86_64; rv:115.0) Gecko/20100101 Firefox/115.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:115.0) Gecko/20100101 Firefox/115.0",
}

const (
	// Accept-Language is fixed. Rotating it is itself a fingerprinting signal.
	acceptLanguage = "en-US,en;q=0.5"
	acceptHtml     = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	acceptImage    = "image/avif,image/webp,*/*"
	acceptEncoding = "gzip, deflate, br"
)

// Headers that must never leave this layer, in a request or synthesized set.
var dangerousHeaders = []string{
	"cookie",
	"authorization",
	"proxy-authorization",
	"x-forwarded-for",
	"x-real-ip",
	"x-client-ip",
	"forwarded",
	"via",
	"x-request-id",
	"x-correlation-id",
	"dnt",
	"referer",
	"origin",
}

// Canonical outgoing header order (Tor Browser / Firefox). Header order leaks
// client identity just like header values do.
var headerOrder = []string{
	"host",
	"user-agent",
	"accept",
	"accept-language",
	"accept-encoding",
	"connection",
	"upgrade-insecure-requests",
	"sec-fetch-dest",
	"sec-fetch-mode",
	"sec-fetch-site",
	"sec-fetch-user",
	"content-type",
	"content-length",
}

// Header is one (name, value) pair. Order matters on the wire, so header sets
// are slices, not maps.
type Header struct {
	Name  string
	Value string
}

// SyntheticHeaders is the per-request generated header set. Created fresh for
// every request, discarded after use, never cached and never logged with
// values.
type SyntheticHeaders struct {
	UserAgent      string
	Accept         string
	AcceptLanguage string
	AcceptEncoding string
}

// HeaderSynthesizer produces randomized-but-plausible header sets.
type HeaderSynthesizer struct{}

func NewHeaderSynthesizer() *HeaderSynthesizer {
	return &HeaderSynthesizer{}
}

// Generate builds a fresh header set. The User-Agent is chosen uniformly from
// the fixed anonymity set; everything else is constant.
func (hs *HeaderSynthesizer) Generate() *SyntheticHeaders {
	return &SyntheticHeaders{
		UserAgent:      torBrowserUserAgents[randomInt(len(torBrowserUserAgents))],
		Accept:         acceptHtml,
		AcceptLanguage: acceptLanguage,
		AcceptEncoding: acceptEncoding,
	}
}

// GenerateForImage is Generate with the image accept header.
func (hs *HeaderSynthesizer) GenerateForImage() *SyntheticHeaders {
	h := hs.Generate()
	h.Accept = acceptImage
	return h
}

// ToOrderedList expands a synthetic set into the full outgoing header list.
// Deliberately absent: referer, cookie, dnt, x-forwarded-* and every custom
// application header.
func (hs *HeaderSynthesizer) ToOrderedList(h *SyntheticHeaders) []Header {
	return []Header{
		{"User-Agent", h.UserAgent},
		{"Accept", h.Accept},
		{"Accept-Language", h.AcceptLanguage},
		{"Accept-Encoding", h.AcceptEncoding},
		{"Connection", "keep-alive"},
		{"Upgrade-Insecure-Requests", "1"},
		{"Sec-Fetch-Dest", "document"},
		{"Sec-Fetch-Mode", "navigate"},
		{"Sec-Fetch-Site", "none"},
		{"Sec-Fetch-User", "?1"},
	}
}

// StripDangerousHeaders returns the input list without any case-insensitive
// match against the forbidden set. Pure and idempotent; the input slice is
// not modified.
func StripDangerousHeaders(headers []Header) []Header {
	out := make([]Header, 0, len(headers))
	for _, h := range headers {
		if stringExists(strings.ToLower(h.Name), dangerousHeaders) {
			continue
		}
		out = append(out, h)
	}
	return out
}

// NormalizeHeaderOrder sorts headers by the canonical position table. Headers
// absent from the table sort after all known headers and keep their relative
// input order. The input slice is not modified.
func NormalizeHeaderOrder(headers []Header) []Header {
	out := make([]Header, len(headers))
	copy(out, headers)

	pos := func(name string) int {
		lower := strings.ToLower(name)
		for i, k := range headerOrder {
			if k == lower {
				return i
			}
		}
		return len(headerOrder)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return pos(out[i].Name) < pos(out[j].Name)
	})
	return out
}
