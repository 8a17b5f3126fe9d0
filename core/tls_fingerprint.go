package core

import (
	"encoding/binary"

	utls "github.com/refraction-networking/utls"
)

const (
	VersionTls12 = uint16(0x0303)
	VersionTls13 = uint16(0x0304)
)

// Http2Setting is one SETTINGS frame entry. Order matters: HTTP/2 SETTINGS
// order is fingerprintable just like TLS extension order.
type Http2Setting struct {
	Id  uint16
	Val uint32
}

// Http2Priority carries the HEADERS frame priority parameters.
type Http2Priority struct {
	DependsOn uint32
	Weight    uint8
	Exclusive bool
}

// TlsProfile describes the complete handshake identity this layer presents.
// It is a process-wide constant: every request in every process run sends the
// bit-for-bit identical profile. Accessors hand out copies only.
type TlsProfile struct {
	CipherSuites        []uint16
	Extensions          []uint16
	SupportedGroups     []uint16
	SignatureAlgorithms []uint16
	AlpnProtocols       []string
	MinVersion          uint16
	MaxVersion          uint16
	Http2Settings       []Http2Setting
	WindowUpdate        uint32
	Priority            Http2Priority
}

// The Firefox ESR 115 / Tor Browser 13 handshake. Tracked to the browser
// release, never randomized: per-session variation here would make this
// instance uniquely identifiable instead of blending into the Tor Browser
// anonymity set.
var torBrowserProfile = TlsProfile{
	CipherSuites: []uint16{
		0x1301, // TLS_AES_128_GCM_SHA256
		0x1303, // TLS_CHACHA20_POLY1305_SHA256
		0x1302, // TLS_AES_256_GCM_SHA384
		0xc02b, // TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256
		0xc02f, // TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256
		0xc02c, // TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384
		0xc030, // TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384
		0xcca9, // TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256
		0xcca8, // TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256
		0xc013, // TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA
		0xc014, // TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA
		0x009c, // TLS_RSA_WITH_AES_128_GCM_SHA256
		0x009d, // TLS_RSA_WITH_AES_256_GCM_SHA384
		0x002f, // TLS_RSA_WITH_AES_128_CBC_SHA
		0x0035, // TLS_RSA_WITH_AES_256_CBC_SHA
	},
	Extensions: []uint16{
		0x0000, // server_name
		0x0017, // extended_master_secret
		0xff01, // renegotiation_info
		0x000a, // supported_groups
		0x000b, // ec_point_formats
		0x0023, // session_ticket
		0x0010, // application_layer_protocol_negotiation
		0x0005, // status_request
		0x0022, // delegated_credentials
		0x0033, // key_share
		0x002b, // supported_versions
		0x000d, // signature_algorithms
		0x001c, // record_size_limit
		0x001b, // compress_certificate
		0x0029, // pre_shared_key
	},
	SupportedGroups: []uint16{
		0x001d, // x25519
		0x0017, // secp256r1
		0x0018, // secp384r1
		0x0019, // secp521r1
		0x0100, // ffdhe2048
		0x0101, // ffdhe3072
	},
	SignatureAlgorithms: []uint16{
		0x0403, // ecdsa_secp256r1_sha256
		0x0503, // ecdsa_secp384r1_sha384
		0x0603, // ecdsa_secp521r1_sha512
		0x0804, // rsa_pss_rsae_sha256
		0x0805, // rsa_pss_rsae_sha384
		0x0806, // rsa_pss_rsae_sha512
		0x0401, // rsa_pkcs1_sha256
		0x0501, // rsa_pkcs1_sha384
		0x0601, // rsa_pkcs1_sha512
	},
	AlpnProtocols: []string{"h2", "http/1.1"},
	MinVersion:    VersionTls12,
	MaxVersion:    VersionTls13,
	Http2Settings: []Http2Setting{
		{0x1, 65536},  // HEADER_TABLE_SIZE
		{0x2, 0},      // ENABLE_PUSH
		{0x3, 0},      // MAX_CONCURRENT_STREAMS
		{0x4, 131072}, // INITIAL_WINDOW_SIZE
		{0x5, 16384},  // MAX_FRAME_SIZE
		{0x6, 0},      // MAX_HEADER_LIST_SIZE
	},
	WindowUpdate: 12517377,
	Priority: Http2Priority{
		DependsOn: 0,
		Weight:    41,
		Exclusive: false,
	},
}

// TlsFingerprintNormalizer pins the handshake identity of every outbound
// connection to the constant profile above.
type TlsFingerprintNormalizer struct{}

func NewTlsFingerprintNormalizer() *TlsFingerprintNormalizer {
	return &TlsFingerprintNormalizer{}
}

// Profile returns a copy of the constant profile. Pure: identical output on
// every call within (and across) process runs.
func (tn *TlsFingerprintNormalizer) Profile() TlsProfile {
	p := torBrowserProfile
	p.CipherSuites = append([]uint16(nil), torBrowserProfile.CipherSuites...)
	p.Extensions = append([]uint16(nil), torBrowserProfile.Extensions...)
	p.SupportedGroups = append([]uint16(nil), torBrowserProfile.SupportedGroups...)
	p.SignatureAlgorithms = append([]uint16(nil), torBrowserProfile.SignatureAlgorithms...)
	p.AlpnProtocols = append([]string(nil), torBrowserProfile.AlpnProtocols...)
	p.Http2Settings = append([]Http2Setting(nil), torBrowserProfile.Http2Settings...)
	return p
}

// HelloID returns the utls preset the transport dials with. The preset tracks
// the same Firefox release train as the profile constants.
func (tn *TlsFingerprintNormalizer) HelloID() utls.ClientHelloID {
	return utls.HelloFirefox_120
}

// ExpectedJA3 returns the JA3 hash the profile should produce on the wire.
// Diagnostic only.
func (tn *TlsFingerprintNormalizer) ExpectedJA3() string {
	return "e7d705a3286e19ea42f587b344ee6865"
}

// VerifyHandshake checks a captured ClientHello (raw handshake message, not
// the record layer) against the profile: cipher suite order, extension order,
// supported groups and signature algorithms must all match exactly. This is a
// test and diagnostics hook, never on the request path.
func (tn *TlsFingerprintNormalizer) VerifyHandshake(raw []byte) bool {
	hello, err := parseClientHello(raw)
	if err != nil {
		return false
	}
	return equalUint16s(hello.cipherSuites, torBrowserProfile.CipherSuites) &&
		equalUint16s(hello.extensions, torBrowserProfile.Extensions) &&
		equalUint16s(hello.supportedGroups, torBrowserProfile.SupportedGroups) &&
		equalUint16s(hello.signatureAlgorithms, torBrowserProfile.SignatureAlgorithms)
}

type clientHelloSummary struct {
	cipherSuites        []uint16
	extensions          []uint16
	supportedGroups     []uint16
	signatureAlgorithms []uint16
}

// parseClientHello extracts the fingerprint-relevant fields from a raw
// ClientHello handshake message.
func parseClientHello(raw []byte) (*clientHelloSummary, error) {
	r := &byteReader{buf: raw}

	// Handshake header: type(1) + length(3).
	typ, err := r.u8()
	if err != nil || typ != 0x01 {
		return nil, errMalformedHello
	}
	if _, err := r.bytes(3); err != nil {
		return nil, errMalformedHello
	}
	// legacy_version(2) + random(32)
	if _, err := r.bytes(34); err != nil {
		return nil, errMalformedHello
	}
	// session_id
	sidLen, err := r.u8()
	if err != nil {
		return nil, errMalformedHello
	}
	if _, err := r.bytes(int(sidLen)); err != nil {
		return nil, errMalformedHello
	}

	sum := &clientHelloSummary{}

	// cipher_suites
	csLen, err := r.u16()
	if err != nil || csLen%2 != 0 {
		return nil, errMalformedHello
	}
	csBytes, err := r.bytes(int(csLen))
	if err != nil {
		return nil, errMalformedHello
	}
	for i := 0; i+1 < len(csBytes); i += 2 {
		sum.cipherSuites = append(sum.cipherSuites, binary.BigEndian.Uint16(csBytes[i:]))
	}

	// compression_methods
	cmLen, err := r.u8()
	if err != nil {
		return nil, errMalformedHello
	}
	if _, err := r.bytes(int(cmLen)); err != nil {
		return nil, errMalformedHello
	}

	// extensions
	extLen, err := r.u16()
	if err != nil {
		return nil, errMalformedHello
	}
	extBytes, err := r.bytes(int(extLen))
	if err != nil {
		return nil, errMalformedHello
	}
	er := &byteReader{buf: extBytes}
	for er.remaining() > 0 {
		extType, err := er.u16()
		if err != nil {
			return nil, errMalformedHello
		}
		extDataLen, err := er.u16()
		if err != nil {
			return nil, errMalformedHello
		}
		extData, err := er.bytes(int(extDataLen))
		if err != nil {
			return nil, errMalformedHello
		}
		sum.extensions = append(sum.extensions, extType)

		switch extType {
		case 0x000a: // supported_groups
			sum.supportedGroups = parseUint16List(extData)
		case 0x000d: // signature_algorithms
			sum.signatureAlgorithms = parseUint16List(extData)
		}
	}
	return sum, nil
}

// parseUint16List reads a length-prefixed list of 16-bit identifiers.
func parseUint16List(data []byte) []uint16 {
	if len(data) < 2 {
		return nil
	}
	listLen := int(binary.BigEndian.Uint16(data))
	if listLen > len(data)-2 {
		listLen = len(data) - 2
	}
	var out []uint16
	for i := 2; i+1 < 2+listLen; i += 2 {
		out = append(out, binary.BigEndian.Uint16(data[i:]))
	}
	return out
}

var errMalformedHello = netError(ErrKindTls, "malformed client hello")

type byteReader struct {
	buf []byte
	off int
}

func (r *byteReader) remaining() int {
	return len(r.buf) - r.off
}

func (r *byteReader) u8() (byte, error) {
	if r.remaining() < 1 {
		return 0, errMalformedHello
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *byteReader) u16() (uint16, error) {
	if r.remaining() < 2 {
		return 0, errMalformedHello
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, errMalformedHello
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func equalUint16s(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
