package core

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/veilnet/veilnet/log"
)

// CircuitInfo describes the current circuit for display purposes only.
// Nothing in the request pipeline reads it.
type CircuitInfo struct {
	EntryRegion string `json:"entry_region"`
	ExitRegion  string `json:"exit_region"`
	HopCount    int    `json:"hop_count"`
}

// TransportController is the boundary to the external anonymizing transport
// daemon. The pipeline consumes this interface and never reaches around it to
// perform direct I/O.
type TransportController interface {
	Bootstrap(ctx context.Context) error
	NewCircuit(ctx context.Context) (string, error)
	CloseCircuit(ctx context.Context, id string) error
	ProxyAddress() string
	IsConnected() bool
	CurrentCircuitInfo() *CircuitInfo
}

// TorRunConfig holds the operator-facing daemon settings. These configure how
// the external tor process runs, not how requests are anonymized.
type TorRunConfig struct {
	DataDir     string   `mapstructure:"data_dir" json:"data_dir" yaml:"data_dir"`
	CookiePath  string   `mapstructure:"cookie_path" json:"cookie_path" yaml:"cookie_path"`
	UseBridges  bool     `mapstructure:"use_bridges" json:"use_bridges" yaml:"use_bridges"`
	Bridges     []string `mapstructure:"bridges" json:"bridges" yaml:"bridges"`
	DisableDisk bool     `mapstructure:"disable_disk" json:"disable_disk" yaml:"disable_disk"`
	StrictExit  bool     `mapstructure:"strict_exit" json:"strict_exit" yaml:"strict_exit"`
}

func DefaultTorRunConfig() *TorRunConfig {
	return &TorRunConfig{
		DataDir:     "/dev/shm/veilnet-tor", // RAM-backed, nothing touches disk
		CookiePath:  "",
		UseBridges:  false,
		Bridges:     []string{},
		DisableDisk: true,
		StrictExit:  true,
	}
}

// ToTorrc renders the torrc contents for the embedded daemon.
func (tc *TorRunConfig) ToTorrc(socks_port int, control_port int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("DataDirectory %s\n", tc.DataDir))
	sb.WriteString(fmt.Sprintf("SocksPort %d\n", socks_port))
	sb.WriteString(fmt.Sprintf("ControlPort %d\n", control_port))

	sb.WriteString("CookieAuthentication 1\n")
	if tc.DisableDisk {
		sb.WriteString("AvoidDiskWrites 1\n")
	}
	sb.WriteString("DisableDebuggerAttachment 1\n")
	sb.WriteString("DisableNetwork 0\n")

	if tc.StrictExit {
		sb.WriteString("ExitRelay 0\n")
		sb.WriteString("StrictNodes 1\n")
	}

	if tc.UseBridges {
		sb.WriteString("UseBridges 1\n")
		for _, bridge := range tc.Bridges {
			sb.WriteString(fmt.Sprintf("Bridge %s\n", bridge))
		}
	}

	sb.WriteString("SafeLogging 1\n")
	sb.WriteString("ClientOnly 1\n")

	return sb.String()
}

// TorController talks to a tor daemon over its control port. It is the sole
// implementation of TransportController outside of tests.
type TorController struct {
	socksPort   int
	controlPort int
	cookiePath  string

	mtx       sync.Mutex
	conn      *textproto.Conn
	rawConn   net.Conn
	connected bool
}

func NewTorController(socks_port int, control_port int, cookie_path string) *TorController {
	return &TorController{
		socksPort:   socks_port,
		controlPort: control_port,
		cookiePath:  cookie_path,
	}
}

// Bootstrap connects to the control port, authenticates and waits until the
// daemon reports an established circuit. Must complete before the pipeline
// is usable.
func (tc *TorController) Bootstrap(ctx context.Context) error {
	tc.mtx.Lock()
	defer tc.mtx.Unlock()

	if tc.connected {
		return nil
	}

	d := net.Dialer{}
	raw, err := d.DialContext(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", tc.controlPort))
	if err != nil {
		return wrapError(ErrKindTorConnection, err)
	}
	conn := textproto.NewConn(raw)

	auth := "AUTHENTICATE"
	if tc.cookiePath != "" {
		cookie, err := os.ReadFile(tc.cookiePath)
		if err != nil {
			raw.Close()
			return wrapError(ErrKindTorConnection, err)
		}
		auth = fmt.Sprintf("AUTHENTICATE %s", hex.EncodeToString(cookie))
	}
	if _, err := tc.command(conn, raw, ctx, auth); err != nil {
		raw.Close()
		return wrapError(ErrKindTorConnection, err)
	}

	// Poll until the daemon has built its first circuit.
	for {
		lines, err := tc.command(conn, raw, ctx, "GETINFO status/circuit-established")
		if err != nil {
			raw.Close()
			return wrapError(ErrKindTorConnection, err)
		}
		if len(lines) > 0 && strings.HasSuffix(strings.TrimSpace(lines[0]), "=1") {
			break
		}
		select {
		case <-ctx.Done():
			raw.Close()
			return wrapError(ErrKindTorConnection, ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}

	tc.conn = conn
	tc.rawConn = raw
	tc.connected = true
	log.Info("tor bootstrap complete (socks port %d, control port %d)", tc.socksPort, tc.controlPort)
	return nil
}

// NewCircuit asks the daemon to build a fresh circuit and returns its
// identifier. The identifier comes from the daemon, so it is never reused
// for two different requests.
func (tc *TorController) NewCircuit(ctx context.Context) (string, error) {
	tc.mtx.Lock()
	defer tc.mtx.Unlock()

	if !tc.connected {
		return "", netError(ErrKindTorConnection, "controller not bootstrapped")
	}
	lines, err := tc.command(tc.conn, tc.rawConn, ctx, "EXTENDCIRCUIT 0")
	if err != nil {
		return "", err
	}
	// Reply: "EXTENDED <CircuitID>"
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "EXTENDED" {
			return fields[1], nil
		}
	}
	return "", netError(ErrKindCircuitCreation, "unexpected EXTENDCIRCUIT reply")
}

// CloseCircuit tears down one circuit. Best effort; callers log failures and
// move on.
func (tc *TorController) CloseCircuit(ctx context.Context, id string) error {
	tc.mtx.Lock()
	defer tc.mtx.Unlock()

	if !tc.connected {
		return netError(ErrKindTorConnection, "controller not bootstrapped")
	}
	_, err := tc.command(tc.conn, tc.rawConn, ctx, fmt.Sprintf("CLOSECIRCUIT %s", id))
	return err
}

func (tc *TorController) ProxyAddress() string {
	return fmt.Sprintf("127.0.0.1:%d", tc.socksPort)
}

func (tc *TorController) IsConnected() bool {
	tc.mtx.Lock()
	defer tc.mtx.Unlock()
	return tc.connected
}

// CurrentCircuitInfo reports entry/exit of the newest built circuit. Display
// only; pipeline logic never calls it.
func (tc *TorController) CurrentCircuitInfo() *CircuitInfo {
	tc.mtx.Lock()
	defer tc.mtx.Unlock()

	if !tc.connected {
		return nil
	}
	lines, err := tc.command(tc.conn, tc.rawConn, context.Background(), "GETINFO circuit-status")
	if err != nil {
		return nil
	}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[1] != "BUILT" {
			continue
		}
		hops := strings.Split(fields[2], ",")
		info := &CircuitInfo{HopCount: len(hops)}
		if len(hops) > 0 {
			info.EntryRegion = relayName(hops[0])
			info.ExitRegion = relayName(hops[len(hops)-1])
		}
		return info
	}
	return nil
}

// Close shuts down the control connection.
func (tc *TorController) Close() {
	tc.mtx.Lock()
	defer tc.mtx.Unlock()
	if tc.rawConn != nil {
		tc.rawConn.Close()
		tc.rawConn = nil
		tc.conn = nil
	}
	tc.connected = false
}

// command sends one control command and collects the reply lines. Handles the
// three reply forms of the control protocol: "250 " final lines, "250-" mid
// lines and "250+" data blocks terminated by a lone dot. The control
// connection is serialized by the caller's lock.
func (tc *TorController) command(conn *textproto.Conn, raw net.Conn, ctx context.Context, cmd string) ([]string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		raw.SetDeadline(deadline)
		defer raw.SetDeadline(time.Time{})
	}
	if err := conn.PrintfLine("%s", cmd); err != nil {
		return nil, err
	}
	var lines []string
	for {
		line, err := conn.ReadLine()
		if err != nil {
			return nil, err
		}
		if len(line) < 4 {
			return nil, fmt.Errorf("malformed control reply: %q", line)
		}
		code, sep, rest := line[:3], line[3], line[4:]
		if code != "250" && code != "650" {
			return nil, fmt.Errorf("control command failed: %s", line)
		}
		if code == "650" {
			// Async event, not ours.
			continue
		}
		if sep == '+' {
			// Data block: payload lines follow until a lone dot.
			if rest != "" {
				lines = append(lines, rest)
			}
			for {
				dline, err := conn.ReadLine()
				if err != nil {
					return nil, err
				}
				if dline == "." {
					break
				}
				if strings.HasPrefix(dline, "..") {
					dline = dline[1:]
				}
				lines = append(lines, dline)
			}
			continue
		}
		if rest != "OK" {
			lines = append(lines, rest)
		}
		if sep == ' ' {
			return lines, nil
		}
	}
}

// relayName strips the "$fingerprint~" prefix from a circuit-status hop.
func relayName(hop string) string {
	if idx := strings.Index(hop, "~"); idx >= 0 {
		return hop[idx+1:]
	}
	return hop
}
