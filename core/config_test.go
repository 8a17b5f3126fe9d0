package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewConfigWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	_, err := NewConfig(dir, "")
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("read config file: %v", err)
	}
	body := string(raw)
	for _, key := range []string{"tor", "api", "data_dir", "use_bridges", "port"} {
		if !strings.Contains(body, `"`+key+`"`) {
			t.Errorf("created config missing %q section/key:\n%s", key, body)
		}
	}
}

func TestSetBridgesFlowsIntoTorrc(t *testing.T) {
	dir := t.TempDir()
	cfg, err := NewConfig(dir, "")
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	bridge := "obfs4 192.0.2.1:443 FINGERPRINT cert=abc iat-mode=0"
	cfg.SetBridges(true, []string{bridge})

	torrc := cfg.GetTorRunConfig().ToTorrc(9150, 9151)
	if !strings.Contains(torrc, "UseBridges 1\n") {
		t.Error("torrc missing UseBridges after SetBridges")
	}
	if !strings.Contains(torrc, "Bridge "+bridge+"\n") {
		t.Errorf("torrc missing the configured bridge line:\n%s", torrc)
	}
}

func TestConfigReloadPreservesBridges(t *testing.T) {
	dir := t.TempDir()
	cfg, err := NewConfig(dir, "")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.SetBridges(true, []string{"obfs4 192.0.2.2:443 FP cert=x iat-mode=0"})

	reloaded, err := NewConfig(dir, "")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	tc := reloaded.GetTorRunConfig()
	if !tc.UseBridges || len(tc.Bridges) != 1 {
		t.Errorf("bridges lost on reload: %+v", tc)
	}
}
