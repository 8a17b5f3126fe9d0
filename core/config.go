package core

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/veilnet/veilnet/log"
)

const (
	CFG_TOR = "tor"
	CFG_API = "api"
)

// Fixed network layer parameters. These are compile-time values on purpose:
// a runtime override surface for any of them would let a misconfiguration
// weaken the anonymity guarantees, so none exists.
const (
	minPaddingBytes = 256
	maxPaddingBytes = 2048
	minJitterMs     = 0
	maxJitterMs     = 50
	torSocksPort    = 9150
	torControlPort  = 9151
	requestTimeout  = 60 * time.Second
	internalApiPort = 7667
)

// NetworkConfig carries the compiled-in network layer constants. Values are
// readable through accessors only; there is no setter surface and no file
// representation.
type NetworkConfig struct {
	minPaddingBytes      int
	maxPaddingBytes      int
	minJitterMs          int
	maxJitterMs          int
	torSocksPort         int
	torControlPort       int
	requestTimeout       time.Duration
	newCircuitPerRequest bool
}

// DefaultNetworkConfig returns the process-wide network constants. The
// returned value is a copy; mutating it has no effect on the running layer.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		minPaddingBytes:      minPaddingBytes,
		maxPaddingBytes:      maxPaddingBytes,
		minJitterMs:          minJitterMs,
		maxJitterMs:          maxJitterMs,
		torSocksPort:         torSocksPort,
		torControlPort:       torControlPort,
		requestTimeout:       requestTimeout,
		newCircuitPerRequest: true,
	}
}

func (c NetworkConfig) MinPaddingBytes() int          { return c.minPaddingBytes }
func (c NetworkConfig) MaxPaddingBytes() int          { return c.maxPaddingBytes }
func (c NetworkConfig) MinJitterMs() int              { return c.minJitterMs }
func (c NetworkConfig) MaxJitterMs() int              { return c.maxJitterMs }
func (c NetworkConfig) TorSocksPort() int             { return c.torSocksPort }
func (c NetworkConfig) TorControlPort() int           { return c.torControlPort }
func (c NetworkConfig) RequestTimeout() time.Duration { return c.requestTimeout }
func (c NetworkConfig) NewCircuitPerRequest() bool    { return c.newCircuitPerRequest }

// ApiConfig configures the localhost-only diagnostics API.
type ApiConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" json:"port" yaml:"port"`
}

// Config holds the operator-facing settings for the external tor daemon.
// Only daemon bootstrap details live here; nothing in this file can alter
// the per-request anonymization behavior.
type Config struct {
	torConfig *TorRunConfig
	apiConfig *ApiConfig

	cfg *viper.Viper
}

func NewConfig(cfg_dir string, path string) (*Config, error) {
	c := &Config{
		torConfig: DefaultTorRunConfig(),
		apiConfig: &ApiConfig{Enabled: false, Port: internalApiPort},
	}

	c.cfg = viper.New()
	c.cfg.SetConfigType("json")

	if path == "" {
		path = filepath.Join(cfg_dir, "config.json")
	}
	err := os.MkdirAll(filepath.Dir(path), os.FileMode(0700))
	if err != nil {
		return nil, err
	}
	var created_cfg bool = false
	c.cfg.SetConfigFile(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		created_cfg = true
		err = c.cfg.WriteConfigAs(path)
		if err != nil {
			return nil, err
		}
	}

	err = c.cfg.ReadInConfig()
	if err != nil {
		return nil, err
	}

	c.cfg.UnmarshalKey(CFG_TOR, &c.torConfig)
	c.cfg.UnmarshalKey(CFG_API, &c.apiConfig)

	if created_cfg {
		c.cfg.Set(CFG_TOR, c.torConfig)
		c.cfg.Set(CFG_API, c.apiConfig)
		log.Info("created new config file: %s", path)
		c.Save()
	}
	return c, nil
}

func (c *Config) GetTorRunConfig() *TorRunConfig {
	return c.torConfig
}

func (c *Config) GetApiConfig() *ApiConfig {
	return c.apiConfig
}

func (c *Config) SetBridges(use_bridges bool, bridges []string) {
	c.torConfig.UseBridges = use_bridges
	c.torConfig.Bridges = bridges
	c.cfg.Set(CFG_TOR, c.torConfig)
	c.Save()
}

func (c *Config) Save() {
	err := c.cfg.WriteConfig()
	if err != nil {
		log.Error("failed to save config file: %v", err)
	}
}
