package main

import (
	"context"
	"flag"
	"fmt"
	_log "log"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/veilnet/veilnet/core"
	"github.com/veilnet/veilnet/database"
	"github.com/veilnet/veilnet/log"
)

var request_url = flag.String("url", "", "URL to fetch through the anonymized pipeline (https only)")
var request_method = flag.String("method", "GET", "HTTP method to use")
var request_body = flag.String("body", "", "Request body (empty for none)")
var debug_log = flag.Bool("debug", false, "Enable debug output")
var cfg_dir = flag.String("c", "", "Configuration directory path")
var version_flag = flag.Bool("v", false, "Show version")
var use_bridges = flag.Bool("use-bridges", false, "Connect to the Tor network through bridges")
var bridge_lines = flag.String("bridge", "", "Bridge lines, comma-separated (implies -use-bridges)")
var api_enabled = flag.Bool("api", false, "Start the localhost diagnostics API")

func main() {
	flag.Parse()

	if *version_flag == true {
		log.Info("version: %s", core.VERSION)
		return
	}

	core.Banner()

	_log.SetOutput(log.NullLogger().Writer())

	log.DebugEnable(*debug_log)
	if *debug_log {
		log.Info("debug output enabled")
	}

	if *cfg_dir == "" {
		usr, err := user.Current()
		if err != nil {
			log.Fatal("%v", err)
			return
		}
		*cfg_dir = filepath.Join(usr.HomeDir, ".veilnet")
	}

	err := os.MkdirAll(*cfg_dir, os.FileMode(0700))
	if err != nil {
		log.Fatal("%v", err)
		return
	}
	log.Info("loading configuration from: %s", *cfg_dir)

	cfg, err := core.NewConfig(*cfg_dir, "")
	if err != nil {
		log.Fatal("config: %v", err)
		return
	}
	if *bridge_lines != "" {
		*use_bridges = true
	}
	if *use_bridges {
		var bridges []string
		if *bridge_lines != "" {
			bridges = strings.Split(*bridge_lines, ",")
		}
		cfg.SetBridges(true, bridges)
	}

	net_cfg := core.DefaultNetworkConfig()

	// The external daemon reads its options from here, bridge lines included.
	torrc_path := filepath.Join(*cfg_dir, "torrc")
	torrc := cfg.GetTorRunConfig().ToTorrc(net_cfg.TorSocksPort(), net_cfg.TorControlPort())
	if err := os.WriteFile(torrc_path, []byte(torrc), os.FileMode(0600)); err != nil {
		log.Fatal("torrc: %v", err)
		return
	}
	log.Info("rendered tor daemon configuration: %s", torrc_path)

	db, err := database.NewDatabase()
	if err != nil {
		log.Fatal("database: %v", err)
		return
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Warning("interrupt received, shutting down")
		cancel()
	}()

	ctrl := core.NewTorController(net_cfg.TorSocksPort(), net_cfg.TorControlPort(), cfg.GetTorRunConfig().CookiePath)
	log.Info("connecting to the Tor control port")
	if err := ctrl.Bootstrap(ctx); err != nil {
		log.Fatal("tor: %v", err)
		return
	}
	defer ctrl.Close()

	network := core.NewAnonymizedNetwork(ctrl, db)
	defer func() {
		shutdown_ctx, shutdown_cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdown_cancel()
		network.Shutdown(shutdown_ctx)
	}()

	api_cfg := cfg.GetApiConfig()
	if *api_enabled || api_cfg.Enabled {
		api := core.NewInternalAPI(api_cfg.Port, network, db)
		if err := api.Start(); err != nil {
			log.Warning("internal API: failed to start: %v", err)
		}
		defer api.Stop()
	}

	if *request_url == "" {
		log.Fatal("you need to provide a URL to fetch: ./veilnet -url <https_url>")
		return
	}

	var body []byte
	if *request_body != "" {
		body = []byte(*request_body)
	}

	resp, err := network.Request(ctx, strings.ToUpper(*request_method), *request_url, body)
	if err != nil {
		if kind, ok := core.ErrorKindOf(err); ok {
			log.Error("request failed (%s): %v", kind, err)
		} else {
			log.Error("request failed: %v", err)
		}
		return
	}

	log.Success("%s %s -> %d (%d bytes, circuit %s)", strings.ToUpper(*request_method), *request_url, resp.Status, len(resp.Body), resp.CircuitId)
	for _, h := range resp.Headers {
		log.Debug("response header: %s: %s", h.Name, h.Value)
	}
	fmt.Println(string(resp.Body))
}
