// ptymasterd – the background daemon hosting named PTY sessions.
//
// Usage:
//
//	ptymasterd [--socket <path>] [--config <file>] [--personal-config <file>]
//
// ptymasterd listens on a Unix domain socket and fans each session's shell
// output out to every client currently attached to that session id. It is
// normally left running in the background; ptymaster is the client used to
// attach to it.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ptymaster/ptymasterd/internal/config"
	"github.com/ptymaster/ptymasterd/internal/daemon"
)

func main() {
	defaultConfig := "/etc/ptymasterd.yaml"
	if env := os.Getenv("PTYMASTERD_CONFIG"); env != "" {
		defaultConfig = env
	}

	homeDir, _ := os.UserHomeDir()
	defaultPersonal := ""
	if homeDir != "" {
		defaultPersonal = homeDir + "/.config/ptymasterd.yaml"
	}

	socketPath := flag.String("socket", "", "socket endpoint (env: PTYMASTER_SOCKET; overrides config file)")
	configPath := flag.String("config", defaultConfig, "machine-wide config file (env: PTYMASTERD_CONFIG)")
	personalPath := flag.String("personal-config", defaultPersonal, "personal config file overlaid on top of --config")
	flag.Parse()

	cfg, err := config.Load(*configPath, *personalPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *socketPath != "" {
		cfg.Endpoint = *socketPath
	} else if env := os.Getenv("PTYMASTER_SOCKET"); env != "" {
		cfg.Endpoint = env
	}

	d := daemon.New(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received %v, shutting down", sig)
		d.Stop()
		os.Exit(0)
	}()

	if err := d.Run(cfg.Endpoint); err != nil {
		log.Fatalf("daemon run: %v", err)
	}
}
