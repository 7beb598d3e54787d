// Command houseportal runs the local-subnet HTTP front-door and UDP
// registration receiver for a fleet of home-server applications,
// grounded on the teacher's command-line wiring in
// examples/find_infohash_and_wait/main.go (flag.Parse, New, Start).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pascal-fb-martin/houseportal/logger"
	"github.com/pascal-fb-martin/houseportal/portal"
	"github.com/pascal-fb-martin/houseportal/wire"
)

func main() {
	var (
		configPath = flag.String("config", "/etc/house/portal.config", "path to the static redirection config file")
		portalPort = flag.Int("portal-port", wire.DefaultPort, "UDP port for the registration/gossip protocol")
		httpPort   = flag.String("http-service", "80", "HTTP listening port, or \"dynamic\" to let the OS choose")
		local      = flag.Bool("local", false, "bind the UDP socket to loopback only, disabling gossip")
		debug      = flag.Bool("debug", false, "enable verbose debug logging")
	)
	flag.Parse()

	log := logger.New(os.Stderr, *debug)

	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}

	httpAddr := ":" + *httpPort
	if *httpPort == "dynamic" {
		httpAddr = ":0"
	}

	p := portal.New(portal.Options{
		Host:       fmt.Sprintf("%s:%d", host, *portalPort),
		UDPPort:    *portalPort,
		HTTPAddr:   httpAddr,
		ConfigPath: *configPath,
		Local:      *local,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		p.Stop()
	}()

	if err := p.Run(ctx); err != nil {
		log.Errorf("houseportal: fatal startup error: %v", err)
		os.Exit(1)
	}
}
