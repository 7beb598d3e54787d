// Command houseportal-declare registers one application's redirection
// paths with a local portal, generalizing the teacher's
// examples/find_infohash_and_wait CLI pattern into a client-library
// front end instead of a DHT peer lookup.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pascal-fb-martin/houseportal/logger"
	"github.com/pascal-fb-martin/houseportal/register"
	"github.com/pascal-fb-martin/houseportal/wire"
)

type portMappingFlags []register.Option

func (m *portMappingFlags) String() string { return "" }

func (m *portMappingFlags) Set(value string) error {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected EXT:INT, got %q", value)
	}
	ext, err := strconv.Atoi(parts[0])
	if err != nil {
		return fmt.Errorf("invalid external port %q: %w", parts[0], err)
	}
	intPort, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("invalid internal port %q: %w", parts[1], err)
	}
	*m = append(*m, register.WithPortMapping(ext, intPort))
	return nil
}

func main() {
	var (
		portalServer = flag.String("portal-server", "localhost", "host name or address of the local portal")
		portalPort   = flag.Int("portal-port", wire.DefaultPort, "UDP port of the portal's registration service")
		webPort      = flag.Int("web-port", 0, "this application's own HTTP listening port")
		signKey      = flag.String("sign-key", "", "hex-encoded HMAC-SHA256 key, if the portal requires signed datagrams")
		debug        = flag.Bool("debug", false, "enable verbose debug logging")
	)
	var mappings portMappingFlags
	flag.Var(&mappings, "portal-map", "EXT:INT port mapping, repeatable")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] /path [/path ...]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	log := logger.New(os.Stderr, *debug)
	opts := append([]register.Option{}, mappings...)
	opts = append(opts, register.WithLogger(log))
	if *signKey != "" {
		key, err := register.NewKey(*signKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "houseportal-declare: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts, register.WithKey(key))
	}

	client := register.NewClient(*portalServer, *portalPort, *webPort, opts...)
	client.Declare(paths)
	if err := client.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "houseportal-declare: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	client.Stop()
}
