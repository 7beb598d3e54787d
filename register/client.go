// Package register is the client library backend applications embed to
// declare their paths to the local portal over UDP. Like discovery, it
// is self-contained: it duplicates the small slice of the wire grammar
// and signing logic it needs instead of importing the daemon's internal
// wire package, so it can be vendored into an unrelated process's
// binary. The one exception is logger: it is a small, protocol-agnostic
// DebugLogger adapter, not daemon-internal state, so Client takes one
// the same way portal and frontend do.
package register

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pascal-fb-martin/houseportal/logger"
)

const (
	maxDatagramSize = 1400
	signatureBytes  = 4
	tickPeriod      = 30 * time.Second
)

// Key is a signing key, duplicated from wire.Key so this package has no
// dependency on the daemon's internal packages.
type Key struct {
	hexSecret string
	secret    []byte
}

// NewKey decodes a hex-encoded HMAC-SHA256 secret.
func NewKey(hexSecret string) (Key, error) {
	secret, err := hex.DecodeString(hexSecret)
	if err != nil {
		return Key{}, fmt.Errorf("register: invalid hex key: %w", err)
	}
	return Key{hexSecret: hexSecret, secret: secret}, nil
}

func sign(key Key, data string) string {
	mac := hmac.New(sha256.New, key.secret)
	mac.Write([]byte(data))
	mac.Write([]byte{0})
	sum := mac.Sum(nil)
	return hex.EncodeToString(sum[:signatureBytes])
}

func signPayload(key *Key, payload string) string {
	if key == nil {
		return payload
	}
	return payload + " SHA-256 " + sign(*key, payload)
}

// portMapping is an external:internal port substitution applied when
// advertising this application's host:port, so a containerized app can
// advertise the proxy's external port (spec.md §4.10).
type portMapping struct {
	external int
	internal int
}

// Client declares one application's redirection paths to a portal and
// renews them on a background tick, generalizing the teacher's
// examples/find_infohash_and_wait CLI polling loop into a reusable
// library with a Declare/DeclareMore API.
type Client struct {
	portalAddr string
	portalPort int
	webPort    int
	pid        int
	key        *Key
	mappings   []portMapping
	log        logger.DebugLogger

	mu    sync.Mutex
	paths []string

	conn net.Conn
	stop chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithKey signs outgoing datagrams with key.
func WithKey(key Key) Option {
	return func(c *Client) { c.key = &key }
}

// WithPortMapping records an external:internal port substitution applied
// to the advertised host:port.
func WithPortMapping(external, internal int) Option {
	return func(c *Client) { c.mappings = append(c.mappings, portMapping{external, internal}) }
}

// WithPID overrides the advertised PID, which otherwise defaults to the
// calling process's own PID.
func WithPID(pid int) Option {
	return func(c *Client) { c.pid = pid }
}

// WithLogger directs diagnostic output (notably send failures) to log
// instead of the default NullLogger.
func WithLogger(log logger.DebugLogger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a registration client that sends to portalPort on
// the host named by portalAddr (any ":port" suffix of portalAddr is
// ignored) and advertises webPort as this application's own listening
// port.
func NewClient(portalAddr string, portalPort, webPort int, opts ...Option) *Client {
	c := &Client{
		portalAddr: portalAddr,
		portalPort: portalPort,
		webPort:    webPort,
		pid:        os.Getpid(),
		log:        &logger.NullLogger{},
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Declare replaces any prior declaration with these paths.
func (c *Client) Declare(paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append([]string(nil), paths...)
}

// DeclareMore adds paths to the prior declaration.
func (c *Client) DeclareMore(paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, paths...)
}

func (c *Client) advertisedPort() int {
	for _, m := range c.mappings {
		if m.internal == c.webPort {
			return m.external
		}
	}
	return c.webPort
}

// Start opens the UDP socket to the portal and launches the background
// renewal goroutine. It returns once the socket is open.
func (c *Client) Start() error {
	conn, err := net.Dial("udp4", net.JoinHostPort(hostOf(c.portalAddr), strconv.Itoa(c.portalPort)))
	if err != nil {
		return fmt.Errorf("register: dial portal: %w", err)
	}
	c.conn = conn
	c.wg.Add(1)
	go c.loop()
	return nil
}

func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// Stop halts the renewal goroutine and closes the socket.
func (c *Client) Stop() {
	close(c.stop)
	c.wg.Wait()
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *Client) loop() {
	defer c.wg.Done()
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()
	c.sendOnce()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sendOnce()
		}
	}
}

func (c *Client) sendOnce() {
	c.mu.Lock()
	paths := append([]string(nil), c.paths...)
	c.mu.Unlock()
	if len(paths) == 0 {
		return
	}
	for _, datagram := range c.buildDatagrams(paths, time.Now().Unix()) {
		if _, err := c.conn.Write([]byte(datagram)); err != nil {
			// Send failures are logged and ignored; the next tick
			// retries. Datagram loss is tolerated by the portal's
			// 180s/30s expiration-vs-renewal horizon.
			c.log.Warnf("register: send to %s: %v", c.portalAddr, err)
			continue
		}
	}
}

// buildDatagrams splits paths across one or more REDIRECT datagrams so
// that each stays within maxDatagramSize bytes, each carrying the same
// host:port and PID prefix.
func (c *Client) buildDatagrams(paths []string, now int64) []string {
	prefix := fmt.Sprintf("REDIRECT %d %d PID:%d", now, c.advertisedPort(), c.pid)
	limit := maxDatagramSize
	if c.key != nil {
		limit -= len(" SHA-256 ") + signatureBytes*2
	}
	var datagrams []string
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range paths {
		tok := " " + p
		if b.Len()+len(tok) > limit {
			datagrams = append(datagrams, signPayload(c.key, b.String()))
			b.Reset()
			b.WriteString(prefix)
		}
		b.WriteString(tok)
	}
	if b.Len() > len(prefix) {
		datagrams = append(datagrams, signPayload(c.key, b.String()))
	}
	return datagrams
}
