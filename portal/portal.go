package portal

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pascal-fb-martin/houseportal/config"
	"github.com/pascal-fb-martin/houseportal/frontend"
	"github.com/pascal-fb-martin/houseportal/logger"
	"github.com/pascal-fb-martin/houseportal/peers"
	"github.com/pascal-fb-martin/houseportal/redirect"
	"github.com/pascal-fb-martin/houseportal/wire"
)

// liveExpiration is how long a UDP-learned REDIRECT rule and a
// gossip-learned peer stay live without renewal, per spec.md §4.3/§4.4.
const liveExpiration = 180 * time.Second

// tickPeriod is the background tick cadence driving config reload,
// pruning and gossip publication, per spec.md §4.8.
const tickPeriod = 30 * time.Second

// clientPerWindowLimit and clientWindow bound the registration-port
// throttle (§4.11 DOMAIN STACK).
const (
	clientPerWindowLimit = 50
	clientWindow         = time.Minute
	maxThrottledClients  = 1000
)

// Options configures a Portal.
type Options struct {
	Host       string // this portal's own "host:port" identity, first peer-table entry
	UDPPort    int
	HTTPAddr   string
	ConfigPath string
	Local      bool
}

// Portal is the single event-loop object owning the UDP socket, the
// HTTP listener, and both tables, directly modeled on the teacher's DHT
// struct and its loop() scheduler (dht.go).
type Portal struct {
	opts Options
	log  logger.DebugLogger

	redirects *redirect.Table
	peerTable *peers.Table
	keys      []wire.Key
	throttle  *wire.Throttle
	loader    *config.Loader
	localOnly bool
	// configLoaded is set once the first config load succeeds, after
	// which a LOCAL directive is no longer honoured.
	configLoaded bool

	socket *wire.Socket
	http   *http.Server

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Portal; Run must be called to start it.
func New(opts Options, log logger.DebugLogger) *Portal {
	if log == nil {
		log = &logger.NullLogger{}
	}
	p := &Portal{
		opts:      opts,
		log:       log,
		redirects: redirect.New(log),
		peerTable: peers.New(opts.Host, log),
		throttle:  wire.NewThrottle(maxThrottledClients, clientPerWindowLimit, clientWindow),
		loader:    config.NewLoader(opts.ConfigPath),
		localOnly: opts.Local,
		stop:      make(chan struct{}),
	}
	return p
}

// RedirectAll, RedirectLookup and PeersLive implement frontend.Tables.
func (p *Portal) RedirectAll() []redirect.Rule { return p.redirects.All() }
func (p *Portal) RedirectLookup(path string, now int64) (redirect.Rule, bool) {
	return p.redirects.Lookup(path, now)
}
func (p *Portal) PeersLive(now int64) []peers.Entry { return p.peerTable.Live(now) }

// Run opens the UDP socket and HTTP listener and runs the event loop
// until Stop is called or ctx is cancelled. Matches the teacher's
// Start()+loop() split (dht.go), collapsed into one blocking call since
// this module has no separate caller-driven Run/Start distinction to
// preserve.
func (p *Portal) Run(ctx context.Context) error {
	if err := p.reloadConfig(time.Now().Unix()); err != nil {
		return fmt.Errorf("portal: initial config load: %w", err)
	}
	if err := p.openSocket(); err != nil {
		p.log.Errorf("portal: initial UDP bind failed, will retry: %v", err)
	}

	srv := frontend.New(p.opts.Host, p, p.log)
	p.http = &http.Server{Addr: p.opts.HTTPAddr, Handler: srv}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			p.log.Errorf("portal: HTTP server exited: %v", err)
		}
	}()

	p.loop(ctx)
	return nil
}

// Stop shuts down the portal and waits for its goroutines to exit.
func (p *Portal) Stop() {
	close(p.stop)
	if p.http != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.http.Shutdown(shutdownCtx)
	}
	if p.socket != nil {
		p.socket.Close()
	}
	p.wg.Wait()
}

func (p *Portal) openSocket() error {
	s, err := wire.Open(p.opts.UDPPort, p.localOnly)
	if err != nil {
		return err
	}
	p.socket = s
	ch := make(chan wire.Packet)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		s.ReadLoop(ch, p.stop, p.log)
	}()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case pkt, ok := <-ch:
				if !ok {
					return
				}
				p.handlePacket(pkt)
				s.Release(pkt)
			case <-p.stop:
				return
			}
		}
	}()
	return nil
}

// loop is the single process-wide select scheduler, directly modeled on
// DHT.loop(): one goroutine owns every table; no locks.
func (p *Portal) loop(ctx context.Context) {
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.onTick(now.Unix())
		}
	}
}

func (p *Portal) onTick(now int64) {
	if p.socket == nil {
		if err := p.openSocket(); err != nil {
			p.log.Warnf("portal: UDP bind retry failed: %v", err)
		}
	}
	if err := p.reloadConfig(now); err != nil {
		p.log.Errorf("portal: config reload failed, keeping previous configuration: %v", err)
	}
	p.peerTable.Expire(now)
	p.redirects.Prune(now)
	p.publishGossip(now)
}

func (p *Portal) reloadConfig(now int64) error {
	changed, parsed, err := p.loader.CheckReload()
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	p.redirects.DeprecatePermanent()
	for _, r := range parsed.Redirects {
		p.applyRedirectMsg(r, "", now)
	}
	for _, ref := range parsed.Peers {
		p.peerTable.Add(ref.Endpoint, peers.Permanent)
	}
	if len(parsed.Keys) > 0 {
		p.keys = parsed.Keys
	}
	// LOCAL is only honored on first load, per spec.md's documented open
	// question (c): we follow the original behaviour.
	if parsed.Local && !p.configLoaded {
		p.localOnly = true
	}
	p.configLoaded = true
	p.redirects.Prune(now)
	return nil
}

func (p *Portal) applyRedirectMsg(m wire.RedirectMsg, sourceHost string, now int64) {
	target := m.Target
	if sourceHost != "" {
		target = wire.NormalizeTarget(m.Target, sourceHost)
	}
	expire := redirect.Permanent
	if sourceHost != "" {
		expire = now + int64(liveExpiration.Seconds())
	}
	for _, ref := range m.Services {
		p.redirects.Upsert(redirect.Rule{
			Path:    ref.Path,
			Target:  target,
			Service: ref.Service,
			Hide:    m.Hide,
			HasPID:  m.HasPID,
			PID:     m.PID,
			Expire:  expire,
		}, now)
	}
}

func (p *Portal) handlePacket(pkt wire.Packet) {
	now := time.Now().Unix()
	ip := pkt.Addr.IP.String()
	if !p.throttle.Allow(ip, time.Now()) {
		p.log.Warnf("portal: dropping datagram from %s, rate limit exceeded", ip)
		return
	}
	line, ok := wire.VerifyAndStrip(p.keys, string(pkt.Data))
	if !ok {
		p.log.Warnf("portal: No signature match from %s", ip)
		return
	}
	msg, err := wire.ParseLine(line, true)
	if err != nil {
		p.log.Debugf("portal: dropping malformed datagram from %s: %v", ip, err)
		return
	}
	switch m := msg.(type) {
	case wire.RedirectMsg:
		p.applyRedirectMsg(m, ip, now)
	case wire.PeerMsg:
		p.applyPeerMsg(m, now)
	default:
		p.log.Debugf("portal: ignoring directive from %s not valid over UDP", ip)
	}
}

func (p *Portal) applyPeerMsg(m wire.PeerMsg, now int64) {
	for i, ref := range m.Peers {
		if i == 0 {
			// The first endpoint is always the sender itself; give it a
			// fresh gossip-derived expiration regardless of how it was
			// reported, so this portal can re-publish it with an
			// explicit expiration on its own next gossip round.
			p.peerTable.Add(ref.Endpoint, now+int64(liveExpiration.Seconds()))
			continue
		}
		if ref.HasExpiration {
			p.peerTable.Add(ref.Endpoint, ref.Expiration)
		} else {
			p.peerTable.Add(ref.Endpoint, peers.Permanent)
		}
	}
}

func (p *Portal) publishGossip(now int64) {
	if p.localOnly || p.socket == nil {
		return
	}
	budget := wire.MaxDatagramSize - (1 + len(wire.SignatureMethod) + 1 + wire.SignatureBytes*2)
	payload := p.peerTable.Publish(now, budget)
	signed := wire.Sign(p.keys, payload)
	if err := p.socket.Broadcast(p.opts.UDPPort, signed); err != nil {
		p.log.Warnf("portal: gossip broadcast failed: %v", err)
	}
	for _, peer := range p.peerTable.Static() {
		if err := p.socket.Unicast(peer.Endpoint, signed); err != nil {
			p.log.Warnf("portal: gossip unicast to %s failed: %v", peer.Endpoint, err)
		}
	}
}
