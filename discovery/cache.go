// Package discovery is the shared client library applications embed to
// walk every portal on the LAN and enumerate the services they expose.
// It is intentionally self-contained: it duplicates the small pieces of
// the HTTP response shape it needs rather than importing the daemon's
// internal packages, the way a library meant to be vendored into other
// processes' binaries would.
package discovery

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	phase1Period    = 10 * time.Second
	phase2MaxPeriod = 120 * time.Second
	phase2AfterNew  = 3 * time.Second

	// scanTimeout is how long a scan may stay pending before a new tick
	// forces the next scan rather than waiting for it, per spec.md §5:
	// outbound queries carry no explicit client timeout; a scan still
	// pending 60s after it was dispatched is simply superseded.
	scanTimeout = 60 * time.Second
)

type peersResponse struct {
	Host      string `json:"host"`
	Timestamp int64  `json:"timestamp"`
	Portal    struct {
		Peers []string `json:"peers"`
	} `json:"portal"`
}

type listResponse struct {
	Host      string `json:"host"`
	Timestamp int64  `json:"timestamp"`
	Portal    struct {
		Redirect []struct {
			Path    string `json:"path"`
			Service string `json:"service"`
			Active  bool   `json:"active"`
		} `json:"redirect"`
	} `json:"portal"`
}

type serviceURL struct {
	Service string
	URL     string
}

// Cache is the two-index discovery cache described in spec.md §3: (a) a
// unique portal-list URL → last-seen time, (b) a service-name → set of
// URLs. There is no eviction: an endpoint that moves to a new host is
// never forgotten, a known limitation spelled out in spec.md §9.
//
// Per spec.md §5, Cache carries no locks: every exported method is meant
// to be called from the single loop thread the host application already
// runs, the same way the teacher's DHT is driven from one goroutine.
// Background HTTP fetches run in short-lived goroutines that report
// back over channels drained only inside Tick, mirroring the teacher's
// PeersRequestResults pattern (dht.go). Per spec.md §5, the HTTP client
// carries no request timeout; instead Tick counts a scan as pending from
// the moment it is dispatched until its result is drained, and forces
// the next scan if one is still pending scanTimeout later, rather than
// bounding any single request.
type Cache struct {
	localPortal string
	client      *http.Client

	portalURLs map[string]int64
	services   map[string]map[string]int64

	lastPhase1 time.Time
	lastPhase2 time.Time
	phase2Due  time.Time

	phase1Pending bool
	phase1Started time.Time
	phase2Pending int
	phase2Started time.Time

	peersResult chan []string
	listResult  chan []serviceURL
}

// NewCache creates a discovery cache that polls localPortal (a
// "host:port" address) for the peers it should in turn poll.
func NewCache(localPortal string) *Cache {
	return &Cache{
		localPortal: localPortal,
		client:      &http.Client{},
		portalURLs:  make(map[string]int64),
		services:    make(map[string]map[string]int64),
		peersResult: make(chan []string, 1),
		listResult:  make(chan []serviceURL, 16),
	}
}

// Tick drives phase 1 and phase 2 polling and drains any pending
// background fetch results. The host application calls this from its own
// periodic tick; frequency only needs to be finer than phase1Period for
// the 10 s/120 s/3 s/60 s cadences in spec.md §4.9 to be honored.
func (c *Cache) Tick(now time.Time) {
	c.drainResults(now)

	phase1Stuck := c.phase1Pending && now.Sub(c.phase1Started) >= scanTimeout
	phase1Due := c.lastPhase1.IsZero() || now.Sub(c.lastPhase1) >= phase1Period
	if (phase1Due && !c.phase1Pending) || phase1Stuck {
		c.lastPhase1 = now
		c.phase1Pending = true
		c.phase1Started = now
		go c.fetchPeers()
	}

	phase2Due := !c.phase2Due.IsZero() && !now.Before(c.phase2Due)
	phase2Overdue := c.lastPhase2.IsZero() || now.Sub(c.lastPhase2) >= phase2MaxPeriod
	phase2Stuck := c.phase2Pending > 0 && now.Sub(c.phase2Started) >= scanTimeout
	if ((phase2Due || phase2Overdue) && c.phase2Pending == 0) || phase2Stuck {
		c.phase2Due = time.Time{}
		c.lastPhase2 = now
		c.phase2Pending = len(c.portalURLs)
		c.phase2Started = now
		for listURL := range c.portalURLs {
			go c.fetchList(listURL)
		}
	}
}

func (c *Cache) drainResults(now time.Time) {
	for {
		select {
		case urls := <-c.peersResult:
			c.phase1Pending = false
			c.applyPeers(urls, now)
		case entries := <-c.listResult:
			if c.phase2Pending > 0 {
				c.phase2Pending--
			}
			c.applyList(entries, now)
		default:
			return
		}
	}
}

func (c *Cache) applyPeers(endpoints []string, now time.Time) {
	newPortal := false
	for _, endpoint := range endpoints {
		listURL := "http://" + endpoint + "/portal/list"
		if _, exists := c.portalURLs[listURL]; !exists {
			newPortal = true
		}
		c.portalURLs[listURL] = now.Unix()
	}
	if newPortal {
		c.phase2Due = now.Add(phase2AfterNew)
	}
}

func (c *Cache) applyList(entries []serviceURL, now time.Time) {
	for _, e := range entries {
		m, ok := c.services[e.Service]
		if !ok {
			m = make(map[string]int64)
			c.services[e.Service] = m
		}
		if _, exists := m[e.URL]; !exists {
			m[e.URL] = now.Unix()
		}
	}
}

// fetchPeers always reports back on peersResult, even an empty slice on
// failure, so Tick can clear the pending flag without waiting on any
// per-request timeout. The send blocks until Tick drains the channel.
func (c *Cache) fetchPeers() {
	var peers []string
	resp, err := c.client.Get("http://" + c.localPortal + "/portal/peers")
	if err == nil {
		defer resp.Body.Close()
		var body peersResponse
		if json.NewDecoder(resp.Body).Decode(&body) == nil {
			peers = body.Portal.Peers
		}
	}
	c.peersResult <- peers
}

// fetchList always reports back on listResult, for the same reason as
// fetchPeers.
func (c *Cache) fetchList(listURL string) {
	var entries []serviceURL
	resp, err := c.client.Get(listURL)
	if err == nil {
		defer resp.Body.Close()
		var body listResponse
		if json.NewDecoder(resp.Body).Decode(&body) == nil {
			host := portalHost(listURL)
			for _, r := range body.Portal.Redirect {
				if r.Service == "" || !r.Active {
					continue
				}
				entries = append(entries, serviceURL{Service: r.Service, URL: "http://" + host + r.Path})
			}
		}
	}
	c.listResult <- entries
}

func portalHost(listURL string) string {
	u, err := url.Parse(listURL)
	if err != nil {
		return strings.TrimSuffix(strings.TrimPrefix(listURL, "http://"), "/portal/list")
	}
	return u.Host
}

// ChangedSince returns every URL registered for service after the given
// unix timestamp.
func (c *Cache) ChangedSince(service string, since int64) []string {
	m, ok := c.services[service]
	if !ok {
		return nil
	}
	var out []string
	for u, addedAt := range m {
		if addedAt > since {
			out = append(out, u)
		}
	}
	return out
}

// Each invokes fn once for every (service, url) pair currently known.
func (c *Cache) Each(fn func(service, url string)) {
	for service, urls := range c.services {
		for u := range urls {
			fn(service, u)
		}
	}
}
