package peers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pascal-fb-martin/houseportal/logger"
)

// Permanent marks a statically configured peer (or the local portal
// itself): never expires.
const Permanent = 0

// Tombstone marks a peer whose gossip-derived expiration has passed;
// kept (not removed) so a later recovery is loggable.
const Tombstone = 1

// Entry is one known portal endpoint.
type Entry struct {
	Endpoint string
	Expire   int64
}

func (e Entry) live(now int64) bool {
	return e.Expire == Permanent || e.Expire > now
}

// Table is the set of portals known to this one, self included. The
// local portal is always the first entry and is permanent, per
// spec.md §3. Grounded on the teacher's RoutingTable shape
// (routingTable/routing_table.go), generalized from neighbor-distance
// bookkeeping to plain membership+expiration tracking.
type Table struct {
	entries []*Entry
	log     logger.DebugLogger
}

// New creates a peer table whose first, permanent entry is self.
func New(self string, log logger.DebugLogger) *Table {
	if log == nil {
		log = &logger.NullLogger{}
	}
	tableSize.Set(1)
	return &Table{
		entries: []*Entry{{Endpoint: self, Expire: Permanent}},
		log:     log,
	}
}

func (t *Table) find(endpoint string) *Entry {
	for _, e := range t.entries {
		if e.Endpoint == endpoint {
			return e
		}
	}
	return nil
}

// Add inserts endpoint if unknown, or raises its expiration if known and
// the new value is greater (a downgrade is rejected). A static entry
// (Expire == Permanent) is never changed by a later gossip-derived
// expiration.
func (t *Table) Add(endpoint string, expiration int64) {
	e := t.find(endpoint)
	if e == nil {
		t.entries = append(t.entries, &Entry{Endpoint: endpoint, Expire: expiration})
		tableSize.Set(int64(len(t.entries)))
		t.log.Infof("ADD peer=%s expire=%d", endpoint, expiration)
		return
	}
	if e.Expire == Permanent {
		return
	}
	if e.Expire == Tombstone && expiration > Tombstone {
		t.log.Infof("RECOVER peer=%s expire=%d", endpoint, expiration)
	}
	if expiration > e.Expire {
		e.Expire = expiration
	}
}

// Expire tombstones every entry whose gossip-derived expiration has
// passed, without removing it.
func (t *Table) Expire(now int64) {
	for _, e := range t.entries {
		if e.Expire > Tombstone && e.Expire < now {
			t.log.Infof("EXPIRE peer=%s", e.Endpoint)
			e.Expire = Tombstone
		}
	}
}

// Live returns every entry considered reachable right now: permanent
// entries and gossip entries whose expiration is still in the future.
func (t *Table) Live(now int64) []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		if e.live(now) {
			out = append(out, *e)
		}
	}
	return out
}

// Static returns every statically configured peer other than self (the
// first entry), for unicast gossip to peers outside the broadcast
// domain.
func (t *Table) Static() []Entry {
	var out []Entry
	for _, e := range t.entries[1:] {
		if e.Expire == Permanent {
			out = append(out, *e)
		}
	}
	return out
}

// Publish builds the unsigned "PEER <now> <endpoint>[=<expiration>] …"
// payload listing every live or permanent peer, truncated at a token
// boundary to fit within maxLen bytes (the caller reserves room for any
// signature suffix). The local portal is always first and is reported
// without an "=expiration" (permanent from our viewpoint), per
// spec.md §4.4.
func (t *Table) Publish(now int64, maxLen int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PEER %d", now)
	for i, e := range t.entries {
		if !e.live(now) {
			continue
		}
		var tok string
		if i == 0 || e.Expire == Permanent {
			tok = " " + e.Endpoint
		} else {
			tok = " " + e.Endpoint + "=" + strconv.FormatInt(e.Expire, 10)
		}
		if b.Len()+len(tok) > maxLen {
			break
		}
		b.WriteString(tok)
	}
	return b.String()
}
