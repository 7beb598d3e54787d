package redirect

import (
	"github.com/pascal-fb-martin/houseportal/logger"
)

// Permanent marks a rule loaded from the static config: never expires
// until the config is reloaded and the rule is not re-declared.
const Permanent = 0

// Tombstone marks a permanent rule whose permanence was revoked by
// DeprecatePermanent on a config reload. The next Prune removes it
// unless the reloaded config re-declares it first. Rules whose live
// expiration has passed are removed by Prune directly, not tombstoned.
const Tombstone = 1

// Rule is one path → target redirection entry.
type Rule struct {
	Path    string
	Target  string
	Service string
	Hide    bool
	HasPID  bool
	PID     int64
	Start   int64
	Expire  int64
}

func (r *Rule) expired(now int64) bool {
	return r.Expire > Permanent && r.Expire < now
}

// Table is the in-memory set of redirection rules, linear-scanned on
// lookup since the set is small (≤128 entries per spec.md §9) and the
// longest-prefix rule makes an index structure unnecessary. Grounded on
// the teacher's RoutingTable (routingTable/routing_table.go), generalized
// from its nTree/XOR-distance nearest-neighbor lookup to this package's
// longest-string-prefix lookup — a different enough problem that the
// nTree structure itself is not reused, only the surrounding
// table-ownership shape (single owning loop, expvar counters).
type Table struct {
	rules []*Rule
	log   logger.DebugLogger
}

// New creates an empty redirection table.
func New(log logger.DebugLogger) *Table {
	if log == nil {
		log = &logger.NullLogger{}
	}
	return &Table{log: log}
}

func (t *Table) find(path string) *Rule {
	for _, r := range t.rules {
		if r.Path == path {
			return r
		}
	}
	return nil
}

// Upsert creates or refreshes the rule for r.Path. If an existing rule
// is permanent and r is live, r is ignored (permanent precedence). A
// target or PID change on an existing rule bumps Start and is reported
// as a restart.
func (t *Table) Upsert(r Rule, now int64) {
	existing := t.find(r.Path)
	if existing == nil {
		r.Start = now
		copyRule := r
		t.rules = append(t.rules, &copyRule)
		totalRules.Add(1)
		tableSize.Set(int64(len(t.rules)))
		t.log.Infof("ADDED path=%s target=%s", r.Path, r.Target)
		return
	}
	if existing.Expire == Permanent && r.Expire != Permanent {
		t.log.Debugf("REDIRECT for %s ignored: permanent rule already registered", r.Path)
		return
	}
	restarted := existing.Target != r.Target || existing.HasPID != r.HasPID || existing.PID != r.PID
	if restarted {
		existing.Start = now
		t.log.Infof("RESTARTED path=%s oldtarget=%s newtarget=%s", r.Path, existing.Target, r.Target)
	}
	existing.Target = r.Target
	existing.Service = r.Service
	existing.Hide = r.Hide
	existing.HasPID = r.HasPID
	existing.PID = r.PID
	existing.Expire = r.Expire
}

// Lookup returns the rule whose path is the longest prefix of
// requestPath such that the character following the match is either
// end-of-string or '/'. Expired rules are never returned.
func (t *Table) Lookup(requestPath string, now int64) (Rule, bool) {
	var best *Rule
	for _, r := range t.rules {
		if r.expired(now) {
			continue
		}
		if !isPathPrefix(r.Path, requestPath) {
			continue
		}
		if best == nil || len(r.Path) > len(best.Path) {
			best = r
		}
	}
	if best == nil {
		return Rule{}, false
	}
	return *best, true
}

func isPathPrefix(prefix, path string) bool {
	if len(prefix) > len(path) || path[:len(prefix)] != prefix {
		return false
	}
	return len(prefix) == len(path) || path[len(prefix)] == '/'
}

// Prune removes every rule with 0 < Expire < now, returning the removed
// rules for event logging.
func (t *Table) Prune(now int64) []Rule {
	kept := t.rules[:0]
	var removed []Rule
	for _, r := range t.rules {
		if r.expired(now) {
			removed = append(removed, *r)
			t.log.Infof("REMOVED path=%s target=%s", r.Path, r.Target)
			continue
		}
		kept = append(kept, r)
	}
	t.rules = kept
	tableSize.Set(int64(len(t.rules)))
	return removed
}

// DeprecatePermanent sets every permanent rule's expiration to Tombstone
// so that the next Prune removes it unless the reloaded static config
// declares it again.
func (t *Table) DeprecatePermanent() {
	for _, r := range t.rules {
		if r.Expire == Permanent {
			r.Expire = Tombstone
		}
	}
}

// All returns a snapshot of every rule, for /portal/list.
func (t *Table) All() []Rule {
	out := make([]Rule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, *r)
	}
	return out
}
