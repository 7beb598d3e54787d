package frontend

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pascal-fb-martin/houseportal/peers"
	"github.com/pascal-fb-martin/houseportal/redirect"
)

type fakeTables struct {
	rules []redirect.Rule
	peers []peers.Entry
}

func (f *fakeTables) RedirectAll() []redirect.Rule { return f.rules }

func (f *fakeTables) RedirectLookup(path string, now int64) (redirect.Rule, bool) {
	var best redirect.Rule
	found := false
	for _, r := range f.rules {
		if r.Expire != redirect.Permanent && r.Expire <= now {
			continue
		}
		if len(r.Path) > len(path) || path[:len(r.Path)] != r.Path {
			continue
		}
		if len(r.Path) != len(path) && path[len(r.Path)] != '/' {
			continue
		}
		if !found || len(r.Path) > len(best.Path) {
			best = r
			found = true
		}
	}
	return best, found
}

func (f *fakeTables) PeersLive(now int64) []peers.Entry { return f.peers }

func fixedClock(t int64) Clock {
	return func() time.Time { return time.Unix(t, 0) }
}

func TestScenario1PermanentStaticRule(t *testing.T) {
	tables := &fakeTables{rules: []redirect.Rule{
		{Path: "/app", Target: "127.0.0.1:8080", Hide: true, Expire: redirect.Permanent},
	}}
	s := New("localhost", tables, nil)
	s.Clock = fixedClock(1700000000)

	req := httptest.NewRequest(http.MethodGet, "/app/page?x=1", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("expected 301, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "http://127.0.0.1:8080/page?x=1" {
		t.Fatalf("unexpected Location: %s", got)
	}
}

func TestScenario2LiveRegistration(t *testing.T) {
	tables := &fakeTables{rules: []redirect.Rule{
		{Path: "/foo", Target: "127.0.0.1:8081", Expire: 1700000180},
	}}
	s := New("localhost", tables, nil)
	s.Clock = fixedClock(1700000000)

	req := httptest.NewRequest(http.MethodGet, "/foo/bar", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "http://127.0.0.1:8081/foo/bar" {
		t.Fatalf("unexpected Location: %s", got)
	}
}

func TestScenario3Expiration(t *testing.T) {
	tables := &fakeTables{rules: []redirect.Rule{
		{Path: "/foo", Target: "127.0.0.1:8081", Expire: 1700000180},
	}}
	s := New("localhost", tables, nil)
	s.Clock = fixedClock(1700000181 + 181)

	req := httptest.NewRequest(http.MethodGet, "/foo/bar", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if rec.Body.String() != unresolvableBody {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestScenario6ServiceDiscovery(t *testing.T) {
	tables := &fakeTables{rules: []redirect.Rule{
		{Path: "/houserelays", Service: "control", Target: "a:80", Expire: redirect.Permanent},
		{Path: "/houseopensprinkler", Service: "control", Target: "b:80", Expire: redirect.Permanent},
	}}
	s := New("portal-host", tables, nil)
	s.Clock = fixedClock(1700000000)

	req := httptest.NewRequest(http.MethodGet, "/portal/service?name=control", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "http://portal-host/houserelays") || !strings.Contains(body, "http://portal-host/houseopensprinkler") {
		t.Fatalf("expected both URLs in response: %s", body)
	}
}

func TestDebugVarsIsWired(t *testing.T) {
	tables := &fakeTables{}
	s := New("localhost", tables, nil)

	req := httptest.NewRequest(http.MethodGet, "/portal/debug/vars", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /portal/debug/vars, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "{") {
		t.Fatalf("expected expvar JSON body, got %q", rec.Body.String())
	}
}

func TestCORSPreflightAndRejection(t *testing.T) {
	tables := &fakeTables{}
	s := New("localhost", tables, nil)

	req := httptest.NewRequest(http.MethodOptions, "/portal/list", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for OPTIONS preflight, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/portal/list", nil)
	req.Header.Set("Origin", "http://example.com")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cross-origin POST, got %d", rec.Code)
	}
}
