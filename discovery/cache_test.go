package discovery

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDiscoveryTwoPhasePoll(t *testing.T) {
	var portalAddr string
	mux := http.NewServeMux()
	mux.HandleFunc("/portal/peers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"host":"h","timestamp":0,"portal":{"peers":["%s"]}}`, portalAddr)
	})
	mux.HandleFunc("/portal/list", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"host":"h","timestamp":0,"portal":{"redirect":[
			{"path":"/houserelays","service":"control","active":true},
			{"path":"/houseopensprinkler","service":"control","active":true}
		]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	portalAddr = srv.Listener.Addr().String()

	c := NewCache(portalAddr)
	now := time.Now()
	c.Tick(now)

	// Phase 2 only runs phase2AfterNew after phase 1 reports a new portal.
	deadline := time.Now().Add(phase2AfterNew + 2*time.Second)
	for len(c.ChangedSince("control", 0)) < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
		c.Tick(time.Now())
	}

	urls := c.ChangedSince("control", 0)
	if len(urls) != 2 {
		t.Fatalf("expected 2 service URLs, got %v", urls)
	}

	count := 0
	c.Each(func(service, url string) {
		if service != "control" {
			t.Fatalf("unexpected service %q", service)
		}
		count++
	})
	if count != 2 {
		t.Fatalf("expected Each to visit 2 pairs, got %d", count)
	}
}

func TestChangedSinceUnknownServiceIsEmpty(t *testing.T) {
	c := NewCache("127.0.0.1:70")
	if urls := c.ChangedSince("nope", 0); urls != nil {
		t.Fatalf("expected nil, got %v", urls)
	}
}

func TestHTTPClientHasNoRequestTimeout(t *testing.T) {
	c := NewCache("127.0.0.1:70")
	if c.client.Timeout != 0 {
		t.Fatalf("expected no client-level timeout, got %v", c.client.Timeout)
	}
}

func TestTickForcesNewScanWhenPendingExceedsScanTimeout(t *testing.T) {
	c := NewCache("127.0.0.1:70")
	start := time.Now()

	// Simulate a scan dispatched at start that never reports back,
	// without actually going over the network, so this test is
	// deterministic.
	c.lastPhase1 = start
	c.phase1Pending = true
	c.phase1Started = start

	// A tick before scanTimeout elapses must not re-dispatch: the scan
	// is still within its budget, even though phase1Period has passed.
	c.Tick(start.Add(phase1Period))
	if c.phase1Started != start {
		t.Fatalf("expected no forced rescan before scanTimeout elapses, phase1Started moved to %v", c.phase1Started)
	}

	// Once the pending scan has been outstanding for scanTimeout, the
	// next tick must force a new one rather than keep waiting on it.
	stuckAt := start.Add(scanTimeout + time.Second)
	c.Tick(stuckAt)
	if !c.phase1Pending {
		t.Fatalf("expected forced rescan to still be pending")
	}
	if !c.phase1Started.Equal(stuckAt) {
		t.Fatalf("expected forced rescan to restart phase1Started at %v, got %v", stuckAt, c.phase1Started)
	}
}
