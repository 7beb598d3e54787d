package portal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pascal-fb-martin/houseportal/wire"
)

func TestReloadConfigAppliesPermanentRedirectsAndPeers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portal.config")
	if err := os.WriteFile(path, []byte("REDIRECT 127.0.0.1:8080 HIDE /app\nPEER host-b:70\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := New(Options{Host: "self:70", ConfigPath: path}, nil)
	if err := p.reloadConfig(1700000000); err != nil {
		t.Fatalf("reloadConfig: %v", err)
	}

	rule, ok := p.RedirectLookup("/app/page", 1700000000)
	if !ok || rule.Target != "127.0.0.1:8080" || !rule.Hide {
		t.Fatalf("unexpected rule: %+v ok=%v", rule, ok)
	}

	live := p.PeersLive(1700000000)
	found := false
	for _, e := range live {
		if e.Endpoint == "host-b:70" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected static peer host-b:70 present, got %+v", live)
	}
}

func TestApplyRedirectMsgFromUDPGetsLiveExpiration(t *testing.T) {
	p := New(Options{Host: "self:70"}, nil)
	msg := wire.RedirectMsg{Timestamp: 1700000000, Target: "8081", HasPID: true, PID: 1234,
		Services: []wire.ServiceRef{{Path: "/foo"}}}

	p.applyRedirectMsg(msg, "192.168.1.5", 1700000000)

	rule, ok := p.RedirectLookup("/foo/bar", 1700000000)
	if !ok || rule.Target != "192.168.1.5:8081" {
		t.Fatalf("unexpected rule: %+v ok=%v", rule, ok)
	}
	if rule.Expire != 1700000000+180 {
		t.Fatalf("expected 180s live expiration, got %d", rule.Expire)
	}
}

func TestApplyPeerMsgGivesSenderFreshExpiration(t *testing.T) {
	p := New(Options{Host: "self:70"}, nil)
	msg := wire.PeerMsg{Timestamp: 1700000000, Peers: []wire.PeerRef{
		{Endpoint: "host-a:70"},
		{Endpoint: "host-c:70", Expiration: 1700000500, HasExpiration: true},
	}}
	p.applyPeerMsg(msg, 1700000000)

	live := p.PeersLive(1700000000)
	var gotA, gotC bool
	for _, e := range live {
		if e.Endpoint == "host-a:70" {
			gotA = true
			if e.Expire != 1700000180 {
				t.Fatalf("expected sender given fresh gossip expiration, got %d", e.Expire)
			}
		}
		if e.Endpoint == "host-c:70" {
			gotC = true
		}
	}
	if !gotA || !gotC {
		t.Fatalf("expected both peers present, got %+v", live)
	}
}
