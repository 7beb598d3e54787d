package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portal.config")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestCheckReloadParsesDirectives(t *testing.T) {
	path := writeConfig(t, "# comment\nREDIRECT 127.0.0.1:8080 HIDE /app\nPEER host-b:70\nLOCAL\nSIGN SHA-256 00112233\n")
	l := NewLoader(path)

	changed, p, err := l.CheckReload()
	if err != nil {
		t.Fatalf("CheckReload: %v", err)
	}
	if !changed {
		t.Fatalf("expected changed=true on first load")
	}
	if len(p.Redirects) != 1 || p.Redirects[0].Target != "127.0.0.1:8080" {
		t.Fatalf("unexpected redirects: %+v", p.Redirects)
	}
	if len(p.Peers) != 1 || p.Peers[0].Endpoint != "host-b:70" {
		t.Fatalf("unexpected peers: %+v", p.Peers)
	}
	if !p.Local {
		t.Fatalf("expected LOCAL directive honored")
	}
	if len(p.Keys) != 1 {
		t.Fatalf("expected one SIGN key, got %d", len(p.Keys))
	}
}

func TestCheckReloadNoChangeWithoutMtimeBump(t *testing.T) {
	path := writeConfig(t, "REDIRECT 127.0.0.1:8080 /app\n")
	l := NewLoader(path)
	if _, _, err := l.CheckReload(); err != nil {
		t.Fatalf("first CheckReload: %v", err)
	}
	changed, _, err := l.CheckReload()
	if err != nil {
		t.Fatalf("second CheckReload: %v", err)
	}
	if changed {
		t.Fatalf("expected no reload when mtime unchanged")
	}
}

func TestCheckReloadRejectsUnknownDirective(t *testing.T) {
	path := writeConfig(t, "BOGUS nonsense\n")
	l := NewLoader(path)
	if _, p, err := l.CheckReload(); err == nil {
		t.Fatalf("expected error for unknown directive, got parsed=%+v", p)
	}
}
