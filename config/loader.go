package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pascal-fb-martin/houseportal/wire"
)

// Parsed is the fully-validated result of reading a config file: one
// pass over the whole file with no partial application, so that a
// syntax error anywhere in the file leaves the previously-running
// configuration untouched (spec.md §7's "previous configuration is
// retained" rule for reload errors).
type Parsed struct {
	Redirects []wire.RedirectMsg
	Peers     []wire.PeerRef
	Local     bool
	Keys      []wire.Key
}

// Loader polls a config file's mtime and re-parses it on change,
// grounded on the teacher's mtime-driven store-reload shape in dht.go
// (openStore/saveStore).
type Loader struct {
	path  string
	mtime time.Time
}

// NewLoader creates a loader for the file at path. It does not read the
// file; call CheckReload to perform the first load.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// CheckReload reports whether the file's mtime has changed since the
// last successful parse, and if so parses it and returns the result.
// On a parse error, the previous state is untouched: the caller should
// not apply a non-nil error's Parsed value (it is always nil on error).
func (l *Loader) CheckReload() (changed bool, parsed *Parsed, err error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return false, nil, fmt.Errorf("config: stat %s: %w", l.path, err)
	}
	if !info.ModTime().After(l.mtime) && !l.mtime.IsZero() {
		return false, nil, nil
	}
	p, err := l.parse()
	if err != nil {
		return true, nil, err
	}
	l.mtime = info.ModTime()
	return true, p, nil
}

func (l *Loader) parse() (*Parsed, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", l.path, err)
	}
	defer f.Close()

	p := &Parsed{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		msg, err := wire.ParseLine(line, false)
		if err != nil {
			return nil, fmt.Errorf("config: %s line %d: %w", l.path, lineNo, err)
		}
		switch m := msg.(type) {
		case wire.RedirectMsg:
			p.Redirects = append(p.Redirects, m)
		case wire.PeerMsg:
			p.Peers = append(p.Peers, m.Peers...)
		case wire.LocalMsg:
			p.Local = true
		case wire.SignMsg:
			key, err := wire.NewKey(m.HexKey)
			if err != nil {
				return nil, fmt.Errorf("config: %s line %d: %w", l.path, lineNo, err)
			}
			p.Keys = append(p.Keys, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", l.path, err)
	}
	return p, nil
}
