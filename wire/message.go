package wire

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUnknownKeyword is returned by ParseLine when the first token of a
// line is not a recognized directive, or is recognized but not valid in
// the current mode (LOCAL/SIGN arriving over live UDP). Callers decide
// what to do with it: the static config loader treats it as fatal, the
// live datagram decoder logs and drops it.
var ErrUnknownKeyword = errors.New("wire: unknown keyword")

// ErrMalformed is returned for a recognized keyword with a malformed body.
var ErrMalformed = errors.New("wire: malformed directive")

// Message is the typed result of parsing one wire-format line. Only one
// of the four concrete variants is produced by ParseLine, matching the
// grammar's four directives.
type Message interface {
	message()
}

// ServiceRef is one <serviceref> token from a REDIRECT line: either a
// bare path, or a "<service>:<path>" pair.
type ServiceRef struct {
	Service string
	Path    string
}

// RedirectMsg is a parsed REDIRECT directive. Timestamp is zero for
// directives parsed from the static config (no timestamp token present).
type RedirectMsg struct {
	Timestamp int64
	Target    string // "[host:]port", not yet resolved against a sender address
	Hide      bool
	HasPID    bool
	PID       int64
	Services  []ServiceRef
}

func (RedirectMsg) message() {}

// PeerRef is one endpoint token from a PEER line.
type PeerRef struct {
	Endpoint      string
	Expiration    int64
	HasExpiration bool
}

// PeerMsg is a parsed PEER directive.
type PeerMsg struct {
	Timestamp int64
	Peers     []PeerRef
}

func (PeerMsg) message() {}

// LocalMsg marks the static-only LOCAL directive.
type LocalMsg struct{}

func (LocalMsg) message() {}

// SignMsg is a parsed static-only SIGN directive.
type SignMsg struct {
	Method string
	HexKey string
}

func (SignMsg) message() {}

// ParseLine parses one already-unsigned wire-format line (the signature
// suffix, if any, must already have been verified and stripped by the
// caller via VerifyAndStrip). live selects whether a leading UDP
// timestamp token is expected for REDIRECT/PEER (true), or whether the
// config-file form without a timestamp is expected (false). LOCAL and
// SIGN are only ever accepted when live is false.
func ParseLine(line string, live bool) (Message, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrUnknownKeyword
	}
	keyword, rest := fields[0], fields[1:]
	switch keyword {
	case "REDIRECT":
		return parseRedirect(rest, live)
	case "PEER":
		return parsePeer(rest, live)
	case "LOCAL":
		if live {
			return nil, ErrUnknownKeyword
		}
		return LocalMsg{}, nil
	case "SIGN":
		if live {
			return nil, ErrUnknownKeyword
		}
		return parseSign(rest)
	default:
		return nil, ErrUnknownKeyword
	}
}

func parseRedirect(tokens []string, live bool) (Message, error) {
	var ts int64
	if live {
		if len(tokens) == 0 {
			return nil, ErrMalformed
		}
		t, err := strconv.ParseInt(tokens[0], 10, 64)
		if err != nil {
			return nil, ErrMalformed
		}
		ts = t
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return nil, ErrMalformed
	}
	msg := RedirectMsg{Timestamp: ts, Target: tokens[0]}
	tokens = tokens[1:]

	if len(tokens) > 0 && tokens[0] == "HIDE" {
		msg.Hide = true
		tokens = tokens[1:]
	}
	if len(tokens) > 0 && strings.HasPrefix(tokens[0], "PID:") {
		pid, err := strconv.ParseInt(tokens[0][len("PID:"):], 10, 64)
		if err != nil {
			return nil, ErrMalformed
		}
		msg.HasPID = true
		msg.PID = pid
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return nil, ErrMalformed
	}
	for _, tok := range tokens {
		service, path := "", tok
		if idx := strings.Index(tok, ":"); idx >= 0 && strings.HasPrefix(tok[idx+1:], "/") {
			service, path = tok[:idx], tok[idx+1:]
		}
		if !strings.HasPrefix(path, "/") {
			return nil, ErrMalformed
		}
		msg.Services = append(msg.Services, ServiceRef{Service: service, Path: path})
	}
	return msg, nil
}

func parsePeer(tokens []string, live bool) (Message, error) {
	var ts int64
	if live {
		if len(tokens) == 0 {
			return nil, ErrMalformed
		}
		t, err := strconv.ParseInt(tokens[0], 10, 64)
		if err != nil {
			return nil, ErrMalformed
		}
		ts = t
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return nil, ErrMalformed
	}
	msg := PeerMsg{Timestamp: ts}
	for _, tok := range tokens {
		ref := PeerRef{Endpoint: tok}
		if idx := strings.Index(tok, "="); idx >= 0 {
			exp, err := strconv.ParseInt(tok[idx+1:], 10, 64)
			if err != nil {
				return nil, ErrMalformed
			}
			ref.Endpoint = tok[:idx]
			ref.Expiration = exp
			ref.HasExpiration = true
		}
		msg.Peers = append(msg.Peers, ref)
	}
	return msg, nil
}

func parseSign(tokens []string) (Message, error) {
	if len(tokens) != 2 {
		return nil, ErrMalformed
	}
	if tokens[0] != SignatureMethod {
		return nil, ErrMalformed
	}
	return SignMsg{Method: tokens[0], HexKey: tokens[1]}, nil
}

// NormalizeTarget resolves a REDIRECT target of the form "[host:]port"
// against the address the datagram arrived from, defaulting the host to
// sourceHost when the target carries a bare port.
func NormalizeTarget(target, sourceHost string) string {
	if strings.Contains(target, ":") {
		return target
	}
	return sourceHost + ":" + target
}
