package wire

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SignatureBytes is the number of leading HMAC bytes kept in the wire
// signature suffix. Truncated to save datagram space; acceptable because
// the threat model is casual spoofing on a home LAN, not a strong
// authentication primitive. See DESIGN.md Open Question (b).
const SignatureBytes = 4

// SignatureMethod is the only supported HMAC method name.
const SignatureMethod = "SHA-256"

// Key is one configured signing/verification key.
type Key struct {
	Method string
	Secret []byte
}

// NewKey decodes a hex-encoded secret for the SHA-256 method.
func NewKey(hexSecret string) (Key, error) {
	secret, err := hex.DecodeString(hexSecret)
	if err != nil {
		return Key{}, fmt.Errorf("wire: invalid hex key: %w", err)
	}
	return Key{Method: SignatureMethod, Secret: secret}, nil
}

// sign returns the lowercase hex-encoded truncated HMAC-SHA256 of data
// under key, appending a trailing NUL byte before hashing as the wire
// grammar requires.
func sign(key Key, data string) string {
	mac := hmac.New(sha256.New, key.Secret)
	mac.Write([]byte(data))
	mac.Write([]byte{0})
	sum := mac.Sum(nil)
	return hex.EncodeToString(sum[:SignatureBytes])
}

// Sign appends a " SHA-256 <8 hex digits>" suffix to payload using the
// first configured key. With no keys, payload is returned unchanged.
func Sign(keys []Key, payload string) string {
	if len(keys) == 0 {
		return payload
	}
	return payload + " " + SignatureMethod + " " + sign(keys[0], payload)
}

// VerifyAndStrip checks line's trailing signature suffix against every
// configured key of a matching method, returning the line with the
// suffix removed. If keys is empty, every line is accepted unchanged
// (no signature policy configured). If keys is non-empty, a line lacking
// a matching signature is rejected.
func VerifyAndStrip(keys []Key, line string) (stripped string, ok bool) {
	if len(keys) == 0 {
		return line, true
	}
	body, suffix, found := splitSignature(line)
	if !found {
		totalRejectedSigs.Add(1)
		return "", false
	}
	for _, k := range keys {
		if k.Method != SignatureMethod {
			continue
		}
		if sign(k, body) == suffix {
			return body, true
		}
	}
	totalRejectedSigs.Add(1)
	return "", false
}

// splitSignature extracts the " SHA-256 <hex>" suffix from line, if any.
func splitSignature(line string) (body string, suffix string, found bool) {
	const tag = " " + SignatureMethod + " "
	n := len(line)
	hexLen := SignatureBytes * 2
	if n < len(tag)+hexLen {
		return "", "", false
	}
	cut := n - hexLen - len(tag)
	if line[cut:n-hexLen] != tag {
		return "", "", false
	}
	candidate := line[n-hexLen:]
	for _, c := range candidate {
		if !isLowerHex(c) {
			return "", "", false
		}
	}
	return line[:cut], candidate, true
}

func isLowerHex(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}
