package wire

import "testing"

func TestSignAndVerifyRoundTrip(t *testing.T) {
	key, err := NewKey("00112233445566778899aabbccddeeff00112233")
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	payload := "REDIRECT 1700000000 8081 /foo"
	signed := Sign([]Key{key}, payload)
	stripped, ok := VerifyAndStrip([]Key{key}, signed)
	if !ok {
		t.Fatalf("expected signature to verify")
	}
	if stripped != payload {
		t.Fatalf("got %q, want %q", stripped, payload)
	}
}

func TestVerifyAndStripNoKeysConfigured(t *testing.T) {
	stripped, ok := VerifyAndStrip(nil, "REDIRECT 1700000000 8081 /foo")
	if !ok || stripped != "REDIRECT 1700000000 8081 /foo" {
		t.Fatalf("expected pass-through, got %q %v", stripped, ok)
	}
}

func TestVerifyAndStripRejectsUnsigned(t *testing.T) {
	key, _ := NewKey("00112233445566778899aabbccddeeff00112233")
	if _, ok := VerifyAndStrip([]Key{key}, "REDIRECT 1700000000 8081 /foo"); ok {
		t.Fatalf("expected rejection of unsigned datagram")
	}
}

func TestVerifyAndStripRejectsWrongKey(t *testing.T) {
	key, _ := NewKey("00112233445566778899aabbccddeeff00112233")
	other, _ := NewKey("ffeeddccbbaa99887766554433221100ffeedd")
	signed := Sign([]Key{other}, "REDIRECT 1700000000 8081 /foo")
	if _, ok := VerifyAndStrip([]Key{key}, signed); ok {
		t.Fatalf("expected rejection under mismatched key")
	}
}
