package crypto

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddressBech32RoundTrip(t *testing.T) {
	var addr Address
	addr[0] = 0x01
	addr[19] = 0xFE

	encoded := addr.String()
	if !strings.HasPrefix(encoded, AddressPrefix+"1") {
		t.Fatalf("expected %s prefix, got %s", AddressPrefix, encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != addr {
		t.Fatalf("round trip mismatch: got %x want %x", decoded, addr)
	}
}

func TestDecodeAddressAcceptsHex(t *testing.T) {
	decoded, err := DecodeAddress("0x00000000000000000000000000000000000000aa")
	if err != nil {
		t.Fatalf("decode hex: %v", err)
	}
	if decoded[19] != 0xaa {
		t.Fatalf("unexpected trailing byte %x", decoded[19])
	}
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	var addr Address
	addr[5] = 7
	conv := addr.String()
	// Swap the human readable part; the checksum no longer matches either.
	foreign := "nhb" + strings.TrimPrefix(conv, AddressPrefix)
	if _, err := DecodeAddress(foreign); err == nil {
		t.Fatalf("expected error for foreign prefix")
	}
	if _, err := DecodeAddress("   "); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestAddressJSON(t *testing.T) {
	var addr Address
	addr[10] = 0x42
	payload, err := json.Marshal(map[string]Address{"account": addr})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]Address
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["account"] != addr {
		t.Fatalf("json round trip mismatch")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "authority.json")
	if err := SaveToKeystore(path, key, "correct horse", false); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := SaveToKeystore(path, key, "correct horse", false); err != ErrKeystoreExists {
		t.Fatalf("expected ErrKeystoreExists, got %v", err)
	}

	addr, err := KeystoreAddress(path)
	if err != nil {
		t.Fatalf("keystore address: %v", err)
	}
	if addr != key.PubKey().Address() {
		t.Fatalf("address mismatch: %s vs %s", addr, key.PubKey().Address())
	}

	loaded, err := LoadFromKeystore(path, "correct horse")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address() != addr {
		t.Fatalf("loaded key controls a different address")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}
