package auth

import "testing"

func TestGenerateAndVerify(t *testing.T) {
	key, err := RandomHex(16)
	if err != nil {
		t.Fatalf("RandomHex() error = %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("key length = %d, want 32 hex chars", len(key))
	}

	hash, salt := GenerateHashAndSalt(key)
	if !VerifyKey(key, salt, hash) {
		t.Error("generated key should verify against its own hash")
	}
	if VerifyKey("wrong-key", salt, hash) {
		t.Error("wrong key must not verify")
	}
	if VerifyKey(key, "wrong-salt", hash) {
		t.Error("wrong salt must not verify")
	}
}

func TestHashIsDeterministicPerSalt(t *testing.T) {
	if HashKeyWithSalt("k", "s") != HashKeyWithSalt("k", "s") {
		t.Error("same key and salt must hash identically")
	}
	if HashKeyWithSalt("k", "s1") == HashKeyWithSalt("k", "s2") {
		t.Error("different salts must produce different hashes")
	}
}
