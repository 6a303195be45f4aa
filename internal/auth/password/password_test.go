package password

import "testing"

func TestHashVerifyRoundTrip(t *testing.T) {
	hasher := NewHasher(DefaultParams)

	encoded, err := hasher.Hash("Passw0rd!")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if !hasher.Verify("Passw0rd!", encoded) {
		t.Fatal("expected password to verify")
	}
	if hasher.Verify("wrong-password", encoded) {
		t.Fatal("wrong password must not verify")
	}
}

func TestHashesAreSalted(t *testing.T) {
	hasher := NewHasher(DefaultParams)

	a, err := hasher.Hash("Passw0rd!")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	b, err := hasher.Hash("Passw0rd!")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestVerifyMalformedEncoding(t *testing.T) {
	hasher := NewHasher(DefaultParams)

	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=65536,t=1$short",
		"$bcrypt$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
	} {
		if hasher.Verify("Passw0rd!", encoded) {
			t.Fatalf("malformed hash %q must not verify", encoded)
		}
	}
}

func TestVerifyUsesEncodedParams(t *testing.T) {
	light := NewHasher(Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	heavy := NewHasher(DefaultParams)

	encoded, err := light.Hash("Passw0rd!")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if !heavy.Verify("Passw0rd!", encoded) {
		t.Fatal("hash created with different params must still verify")
	}
}
