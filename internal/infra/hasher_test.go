package infra

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

func TestSaltedHasher_HashAndVerify(t *testing.T) {
	hasher := NewSaltedHasher()

	digest, salt, err := hasher.Hash("my-secret-key")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if len(salt) != 16 {
		t.Errorf("expected 16-byte salt, got %d bytes", len(salt))
	}
	if len(digest) != sha256.Size {
		t.Errorf("expected %d-byte digest, got %d bytes", sha256.Size, len(digest))
	}

	// 正しい平文は検証に成功する
	if !hasher.Verify("my-secret-key", digest, salt) {
		t.Error("expected Verify to succeed for the original plaintext")
	}

	// 異なる平文は検証に失敗する
	if hasher.Verify("wrong-key", digest, salt) {
		t.Error("expected Verify to fail for a different plaintext")
	}

	// 異なるソルトでは検証に失敗する
	otherSalt := make([]byte, 16)
	if hasher.Verify("my-secret-key", digest, otherSalt) {
		t.Error("expected Verify to fail with a different salt")
	}
}

func TestSaltedHasher_DistinctSalts(t *testing.T) {
	hasher := NewSaltedHasher()

	digest1, salt1, err := hasher.Hash("same-plaintext")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	digest2, salt2, err := hasher.Hash("same-plaintext")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	// 同一平文でもソルトが異なるためダイジェストも異なる
	if bytes.Equal(salt1, salt2) {
		t.Error("expected distinct salts for each Hash call")
	}
	if bytes.Equal(digest1, digest2) {
		t.Error("expected distinct digests for each Hash call")
	}
}

func TestSaltedHasher_DigestConstruction(t *testing.T) {
	hasher := NewSaltedHasher()

	digest, salt, err := hasher.Hash("known-plaintext")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	// digest = SHA-256(salt || plaintext)
	expected := sha256.Sum256(append(append([]byte{}, salt...), []byte("known-plaintext")...))
	if !bytes.Equal(digest, expected[:]) {
		t.Error("digest does not match SHA-256(salt || plaintext)")
	}
}
