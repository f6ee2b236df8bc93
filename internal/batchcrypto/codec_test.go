package batchcrypto

import (
	"bytes"
	"testing"
)

// TestEncryptedBatchRoundTrip checks spec.md §8 invariant 7 on one
// example batch: GCM decryption under the same secret yields back the
// original bytes.
func TestEncryptedBatchRoundTrip(t *testing.T) {
	var secret [32]byte
	for i := range secret {
		secret[i] = byte(i)
	}
	codec := NewCodec(secret)

	plaintext := []byte("a compressed bedrock batch body")
	ciphertext, err := codec.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	decrypted, err := codec.DecryptGCM(ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", decrypted, plaintext)
	}
}

func TestCFB8StreamRoundTrip(t *testing.T) {
	var secret [32]byte
	for i := range secret {
		secret[i] = byte(i * 3)
	}
	codecEnc := NewCodec(secret)
	codecDec := NewCodec(secret)

	plaintext := []byte("inbound stream cipher payload")

	// The inbound direction is always decrypted, never encrypted, by the
	// proxy's own codec; here we drive the shift register the same way a
	// real CFB8 peer would, by encrypting with the mirror-image stream.
	block, err := codecEnc.block()
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	enc := newCFB8(block, secret[:block.BlockSize()], false)
	ciphertext := make([]byte, len(plaintext))
	enc.XORKeyStream(ciphertext, plaintext)

	decrypted, err := codecDec.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("cfb8 round trip mismatch: got %q want %q", decrypted, plaintext)
	}
}

func TestGCMTagMismatchIsCryptoFailure(t *testing.T) {
	var secret [32]byte
	codec := NewCodec(secret)
	ciphertext, err := codec.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	ciphertext[0] ^= 0xff
	if _, err := codec.DecryptGCM(ciphertext); err == nil {
		t.Fatal("expected crypto failure on tampered ciphertext")
	}
}
