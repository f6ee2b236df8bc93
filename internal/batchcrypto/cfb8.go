package batchcrypto

import "crypto/cipher"

// cfb8Stream implements 8-bit CFB mode directly on a cipher.Block. The Go
// standard library only exposes full-block-width CFB via
// cipher.NewCFBEncrypter/Decrypter; Bedrock's inbound batch stream needs
// an 8-bit shift register instead, which has no standard-library or
// third-party Go implementation (see DESIGN.md). This mirrors the shape
// every Bedrock-compatible client implements by hand.
type cfb8Stream struct {
	block     cipher.Block
	shift     []byte // shift register, len == block size
	decrypt   bool
	blockSize int
}

func newCFB8(block cipher.Block, iv []byte, decrypt bool) *cfb8Stream {
	shift := make([]byte, block.BlockSize())
	copy(shift, iv)
	return &cfb8Stream{block: block, shift: shift, decrypt: decrypt, blockSize: block.BlockSize()}
}

// XORKeyStream decrypts or encrypts src into dst, one byte at a time, per
// the CFB8 feedback shift register: each output byte is src[i] XOR the
// first byte of E(shift-register); the register then shifts left by one
// byte, with the new last byte being the ciphertext byte (decrypt) or the
// just-produced output byte (encrypt).
func (s *cfb8Stream) XORKeyStream(dst, src []byte) {
	out := make([]byte, s.blockSize)
	for i := range src {
		s.block.Encrypt(out, s.shift)
		plainOrCipher := src[i] ^ out[0]

		var feedback byte
		if s.decrypt {
			feedback = src[i]
		} else {
			feedback = plainOrCipher
		}
		copy(s.shift, s.shift[1:])
		s.shift[s.blockSize-1] = feedback

		dst[i] = plainOrCipher
	}
}
