// Package aead implements the RFC 8439 ChaCha20-Poly1305 AEAD
// construction: a one-time Poly1305 key derived from the ChaCha20 block at
// counter 0, authenticating aad || pad16 || ciphertext || pad16 ||
// len64(aad) || len64(ciphertext).
package aead

import (
	"encoding/binary"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/poly1305"
)

const (
	KeySize   = chacha20.KeySize
	NonceSize = chacha20.NonceSize
	TagSize   = poly1305.TagSize
)

func pad16(n int) int {
	if n%16 == 0 {
		return 0
	}
	return 16 - n%16
}

func polyKey(key, nonce []byte) [32]byte {
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		panic(err)
	}

	var block [64]byte
	var out [64]byte
	c.XORKeyStream(out[:], block[:])

	var k [32]byte
	copy(k[:], out[:32])
	return k
}

func mac(key [32]byte, aad, ciphertext []byte) [TagSize]byte {
	buf := make([]byte, 0, len(aad)+pad16(len(aad))+len(ciphertext)+pad16(len(ciphertext))+16)

	buf = append(buf, aad...)
	buf = append(buf, make([]byte, pad16(len(aad)))...)
	buf = append(buf, ciphertext...)
	buf = append(buf, make([]byte, pad16(len(ciphertext)))...)

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(aad)))
	buf = append(buf, lenBuf[:]...)
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(ciphertext)))
	buf = append(buf, lenBuf[:]...)

	var tag [TagSize]byte
	poly1305.Sum(&tag, buf, &key)
	return tag
}

// Seal encrypts plaintext under key/nonce (ChaCha20 with an implicit
// counter of 1, since counter 0 is reserved for deriving the Poly1305
// key), authenticating aad, and returns ciphertext||tag appended to dst.
func Seal(dst, key, nonce, plaintext, aad []byte) []byte {
	pk := polyKey(key, nonce)

	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		panic(err)
	}
	c.SetCounter(1)

	ciphertext := make([]byte, len(plaintext))
	c.XORKeyStream(ciphertext, plaintext)

	tag := mac(pk, aad, ciphertext)

	dst = append(dst, ciphertext...)
	dst = append(dst, tag[:]...)
	return dst
}

// Open verifies in and, if the tag matches, decrypts the ciphertext
// portion and returns the plaintext. ok is false (and the returned slice
// nil) on any tag mismatch.
func Open(dst, key, nonce, in, aad []byte) (plaintext []byte, ok bool) {
	if len(in) < TagSize {
		return nil, false
	}

	ciphertext := in[:len(in)-TagSize]
	var tag [TagSize]byte
	copy(tag[:], in[len(in)-TagSize:])

	pk := polyKey(key, nonce)
	want := mac(pk, aad, ciphertext)

	if !constantTimeEqual(tag[:], want[:]) {
		return nil, false
	}

	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		panic(err)
	}
	c.SetCounter(1)

	plaintext = make([]byte, len(ciphertext))
	c.XORKeyStream(plaintext, ciphertext)

	dst = append(dst, plaintext...)
	return dst, true
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
