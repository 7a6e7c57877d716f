package aead_test

import (
	"testing"

	"github.com/dmorton63/qaiosplus-sub000/crypto/aead"
	"github.com/stretchr/testify/require"
)

func testKeyNonce() ([]byte, []byte) {
	key := make([]byte, aead.KeySize)
	nonce := make([]byte, aead.NonceSize)
	for i := range key {
		key[i] = byte(i)
	}
	for i := range nonce {
		nonce[i] = byte(i + 1)
	}
	return key, nonce
}

func TestSealOpenRoundTrip(t *testing.T) {
	key, nonce := testKeyNonce()
	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	aad := []byte("header")

	sealed := aead.Seal(nil, key, nonce, plaintext, aad)
	require.Len(t, sealed, len(plaintext)+aead.TagSize)

	opened, ok := aead.Open(nil, key, nonce, sealed, aad)
	require.True(t, ok)
	require.Equal(t, plaintext, opened)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key, nonce := testKeyNonce()
	sealed := aead.Seal(nil, key, nonce, []byte("payload"), nil)

	sealed[0] ^= 0xFF

	_, ok := aead.Open(nil, key, nonce, sealed, nil)
	require.False(t, ok)
}

func TestOpenRejectsWrongAAD(t *testing.T) {
	key, nonce := testKeyNonce()
	sealed := aead.Seal(nil, key, nonce, []byte("payload"), []byte("correct-aad"))

	_, ok := aead.Open(nil, key, nonce, sealed, []byte("wrong-aad"))
	require.False(t, ok)
}

func TestSealEmptyPlaintext(t *testing.T) {
	key, nonce := testKeyNonce()
	sealed := aead.Seal(nil, key, nonce, nil, []byte("aad-only"))
	require.Len(t, sealed, aead.TagSize)

	opened, ok := aead.Open(nil, key, nonce, sealed, []byte("aad-only"))
	require.True(t, ok)
	require.Empty(t, opened)
}
