package securestore

import (
	"encoding/binary"
	"errors"

	"github.com/dmorton63/qaiosplus-sub000/crypto/aead"
)

const (
	magic   = "SSB1"
	version = 1

	headerSize = 4 + 4 + 4 + aead.NonceSize + aead.TagSize
)

// encodeSSB1 serialises a sealed blob: magic, version, plaintext length,
// nonce, tag, then the ChaCha20 ciphertext (counter 1 onward, from
// aead.Seal).
func encodeSSB1(nonce []byte, plaintextLen int, ciphertext, tag []byte) []byte {
	out := make([]byte, 0, headerSize+len(ciphertext))

	out = append(out, magic...)

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], version)
	out = append(out, u32[:]...)

	binary.LittleEndian.PutUint32(u32[:], uint32(plaintextLen))
	out = append(out, u32[:]...)

	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ciphertext...)

	return out
}

// decodeSSB1 validates the header (magic, version, total size) and splits
// the blob into its nonce, tag, and ciphertext.
func decodeSSB1(blob []byte) (nonce, tag, ciphertext []byte, err error) {
	if len(blob) < headerSize {
		return nil, nil, nil, errors.New("securestore: blob shorter than header")
	}

	if string(blob[:4]) != magic {
		return nil, nil, nil, errors.New("securestore: bad magic")
	}

	if binary.LittleEndian.Uint32(blob[4:8]) != version {
		return nil, nil, nil, errors.New("securestore: unsupported version")
	}

	plaintextLen := binary.LittleEndian.Uint32(blob[8:12])

	off := 12
	nonce = blob[off : off+aead.NonceSize]
	off += aead.NonceSize
	tag = blob[off : off+aead.TagSize]
	off += aead.TagSize
	ciphertext = blob[off:]

	if uint32(len(ciphertext)) != plaintextLen {
		return nil, nil, nil, errors.New("securestore: size does not match header length")
	}

	return nonce, tag, ciphertext, nil
}
