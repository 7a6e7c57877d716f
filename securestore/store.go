// Package securestore implements sealed ChaCha20-Poly1305 blobs (the
// "SSB1" format) layered over the virtual filesystem, keyed by a 32-byte
// wrap key that is either a plaintext file or a TPM-sealed blob unwrapped
// through caller-supplied seal/unseal callbacks.
package securestore

import (
	"github.com/dmorton63/qaiosplus-sub000/crypto/aead"
	"github.com/dmorton63/qaiosplus-sub000/crypto/chacha20drbg"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
	"github.com/dmorton63/qaiosplus-sub000/kernel/vfs"
)

const (
	defaultBaseDir = "/system/sc"

	wrapKeyPlainName = "WRAPKEY.BIN"
	wrapKeyTPMName   = "WRAPKEY.TPM"

	wrapKeySize = aead.KeySize
)

// Seal wraps a 32-byte key into an opaque TPM-sealed blob (the WKT1
// format). Unseal recovers the key from that blob. Both are nil when the
// store runs without TPM support, in which case the wrap key always lives
// in a plaintext WRAPKEY.BIN file.
type Seal func(key []byte) ([]byte, status.Status)
type Unseal func(blob []byte) ([]byte, status.Status)

// Store is a mounted secure-store namespace: a base directory under a
// VFS, a wrap key (loaded lazily on first use), and the entropy pool used
// to generate nonces and fresh keys.
type Store struct {
	fs      *vfs.VFS
	baseDir string
	pool    *chacha20drbg.Pool

	seal   Seal
	unseal Unseal

	wrapKey [wrapKeySize]byte
	haveKey bool
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithTPM enables TPM-backed wrap-key residency; without it, the store
// only ever uses the plaintext wrap-key file.
func WithTPM(seal Seal, unseal Unseal) Option {
	return func(s *Store) {
		s.seal = seal
		s.unseal = unseal
	}
}

// WithBaseDir overrides the default /system/sc namespace root.
func WithBaseDir(dir string) Option {
	return func(s *Store) {
		s.baseDir = dir
	}
}

// New creates a Store over fs, using pool for nonce and wrap-key
// generation. The wrap key itself is not loaded until the first Read or
// Write call.
func New(fs *vfs.VFS, pool *chacha20drbg.Pool, opts ...Option) *Store {
	s := &Store{
		fs:      fs,
		baseDir: defaultBaseDir,
		pool:    pool,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) readWholeFile(path string) ([]byte, status.Status) {
	h, st := s.fs.Open(path, vfs.ReadOnly)
	if st != status.Success {
		return nil, st
	}
	defer s.fs.Close(h)

	var out []byte
	buf := make([]byte, 512)
	for {
		n, st := s.fs.Read(h, buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if st != status.Success || n == 0 {
			break
		}
	}

	return out, status.Success
}

func (s *Store) writeWholeFile(path string, data []byte) status.Status {
	h, st := s.fs.Open(path, vfs.WriteCreate)
	if st != status.Success {
		return st
	}
	defer s.fs.Close(h)

	for len(data) > 0 {
		n, st := s.fs.Write(h, data)
		if st != status.Success {
			return st
		}
		if n == 0 {
			return status.Error
		}
		data = data[n:]
	}

	return status.Success
}

// loadWrapKey resolves the 32-byte wrap key, preferring a TPM-sealed blob
// when TPM callbacks are configured and WRAPKEY.TPM exists, falling back
// to the plaintext WRAPKEY.BIN, and finally generating and persisting a
// fresh plaintext key on first use.
func (s *Store) loadWrapKey() status.Status {
	if s.haveKey {
		return status.Success
	}

	if s.unseal != nil {
		if blob, st := s.readWholeFile(vfs.Join(s.baseDir, wrapKeyTPMName)); st == status.Success && len(blob) > 0 {
			key, st := decodeWrapKeyTPM(blob, s.unseal)
			if st == status.Success {
				copy(s.wrapKey[:], key)
				s.haveKey = true
				return status.Success
			}
			// TPM failure falls back to the plaintext path below, per the
			// secure store's configured fallback behaviour.
		}
	}

	if plain, st := s.readWholeFile(vfs.Join(s.baseDir, wrapKeyPlainName)); st == status.Success && len(plain) == wrapKeySize {
		copy(s.wrapKey[:], plain)
		s.haveKey = true
		return status.Success
	}

	var fresh [wrapKeySize]byte
	s.pool.FillRandom(fresh[:])

	if s.seal != nil {
		if blob, st := encodeWrapKeyTPM(fresh[:], s.seal); st == status.Success {
			if st := s.writeWholeFile(vfs.Join(s.baseDir, wrapKeyTPMName), blob); st == status.Success {
				s.wrapKey = fresh
				s.haveKey = true
				return status.Success
			}
		}
	}

	if st := s.writeWholeFile(vfs.Join(s.baseDir, wrapKeyPlainName), fresh[:]); st != status.Success {
		return st
	}

	s.wrapKey = fresh
	s.haveKey = true
	return status.Success
}

// Write seals plaintext under the store's wrap key and persists it at
// name (an 8.3 key under the base directory).
func (s *Store) Write(name string, plaintext []byte) status.Status {
	path, ok := keyPath(s.baseDir, name)
	if !ok {
		return status.InvalidParam
	}

	if st := s.loadWrapKey(); st != status.Success {
		return st
	}

	var nonce [aead.NonceSize]byte
	s.pool.FillRandom(nonce[:])

	sealed := aead.Seal(nil, s.wrapKey[:], nonce[:], plaintext, nil)
	ciphertext := sealed[:len(sealed)-aead.TagSize]
	tag := sealed[len(sealed)-aead.TagSize:]

	blob := encodeSSB1(nonce[:], len(plaintext), ciphertext, tag)

	return s.writeWholeFile(path, blob)
}

// Read loads and unseals the blob stored at name.
func (s *Store) Read(name string) ([]byte, status.Status) {
	path, ok := keyPath(s.baseDir, name)
	if !ok {
		return nil, status.InvalidParam
	}

	if st := s.loadWrapKey(); st != status.Success {
		return nil, st
	}

	blob, st := s.readWholeFile(path)
	if st != status.Success {
		return nil, st
	}

	nonce, tag, ciphertext, err := decodeSSB1(blob)
	if err != nil {
		return nil, status.Error
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)

	plaintext, ok := aead.Open(nil, s.wrapKey[:], nonce, sealed, nil)
	if !ok {
		return nil, status.Error
	}

	return plaintext, status.Success
}
