// Package chacha20drbg implements the kernel's entropy pool: a
// ChaCha20-keyed deterministic random bit generator that is rekeyed after
// every fill for forward secrecy, seeded by XORing caller-supplied
// entropy into its key and nonce.
package chacha20drbg

import (
	"golang.org/x/crypto/chacha20"
)

const (
	keySize   = chacha20.KeySize
	nonceSize = chacha20.NonceSize
	blockSize = 64
)

// Pool is the entropy pool state: a 256-bit key, a 96-bit nonce, and a
// running block counter.
type Pool struct {
	key     [keySize]byte
	nonce   [nonceSize]byte
	counter uint32
	seeded  bool

	// jitter hooks a TSC-derived byte source used to stir the key before
	// the first real entropy arrives; nil in host tests.
	jitter func() uint64
}

// New creates an unseeded pool. jitter, if non-nil, is consulted by
// FillRandom to stir timing noise into the key before the pool has ever
// been seeded via AddEntropy.
func New(jitter func() uint64) *Pool {
	return &Pool{jitter: jitter}
}

// AddEntropy XORs data into the key and nonce (indexing cyclically by
// i mod 32 and i mod 12), marks the pool seeded, and rekeys.
func (p *Pool) AddEntropy(data []byte) {
	for i, b := range data {
		p.key[i%keySize] ^= b
		p.nonce[i%nonceSize] ^= b
	}

	p.seeded = true
	p.rekey()
}

// rekey encrypts a 64-byte zero block under the current key/nonce at the
// current block counter, then replaces the key with the first 32 bytes of
// output and XORs the next 12 bytes into the nonce.
func (p *Pool) rekey() {
	var zero [blockSize]byte
	var out [blockSize]byte

	c, err := chacha20.NewUnauthenticatedCipher(p.key[:], p.nonce[:])
	if err != nil {
		panic(err)
	}
	c.SetCounter(p.counter)

	c.XORKeyStream(out[:], zero[:])

	copy(p.key[:], out[:keySize])
	for i := 0; i < nonceSize; i++ {
		p.nonce[i] ^= out[keySize+i]
	}
}

func (p *Pool) stirJitter() {
	if p.jitter == nil {
		return
	}

	var buf [8]byte
	v := p.jitter()
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}

	for i, b := range buf {
		p.key[i%keySize] ^= b
	}
}

// FillRandom emits ChaCha20 keystream blocks, advancing the counter, until
// out is filled, then rekeys so the state used to produce out is never
// reachable again. Before the first AddEntropy call, jitter (if set) is
// stirred into the key first.
func (p *Pool) FillRandom(out []byte) {
	if !p.seeded {
		p.stirJitter()
	}

	c, err := chacha20.NewUnauthenticatedCipher(p.key[:], p.nonce[:])
	if err != nil {
		panic(err)
	}
	c.SetCounter(p.counter)

	zero := make([]byte, len(out))
	c.XORKeyStream(out, zero)
	p.counter += uint32((len(out) + blockSize - 1) / blockSize)

	p.rekey()
}

// Seeded reports whether AddEntropy has been called at least once.
func (p *Pool) Seeded() bool {
	return p.seeded
}
