package chacha20drbg_test

import (
	"bytes"
	"testing"

	"github.com/dmorton63/qaiosplus-sub000/crypto/chacha20drbg"
	"github.com/stretchr/testify/require"
)

func TestFillRandomProducesDistinctOutputsAfterRekey(t *testing.T) {
	p := chacha20drbg.New(nil)
	p.AddEntropy([]byte("some entropy from the caller"))

	a := make([]byte, 64)
	b := make([]byte, 64)

	p.FillRandom(a)
	p.FillRandom(b)

	require.False(t, bytes.Equal(a, b), "forward secrecy: consecutive fills must differ after rekey")
	require.NotEqual(t, make([]byte, 64), a)
}

func TestAddEntropyMarksSeeded(t *testing.T) {
	p := chacha20drbg.New(nil)
	require.False(t, p.Seeded())

	p.AddEntropy([]byte{1, 2, 3})
	require.True(t, p.Seeded())
}

func TestUnseededFillUsesJitterHook(t *testing.T) {
	var calls int
	p := chacha20drbg.New(func() uint64 {
		calls++
		return 0xdeadbeefcafebabe
	})

	out := make([]byte, 32)
	p.FillRandom(out)

	require.Equal(t, 1, calls)
	require.NotEqual(t, make([]byte, 32), out)
}

func TestDifferentEntropyProducesDifferentStreams(t *testing.T) {
	p1 := chacha20drbg.New(nil)
	p1.AddEntropy([]byte("alpha"))

	p2 := chacha20drbg.New(nil)
	p2.AddEntropy([]byte("beta"))

	a := make([]byte, 32)
	b := make([]byte, 32)
	p1.FillRandom(a)
	p2.FillRandom(b)

	require.False(t, bytes.Equal(a, b))
}
