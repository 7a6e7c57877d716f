package securestore

import (
	"encoding/binary"

	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
)

const (
	wktMagic   = "WKT1"
	wktVersion = 1
)

// encodeWrapKeyTPM asks seal to wrap a 32-byte key and serialises the
// result as a WKT1 blob: magic, version, privLen, pubLen, then the
// TPM2B_PRIVATE and TPM2B_PUBLIC structures seal produced back to back.
func encodeWrapKeyTPM(key []byte, seal Seal) ([]byte, status.Status) {
	sealed, st := seal(key)
	if st != status.Success {
		return nil, st
	}

	// seal returns priv||pub already concatenated with their own TPM2B
	// length prefixes; WKT1 records the split so decode doesn't need to
	// understand TPM2B framing itself.
	privLen := binary.BigEndian.Uint16(sealed[:2])
	pubStart := 2 + int(privLen)

	out := make([]byte, 0, 4+4+4+4+len(sealed))
	out = append(out, wktMagic...)

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], wktVersion)
	out = append(out, u32[:]...)

	binary.LittleEndian.PutUint32(u32[:], uint32(pubStart))
	out = append(out, u32[:]...)

	binary.LittleEndian.PutUint32(u32[:], uint32(len(sealed)-pubStart))
	out = append(out, u32[:]...)

	out = append(out, sealed...)

	return out, status.Success
}

// decodeWrapKeyTPM validates a WKT1 header and hands the embedded
// TPM2B_PRIVATE||TPM2B_PUBLIC pair to unseal to recover the 32-byte key.
func decodeWrapKeyTPM(blob []byte, unseal Unseal) ([]byte, status.Status) {
	if len(blob) < 16 || string(blob[:4]) != wktMagic {
		return nil, status.Error
	}

	if binary.LittleEndian.Uint32(blob[4:8]) != wktVersion {
		return nil, status.Error
	}

	privLen := binary.LittleEndian.Uint32(blob[8:12])
	pubLen := binary.LittleEndian.Uint32(blob[12:16])

	body := blob[16:]
	if uint32(len(body)) != privLen+pubLen {
		return nil, status.Error
	}

	key, st := unseal(body)
	if st != status.Success {
		return nil, st
	}

	if len(key) != wrapKeySize {
		return nil, status.Error
	}

	return key, status.Success
}
