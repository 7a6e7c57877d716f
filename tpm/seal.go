package tpm

import (
	"crypto/sha256"
	"io"

	legacy "github.com/google/go-tpm/legacy/tpm2"
	"github.com/google/go-tpm/tpmutil"

	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
)

// sealedDataPCR is the platform configuration register the wrap key's
// policy is bound to; a PCR7 change after sealing makes every later
// unseal attempt fail.
const sealedDataPCR = 7

var storagePrimaryTemplate = legacy.Public{
	Type:       legacy.AlgRSA,
	NameAlg:    legacy.AlgSHA256,
	Attributes: legacy.FlagStorageDefault,
	RSAParameters: &legacy.RSAParams{
		Symmetric: &legacy.SymScheme{
			Alg:     legacy.AlgAES,
			KeyBits: 128,
			Mode:    legacy.AlgCFB,
		},
		KeyBits: 2048,
	},
}

// Device drives the TPM-backed wrap-key flow used by the secure store:
// a PCR7 policy session gates both sealing and unsealing a keyed-hash
// object holding the 32-byte wrap key.
type Device struct {
	rw io.ReadWriteCloser
}

// NewDevice wraps a CRB transport as a TPM policy/sealing driver.
func NewDevice(crb *CRB) *Device {
	return &Device{rw: newTransport(crb)}
}

// policySession opens a PCR7 SHA-256 policy session (a trial session when
// trial is true, used only to compute the digest a sealed object is
// created against) and returns the session handle and its resulting
// policy digest.
func (d *Device) policySession(trial bool) (tpmutil.Handle, []byte, status.Status) {
	sessionType := legacy.SessionPolicy
	if trial {
		sessionType = legacy.SessionTrial
	}

	session, _, err := legacy.StartAuthSession(
		d.rw,
		legacy.HandleNull,
		legacy.HandleNull,
		make([]byte, sha256.Size),
		nil,
		sessionType,
		legacy.AlgNull,
		legacy.AlgSHA256,
	)
	if err != nil {
		return 0, nil, status.Error
	}

	sel := legacy.PCRSelection{Hash: legacy.AlgSHA256, PCRs: []int{sealedDataPCR}}
	if err := legacy.PolicyPCR(d.rw, session, nil, sel); err != nil {
		legacy.FlushContext(d.rw, session)
		return 0, nil, status.Error
	}

	digest, err := legacy.PolicyGetDigest(d.rw, session)
	if err != nil {
		legacy.FlushContext(d.rw, session)
		return 0, nil, status.Error
	}

	return session, digest, status.Success
}

// Seal satisfies securestore.Seal: it stands up a fresh RSA storage
// primary, seals key as a keyed-hash object authorised by a PCR7 policy,
// and returns the concatenated TPM2B_PRIVATE||TPM2B_PUBLIC blob the
// secure store persists as WRAPKEY.TPM.
func (d *Device) Seal(key []byte) ([]byte, status.Status) {
	trial, digest, st := d.policySession(true)
	if st != status.Success {
		return nil, st
	}
	defer legacy.FlushContext(d.rw, trial)

	primary, _, err := legacy.CreatePrimary(d.rw, legacy.HandleOwner, legacy.PCRSelection{}, "", "", storagePrimaryTemplate)
	if err != nil {
		return nil, status.Error
	}
	defer legacy.FlushContext(d.rw, primary)

	priv, pub, err := legacy.Seal(d.rw, primary, "", "", digest, key)
	if err != nil {
		return nil, status.Error
	}

	out := make([]byte, 0, len(priv)+len(pub))
	out = append(out, priv...)
	out = append(out, pub...)
	return out, status.Success
}

// Unseal satisfies securestore.Unseal. blob is priv||pub as produced by
// Seal; priv carries its own TPM2B length prefix so the split needs no
// side channel. Unsealing only succeeds if PCR7 still matches the value
// recorded when Seal ran.
func (d *Device) Unseal(blob []byte) ([]byte, status.Status) {
	if len(blob) < 2 {
		return nil, status.InvalidParam
	}

	privLen := int(blob[0])<<8 | int(blob[1])
	if privLen+2 > len(blob) {
		return nil, status.InvalidParam
	}

	priv := blob[:2+privLen]
	pub := blob[2+privLen:]

	primary, _, err := legacy.CreatePrimary(d.rw, legacy.HandleOwner, legacy.PCRSelection{}, "", "", storagePrimaryTemplate)
	if err != nil {
		return nil, status.Error
	}
	defer legacy.FlushContext(d.rw, primary)

	handle, _, err := legacy.Load(d.rw, primary, "", pub, priv)
	if err != nil {
		return nil, status.Error
	}
	defer legacy.FlushContext(d.rw, handle)

	session, _, st := d.policySession(false)
	if st != status.Success {
		return nil, st
	}
	defer legacy.FlushContext(d.rw, session)

	data, err := legacy.UnsealWithSession(d.rw, session, handle, "")
	if err != nil {
		return nil, status.Error
	}

	return data, status.Success
}

// ExtendPCR extends sealedDataPCR with the SHA-256 digest of data. Nothing
// in this repository calls it; extending the PCR after sealing makes every
// later unseal fail its policy check.
func (d *Device) ExtendPCR(data []byte) status.Status {
	digest := sha256.Sum256(data)

	if err := legacy.PCRExtend(d.rw, tpmutil.Handle(sealedDataPCR), legacy.AlgSHA256, digest[:], ""); err != nil {
		return status.Error
	}

	return status.Success
}
