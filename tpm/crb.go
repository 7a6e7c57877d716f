// Package tpm implements a TPM 2.0 Command/Response Buffer transport and
// the policy-session sealing flow the secure store uses to wrap its
// software key under a TPM-resident PCR policy.
package tpm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dmorton63/qaiosplus-sub000/internal/reg"
)

// Control area register offsets, relative to the CRB base address.
const (
	ctrlReq    = 0x00
	ctrlSts    = 0x04
	ctrlCancel = 0x08
	ctrlStart  = 0x0C
	cmdSizeReg = 0x18
	cmdPALow   = 0x1C
	cmdPAHigh  = 0x20
	rspSizeReg = 0x24
	rspPAReg   = 0x28
)

const (
	reqCommandReady uint32 = 1 << 0
	reqGoIdle       uint32 = 1 << 1

	startBit uint32 = 1 << 0

	cancelBit uint32 = 1 << 0

	spinLimit = 1_000_000
)

// ErrTimeout is returned when a CRB control-area transition never
// observes the expected bit clear within spinLimit polls.
var ErrTimeout = errors.New("tpm: CRB transition timed out")

// CRB drives the five-step CRB command/response protocol over a
// memory-mapped control area, plus the command and response buffers whose
// addresses and sizes it reads out of that control area.
type CRB struct {
	ctrlBase uint64
	cmdBase  uint64
	cmdSize  uint32
	rspBase  uint64
	rspSize  uint32
}

// NewCRB reads the buffer geometry from the control area at ctrlBase
// (already mapped uncached and HHDM-adjusted by the caller) and returns a
// ready transport.
func NewCRB(ctrlBase uint64) *CRB {
	low := reg.Read32(ctrlBase + cmdPALow)
	high := reg.Read32(ctrlBase + cmdPAHigh)

	return &CRB{
		ctrlBase: ctrlBase,
		cmdBase:  uint64(high)<<32 | uint64(low),
		cmdSize:  reg.Read32(ctrlBase + cmdSizeReg),
		rspBase:  uint64(reg.Read32(ctrlBase + rspPAReg)),
		rspSize:  reg.Read32(ctrlBase + rspSizeReg),
	}
}

// waitClear polls addr until (value & mask) == 0, up to spinLimit times.
func waitClear(addr uint64, mask uint32) bool {
	for i := 0; i < spinLimit; i++ {
		if reg.Read32(addr)&mask == 0 {
			return true
		}
	}
	return false
}

func writeBuffer(base uint64, data []byte) {
	for i, b := range data {
		reg.Write8(base+uint64(i), b)
	}
}

func readBuffer(base uint64, n uint32) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = reg.Read8(base + uint64(i))
	}
	return out
}

// responseHeaderSize is the fixed TPM response header: tag (2), size (4),
// return code (4).
const responseHeaderSize = 10

// Send implements transport.TPM: it drives the CRB through command-ready,
// start, and idle transitions, copying input into the command buffer and
// reading back exactly as many response bytes as the header's size field
// declares.
func (c *CRB) Send(input []byte) ([]byte, error) {
	if uint32(len(input)) > c.cmdSize {
		return nil, fmt.Errorf("tpm: command of %d bytes exceeds %d-byte buffer", len(input), c.cmdSize)
	}

	reg.SetBits32(c.ctrlBase+ctrlReq, reqCommandReady)
	if !waitClear(c.ctrlBase+ctrlReq, reqCommandReady) {
		return nil, ErrTimeout
	}

	writeBuffer(c.cmdBase, input)

	reg.SetBits32(c.ctrlBase+ctrlStart, startBit)
	if !waitClear(c.ctrlBase+ctrlStart, startBit) {
		reg.SetBits32(c.ctrlBase+ctrlCancel, cancelBit)
		waitClear(c.ctrlBase+ctrlStart, startBit)
		return nil, ErrTimeout
	}

	header := readBuffer(c.rspBase, responseHeaderSize)
	respLen := binary.BigEndian.Uint32(header[2:6])
	if respLen < responseHeaderSize || respLen > c.rspSize {
		return nil, fmt.Errorf("tpm: response size %d out of range", respLen)
	}

	out := header
	if respLen > responseHeaderSize {
		out = append(out, readBuffer(c.rspBase+responseHeaderSize, respLen-responseHeaderSize)...)
	}

	reg.SetBits32(c.ctrlBase+ctrlReq, reqGoIdle)
	if !waitClear(c.ctrlBase+ctrlReq, reqGoIdle) {
		return nil, ErrTimeout
	}

	return out, nil
}
