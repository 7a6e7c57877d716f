package xhci

import (
	"github.com/dmorton63/qaiosplus-sub000/dma"
	"github.com/dmorton63/qaiosplus-sub000/internal/reg"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
)

const controlEP0DCI = 1

// ringTransferDoorbell rings the doorbell for slot, targeting endpoint
// dci, and waits (bounded) for the matching Transfer Event.
func (c *Controller) ringTransferDoorbell(slot uint8, dci int) (completionCode int, st status.Status) {
	c.transferPendingSlot = slot
	c.transferPendingDCI = dci
	c.transferPending = true

	reg.Write32(c.r.doorbell(slot), uint32(dci))

	for i := 0; i < spinLimit; i++ {
		c.ProcessEvents()
		if !c.transferPending {
			return c.transferCompletion, status.Success
		}
	}

	return 0, status.Timeout
}

// controlTransfer issues a three-stage EP0 control transfer: Setup Stage
// (the 8-byte setup packet as an immediate), an optional Data Stage, and
// a Status Stage with the opposite direction, IOC set on whichever stage
// is last.
func (c *Controller) controlTransfer(dev *Device, setup SetupData, dataAddr uint64, dataLen int, dataIn bool) status.Status {
	setupBytes := setup.bytes()
	var paramLow, paramHigh uint32
	paramLow = uint32(setupBytes[0]) | uint32(setupBytes[1])<<8 | uint32(setupBytes[2])<<16 | uint32(setupBytes[3])<<24
	paramHigh = uint32(setupBytes[4]) | uint32(setupBytes[5])<<8 | uint32(setupBytes[6])<<16 | uint32(setupBytes[7])<<24

	hasData := dataLen > 0
	trt := uint32(0)
	if hasData {
		if dataIn {
			trt = 3 << 16
		} else {
			trt = 2 << 16
		}
	}

	setupTRB := TRB{
		Parameter: uint64(paramHigh)<<32 | uint64(paramLow),
		Status:    8,
		Control:   makeControl(trbSetupStage, 0, trbIDT) | trt,
	}
	dev.ep0.enqueueTRB(setupTRB)

	if hasData {
		dirBit := uint32(0)
		if dataIn {
			dirBit = 1 << 16
		}

		dataTRB := TRB{
			Parameter: dataAddr,
			Status:    uint32(dataLen),
			Control:   makeControl(trbDataStage, 0, dirBit),
		}
		dev.ep0.enqueueTRB(dataTRB)
	}

	statusDir := uint32(0)
	if !dataIn || !hasData {
		statusDir = 1 << 16
	}

	statusTRB := TRB{
		Control: makeControl(trbStatusStage, 0, statusDir|trbIOC),
	}
	dev.ep0.enqueueTRB(statusTRB)

	code, st := c.ringTransferDoorbell(dev.Slot, controlEP0DCI)
	if st != status.Success {
		return st
	}
	if code != cmplSuccess && code != cmplShortPacket {
		return status.Error
	}

	return status.Success
}

func (c *Controller) getDescriptor(dev *Device, descType uint8, index uint8, length int) ([]byte, status.Status) {
	buf := dma.Alloc(make([]byte, length), 64)

	setup := SetupData{
		RequestType: 0x80,
		Request:     reqGetDescriptor,
		Value:       uint16(descType)<<8 | uint16(index),
		Length:      uint16(length),
	}

	if st := c.controlTransfer(dev, setup, uint64(buf), length, true); st != status.Success {
		return nil, st
	}

	out := make([]byte, length)
	for i := range out {
		out[i] = reg.Read8(uint64(buf) + uint64(i))
	}

	return out, status.Success
}

func (c *Controller) setConfiguration(dev *Device, value uint8) status.Status {
	setup := SetupData{RequestType: 0x00, Request: reqSetConfiguration, Value: uint16(value)}
	return c.controlTransfer(dev, setup, 0, 0, false)
}

func (c *Controller) setProtocol(dev *Device, ifaceNum uint8, bootProtocol bool) status.Status {
	value := uint16(1)
	if bootProtocol {
		value = 0
	}

	setup := SetupData{
		RequestType: 0x21,
		Request:     hidReqSetProtocol,
		Value:       value,
		Index:       uint16(ifaceNum),
	}
	return c.controlTransfer(dev, setup, 0, 0, false)
}

// enumerateHID fetches the Device and Configuration descriptors, locates
// a HID interface with an interrupt-IN endpoint, classifies it as boot
// mouse, boot keyboard (unsupported), or tablet, configures it, and arms
// the first interrupt IN transfer.
func (c *Controller) enumerateHID(dev *Device) {
	devDescBytes, st := c.getDescriptor(dev, descDevice, 0, 18)
	if st != status.Success {
		return
	}
	_ = parseDeviceDescriptor(devDescBytes)

	cfgHeader, st := c.getDescriptor(dev, descConfiguration, 0, 9)
	if st != status.Success || len(cfgHeader) < 4 {
		return
	}
	totalLen := int(cfgHeader[2]) | int(cfgHeader[3])<<8

	cfg, st := c.getDescriptor(dev, descConfiguration, 0, totalLen)
	if st != status.Success {
		return
	}

	iface := findHIDInterface(cfg)
	if !iface.found {
		return
	}

	switch {
	case iface.subClass == hidSubclassBoot && iface.protocol == hidProtocolMouse:
		dev.Kind = HIDBootMouse
	case iface.subClass == hidSubclassBoot && iface.protocol == hidProtocolKeyboard:
		return // boot keyboard: unsupported
	default:
		dev.Kind = HIDTablet
	}

	if st := c.setConfiguration(dev, 1); st != status.Success {
		return
	}

	bootProtocol := dev.Kind == HIDBootMouse
	if st := c.setProtocol(dev, iface.interfaceNumber, bootProtocol); st != status.Success {
		return
	}

	if dev.Kind == HIDTablet {
		if report, st := c.getDescriptor(dev, descHIDReport, 0, 256); st == status.Success {
			dev.logicalMaxX, dev.logicalMaxY = hidLogicalMaxima(report)
		}
	}

	dci := 2*int(iface.epAddress&0x0F) + 1
	dev.hidDCI = dci
	dev.hidMaxPkt = iface.epMaxPacket
	dev.hidRing = newRing()
	dev.hidBuf = uint64(dma.Alloc(make([]byte, iface.epMaxPacket), 64))

	inputCtx := allocInputContext()
	inputControlAddAdd(inputCtx, 0)
	inputControlAddAdd(inputCtx, uint(dci))
	writeSlotContext(inputSlotContextAddr(inputCtx), 0, dev.Speed, uint8(dci), uint8(dev.Port+1))
	writeEndpointContext(inputEndpointContextAddr(inputCtx, dci), epTypeInterruptIN, iface.epMaxPacket, dev.hidRing, iface.epInterval, 3)

	if st := c.configureEndpoint(dev.Slot, inputCtx); st != status.Success {
		return
	}

	if c.OnHID != nil {
		c.OnHID(dev)
	}

	c.armInterruptIN(dev)
}

// armInterruptIN enqueues a single Normal TRB on the HID interrupt
// endpoint's transfer ring and rings its doorbell, without waiting for
// completion; the corresponding Transfer Event is handled asynchronously
// by ProcessEvents.
func (c *Controller) armInterruptIN(dev *Device) {
	t := TRB{
		Parameter: dev.hidBuf,
		Status:    uint32(dev.hidMaxPkt),
		Control:   makeControl(trbNormal, 0, trbIOC),
	}
	dev.hidRing.enqueueTRB(t)

	reg.Write32(c.r.doorbell(dev.Slot), uint32(dev.hidDCI))
}

// handleTransferEvent dispatches a Transfer Event: if it matches a
// control transfer awaited by ringTransferDoorbell, records completion;
// if it is a HID interrupt-IN completion, decodes the report and re-arms.
func (c *Controller) handleTransferEvent(t TRB) {
	slot := uint8(t.Control >> 24)
	dci := int((t.Control >> 16) & 0x1F)
	code := completionCode(t.Status)

	if c.transferPending && slot == c.transferPendingSlot && dci == c.transferPendingDCI {
		c.transferCompletion = code
		c.transferPending = false
		return
	}

	dev := c.devices[slot]
	if dev == nil || dev.hidDCI == 0 || dci != dev.hidDCI {
		return
	}

	if code != cmplSuccess && code != cmplShortPacket {
		c.armInterruptIN(dev)
		return
	}

	report := make([]byte, dev.hidMaxPkt)
	for i := range report {
		report[i] = reg.Read8(dev.hidBuf + uint64(i))
	}

	ev := decodeHIDReport(dev, report)
	if dev.OnPointer != nil {
		dev.OnPointer(ev)
	}

	c.armInterruptIN(dev)
}
