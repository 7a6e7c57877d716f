package tpm

// transport adapts a CRB into the io.ReadWriteCloser shape the legacy
// command-encoding helpers expect: one Write submits a full command, the
// following Read(s) drain the buffered response, mirroring how those
// helpers already talk to a /dev/tpm-style character device.
type transport struct {
	crb     *CRB
	pending []byte
}

func newTransport(crb *CRB) *transport {
	return &transport{crb: crb}
}

func (t *transport) Write(p []byte) (int, error) {
	resp, err := t.crb.Send(p)
	if err != nil {
		return 0, err
	}

	t.pending = resp
	return len(p), nil
}

func (t *transport) Read(p []byte) (int, error) {
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *transport) Close() error {
	return nil
}
