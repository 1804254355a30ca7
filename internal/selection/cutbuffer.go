package selection

import (
	"fmt"

	"go.klb.dev/xselect/internal/x11"
)

// StoreCutBuffer writes data into CUT_BUFFER0 on the root window. There is
// no owner and no event loop: the value stays on the server until replaced.
func StoreCutBuffer(conn x11.Conn, data []byte) error {
	err := conn.ChangeProperty(conn.Root(), x11.AtomCutBuffer0, x11.AtomString, x11.Format8, data)
	if err != nil {
		return fmt.Errorf("%w: set cut buffer: %w", ErrPeerWrite, err)
	}
	if err := conn.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrPeerWrite, err)
	}
	logTransfer("cut buffer stored", data)
	return nil
}

// LoadCutBuffer reads CUT_BUFFER0 from the root window. An unset buffer, or
// one holding anything other than 8-bit data, reads as empty.
func LoadCutBuffer(conn x11.Conn) ([]byte, error) {
	root := conn.Root()
	p, err := conn.GetProperty(root, x11.AtomCutBuffer0, x11.AtomAny, peekUnits)
	if err != nil {
		return nil, fmt.Errorf("%w: read cut buffer: %w", ErrProtocolViolation, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: no reply reading cut buffer", ErrProtocolViolation)
	}
	if p.Format != x11.Format8 {
		return []byte{}, nil
	}
	if p.BytesAfter > 0 {
		p, err = conn.GetProperty(root, x11.AtomCutBuffer0, p.Type, units(uint32(len(p.Value))+p.BytesAfter))
		if err != nil {
			return nil, fmt.Errorf("%w: read cut buffer: %w", ErrProtocolViolation, err)
		}
		if p == nil {
			return nil, fmt.Errorf("%w: no reply reading cut buffer", ErrProtocolViolation)
		}
	}
	data := p.Value
	if data == nil {
		data = []byte{}
	}
	logTransfer("cut buffer loaded", data)
	return data, nil
}
