package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrScaleDecode = errors.New("scale decode failed")

// scaleEncoder appends SCALE-encoded primitives. Only the handful of shapes
// the agent's calls use are supported.
type scaleEncoder struct {
	buf []byte
}

func (e *scaleEncoder) u8(v byte) { e.buf = append(e.buf, v) }

func (e *scaleEncoder) u64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

func (e *scaleEncoder) raw(b []byte) { e.buf = append(e.buf, b...) }

func (e *scaleEncoder) bool(v bool) {
	if v {
		e.u8(1)
		return
	}
	e.u8(0)
}

func (e *scaleEncoder) compact(v uint64) {
	switch {
	case v < 1<<6:
		e.u8(byte(v) << 2)
	case v < 1<<14:
		e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(v)<<2|0b01)
	case v < 1<<30:
		e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v)<<2|0b10)
	default:
		n := 8
		for n > 4 && v>>(8*(n-1)) == 0 {
			n--
		}
		e.u8(byte(n-4)<<2 | 0b11)
		for i := 0; i < n; i++ {
			e.u8(byte(v >> (8 * i)))
		}
	}
}

// bytes writes a length-prefixed byte vector.
func (e *scaleEncoder) bytes(b []byte) {
	e.compact(uint64(len(b)))
	e.raw(b)
}

func (e *scaleEncoder) strings(list []string) {
	e.compact(uint64(len(list)))
	for _, s := range list {
		e.bytes([]byte(s))
	}
}

type scaleDecoder struct {
	buf []byte
	off int
}

func (d *scaleDecoder) remaining() int { return len(d.buf) - d.off }

func (d *scaleDecoder) take(n int) ([]byte, error) {
	if n < 0 || d.remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d", ErrScaleDecode, n, d.off)
	}
	out := d.buf[d.off : d.off+n]
	d.off += n
	return out, nil
}

func (d *scaleDecoder) u8() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *scaleDecoder) u64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *scaleDecoder) array32() ([32]byte, error) {
	var out [32]byte
	b, err := d.take(32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func (d *scaleDecoder) compact() (uint64, error) {
	first, err := d.u8()
	if err != nil {
		return 0, err
	}
	switch first & 0b11 {
	case 0b00:
		return uint64(first >> 2), nil
	case 0b01:
		next, err := d.u8()
		if err != nil {
			return 0, err
		}
		return uint64(first>>2) | uint64(next)<<6, nil
	case 0b10:
		rest, err := d.take(3)
		if err != nil {
			return 0, err
		}
		v := uint32(first) | uint32(rest[0])<<8 | uint32(rest[1])<<16 | uint32(rest[2])<<24
		return uint64(v >> 2), nil
	default:
		n := int(first>>2) + 4
		if n > 8 {
			return 0, fmt.Errorf("%w: compact integer wider than 64 bits", ErrScaleDecode)
		}
		b, err := d.take(n)
		if err != nil {
			return 0, err
		}
		var v uint64
		for i := n - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v, nil
	}
}

func (d *scaleDecoder) bytes() ([]byte, error) {
	n, err := d.compact()
	if err != nil {
		return nil, err
	}
	if n > uint64(d.remaining()) {
		return nil, fmt.Errorf("%w: vector length %d exceeds input", ErrScaleDecode, n)
	}
	b, err := d.take(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (d *scaleDecoder) strings() ([]string, error) {
	n, err := d.compact()
	if err != nil {
		return nil, err
	}
	if n > uint64(d.remaining()) {
		return nil, fmt.Errorf("%w: vector length %d exceeds input", ErrScaleDecode, n)
	}
	out := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		b, err := d.bytes()
		if err != nil {
			return nil, err
		}
		out = append(out, string(b))
	}
	return out, nil
}
