package gpionet

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	maxCount      = math.MaxUint8
	maxMillis     = math.MaxUint16
	maxWriteBytes = math.MaxUint32
)

// PutLength encodes n as a size byte unsigned big-endian integer. Size is 1, 2 or 4.
func PutLength(n uint32, size int) ([]byte, error) {
	buf := make([]byte, size)
	switch size {
	case 1:
		if n > math.MaxUint8 {
			return nil, invalidArgument("length %d does not fit 1 byte", n)
		}
		buf[0] = byte(n)
	case 2:
		if n > math.MaxUint16 {
			return nil, invalidArgument("length %d does not fit 2 bytes", n)
		}
		binary.BigEndian.PutUint16(buf, uint16(n))
	case 4:
		binary.BigEndian.PutUint32(buf, n)
	default:
		return nil, invalidArgument("length header size %d", size)
	}
	return buf, nil
}

// ParseLength decodes a 1, 2 or 4 byte unsigned big-endian integer.
func ParseLength(b []byte) (uint32, error) {
	switch len(b) {
	case 1:
		return uint32(b[0]), nil
	case 2:
		return uint32(binary.BigEndian.Uint16(b)), nil
	case 4:
		return binary.BigEndian.Uint32(b), nil
	}
	return 0, invalidArgument("length header size %d", len(b))
}

func millis(d time.Duration) (uint16, error) {
	ms := d.Milliseconds()
	if ms < 0 || ms > maxMillis {
		return 0, invalidArgument("duration %s outside 0..%dms", d, maxMillis)
	}
	return uint16(ms), nil
}

func pinValue(value uint8) byte {
	if value != 0 {
		return 1
	}
	return 0
}

func EncodeSetPin(pin, value uint8) []byte {
	return []byte{byte(OpSetPinSingle), pin, pinValue(value)}
}

func EncodeSetPins(pins []PinState) ([]byte, error) {
	if len(pins) > maxCount {
		return nil, invalidArgument("%d pins in one command, max %d", len(pins), maxCount)
	}
	cmd := make([]byte, 0, 2+2*len(pins))
	cmd = append(cmd, byte(OpSetPinMulti), byte(len(pins)))
	for _, ps := range pins {
		cmd = append(cmd, ps.ID, pinValue(ps.Value))
	}
	return cmd, nil
}

func EncodeWriteBytes(data []byte) ([]byte, error) {
	if uint64(len(data)) > maxWriteBytes {
		return nil, invalidArgument("%d bytes in one command", len(data))
	}
	cmd := make([]byte, 5, 5+len(data))
	cmd[0] = byte(OpWriteBytes)
	binary.BigEndian.PutUint32(cmd[1:5], uint32(len(data)))
	return append(cmd, data...), nil
}

func EncodeGetPin(pin uint8) []byte {
	return []byte{byte(OpGetPinSingle), pin}
}

func EncodeGetPins(pins []uint8) ([]byte, error) {
	if len(pins) > maxCount {
		return nil, invalidArgument("%d pins in one command, max %d", len(pins), maxCount)
	}
	cmd := make([]byte, 0, 2+len(pins))
	cmd = append(cmd, byte(OpGetPinMulti), byte(len(pins)))
	return append(cmd, pins...), nil
}

func EncodeDelay(d time.Duration) ([]byte, error) {
	ms, err := millis(d)
	if err != nil {
		return nil, err
	}
	cmd := []byte{byte(OpDelay), 0, 0}
	binary.BigEndian.PutUint16(cmd[1:], ms)
	return cmd, nil
}

func EncodeWaitForPin(pin, value uint8, interval time.Duration) ([]byte, error) {
	ms, err := millis(interval)
	if err != nil {
		return nil, err
	}
	cmd := []byte{byte(OpWaitForPin), pin, pinValue(value), 0, 0}
	binary.BigEndian.PutUint16(cmd[3:], ms)
	return cmd, nil
}

func EncodeGetName() []byte {
	return []byte{byte(OpGetName)}
}

func EncodeGetAPIVersion() []byte {
	return []byte{byte(OpGetAPIVersion)}
}
