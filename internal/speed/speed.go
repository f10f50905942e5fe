// Package speed converts BLE characteristic writes into the 4-byte speed
// frame consumed by the UI.
package speed

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FrameSize is the length of an encoded speed frame.
const FrameSize = 4

var (
	// ErrEmptyPayload is returned for a zero-length write.
	ErrEmptyPayload = errors.New("empty speed payload")
	// ErrOverflow is returned when the payload does not fit in 32 bits.
	ErrOverflow = errors.New("speed value exceeds 32 bits")
)

// Decode interprets payload as a little-endian unsigned integer over its full
// length. Payloads longer than four bytes are accepted as long as the extra
// high-order bytes are zero.
func Decode(payload []byte) (uint32, error) {
	if len(payload) == 0 {
		return 0, ErrEmptyPayload
	}
	for i := FrameSize; i < len(payload); i++ {
		if payload[i] != 0 {
			return 0, fmt.Errorf("%w: %d byte payload", ErrOverflow, len(payload))
		}
	}

	var v uint32
	for i := min(len(payload), FrameSize) - 1; i >= 0; i-- {
		v = v<<8 | uint32(payload[i])
	}
	return v, nil
}

// Encode returns v as exactly four little-endian bytes.
func Encode(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(make([]byte, 0, FrameSize), v)
}

// Reencode decodes an inbound payload and returns the outbound frame.
func Reencode(payload []byte) (uint32, []byte, error) {
	v, err := Decode(payload)
	if err != nil {
		return 0, nil, err
	}
	return v, Encode(v), nil
}
