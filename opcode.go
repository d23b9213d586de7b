package gpionet

import "fmt"

// APIVersion is reported by GET_API_VERSION. Version 2 added GET_NAME and GET_API_VERSION.
const APIVersion uint8 = 2

const (
	StatusFailure byte = 0
	StatusSuccess byte = 1
)

// Opcode is the first byte of every command on the wire.
type Opcode byte

const (
	// OpSetPinSingle: pin(1) value(1) -> status(1)
	OpSetPinSingle Opcode = iota
	// OpSetPinMulti: count(1) then count x [pin(1) value(1)] -> status(1)
	OpSetPinMulti
	// OpWriteBytes: length(4) then length bytes -> status(1)
	OpWriteBytes
	// OpGetPinSingle: pin(1) -> value(1)
	OpGetPinSingle
	// OpGetPinMulti: count(1) then count x pin(1) -> count x value(1)
	OpGetPinMulti
	// OpDelay: ms(2) -> status(1)
	OpDelay
	// OpWaitForPin: pin(1) target(1) interval ms(2) -> status(1)
	OpWaitForPin
	// OpGetName: no payload -> length(1) name
	OpGetName
	// OpGetAPIVersion: no payload -> version(1)
	OpGetAPIVersion
)

var opcodeNames = map[Opcode]string{
	OpSetPinSingle:  "SET_PIN_SINGLE",
	OpSetPinMulti:   "SET_PIN_MULTI",
	OpWriteBytes:    "WRITE_BYTES",
	OpGetPinSingle:  "GET_PIN_SINGLE",
	OpGetPinMulti:   "GET_PIN_MULTI",
	OpDelay:         "DELAY",
	OpWaitForPin:    "WAIT_FOR_PIN",
	OpGetName:       "GET_NAME",
	OpGetAPIVersion: "GET_API_VERSION",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(op))
}

func (op Opcode) Known() bool {
	_, ok := opcodeNames[op]
	return ok
}

// WriteStyle reports whether the command is answered with a single status byte.
// Unknown opcodes fall back to a status byte as well.
func (op Opcode) WriteStyle() bool {
	switch op {
	case OpGetPinSingle, OpGetPinMulti, OpGetName, OpGetAPIVersion:
		return false
	}
	return true
}
