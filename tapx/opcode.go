package tapx

import "encoding/hex"

// OpCode represents the specific command the packet is performing.
type OpCode uint8

// These constants provide predefined values for all the operations
// which are supported by this library.
const (
	OpCodeGet                = OpCode(0x00)
	OpCodeSet                = OpCode(0x01)
	OpCodeAdd                = OpCode(0x02)
	OpCodeReplace            = OpCode(0x03)
	OpCodeDelete             = OpCode(0x04)
	OpCodeIncrement          = OpCode(0x05)
	OpCodeDecrement          = OpCode(0x06)
	OpCodeNoop               = OpCode(0x0a)
	OpCodeAppend             = OpCode(0x0e)
	OpCodePrepend            = OpCode(0x0f)
	OpCodeStat               = OpCode(0x10)
	OpCodeTouch              = OpCode(0x1c)
	OpCodeSASLListMechs      = OpCode(0x20)
	OpCodeSASLAuth           = OpCode(0x21)
	OpCodeSASLStep           = OpCode(0x22)
	OpCodeTapConnect         = OpCode(0x40)
	OpCodeTapMutation        = OpCode(0x41)
	OpCodeTapDelete          = OpCode(0x42)
	OpCodeTapFlush           = OpCode(0x43)
	OpCodeTapOpaque          = OpCode(0x44)
	OpCodeTapVbucketSet      = OpCode(0x45)
	OpCodeTapCheckpointStart = OpCode(0x46)
	OpCodeTapCheckpointEnd   = OpCode(0x47)
)

// String returns the string representation of the opcode.
func (command OpCode) String() string {
	switch command {
	case OpCodeGet:
		return "GET"
	case OpCodeSet:
		return "SET"
	case OpCodeAdd:
		return "ADD"
	case OpCodeReplace:
		return "REPLACE"
	case OpCodeDelete:
		return "DELETE"
	case OpCodeIncrement:
		return "INCREMENT"
	case OpCodeDecrement:
		return "DECREMENT"
	case OpCodeNoop:
		return "NOOP"
	case OpCodeAppend:
		return "APPEND"
	case OpCodePrepend:
		return "PREPEND"
	case OpCodeStat:
		return "STAT"
	case OpCodeTouch:
		return "TOUCH"
	case OpCodeSASLListMechs:
		return "SASLLISTMECHS"
	case OpCodeSASLAuth:
		return "SASLAUTH"
	case OpCodeSASLStep:
		return "SASLSTEP"
	case OpCodeTapConnect:
		return "TAPCONNECT"
	case OpCodeTapMutation:
		return "TAPMUTATION"
	case OpCodeTapDelete:
		return "TAPDELETE"
	case OpCodeTapFlush:
		return "TAPFLUSH"
	case OpCodeTapOpaque:
		return "TAPOPAQUE"
	case OpCodeTapVbucketSet:
		return "TAPVBUCKETSET"
	case OpCodeTapCheckpointStart:
		return "TAPCHECKPOINTSTART"
	case OpCodeTapCheckpointEnd:
		return "TAPCHECKPOINTEND"
	default:
		return "x" + hex.EncodeToString([]byte{byte(command)})
	}
}
