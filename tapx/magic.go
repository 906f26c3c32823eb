package tapx

import "encoding/hex"

type Magic uint8

const (
	// MagicReq indicates that the packet is a request.
	MagicReq = Magic(0x80)

	// MagicRes indicates that the packet is a response.
	MagicRes = Magic(0x81)
)

func (m Magic) IsRequest() bool {
	return m == MagicReq
}

func (m Magic) IsResponse() bool {
	return m == MagicRes
}

func (m Magic) String() string {
	switch m {
	case MagicReq:
		return "Req"
	case MagicRes:
		return "Res"
	}

	return "x" + hex.EncodeToString([]byte{byte(m)})
}
