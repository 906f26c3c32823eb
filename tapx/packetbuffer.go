package tapx

import (
	"encoding/binary"
)

const packetHeaderLen = 24

// PacketBuffer reassembles complete packets from a stream of raw byte
// chunks whose boundaries have no relation to packet boundaries.  It is
// fed by whatever mechanism receives transport data and never blocks;
// an incomplete packet simply stays buffered until the next chunk.
type PacketBuffer struct {
	pending []byte
}

// Feed appends one chunk to the accumulation buffer and invokes cb once
// per complete packet now available, in arrival order.  The packets
// reference freshly allocated payload buffers and remain valid after
// Feed returns.  A framing error is terminal; the buffer contents are
// undefined afterwards and the connection must be torn down.
func (pb *PacketBuffer) Feed(chunk []byte, cb func(*Packet) error) error {
	pb.pending = append(pb.pending, chunk...)

	for {
		if len(pb.pending) < packetHeaderLen {
			return nil
		}

		headerBuf := pb.pending[:packetHeaderLen]

		keyLen := int(binary.BigEndian.Uint16(headerBuf[2:]))
		extrasLen := int(headerBuf[4])
		payloadLen := int(binary.BigEndian.Uint32(headerBuf[8:]))

		if payloadLen < extrasLen+keyLen {
			return framingError{"total body length shorter than extras and key"}
		}

		if len(pb.pending) < packetHeaderLen+payloadLen {
			return nil
		}

		pak := &Packet{
			Magic:    Magic(headerBuf[0]),
			OpCode:   OpCode(headerBuf[1]),
			Datatype: headerBuf[5],
			Opaque:   binary.BigEndian.Uint32(headerBuf[12:]),
			Cas:      binary.BigEndian.Uint64(headerBuf[16:]),
		}

		if pak.Magic.IsResponse() {
			pak.Status = Status(binary.BigEndian.Uint16(headerBuf[6:]))
		} else {
			pak.VbucketID = binary.BigEndian.Uint16(headerBuf[6:])
		}

		// we intentionally copy the payload to a newly allocated buffer since
		// it escapes through the *Packet and the pending buffer is reused.
		payloadBuf := make([]byte, payloadLen)
		copy(payloadBuf, pb.pending[packetHeaderLen:packetHeaderLen+payloadLen])

		payloadPos := 0

		pak.Extras = payloadBuf[payloadPos : payloadPos+extrasLen]
		payloadPos += extrasLen

		pak.Key = payloadBuf[payloadPos : payloadPos+keyLen]
		payloadPos += keyLen

		pak.Value = payloadBuf[payloadPos:]

		pb.pending = pb.pending[packetHeaderLen+payloadLen:]

		if err := cb(pak); err != nil {
			return err
		}
	}
}
