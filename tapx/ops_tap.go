package tapx

import (
	"encoding/binary"
	"math"
)

type OpsTap struct {
}

// TapConnectRequest describes the streaming mode being requested.  The
// flag word is derived from which optional fields are populated, plus
// any flags the caller sets directly.
type TapConnectRequest struct {
	StreamName string
	Flags      TapConnectFlags

	// Backfill requests historical events starting from the given
	// position.  -1 means "from the current point onwards only".
	Backfill *int64

	// VbucketIDs restricts the stream to the listed vbuckets.
	VbucketIDs []uint16
}

func (r TapConnectRequest) OpName() string { return OpCodeTapConnect.String() }

// EncodeTapConnect builds the opcode 0x40 streaming-mode request.  The
// request carries no response; the server simply begins pushing events.
func (o OpsTap) EncodeTapConnect(req *TapConnectRequest) (*Packet, error) {
	flags := req.Flags
	if req.Backfill != nil {
		flags |= TapConnectFlagBackfill
	}
	if req.VbucketIDs != nil {
		flags |= TapConnectFlagListVbuckets
	}

	extraBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(extraBuf[0:], uint32(flags))

	var valueBuf []byte
	if flags&TapConnectFlagBackfill != 0 {
		if req.Backfill == nil {
			return nil, protocolError{"backfill flag set without a backfill position"}
		}

		backfillBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(backfillBuf, uint64(*req.Backfill))
		valueBuf = append(valueBuf, backfillBuf...)
	}
	if flags&TapConnectFlagListVbuckets != 0 {
		if len(req.VbucketIDs) > math.MaxUint16 {
			return nil, protocolError{"too many vbuckets to encode"}
		}

		vbsBuf := make([]byte, 2+len(req.VbucketIDs)*2)
		binary.BigEndian.PutUint16(vbsBuf[0:], uint16(len(req.VbucketIDs)))
		for vbIdx, vbID := range req.VbucketIDs {
			binary.BigEndian.PutUint16(vbsBuf[2+vbIdx*2:], vbID)
		}
		valueBuf = append(valueBuf, vbsBuf...)
	}

	return &Packet{
		Magic:  MagicReq,
		OpCode: OpCodeTapConnect,
		Key:    []byte(req.StreamName),
		Extras: extraBuf,
		Value:  valueBuf,
	}, nil
}
