package tapx

type Packet struct {
	Magic     Magic
	OpCode    OpCode
	Datatype  uint8
	VbucketID uint16 // Only valid for Req-type packets
	Status    Status // Only valid for Res-type packets
	Opaque    uint32
	Cas       uint64
	Extras    []byte
	Key       []byte
	Value     []byte
}
