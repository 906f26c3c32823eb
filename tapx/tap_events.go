package tapx

// TapMutationEvent is pushed by the server for every document change
// included in the stream.  Meta carries the engine-private item
// metadata that the server interleaves across the key and value wire
// fields.
type TapMutationEvent struct {
	VbucketID  uint16
	Opaque     uint32
	Cas        uint64
	Datatype   uint8
	Flags      uint16
	TTL        uint8
	ItemFlags  uint32
	ItemExpiry uint32
	Meta       []byte
	Key        []byte
	Value      []byte
}

type TapDeletionEvent struct {
	VbucketID uint16
	Opaque    uint32
	Cas       uint64
	Datatype  uint8
	Flags     uint16
	TTL       uint8
	Meta      []byte
	Key       []byte
}

type TapFlushEvent struct {
	VbucketID uint16
	Opaque    uint32
	Cas       uint64
	Flags     uint16
	TTL       uint8
}

type TapOpaqueFlags uint32

const (
	TapOpaqueFlagEnableAcks        = TapOpaqueFlags(1 << 0)
	TapOpaqueFlagStartBackfill     = TapOpaqueFlags(1 << 1)
	TapOpaqueFlagEnableCheckpoints = TapOpaqueFlags(1 << 2)
	TapOpaqueFlagOpenCheckpoint    = TapOpaqueFlags(1 << 3)
	TapOpaqueFlagStartOnlineUpdate = TapOpaqueFlags(1 << 4)
	TapOpaqueFlagStopOnlineUpdate  = TapOpaqueFlags(1 << 5)
	TapOpaqueFlagCloseStream       = TapOpaqueFlags(1 << 6)
	TapOpaqueFlagCloseBackfill     = TapOpaqueFlags(1 << 7)
)

// TapOpaqueEvent is a stream-lifecycle control signal rather than a
// data change.
type TapOpaqueEvent struct {
	VbucketID uint16
	Opaque    uint32

	EnableAcks        bool
	StartBackfill     bool
	EnableCheckpoints bool
	OpenCheckpoint    bool
	StartOnlineUpdate bool
	StopOnlineUpdate  bool
	CloseStream       bool
	CloseBackfill     bool
}
