package tapx

type TapConnectFlags uint32

const (
	TapConnectFlagBackfill         = TapConnectFlags(1 << 0)
	TapConnectFlagDump             = TapConnectFlags(1 << 1)
	TapConnectFlagListVbuckets     = TapConnectFlags(1 << 2)
	TapConnectFlagTakeoverVbuckets = TapConnectFlags(1 << 3)
	TapConnectFlagSupportAck       = TapConnectFlags(1 << 4)
	TapConnectFlagKeysOnly         = TapConnectFlags(1 << 5)
	TapConnectFlagRegisteredClient = TapConnectFlags(1 << 7)
)
