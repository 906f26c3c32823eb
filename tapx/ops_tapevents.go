package tapx

import (
	"encoding/binary"
)

type TapEventsHandlers struct {
	Mutation func(evt *TapMutationEvent) error
	Deletion func(evt *TapDeletionEvent) error
	Flush    func(evt *TapFlushEvent) error
	Opaque   func(evt *TapOpaqueEvent) error
}

// TapEventsParser decodes server-pushed stream packets into events.
// Parsing is pure packet-to-event translation; the input packet is
// never mutated.
type TapEventsParser struct {
}

// tapItemExtras is the fixed leading layout shared by mutation, delete
// and flush extras.  The first field is labelled "engine" in some
// servers but in practice holds the item metadata length.
type tapItemExtras struct {
	itemMetaLength uint16
	flags          uint16
	ttl            uint8
}

func (o TapEventsParser) parseItemExtras(pak *Packet) (tapItemExtras, error) {
	if len(pak.Extras) < 8 {
		return tapItemExtras{}, framingError{"tap extras too short"}
	}

	return tapItemExtras{
		itemMetaLength: binary.BigEndian.Uint16(pak.Extras[0:]),
		flags:          binary.BigEndian.Uint16(pak.Extras[2:]),
		ttl:            pak.Extras[4],
	}, nil
}

// reassembleItem undoes the server quirk of packing the item metadata
// at the front of the key region: the metadata's length in bytes is
// consumed from the front of the key, and the same number of bytes is
// moved from the front of the value onto the end of the key.  This is
// the observed wire contract and must be reproduced exactly, even
// though the value bytes folded into the key look asymmetric.
func (o TapEventsParser) reassembleItem(metaLen uint16, wireKey, wireValue []byte) (meta, key, value []byte, err error) {
	m := int(metaLen)
	if len(wireKey) < m || len(wireValue) < m {
		return nil, nil, nil, framingError{"item meta length exceeds key or value"}
	}

	meta = wireKey[:m]

	key = make([]byte, 0, len(wireKey))
	key = append(key, wireKey[m:]...)
	key = append(key, wireValue[:m]...)

	value = wireValue[m:]
	return meta, key, value, nil
}

func (o TapEventsParser) parseTapMutation(pak *Packet, handlers *TapEventsHandlers) error {
	extras, err := o.parseItemExtras(pak)
	if err != nil {
		return err
	}

	if len(pak.Extras) < 16 {
		return framingError{"tap mutation extras too short"}
	}
	itemFlags := binary.BigEndian.Uint32(pak.Extras[8:])
	itemExpiry := binary.BigEndian.Uint32(pak.Extras[12:])

	meta, key, value, err := o.reassembleItem(extras.itemMetaLength, pak.Key, pak.Value)
	if err != nil {
		return err
	}

	if handlers.Mutation == nil {
		return nil
	}

	return handlers.Mutation(&TapMutationEvent{
		VbucketID:  pak.VbucketID,
		Opaque:     pak.Opaque,
		Cas:        pak.Cas,
		Datatype:   pak.Datatype,
		Flags:      extras.flags,
		TTL:        extras.ttl,
		ItemFlags:  itemFlags,
		ItemExpiry: itemExpiry,
		Meta:       meta,
		Key:        key,
		Value:      value,
	})
}

func (o TapEventsParser) parseTapDeletion(pak *Packet, handlers *TapEventsHandlers) error {
	extras, err := o.parseItemExtras(pak)
	if err != nil {
		return err
	}

	meta, key, _, err := o.reassembleItem(extras.itemMetaLength, pak.Key, pak.Value)
	if err != nil {
		return err
	}

	if handlers.Deletion == nil {
		return nil
	}

	return handlers.Deletion(&TapDeletionEvent{
		VbucketID: pak.VbucketID,
		Opaque:    pak.Opaque,
		Cas:       pak.Cas,
		Datatype:  pak.Datatype,
		Flags:     extras.flags,
		TTL:       extras.ttl,
		Meta:      meta,
		Key:       key,
	})
}

func (o TapEventsParser) parseTapFlush(pak *Packet, handlers *TapEventsHandlers) error {
	extras, err := o.parseItemExtras(pak)
	if err != nil {
		return err
	}

	if handlers.Flush == nil {
		return nil
	}

	return handlers.Flush(&TapFlushEvent{
		VbucketID: pak.VbucketID,
		Opaque:    pak.Opaque,
		Cas:       pak.Cas,
		Flags:     extras.flags,
		TTL:       extras.ttl,
	})
}

func (o TapEventsParser) parseTapOpaque(pak *Packet, handlers *TapEventsHandlers) error {
	if len(pak.Value) < 4 {
		return framingError{"tap opaque body too short"}
	}

	flags := TapOpaqueFlags(binary.BigEndian.Uint32(pak.Value[0:]))

	if handlers.Opaque == nil {
		return nil
	}

	return handlers.Opaque(&TapOpaqueEvent{
		VbucketID: pak.VbucketID,
		Opaque:    pak.Opaque,

		EnableAcks:        flags&TapOpaqueFlagEnableAcks != 0,
		StartBackfill:     flags&TapOpaqueFlagStartBackfill != 0,
		EnableCheckpoints: flags&TapOpaqueFlagEnableCheckpoints != 0,
		OpenCheckpoint:    flags&TapOpaqueFlagOpenCheckpoint != 0,
		StartOnlineUpdate: flags&TapOpaqueFlagStartOnlineUpdate != 0,
		StopOnlineUpdate:  flags&TapOpaqueFlagStopOnlineUpdate != 0,
		CloseStream:       flags&TapOpaqueFlagCloseStream != 0,
		CloseBackfill:     flags&TapOpaqueFlagCloseBackfill != 0,
	})
}

// Handle decodes one server-pushed packet and routes the event to the
// matching handler.  Opcodes this parser does not recognize are dropped
// without error; new server message types must not break old clients.
func (o TapEventsParser) Handle(pak *Packet, handlers *TapEventsHandlers) error {
	switch pak.OpCode {
	case OpCodeTapMutation:
		return o.parseTapMutation(pak, handlers)
	case OpCodeTapDelete:
		return o.parseTapDeletion(pak, handlers)
	case OpCodeTapFlush:
		return o.parseTapFlush(pak, handlers)
	case OpCodeTapOpaque:
		return o.parseTapOpaque(pak, handlers)
	}

	return nil
}
