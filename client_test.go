package gotap

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/couchbaselabs/gotap/tapx"
	"github.com/golang/snappy"
	"github.com/stretchr/testify/require"
)

// testTransport drives the client synchronously: the test fires the
// lifecycle signals itself and inspects every packet the client wrote.
type testTransport struct {
	t        *testing.T
	handlers *TransportHandlers
	reqs     []*tapx.Packet
	closed   bool

	parseBuf tapx.PacketBuffer
}

var _ Transport = (*testTransport)(nil)

func (tr *testTransport) Open(ctx context.Context, address string, handlers *TransportHandlers) error {
	tr.handlers = handlers
	return nil
}

func (tr *testTransport) Write(buf []byte) error {
	err := tr.parseBuf.Feed(buf, func(pak *tapx.Packet) error {
		tr.reqs = append(tr.reqs, pak)
		return nil
	})
	require.NoError(tr.t, err)
	return nil
}

func (tr *testTransport) Close() error {
	tr.closed = true
	return nil
}

func (tr *testTransport) respond(pak *tapx.Packet) {
	var buf bytes.Buffer
	err := (&tapx.PacketWriter{}).WritePacket(&buf, pak)
	require.NoError(tr.t, err)
	tr.handlers.Data(buf.Bytes())
}

func newTestClient(t *testing.T, opts *TapClientOptions) (*TapClient, *testTransport) {
	tr := &testTransport{t: t}

	opts.Address = "10.0.0.1:11210"
	opts.Transport = tr
	if opts.Authenticator == nil {
		opts.Authenticator = &PasswordAuthenticator{
			Username: "user",
			Password: "pass",
		}
	}

	cli, err := NewTapClient(opts)
	require.NoError(t, err)

	err = cli.Connect(context.Background())
	require.NoError(t, err)

	return cli, tr
}

// runs the handshake up to a successful auth response.
func completeHandshake(t *testing.T, tr *testTransport) {
	tr.handlers.Connected()

	require.Len(t, tr.reqs, 1)
	require.Equal(t, tapx.OpCodeSASLListMechs, tr.reqs[0].OpCode)
	require.Empty(t, tr.reqs[0].Value)

	tr.respond(&tapx.Packet{
		Magic:  tapx.MagicRes,
		OpCode: tapx.OpCodeSASLListMechs,
		Value:  []byte("PLAIN"),
	})

	require.Len(t, tr.reqs, 2)
	require.Equal(t, tapx.OpCodeSASLAuth, tr.reqs[1].OpCode)
	require.Equal(t, []byte("PLAIN"), tr.reqs[1].Key)
	require.Equal(t, []byte("\x00user\x00pass"), tr.reqs[1].Value)

	tr.respond(&tapx.Packet{
		Magic:  tapx.MagicRes,
		OpCode: tapx.OpCodeSASLAuth,
	})
}

func TestTapClientHandshake(t *testing.T) {
	connected := false
	cli, tr := newTestClient(t, &TapClientOptions{
		StreamName: "test-stream",
		Handlers: TapEventsHandlers{
			Connect: func() { connected = true },
			Error: func(err error) {
				t.Fatalf("unexpected error: %s", err)
			},
		},
	})

	require.Equal(t, SessionStateConnecting, cli.State())

	completeHandshake(t, tr)

	require.True(t, connected)
	require.Equal(t, SessionStateReady, cli.State())
	require.False(t, tr.closed)
}

func TestTapClientAuthFailure(t *testing.T) {
	connected := false
	var gotErr error
	cli, tr := newTestClient(t, &TapClientOptions{
		Handlers: TapEventsHandlers{
			Connect: func() { connected = true },
			Error:   func(err error) { gotErr = err },
		},
	})

	tr.handlers.Connected()
	tr.respond(&tapx.Packet{
		Magic:  tapx.MagicRes,
		OpCode: tapx.OpCodeSASLListMechs,
		Value:  []byte("PLAIN"),
	})
	tr.respond(&tapx.Packet{
		Magic:  tapx.MagicRes,
		OpCode: tapx.OpCodeSASLAuth,
		Value:  []byte("Auth failure"),
	})

	require.ErrorIs(t, gotErr, ErrAuthenticationFailure)
	require.ErrorContains(t, gotErr, "Auth failure")
	require.False(t, connected)
	require.True(t, tr.closed)
	require.Equal(t, SessionStateErrored, cli.State())
}

func TestTapClientAutoStreamRequest(t *testing.T) {
	backfill := int64(-1)
	connected := false
	cli, tr := newTestClient(t, &TapClientOptions{
		StreamName: "auto-stream",
		Stream: &TapStreamOptions{
			Backfill: &backfill,
			KeysOnly: true,
		},
		Handlers: TapEventsHandlers{
			Connect: func() { connected = true },
		},
	})

	completeHandshake(t, tr)

	require.True(t, connected)
	require.Equal(t, SessionStateStreaming, cli.State())

	require.Len(t, tr.reqs, 3)
	modeReq := tr.reqs[2]
	require.Equal(t, tapx.OpCodeTapConnect, modeReq.OpCode)
	require.Equal(t, []byte("auto-stream"), modeReq.Key)

	flags := tapx.TapConnectFlags(binary.BigEndian.Uint32(modeReq.Extras))
	require.Equal(t, tapx.TapConnectFlagBackfill|tapx.TapConnectFlagKeysOnly, flags)
	require.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, modeReq.Value)
}

// failingWriteTransport accepts a fixed number of writes and then
// fails every subsequent one.
type failingWriteTransport struct {
	testTransport
	allowedWrites int
	numWrites     int
}

func (tr *failingWriteTransport) Write(buf []byte) error {
	tr.numWrites++
	if tr.numWrites > tr.allowedWrites {
		return errors.New("write failed")
	}
	return tr.testTransport.Write(buf)
}

func TestTapClientAutoStreamWriteFailure(t *testing.T) {
	tr := &failingWriteTransport{allowedWrites: 2}
	tr.t = t

	backfill := int64(-1)
	connected := false
	var gotErr error
	cli, err := NewTapClient(&TapClientOptions{
		Address: "10.0.0.1:11210",
		Authenticator: &PasswordAuthenticator{
			Username: "user",
			Password: "pass",
		},
		Transport: tr,
		Stream: &TapStreamOptions{
			Backfill: &backfill,
		},
		Handlers: TapEventsHandlers{
			Connect: func() { connected = true },
			Error:   func(err error) { gotErr = err },
		},
	})
	require.NoError(t, err)

	err = cli.Connect(context.Background())
	require.NoError(t, err)

	// the sasl exchange succeeds, but the auto-issued streaming-mode
	// request hits the write failure; the session must error without
	// ever announcing itself as connected.
	completeHandshake(t, &tr.testTransport)

	require.Error(t, gotErr)
	require.False(t, connected)
	require.Equal(t, SessionStateErrored, cli.State())
	require.True(t, tr.closed)
}

func TestTapClientExplicitStreamRequest(t *testing.T) {
	cli, tr := newTestClient(t, &TapClientOptions{})

	completeHandshake(t, tr)
	require.Equal(t, SessionStateReady, cli.State())
	require.Len(t, tr.reqs, 2)

	cli.RequestStream(&TapStreamOptions{
		VbucketIDs: []uint16{0, 1},
	})

	require.Equal(t, SessionStateStreaming, cli.State())
	require.Len(t, tr.reqs, 3)
	require.Equal(t, tapx.OpCodeTapConnect, tr.reqs[2].OpCode)
}

func TestTapClientStreamRequestIgnoredBeforeReady(t *testing.T) {
	cli, tr := newTestClient(t, &TapClientOptions{})

	cli.RequestStream(&TapStreamOptions{})

	require.Empty(t, tr.reqs)
	require.Equal(t, SessionStateConnecting, cli.State())
}

func streamingClient(t *testing.T, handlers TapEventsHandlers) (*TapClient, *testTransport) {
	cli, tr := newTestClient(t, &TapClientOptions{
		Stream:   &TapStreamOptions{},
		Handlers: handlers,
	})
	completeHandshake(t, tr)
	require.Equal(t, SessionStateStreaming, cli.State())

	return cli, tr
}

func TestTapClientMutationEvent(t *testing.T) {
	var evt *tapx.TapMutationEvent
	cli, tr := streamingClient(t, TapEventsHandlers{
		Mutation: func(e *tapx.TapMutationEvent) { evt = e },
	})

	extras := make([]byte, 16)
	binary.BigEndian.PutUint16(extras[0:], 3) // item meta length

	tr.respond(&tapx.Packet{
		Magic:     tapx.MagicReq,
		OpCode:    tapx.OpCodeTapMutation,
		VbucketID: 5,
		Extras:    extras,
		Key:       []byte{0x01, 0x02, 0x03, 'f', 'o', 'o'},
		Value:     []byte("barbaz"),
	})

	require.NotNil(t, evt)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, evt.Meta)
	require.Equal(t, []byte("foobar"), evt.Key)
	require.Equal(t, []byte("baz"), evt.Value)
	require.Equal(t, uint16(5), evt.VbucketID)
	require.Equal(t, SessionStateStreaming, cli.State())
}

func TestTapClientCompressedMutationValue(t *testing.T) {
	var evt *tapx.TapMutationEvent
	_, tr := streamingClient(t, TapEventsHandlers{
		Mutation: func(e *tapx.TapMutationEvent) { evt = e },
	})

	tr.respond(&tapx.Packet{
		Magic:    tapx.MagicReq,
		OpCode:   tapx.OpCodeTapMutation,
		Datatype: uint8(tapx.DatatypeFlagCompressed),
		Extras:   make([]byte, 16),
		Key:      []byte("doc-1"),
		Value:    snappy.Encode(nil, []byte("the uncompressed value")),
	})

	require.NotNil(t, evt)
	require.Equal(t, []byte("the uncompressed value"), evt.Value)
	require.Equal(t, uint8(0), evt.Datatype)
}

func TestTapClientOpaqueEvent(t *testing.T) {
	var evt *tapx.TapOpaqueEvent
	_, tr := streamingClient(t, TapEventsHandlers{
		Opaque: func(e *tapx.TapOpaqueEvent) { evt = e },
	})

	flagWord := make([]byte, 4)
	binary.BigEndian.PutUint32(flagWord, uint32(tapx.TapOpaqueFlagStartBackfill))

	tr.respond(&tapx.Packet{
		Magic:  tapx.MagicReq,
		OpCode: tapx.OpCodeTapOpaque,
		Value:  flagWord,
	})

	require.NotNil(t, evt)
	require.True(t, evt.StartBackfill)
	require.False(t, evt.EnableAcks)
}

func TestTapClientUnknownOpCodeDuringStreaming(t *testing.T) {
	cli, tr := streamingClient(t, TapEventsHandlers{
		Mutation: func(e *tapx.TapMutationEvent) {
			t.Fatal("unexpected mutation event")
		},
		Error: func(err error) {
			t.Fatalf("unexpected error: %s", err)
		},
	})

	tr.respond(&tapx.Packet{
		Magic:  tapx.MagicReq,
		OpCode: tapx.OpCode(0x99),
		Key:    []byte("whatever"),
	})

	require.Equal(t, SessionStateStreaming, cli.State())
}

func TestTapClientRawPacketsObserved(t *testing.T) {
	var observed []tapx.OpCode
	_, tr := streamingClient(t, TapEventsHandlers{
		Packet: func(pak *tapx.Packet) { observed = append(observed, pak.OpCode) },
	})

	tr.respond(&tapx.Packet{
		Magic:  tapx.MagicReq,
		OpCode: tapx.OpCodeTapFlush,
		Extras: make([]byte, 8),
	})

	require.Equal(t, []tapx.OpCode{tapx.OpCodeTapFlush}, observed)
}

func TestTapClientFramingError(t *testing.T) {
	var gotErr error
	cli, tr := streamingClient(t, TapEventsHandlers{
		Error: func(err error) { gotErr = err },
	})

	headerBuf := make([]byte, 24)
	headerBuf[0] = uint8(tapx.MagicReq)
	headerBuf[1] = uint8(tapx.OpCodeTapMutation)
	binary.BigEndian.PutUint16(headerBuf[2:], 10)
	headerBuf[4] = 5
	binary.BigEndian.PutUint32(headerBuf[8:], 2)
	tr.handlers.Data(headerBuf)

	require.ErrorIs(t, gotErr, ErrInvalidFraming)
	require.Equal(t, SessionStateErrored, cli.State())
	require.True(t, tr.closed)
}

func TestTapClientTransportEnd(t *testing.T) {
	ended := false
	cli, tr := streamingClient(t, TapEventsHandlers{
		End: func() { ended = true },
	})

	tr.handlers.End()

	require.True(t, ended)
	require.Equal(t, SessionStateClosed, cli.State())
}

func TestTapClientClose(t *testing.T) {
	closeFired := false
	cli, tr := newTestClient(t, &TapClientOptions{
		Handlers: TapEventsHandlers{
			Close: func() { closeFired = true },
		},
	})
	completeHandshake(t, tr)

	err := cli.Close()
	require.NoError(t, err)
	require.True(t, tr.closed)
	require.True(t, closeFired)
	require.Equal(t, SessionStateClosed, cli.State())

	closeFired = false
	err = cli.Close()
	require.ErrorIs(t, err, ErrClosed)
	require.False(t, closeFired)
}

func TestTapClientTransportClosedSignal(t *testing.T) {
	closeFired := false
	cli, tr := streamingClient(t, TapEventsHandlers{
		Close: func() { closeFired = true },
	})

	tr.handlers.Closed()

	require.True(t, closeFired)
	require.Equal(t, SessionStateClosed, cli.State())
}

func TestTapClientConnectTwice(t *testing.T) {
	cli, _ := newTestClient(t, &TapClientOptions{})

	err := cli.Connect(context.Background())
	require.ErrorIs(t, err, ErrStillConnected)
}

func TestNewTapClientValidation(t *testing.T) {
	_, err := NewTapClient(&TapClientOptions{})
	require.Error(t, err)

	_, err = NewTapClient(&TapClientOptions{Address: "10.0.0.1:11210"})
	require.Error(t, err)
}
