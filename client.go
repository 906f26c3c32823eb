package gotap

import (
	"context"
	"errors"
	"os"

	"github.com/couchbaselabs/gotap/tapx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var enablePacketLogging bool = os.Getenv("GOTAP_PACKET_LOGGING") != ""

type SessionState uint32

const (
	SessionStateDisconnected SessionState = iota
	SessionStateConnecting
	SessionStateAwaitingMechanisms
	SessionStateAwaitingAuthResult
	SessionStateReady
	SessionStateStreaming
	SessionStateClosed
	SessionStateErrored
)

func (s SessionState) String() string {
	switch s {
	case SessionStateDisconnected:
		return "Disconnected"
	case SessionStateConnecting:
		return "Connecting"
	case SessionStateAwaitingMechanisms:
		return "AwaitingMechanisms"
	case SessionStateAwaitingAuthResult:
		return "AwaitingAuthResult"
	case SessionStateReady:
		return "Ready"
	case SessionStateStreaming:
		return "Streaming"
	case SessionStateClosed:
		return "Closed"
	case SessionStateErrored:
		return "Errored"
	}

	return "Invalid"
}

func (s SessionState) isTerminal() bool {
	return s == SessionStateClosed || s == SessionStateErrored
}

// TapStreamOptions describes the streaming mode to request from the
// server once the session is ready.
type TapStreamOptions struct {
	// Backfill requests historical events from the given position.
	// -1 requests only events from the current point onwards.
	Backfill *int64

	Dump             bool
	TakeoverVbuckets bool
	SupportAck       bool
	KeysOnly         bool
	RegisteredClient bool

	// VbucketIDs restricts the stream to the listed vbuckets.  A
	// non-nil empty list still encodes a (zero-length) vbucket list.
	VbucketIDs []uint16
}

type TapClientOptions struct {
	Address       string
	Authenticator Authenticator

	// StreamName is the client's self-chosen name for the stream.
	// A uuid-derived name is used when empty.
	StreamName string

	// Stream, when set, is requested automatically as soon as the
	// handshake completes.  When nil the caller must invoke
	// RequestStream itself once the Connect handler has fired.
	Stream *TapStreamOptions

	Handlers TapEventsHandlers

	DisableDecompression bool

	Logger    *zap.Logger
	Transport Transport
}

// TapClient owns a single connection to a TAP-capable server: it
// drives the SASL handshake, requests the streaming mode, and decodes
// the server-pushed change events.  A client is single-use; once the
// session reaches a terminal state a new client must be created.
//
// The client performs no internal locking across Connect and Close;
// issuing them concurrently from multiple goroutines is the caller's
// responsibility to avoid.
type TapClient struct {
	logger        *zap.Logger
	address       string
	streamName    string
	authenticator Authenticator
	streamOpts    *TapStreamOptions
	handlers      TapEventsHandlers
	noDecompress  bool

	transport Transport
	pktBuf    tapx.PacketBuffer
	pktWriter tapx.PacketWriter
	telem     *clientTelem

	state       atomic.Uint32
	bootSpan    trace.Span
	pendingResp tapx.DispatchCallback
}

var _ tapx.Dispatcher = (*TapClient)(nil)

func NewTapClient(opts *TapClientOptions) (*TapClient, error) {
	if opts.Address == "" {
		return nil, errors.New("address must be specified")
	}
	if opts.Authenticator == nil {
		return nil, errors.New("authenticator must be specified")
	}

	streamName := opts.StreamName
	if streamName == "" {
		streamName = "gotap-" + uuid.NewString()[:8]
	}

	logger := loggerOrNop(opts.Logger)
	logger = logger.With(
		zap.String("streamName", streamName),
	)

	transport := opts.Transport
	if transport == nil {
		transport = &TCPTransport{}
	}

	return &TapClient{
		logger:        logger,
		address:       opts.Address,
		streamName:    streamName,
		authenticator: opts.Authenticator,
		streamOpts:    opts.Stream,
		handlers:      opts.Handlers,
		noDecompress:  opts.DisableDecompression,
		transport:     transport,
		telem:         newClientTelem(),
	}, nil
}

// State returns the current session state.
func (c *TapClient) State() SessionState {
	return SessionState(c.state.Load())
}

// Connect opens the transport and begins the handshake.  It returns as
// soon as the transport is open; the Connect handler fires once the
// session is ready.  The context applies to establishing the transport
// only, since everything afterwards is server-driven.
func (c *TapClient) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(
		uint32(SessionStateDisconnected), uint32(SessionStateConnecting)) {
		return ErrStillConnected
	}

	_, span := tracer.Start(ctx, "tap/bootstrap")
	c.bootSpan = span

	c.logger.Debug("connecting", zap.String("address", c.address))

	err := c.transport.Open(ctx, c.address, &TransportHandlers{
		Connected: c.handleConnected,
		Data:      c.handleData,
		Error:     c.handleTransportError,
		Closed:    c.handleClosed,
		End:       c.handleEnd,
	})
	if err != nil {
		c.state.Store(uint32(SessionStateDisconnected))
		span.RecordError(err)
		span.End()

		return contextualError{
			Message: "failed to open transport",
			Cause:   err,
		}
	}

	return nil
}

// Close tears down the transport.  Closing is the only way to cancel a
// stalled handshake or an unbounded stream.
func (c *TapClient) Close() error {
	if c.State().isTerminal() {
		return ErrClosed
	}

	c.logger.Info("closing")
	c.state.Store(uint32(SessionStateClosed))
	c.failPending(tapx.ErrClosedInFlight)

	err := c.transport.Close()

	if c.handlers.Close != nil {
		c.handlers.Close()
	}

	return err
}

// Dispatch writes a request packet and registers its response handler.
// The session tracks a single in-flight request; this is only used
// before the session reaches Ready, after which the server pushes
// packets without pairing.
func (c *TapClient) Dispatch(pak *tapx.Packet, cb tapx.DispatchCallback) (tapx.PendingOp, error) {
	c.pendingResp = cb

	err := c.writePacket(pak)
	if err != nil {
		c.pendingResp = nil
		return nil, err
	}

	return pendingOpNoop{}, nil
}

func (c *TapClient) writePacket(pak *tapx.Packet) error {
	if enablePacketLogging {
		c.logger.Debug("writing packet",
			zap.String("magic", pak.Magic.String()),
			zap.String("opcode", pak.OpCode.String()),
			zap.Binary("extras", pak.Extras),
			zap.Binary("key", pak.Key),
			zap.Binary("value", pak.Value),
		)
	}

	return c.pktWriter.WritePacket(transportWriter{c.transport}, pak)
}

// RequestStream issues the streaming-mode request.  It is only honored
// while the session is Ready; in any other state the request is
// silently ignored, mirroring a request against a connection that has
// not yet authenticated.
func (c *TapClient) RequestStream(opts *TapStreamOptions) {
	if c.State() != SessionStateReady {
		c.logger.Debug("ignoring stream request outside ready state",
			zap.String("state", c.State().String()))
		return
	}

	var flags tapx.TapConnectFlags
	if opts.Dump {
		flags |= tapx.TapConnectFlagDump
	}
	if opts.TakeoverVbuckets {
		flags |= tapx.TapConnectFlagTakeoverVbuckets
	}
	if opts.SupportAck {
		flags |= tapx.TapConnectFlagSupportAck
	}
	if opts.KeysOnly {
		flags |= tapx.TapConnectFlagKeysOnly
	}
	if opts.RegisteredClient {
		flags |= tapx.TapConnectFlagRegisteredClient
	}

	pak, err := tapx.OpsTap{}.EncodeTapConnect(&tapx.TapConnectRequest{
		StreamName: c.streamName,
		Flags:      flags,
		Backfill:   opts.Backfill,
		VbucketIDs: opts.VbucketIDs,
	})
	if err != nil {
		c.fail(err)
		return
	}

	err = c.writePacket(pak)
	if err != nil {
		c.fail(err)
		return
	}

	c.state.Store(uint32(SessionStateStreaming))
	c.logger.Debug("streaming mode requested")
}

func (c *TapClient) handleConnected() {
	c.state.Store(uint32(SessionStateAwaitingMechanisms))
	c.logger.Debug("transport connected, listing sasl mechanisms")

	_, err := tapx.OpsCore{}.SASLListMechs(c, func(resp *tapx.SASLListMechsResponse, err error) {
		if err != nil {
			c.fail(err)
			return
		}

		c.handleMechanisms(resp.AvailableMechs)
	})
	if err != nil {
		c.fail(err)
	}
}

func (c *TapClient) handleMechanisms(mechs []tapx.AuthMechanism) {
	username, password, err := c.authenticator.GetCredentials(c.address)
	if err != nil {
		c.fail(err)
		return
	}

	c.state.Store(uint32(SessionStateAwaitingAuthResult))

	tapx.OpSaslAuthPlain{
		Username: username,
		Password: password,
	}.Authenticate(c, mechs, func(err error) {
		if err != nil {
			c.fail(err)
			return
		}

		c.handleAuthenticated()
	})
}

func (c *TapClient) handleAuthenticated() {
	c.state.Store(uint32(SessionStateReady))
	c.logger.Debug("authenticated")

	if c.bootSpan != nil {
		c.bootSpan.End()
		c.bootSpan = nil
	}

	if c.streamOpts != nil {
		c.RequestStream(c.streamOpts)

		// the auto-issued stream request is part of the handshake; if
		// it failed the session is already errored and must not also
		// announce itself as connected.
		if c.State().isTerminal() {
			return
		}
	}

	if c.handlers.Connect != nil {
		c.handlers.Connect()
	}
}

func (c *TapClient) handleData(chunk []byte) {
	err := c.pktBuf.Feed(chunk, c.handlePacket)
	if err != nil {
		c.fail(err)
	}
}

func (c *TapClient) handlePacket(pak *tapx.Packet) error {
	c.telem.RecordPacket(context.Background(), pak.OpCode.String())

	if enablePacketLogging {
		c.logger.Debug("read packet",
			zap.String("magic", pak.Magic.String()),
			zap.String("opcode", pak.OpCode.String()),
			zap.String("status", pak.Status.String()),
			zap.Binary("extras", pak.Extras),
			zap.Binary("key", pak.Key),
			zap.Binary("value", pak.Value),
		)
	}

	if c.handlers.Packet != nil {
		c.handlers.Packet(pak)
	}

	if c.State() == SessionStateStreaming {
		return c.handleStreamPacket(pak)
	}

	if pak.Magic.IsResponse() && c.pendingResp != nil {
		handler := c.pendingResp
		c.pendingResp = nil
		handler(pak, nil)
		return nil
	}

	// packets outside of the request/response pairing and outside of
	// streaming are ignored for forward compatibility.
	c.logger.Debug("ignoring unexpected packet",
		zap.String("opcode", pak.OpCode.String()),
		zap.String("state", c.State().String()))
	return nil
}

func (c *TapClient) handleStreamPacket(pak *tapx.Packet) error {
	return tapx.TapEventsParser{}.Handle(pak, &tapx.TapEventsHandlers{
		Mutation: func(evt *tapx.TapMutationEvent) error {
			value, datatype, err := maybeDecompressValue(c.noDecompress, evt.Datatype, evt.Value)
			if err != nil {
				return err
			}
			evt.Value = value
			evt.Datatype = datatype

			c.telem.RecordEvent(context.Background(), "mutation")
			if c.handlers.Mutation != nil {
				c.handlers.Mutation(evt)
			}
			return nil
		},
		Deletion: func(evt *tapx.TapDeletionEvent) error {
			c.telem.RecordEvent(context.Background(), "deletion")
			if c.handlers.Deletion != nil {
				c.handlers.Deletion(evt)
			}
			return nil
		},
		Flush: func(evt *tapx.TapFlushEvent) error {
			c.telem.RecordEvent(context.Background(), "flush")
			if c.handlers.Flush != nil {
				c.handlers.Flush(evt)
			}
			return nil
		},
		Opaque: func(evt *tapx.TapOpaqueEvent) error {
			c.telem.RecordEvent(context.Background(), "opaque")
			if c.handlers.Opaque != nil {
				c.handlers.Opaque(evt)
			}
			return nil
		},
	})
}

func (c *TapClient) handleTransportError(err error) {
	c.fail(err)
}

func (c *TapClient) handleClosed() {
	if c.State().isTerminal() {
		return
	}

	c.state.Store(uint32(SessionStateClosed))
	c.failPending(tapx.ErrClosedInFlight)

	if c.handlers.Close != nil {
		c.handlers.Close()
	}
}

func (c *TapClient) handleEnd() {
	if c.State().isTerminal() {
		return
	}

	c.state.Store(uint32(SessionStateClosed))
	c.failPending(tapx.ErrClosedInFlight)

	if c.handlers.End != nil {
		c.handlers.End()
	}
}

// fail moves the session to its terminal error state, surfaces the
// error once, and tears down the transport.
func (c *TapClient) fail(err error) {
	if c.State().isTerminal() {
		return
	}

	c.logger.Debug("session failed", zap.Error(err))
	c.state.Store(uint32(SessionStateErrored))

	if c.bootSpan != nil {
		c.bootSpan.RecordError(err)
		c.bootSpan.End()
		c.bootSpan = nil
	}

	c.failPending(err)

	if c.handlers.Error != nil {
		c.handlers.Error(err)
	}

	if closeErr := c.transport.Close(); closeErr != nil {
		c.logger.Debug("failed to close transport", zap.Error(closeErr))
	}
}

func (c *TapClient) failPending(err error) {
	if c.pendingResp == nil {
		return
	}

	handler := c.pendingResp
	c.pendingResp = nil
	handler(nil, err)
}

type transportWriter struct {
	transport Transport
}

func (w transportWriter) Write(p []byte) (int, error) {
	err := w.transport.Write(p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

type pendingOpNoop struct {
}

func (p pendingOpNoop) Cancel(err error) bool {
	return false
}
