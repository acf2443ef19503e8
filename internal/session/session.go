package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/liars-table/internal/codec"
	"github.com/DoyleJ11/liars-table/internal/store"
	"github.com/DoyleJ11/liars-table/internal/table"
	"github.com/DoyleJ11/liars-table/internal/transport"
	"github.com/DoyleJ11/liars-table/internal/view"
	"github.com/DoyleJ11/liars-table/pkg/protocol"
)

var ErrClosed = errors.New("session closed")

type Msg interface{ isSessionMsg() }

// FromTransport carries one transport event into the loop.
type FromTransport struct {
	Event transport.Event
}

type Start struct{ Reply chan error }

// SubmitMove sends the current draft as a MOVE.
type SubmitMove struct{ Reply chan error }

type CallBluff struct{ Reply chan error }

// PlayCard sends the selected card.
type PlayCard struct{ Reply chan error }

type SelectCard struct {
	Card  string
	Reply chan error
}

type SetDraft struct {
	Actual string
	Fake   string
}

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this subscriber wants to receive views
}

type Leave struct{ ClientID string }

type GetView struct{ Reply chan Snapshot }

type Shutdown struct{}

// GetState is test-only: it reflects internal state without data races.
type GetState struct{ Reply chan table.State }

func (FromTransport) isSessionMsg() {}
func (Start) isSessionMsg()         {}
func (SubmitMove) isSessionMsg()    {}
func (CallBluff) isSessionMsg()     {}
func (PlayCard) isSessionMsg()      {}
func (SelectCard) isSessionMsg()    {}
func (SetDraft) isSessionMsg()      {}
func (Join) isSessionMsg()          {}
func (Leave) isSessionMsg()         {}
func (GetView) isSessionMsg()       {}
func (Shutdown) isSessionMsg()      {}
func (GetState) isSessionMsg()      {}

type Snapshot struct {
	Version int
	View    view.View
}

// Dialer builds the transport for a session. The session fills in the
// REGISTER hook and logger before calling it.
type Dialer func(opts transport.Options) transport.Transport

type Config struct {
	Table  string
	Dial   Dialer
	Store  store.Store
	Logger *zap.Logger
}

// Session owns one table's state. Every mutation happens on its loop.
type Session struct {
	name     string
	clientID string
	inbox    chan Msg
	state    table.State
	version  int
	clients  map[string]chan Snapshot

	transport transport.Transport
	decoder   *codec.Decoder
	store     store.Store
	log       *zap.Logger

	// known mirrors the last identity for the REGISTER hook, which runs on
	// the transport goroutine. -1 means none.
	known atomic.Int64

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closing   atomic.Bool // set first thing in Close; inbound events are ignored after
	closeOnce sync.Once
	closeErr  error
}

func New(parent context.Context, cfg Config) (*Session, error) {
	if cfg.Dial == nil {
		return nil, errors.New("session: dialer is required")
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(parent)
	clientID := uuid.NewString()
	log := cfg.Logger.With(zap.String("table", cfg.Table), zap.String("client_id", clientID))

	s := &Session{
		name:     cfg.Table,
		clientID: clientID,
		inbox:    make(chan Msg, 64),
		state:    table.NewState(),
		clients:  make(map[string]chan Snapshot),
		decoder:  codec.NewDecoder(log),
		store:    cfg.Store,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.known.Store(-1)

	id, ok, err := s.store.LoadIdentity(ctx, s.name)
	if err != nil {
		log.Warn("load identity failed", zap.Error(err))
	} else if ok {
		s.known.Store(int64(id))
		log.Info("resuming with stored identity", zap.Int("identity", id))
	}

	s.transport = cfg.Dial(transport.Options{
		Register: s.registerMessage,
		Logger:   log.Named("transport"),
	})
	s.transport.OnEvent(s.fromTransport)

	go s.loop()

	if err := s.transport.Connect(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	return s, nil
}

func (s *Session) Name() string { return s.name }

// Inbox exposes the loop so tests and the view API can send messages.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) registerMessage() protocol.Outbound {
	if id := s.known.Load(); id >= 0 {
		return codec.BuildRegister(int(id), true)
	}
	return codec.BuildRegister(0, false)
}

func (s *Session) fromTransport(evt transport.Event) {
	if s.closing.Load() {
		return
	}
	select {
	case s.inbox <- FromTransport{Event: evt}:
	case <-s.ctx.Done():
	}
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case FromTransport:
				if s.closing.Load() {
					break
				}
				s.handleTransport(msg.Event)

			case Start:
				msg.Reply <- s.start()

			case SubmitMove:
				msg.Reply <- s.submitMove()

			case CallBluff:
				msg.Reply <- s.callBluff()

			case PlayCard:
				msg.Reply <- s.playCard()

			case SelectCard:
				msg.Reply <- s.apply(table.SelectCard{Card: msg.Card})

			case SetDraft:
				_ = s.apply(table.DraftMove{Actual: msg.Actual, Fake: msg.Fake})

			case Join:
				// Register subscriber + send the current view immediately
				select {
				case msg.Outbox <- s.snapshot():
					s.clients[msg.ClientID] = msg.Outbox
				default:
					// Outbox can't take even the first view - drop them.
					close(msg.Outbox)
				}

			case Leave:
				if ch, ok := s.clients[msg.ClientID]; ok {
					close(ch)
					delete(s.clients, msg.ClientID)
				}

			case GetView:
				msg.Reply <- s.snapshot()

			case GetState:
				msg.Reply <- s.state

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) handleTransport(evt transport.Event) {
	if evt.Kind == transport.EventState {
		_ = s.apply(table.LinkChanged{State: table.LinkState(evt.State)})
		return
	}

	var (
		decoded table.Event
		ok      bool
	)
	if evt.Snapshot {
		decoded, ok = s.decoder.DecodeSnapshot(evt.Payload)
	} else {
		decoded, ok = s.decoder.Decode(evt.Payload)
	}
	if !ok {
		return
	}
	_ = s.apply(decoded)
}

// apply reduces one event. Rejected events leave the state alone and are
// recorded as diagnostics.
func (s *Session) apply(evt table.Event) error {
	next, err := table.Apply(s.state, evt)
	if err != nil {
		kind := string(table.TypeOf(evt))
		s.log.Warn("event rejected", zap.String("event", kind), zap.Error(err))
		d := store.NewDiagnostic(s.name, s.clientID, kind, err.Error())
		if serr := s.store.RecordDiagnostic(s.ctx, d); serr != nil {
			s.log.Debug("record diagnostic failed", zap.Error(serr))
		}
		return err
	}

	if next.Session.Registered && (!s.state.Session.Registered || next.Session.Identity != s.state.Session.Identity) {
		s.remember(next.Session.Identity)
	}

	s.state = next
	s.version++
	s.broadcast(s.snapshot())
	return nil
}

func (s *Session) remember(identity int) {
	s.known.Store(int64(identity))
	s.log.Info("registered", zap.Int("identity", identity))
	if err := s.store.SaveIdentity(s.ctx, s.name, identity); err != nil {
		s.log.Warn("save identity failed", zap.Error(err))
	}
}

func (s *Session) start() error {
	msg, ok := codec.BuildStart(s.state)
	if !ok {
		return nil
	}
	return s.send(msg)
}

func (s *Session) submitMove() error {
	msg, err := codec.BuildMove(s.state, s.state.Draft.Actual, s.state.Draft.Fake)
	if err != nil {
		return err
	}
	if err := s.send(msg); err != nil {
		return err
	}
	return s.apply(table.ClearDraft{})
}

func (s *Session) callBluff() error {
	msg, err := codec.BuildBluffCall(s.state)
	if err != nil {
		return err
	}
	return s.send(msg)
}

func (s *Session) playCard() error {
	msg, err := codec.BuildPlayCard(s.state)
	if err != nil {
		return err
	}
	if err := s.send(msg); err != nil {
		return err
	}
	return s.apply(table.SelectCard{})
}

func (s *Session) send(msg protocol.Outbound) error {
	if err := s.transport.Send(s.ctx, msg); err != nil {
		s.log.Warn("send failed", zap.String("type", msg.Type), zap.Error(err))
		return err
	}
	s.log.Debug("sent", zap.String("type", msg.Type))
	return nil
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{Version: s.version, View: view.Project(s.state)}
}

func (s *Session) broadcast(snap Snapshot) {
	for id, ch := range s.clients {
		select {
		case ch <- snap:
			// ok
		default:
			// Subscriber is slow/full - drop them.
			close(ch)
			delete(s.clients, id)
		}
	}
}

func (s *Session) shutdown() {
	for id, ch := range s.clients {
		close(ch) // no more views
		delete(s.clients, id)
	}
	s.cancel()
}

// Close stops the transport first so no further frames or REGISTERs happen,
// then stops the loop. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.closeErr = s.transport.Close()
		select {
		case s.inbox <- Shutdown{}:
		case <-s.done:
		}
		<-s.done
	})
	return s.closeErr
}

// ask delivers m and waits for its reply, giving up if the session ends.
func (s *Session) ask(ctx context.Context, m Msg, reply chan error) error {
	select {
	case s.inbox <- m:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	return s.ask(ctx, Start{Reply: reply}, reply)
}

func (s *Session) CallBluff(ctx context.Context) error {
	reply := make(chan error, 1)
	return s.ask(ctx, CallBluff{Reply: reply}, reply)
}

func (s *Session) SelectCard(ctx context.Context, card string) error {
	reply := make(chan error, 1)
	return s.ask(ctx, SelectCard{Card: card, Reply: reply}, reply)
}

func (s *Session) PlayCard(ctx context.Context) error {
	reply := make(chan error, 1)
	return s.ask(ctx, PlayCard{Reply: reply}, reply)
}

// SubmitMove records the draft and sends it. The draft is kept if the move
// is refused, so the player can correct it.
func (s *Session) SubmitMove(ctx context.Context, actual, fake string) error {
	select {
	case s.inbox <- SetDraft{Actual: actual, Fake: fake}:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	reply := make(chan error, 1)
	return s.ask(ctx, SubmitMove{Reply: reply}, reply)
}

func (s *Session) View(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case s.inbox <- GetView{Reply: reply}:
	case <-s.done:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-s.done:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Subscribe registers an outbox for view updates. The outbox is closed when
// the subscriber is dropped or the session ends; it must be buffered, an
// outbox that cannot take the current view at once is dropped on join.
func (s *Session) Subscribe(ctx context.Context, clientID string, outbox chan Snapshot) error {
	select {
	case s.inbox <- Join{ClientID: clientID, Outbox: outbox}:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Unsubscribe(clientID string) {
	select {
	case s.inbox <- Leave{ClientID: clientID}:
	case <-s.done:
	}
}
