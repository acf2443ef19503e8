package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/liars-table/pkg/protocol"
)

var ErrNotConnected = errors.New("transport not connected")
var ErrClosed = errors.New("transport closed")
var ErrAlreadyConnected = errors.New("transport already connected")

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosed       State = "closed"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultPollInterval   = 2 * time.Second
	DefaultWriteTimeout   = 3 * time.Second
)

type EventKind string

const (
	EventFrame EventKind = "frame"
	EventState EventKind = "state"
)

// Event is what a transport hands upward: either a raw inbound frame or a
// lifecycle change. Snapshot marks frames that are pull-transport bodies.
type Event struct {
	Kind     EventKind
	Payload  []byte
	Snapshot bool
	State    State
}

type Handler func(Event)

// Transport is one logical connection to the game authority.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, msg protocol.Outbound) error
	OnEvent(h Handler)
	Close() error
}

type Options struct {
	// Register builds the REGISTER sent every time a push link opens.
	Register       func() protocol.Outbound
	ReconnectDelay time.Duration
	PollInterval   time.Duration
	WriteTimeout   time.Duration
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// link holds the lifecycle shared by both transports: one background loop,
// cancelled and awaited by Close.
type link struct {
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	state   State
	handler Handler
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func (l *link) init(opts Options) {
	l.opts = opts.withDefaults()
	l.log = l.opts.Logger
	l.state = StateDisconnected
}

func (l *link) OnEvent(h Handler) {
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()
}

// State reports the current lifecycle state.
func (l *link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *link) start(parent context.Context, loop func(ctx context.Context)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.started {
		return ErrAlreadyConnected
	}
	l.started = true
	ctx, cancel := context.WithCancel(parent)
	l.cancel = cancel

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		loop(ctx)
	}()
	return nil
}

// beginClose marks the link closed so the loop stops emitting. It reports
// false if the link was already closed.
func (l *link) beginClose() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.closed = true
	return true
}

// finishClose cancels the loop and waits for it to exit.
func (l *link) finishClose() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	l.wg.Wait()

	l.mu.Lock()
	l.state = StateClosed
	l.mu.Unlock()
}

func (l *link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *link) setState(ctx context.Context, s State) {
	l.mu.Lock()
	if l.state == s {
		l.mu.Unlock()
		return
	}
	l.state = s
	l.mu.Unlock()

	l.log.Debug("transport state", zap.String("state", string(s)))
	l.emit(ctx, Event{Kind: EventState, State: s})
}

// emit runs the handler on the loop goroutine, so frames keep arrival order.
func (l *link) emit(ctx context.Context, evt Event) {
	if ctx.Err() != nil || l.isClosed() {
		return
	}
	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

func (l *link) registerMessage() (protocol.Outbound, bool) {
	if l.opts.Register == nil {
		return protocol.Outbound{}, false
	}
	return l.opts.Register(), true
}
