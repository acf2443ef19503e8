package hub

import (
	"context"
	"errors"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/liars-table/internal/session"
)

var ErrShutdown = errors.New("hub shut down")

// Factory opens the session for a table.
type Factory func(ctx context.Context, table string) (*session.Session, error)

type HubMsg interface{ isHubMsg() }

type Result struct {
	Session *session.Session
	Err     error
}

type GetSession struct {
	Table string
	Reply chan *session.Session
}

// EnsureSession returns the table's session, opening it if needed.
type EnsureSession struct {
	Table string
	Reply chan Result
}

type RemoveSession struct {
	Table string
	Reply chan error // optional
}

type ListSessions struct {
	Reply chan []string
}

type ShutdownHub struct {
	Reply chan error // optional
}

func (GetSession) isHubMsg()    {}
func (EnsureSession) isHubMsg() {}
func (RemoveSession) isHubMsg() {}
func (ListSessions) isHubMsg()  {}
func (ShutdownHub) isHubMsg()   {}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	open     Factory
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewHub(parent context.Context, open Factory, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		open:     open,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			_ = h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetSession:
				msg.Reply <- h.sessions[msg.Table] // May be nil

			case EnsureSession:
				if s := h.sessions[msg.Table]; s != nil {
					msg.Reply <- Result{Session: s}
					break
				}
				s, err := h.open(h.ctx, msg.Table)
				if err != nil {
					h.log.Warn("open session failed", zap.String("table", msg.Table), zap.Error(err))
					msg.Reply <- Result{Err: err}
					break
				}
				h.sessions[msg.Table] = s
				msg.Reply <- Result{Session: s}

			case RemoveSession:
				var err error
				if s := h.sessions[msg.Table]; s != nil {
					delete(h.sessions, msg.Table)
					err = s.Close()
				}
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case ListSessions:
				names := make([]string, 0, len(h.sessions))
				for name := range h.sessions {
					names = append(names, name)
				}
				msg.Reply <- names

			case ShutdownHub:
				err := h.shutdown()
				if msg.Reply != nil {
					msg.Reply <- err
				}
				return
			}
		}
	}
}

func (h *Hub) shutdown() error {
	var err error
	for name, s := range h.sessions {
		err = multierr.Append(err, s.Close())
		delete(h.sessions, name)
	}
	h.cancel()
	return err
}

// Ensure is the blocking form of EnsureSession.
func (h *Hub) Ensure(ctx context.Context, table string) (*session.Session, error) {
	reply := make(chan Result, 1)
	select {
	case h.inbox <- EnsureSession{Table: table, Reply: reply}:
	case <-h.done:
		return nil, ErrShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.Session, res.Err
	case <-h.done:
		return nil, ErrShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns nil when the table has no session.
func (h *Hub) Get(ctx context.Context, table string) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	select {
	case h.inbox <- GetSession{Table: table, Reply: reply}:
	case <-h.done:
		return nil, ErrShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-h.done:
		return nil, ErrShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown closes every session and stops the hub.
func (h *Hub) Shutdown() error {
	reply := make(chan error, 1)
	select {
	case h.inbox <- ShutdownHub{Reply: reply}:
	case <-h.done:
		return nil
	}
	select {
	case err := <-reply:
		<-h.done
		return err
	case <-h.done:
		return nil
	}
}
