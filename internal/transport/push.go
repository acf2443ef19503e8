package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/liars-table/pkg/protocol"
)

// Push keeps a websocket to the authority open, reconnecting after a fixed
// delay whenever it drops.
type Push struct {
	link
	url  string
	conn *websocket.Conn
}

var _ Transport = (*Push)(nil)

func NewPush(url string, opts Options) *Push {
	p := &Push{url: url}
	p.init(opts)
	return p
}

func (p *Push) Connect(ctx context.Context) error {
	return p.start(ctx, p.run)
}

func (p *Push) run(ctx context.Context) {
	for {
		p.setState(ctx, StateConnecting)

		conn, _, err := websocket.Dial(ctx, p.url, nil)
		if err == nil {
			p.attach(conn)
			p.setState(ctx, StateOpen)
			p.register(ctx)
			err = p.readLoop(ctx, conn)
			p.detach()
		}

		if ctx.Err() != nil || p.isClosed() {
			return
		}
		p.log.Warn("authority connection lost",
			zap.String("url", p.url),
			zap.Duration("retry_in", p.opts.ReconnectDelay),
			zap.Error(err),
		)
		p.setState(ctx, StateClosed)

		// One pending retry at most: the loop owns the only timer.
		timer := time.NewTimer(p.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Push) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return fmt.Errorf("closed by authority: %w", err)
			}
			return err
		}
		p.emit(ctx, Event{Kind: EventFrame, Payload: data})
	}
}

func (p *Push) register(ctx context.Context) {
	msg, ok := p.registerMessage()
	if !ok {
		return
	}
	if err := p.Send(ctx, msg); err != nil {
		p.log.Warn("register failed", zap.Error(err))
	}
}

func (p *Push) attach(conn *websocket.Conn) {
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
}

func (p *Push) detach() {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()
	if conn != nil {
		_ = conn.CloseNow()
	}
}

func (p *Push) Send(ctx context.Context, msg protocol.Outbound) error {
	p.mu.Lock()
	conn, closed := p.conn, p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	payload, err := msg.Marshal()
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, p.opts.WriteTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

// Close cancels the connection loop and any pending reconnect. No handler
// runs after it returns.
func (p *Push) Close() error {
	if !p.beginClose() {
		return nil
	}
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "bye")
	}
	p.finishClose()

	if err != nil && websocket.CloseStatus(err) == -1 {
		return fmt.Errorf("close websocket: %w", err)
	}
	return nil
}
