package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/liars-table/pkg/protocol"
)

const maxSnapshotBytes = 1 << 20

// Poll fetches a state snapshot on a fixed interval and posts commands as
// plain text. Open is synthetic: it starts with the first successful fetch.
// The Register hook is never used.
type Poll struct {
	link
	stateURL   string
	commandURL string
	client     *http.Client
}

var _ Transport = (*Poll)(nil)

func NewPoll(stateURL, commandURL string, client *http.Client, opts Options) *Poll {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	p := &Poll{stateURL: stateURL, commandURL: commandURL, client: client}
	p.init(opts)
	return p
}

func (p *Poll) Connect(ctx context.Context) error {
	return p.start(ctx, p.run)
}

func (p *Poll) run(ctx context.Context) {
	p.setState(ctx, StateConnecting)

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		p.poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poll) poll(ctx context.Context) {
	body, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("snapshot fetch failed", zap.String("url", p.stateURL), zap.Error(err))
		}
		return
	}

	// The command endpoint only takes legacy text, so there is no REGISTER.
	if p.State() != StateOpen {
		p.setState(ctx, StateOpen)
	}
	p.emit(ctx, Event{Kind: EventFrame, Payload: body, Snapshot: true})
}

func (p *Poll) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.stateURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
}

func (p *Poll) Send(ctx context.Context, msg protocol.Outbound) error {
	if p.isClosed() {
		return ErrClosed
	}
	payload, err := msg.Marshal()
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, p.opts.WriteTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(wctx, http.MethodPost, p.commandURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", msg.Type, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post %s: status %d", msg.Type, resp.StatusCode)
	}
	return nil
}

// Close stops the poll loop. No handler runs after it returns.
func (p *Poll) Close() error {
	if !p.beginClose() {
		return nil
	}
	p.finishClose()
	p.client.CloseIdleConnections()
	return nil
}
