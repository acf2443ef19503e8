package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/liars-table/pkg/protocol"
)

// helper: receive one event with a timeout so tests never hang
func recvEvent(t *testing.T, ch <-chan Event, within time.Duration) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(within):
		t.Fatalf("timed out waiting for transport event")
		return Event{}
	}
}

func recvNoEvent(t *testing.T, ch <-chan Event, within time.Duration) {
	t.Helper()
	select {
	case evt := <-ch:
		t.Fatalf("expected no event within %v, got %+v", within, evt)
	case <-time.After(within):
	}
}

func recvString(t *testing.T, ch <-chan string, within time.Duration) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(within):
		t.Fatalf("timed out waiting for message at authority")
		return ""
	}
}

// waitForState drains events until the given state shows up.
func waitForState(t *testing.T, ch <-chan Event, want State, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == EventState && evt.State == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func collect(tr Transport) chan Event {
	events := make(chan Event, 64)
	tr.OnEvent(func(evt Event) { events <- evt })
	return events
}

type wsAuthority struct {
	srv       *httptest.Server
	conns     atomic.Int32
	registers chan string
	received  chan string
}

// newWSAuthority runs script on every accepted connection after reading its
// REGISTER frame.
func newWSAuthority(t *testing.T, script func(ctx context.Context, conn *websocket.Conn, n int32)) *wsAuthority {
	t.Helper()
	a := &wsAuthority{registers: make(chan string, 8), received: make(chan string, 8)}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		n := a.conns.Add(1)

		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		a.registers <- string(data)
		script(r.Context(), conn, n)
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *wsAuthority) url() string {
	return "ws" + strings.TrimPrefix(a.srv.URL, "http")
}

// drain forwards client frames until the connection ends.
func (a *wsAuthority) drain(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		a.received <- string(data)
	}
}

func firstRegister() protocol.Outbound {
	return protocol.Outbound{Type: protocol.TypeRegister}
}

func TestPush_RegistersOnOpenAndDeliversFrames(t *testing.T) {
	var auth *wsAuthority
	auth = newWSAuthority(t, func(ctx context.Context, conn *websocket.Conn, _ int32) {
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"TURN","playerId":"player2"}`))
		auth.drain(ctx, conn)
	})

	p := NewPush(auth.url(), Options{Register: firstRegister})
	events := collect(p)
	require.NoError(t, p.Connect(context.Background()))
	t.Cleanup(func() { _ = p.Close() })

	assert.JSONEq(t, `{"type":"REGISTER"}`, recvString(t, auth.registers, time.Second))

	waitForState(t, events, StateOpen, time.Second)
	frame := recvEvent(t, events, time.Second)
	require.Equal(t, EventFrame, frame.Kind)
	assert.False(t, frame.Snapshot)
	assert.JSONEq(t, `{"type":"TURN","playerId":"player2"}`, string(frame.Payload))

	one := 1
	require.NoError(t, p.Send(context.Background(), protocol.Outbound{Type: protocol.TypeBluff, PlayerID: &one}))
	assert.JSONEq(t, `{"type":"BLUFF","playerId":1}`, recvString(t, auth.received, time.Second))
}

func TestPush_ReconnectsAndReregisters(t *testing.T) {
	var auth *wsAuthority
	auth = newWSAuthority(t, func(ctx context.Context, conn *websocket.Conn, n int32) {
		if n == 1 {
			_ = conn.Close(websocket.StatusGoingAway, "restarting")
			return
		}
		auth.drain(ctx, conn)
	})

	var calls atomic.Int32
	register := func() protocol.Outbound {
		if calls.Add(1) == 1 {
			return firstRegister()
		}
		id := 3
		return protocol.Outbound{Type: protocol.TypeRegister, PlayerID: &id}
	}

	p := NewPush(auth.url(), Options{Register: register, ReconnectDelay: 20 * time.Millisecond})
	events := collect(p)
	require.NoError(t, p.Connect(context.Background()))
	t.Cleanup(func() { _ = p.Close() })

	assert.JSONEq(t, `{"type":"REGISTER"}`, recvString(t, auth.registers, time.Second))
	waitForState(t, events, StateClosed, time.Second)
	waitForState(t, events, StateConnecting, time.Second)
	waitForState(t, events, StateOpen, time.Second)
	assert.JSONEq(t, `{"type":"REGISTER","playerId":3}`, recvString(t, auth.registers, time.Second))
	assert.Equal(t, int32(2), auth.conns.Load())
}

func TestPush_CloseCancelsPendingReconnect(t *testing.T) {
	auth := newWSAuthority(t, func(ctx context.Context, conn *websocket.Conn, _ int32) {
		_ = conn.Close(websocket.StatusGoingAway, "go away")
	})

	p := NewPush(auth.url(), Options{Register: firstRegister, ReconnectDelay: 200 * time.Millisecond})
	events := collect(p)
	require.NoError(t, p.Connect(context.Background()))

	recvString(t, auth.registers, time.Second)
	waitForState(t, events, StateClosed, time.Second)

	require.NoError(t, p.Close())
	assert.Equal(t, StateClosed, p.State())

	recvNoEvent(t, events, 400*time.Millisecond)
	assert.Equal(t, int32(1), auth.conns.Load())
	assert.Len(t, auth.registers, 0)
}

func TestPush_SendRequiresOpenLink(t *testing.T) {
	p := NewPush("ws://127.0.0.1:1", Options{ReconnectDelay: time.Hour})
	err := p.Send(context.Background(), firstRegister())
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, p.Connect(context.Background()))
	assert.ErrorIs(t, p.Connect(context.Background()), ErrAlreadyConnected)
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Send(context.Background(), firstRegister()), ErrClosed)
	assert.ErrorIs(t, p.Connect(context.Background()), ErrClosed)
	assert.NoError(t, p.Close())
}

type pollAuthority struct {
	srv      *httptest.Server
	fetches  atomic.Int32
	failFor  int32
	commands chan string
}

func newPollAuthority(t *testing.T, snapshot string, failFor int32) *pollAuthority {
	t.Helper()
	a := &pollAuthority{commands: make(chan string, 8), failFor: failFor}

	r := chi.NewRouter()
	r.Get("/api/gamestate", func(w http.ResponseWriter, r *http.Request) {
		if a.fetches.Add(1) <= a.failFor {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, snapshot)
	})
	r.Post("/api/command", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		a.commands <- string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"success"}`)
	})

	a.srv = httptest.NewServer(r)
	t.Cleanup(a.srv.Close)
	return a
}

func (a *pollAuthority) transport(opts Options) *Poll {
	return NewPoll(a.srv.URL+"/api/gamestate", a.srv.URL+"/api/command", a.srv.Client(), opts)
}

func TestPoll_OpensOnFirstFetchWithoutRegister(t *testing.T) {
	auth := newPollAuthority(t, `{"isGameStarted":true,"requiredCard":"K"}`, 0)

	p := auth.transport(Options{Register: firstRegister, PollInterval: 20 * time.Millisecond})
	events := collect(p)
	require.NoError(t, p.Connect(context.Background()))
	t.Cleanup(func() { _ = p.Close() })

	assert.Equal(t, Event{Kind: EventState, State: StateConnecting}, recvEvent(t, events, time.Second))
	assert.Equal(t, Event{Kind: EventState, State: StateOpen}, recvEvent(t, events, time.Second))

	frame := recvEvent(t, events, time.Second)
	require.Equal(t, EventFrame, frame.Kind)
	assert.True(t, frame.Snapshot)
	assert.JSONEq(t, `{"isGameStarted":true,"requiredCard":"K"}`, string(frame.Payload))

	// The first command seen is the one we send: no REGISTER on open.
	require.NoError(t, p.Send(context.Background(), protocol.Outbound{Type: protocol.TypeStartGame}))
	assert.Equal(t, "START_GAME", recvString(t, auth.commands, time.Second))

	require.NoError(t, p.Send(context.Background(), protocol.Outbound{Type: protocol.TypePlayCard, Card: "Q"}))
	assert.Equal(t, "PLAY_CARD:Q", recvString(t, auth.commands, time.Second))
}

func TestPoll_StaysConnectingUntilFetchSucceeds(t *testing.T) {
	auth := newPollAuthority(t, `{}`, 2)

	p := auth.transport(Options{Register: firstRegister, PollInterval: 20 * time.Millisecond})
	events := collect(p)
	require.NoError(t, p.Connect(context.Background()))
	t.Cleanup(func() { _ = p.Close() })

	assert.Equal(t, StateConnecting, recvEvent(t, events, time.Second).State)
	assert.Equal(t, StateOpen, recvEvent(t, events, time.Second).State)
	assert.GreaterOrEqual(t, auth.fetches.Load(), int32(3))
	assert.Len(t, auth.commands, 0)
}

func TestPoll_CloseStopsPolling(t *testing.T) {
	auth := newPollAuthority(t, `{}`, 0)

	p := auth.transport(Options{PollInterval: 10 * time.Millisecond})
	events := collect(p)
	require.NoError(t, p.Connect(context.Background()))
	waitForState(t, events, StateOpen, time.Second)

	require.NoError(t, p.Close())
	after := auth.fetches.Load()

	for len(events) > 0 {
		<-events
	}
	recvNoEvent(t, events, 100*time.Millisecond)
	assert.Equal(t, after, auth.fetches.Load())
	assert.ErrorIs(t, p.Send(context.Background(), firstRegister()), ErrClosed)
}
