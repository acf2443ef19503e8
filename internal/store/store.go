package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store keeps what should survive a client restart: the identity the
// authority last assigned per table, and reducer diagnostics.
type Store interface {
	LoadIdentity(ctx context.Context, table string) (int, bool, error)
	SaveIdentity(ctx context.Context, table string, identity int) error
	RecordDiagnostic(ctx context.Context, d Diagnostic) error
	Close() error
}

// Diagnostic is a rejected event.
type Diagnostic struct {
	ID       uuid.UUID
	Table    string
	ClientID string
	Event    string
	Reason   string
	At       time.Time
}

func NewDiagnostic(table, clientID, event, reason string) Diagnostic {
	return Diagnostic{
		ID:       uuid.New(),
		Table:    table,
		ClientID: clientID,
		Event:    event,
		Reason:   reason,
		At:       time.Now().UTC(),
	}
}

// Memory is an in-process Store.
type Memory struct {
	mu          sync.Mutex
	identities  map[string]int
	diagnostics map[string][]Diagnostic
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		identities:  make(map[string]int),
		diagnostics: make(map[string][]Diagnostic),
	}
}

func (m *Memory) LoadIdentity(_ context.Context, table string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.identities[table]
	return id, ok, nil
}

func (m *Memory) SaveIdentity(_ context.Context, table string, identity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[table] = identity
	return nil
}

func (m *Memory) RecordDiagnostic(_ context.Context, d Diagnostic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diagnostics[d.Table] = append(m.diagnostics[d.Table], d)
	return nil
}

// Diagnostics returns a copy of what was recorded for a table.
func (m *Memory) Diagnostics(table string) []Diagnostic {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Diagnostic(nil), m.diagnostics[table]...)
}

func (m *Memory) Close() error { return nil }
