package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Identity(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok, err := m.LoadIdentity(ctx, "main")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.SaveIdentity(ctx, "main", 2))
	require.NoError(t, m.SaveIdentity(ctx, "main", 3))
	require.NoError(t, m.SaveIdentity(ctx, "side", 1))

	id, ok, err := m.LoadIdentity(ctx, "main")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, id)
	assert.NoError(t, m.Close())
}

func TestMemory_DiagnosticsPerTable(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.RecordDiagnostic(ctx, NewDiagnostic("main", "c1", "TURN", "unknown player")))
	require.NoError(t, m.RecordDiagnostic(ctx, NewDiagnostic("other", "c2", "DEAD", "unknown player")))

	got := m.Diagnostics("main")
	require.Len(t, got, 1)
	assert.Equal(t, "TURN", got[0].Event)
	assert.NotEqual(t, uuid.Nil, got[0].ID)

	// Returned slice is a copy.
	got[0].Event = "changed"
	assert.Equal(t, "TURN", m.Diagnostics("main")[0].Event)
}

func TestToRecord_FillsIDAndTime(t *testing.T) {
	rec := toRecord(Diagnostic{Table: "main", Event: "TURN", Reason: "r"})
	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, "main", rec.TableKey)

	d := NewDiagnostic("main", "c", "HAND", "x")
	assert.Equal(t, d.ID, toRecord(d).ID)
}
