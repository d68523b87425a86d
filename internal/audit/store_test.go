package audit

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/impactgate/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(id, analysis, action string, at time.Time) model.GateAuditLog {
	return model.GateAuditLog{
		ID:               id,
		AnalysisID:       analysis,
		Action:           action,
		Approver:         "kim",
		Reason:           "release window",
		BlockersBypassed: []string{"risk:security-sensitive", "validation:x"},
		PreviousStatus:   model.GateBlocked,
		NewStatus:        model.GateClear,
		Timestamp:        at,
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 3, 4, 5, 6, 7, time.UTC)

	require.NoError(t, s.Record(ctx, entry("a1", "an-1", model.AuditApprove, base)))
	require.NoError(t, s.Record(ctx, entry("a2", "an-2", model.AuditForceOverride, base.Add(time.Minute))))
	require.NoError(t, s.Record(ctx, entry("a3", "an-1", model.AuditRevokeApproval, base.Add(2*time.Minute))))

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "a3", recent[0].ID)
	assert.Equal(t, "a2", recent[1].ID)
	assert.Equal(t, model.AuditForceOverride, recent[1].Action)
	assert.Equal(t, []string{"risk:security-sensitive", "validation:x"}, recent[1].BlockersBypassed)
	assert.Equal(t, model.GateBlocked, recent[1].PreviousStatus)
	assert.True(t, base.Add(time.Minute).Equal(recent[1].Timestamp))

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestForAnalysis(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Record(ctx, entry("a1", "an-1", model.AuditApprove, now)))
	require.NoError(t, s.Record(ctx, entry("a2", "an-2", model.AuditApprove, now)))
	require.NoError(t, s.Record(ctx, entry("a3", "an-1", model.AuditForceOverride, now)))

	logs, err := s.ForAnalysis(ctx, "an-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "a1", logs[0].ID)
	assert.Equal(t, "a3", logs[1].ID)

	logs, err = s.ForAnalysis(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestRecordRejectsDuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, entry("dup", "an", model.AuditApprove, time.Now())))
	assert.Error(t, s.Record(ctx, entry("dup", "an", model.AuditApprove, time.Now())))
}

func TestRecordNilBlockers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e := entry("n", "an", model.AuditRevokeApproval, time.Time{})
	e.BlockersBypassed = nil

	require.NoError(t, s.Record(ctx, e))
	logs, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Empty(t, logs[0].BlockersBypassed)
	assert.False(t, logs[0].Timestamp.IsZero())
}

func TestOpenFailure(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(string, string) (*sql.DB, error) { return nil, errors.New("no driver") }

	_, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	assert.ErrorContains(t, err, "audit: open database")
}
