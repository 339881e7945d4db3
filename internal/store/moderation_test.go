package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openModeration(t *testing.T, role Role) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "moderation.db")
	s, err := Open(path, role)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.InitModerationSchema(context.Background()))
	return s
}

func TestInsertFlaggedMessageIdempotent(t *testing.T) {
	s := openModeration(t, RoleModerator)
	ctx := context.Background()
	f := FlaggedMessage{
		MessageID:     "msg-9",
		ChannelID:     "c1",
		AuthorID:      "u1",
		FlagReason:    "bad_word",
		ToxicityScore: 0.9,
		ActionTaken:   "deleted",
		AutoDeleted:   true,
	}
	ins, err := s.InsertFlaggedMessage(ctx, f)
	require.NoError(t, err)
	assert.True(t, ins)
	ins, err = s.InsertFlaggedMessage(ctx, f)
	require.NoError(t, err)
	assert.False(t, ins, "re-scan must not duplicate flags")

	got, err := s.FlaggedByAuthor(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bad_word", got[0].FlagReason)
	assert.True(t, got[0].AutoDeleted)
}

func TestBadWordsOrderedBySeverity(t *testing.T) {
	s := openModeration(t, RoleModerator)
	ctx := context.Background()
	require.NoError(t, s.AddBadWord(ctx, BadWord{Word: "mild", Severity: 1}))
	require.NoError(t, s.AddBadWord(ctx, BadWord{Word: "harsh", Severity: 3}))
	require.NoError(t, s.AddBadWord(ctx, BadWord{Word: "mild", Severity: 9}), "re-add is a no-op")

	words, err := s.BadWords(ctx)
	require.NoError(t, err)
	require.Len(t, words, 2)
	assert.Equal(t, "harsh", words[0].Word)
	assert.Equal(t, 1, words[1].Severity, "original severity kept on re-add")
}

func TestAppendAuditIdempotent(t *testing.T) {
	s := openModeration(t, RoleModerator)
	ctx := context.Background()
	e := AuditEntry{AuditID: "a-1", ActorID: "mod", Action: "ban", TargetID: "u9"}
	ins, err := s.AppendAudit(ctx, e)
	require.NoError(t, err)
	assert.True(t, ins)
	ins, err = s.AppendAudit(ctx, e)
	require.NoError(t, err)
	assert.False(t, ins)
}

func TestModerationWritesRequireModeratorRole(t *testing.T) {
	s := openModeration(t, RoleBotLive)
	ctx := context.Background()
	_, err := s.InsertFlaggedMessage(ctx, FlaggedMessage{MessageID: "m"})
	require.ErrorIs(t, err, ErrNotWriter)
	require.ErrorIs(t, s.AddBadWord(ctx, BadWord{Word: "w"}), ErrNotWriter)
	_, err = s.AppendAudit(ctx, AuditEntry{AuditID: "a"})
	require.ErrorIs(t, err, ErrNotWriter)

	// Reads stay open to every role.
	_, err = s.BadWords(ctx)
	require.NoError(t, err)
}
