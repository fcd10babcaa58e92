package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"healthguide-go/internal/model"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestConversationRepository_SnapshotRoundTrip(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := NewConversationRepository(rdb)
	ctx := context.Background()

	got, err := repo.GetSnapshot(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, got)

	snap := model.ConversationSnapshot{
		ConversationID: "conv-1",
		Session:        model.Session{ID: "sess-1"},
		State:          model.StateComplete,
		Escalated:      true,
		TriageResult:   &model.TriageResult{TriageLevel: model.TriageEmergency, RecommendedNextSteps: []string{}},
		Messages:       []model.ChatMessage{{Role: model.RoleAssistant, Content: "hi"}},
		Providers:      []model.Provider{},
	}
	require.NoError(t, repo.SaveSnapshot(ctx, snap, time.Hour))
	require.Equal(t, time.Hour, mr.TTL("conversation:conv-1"))

	got, err = repo.GetSnapshot(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, model.StateComplete, got.State)
	require.True(t, got.Escalated)
	require.Equal(t, model.TriageEmergency, got.TriageResult.TriageLevel)
	require.Len(t, got.Messages, 1)

	require.NoError(t, repo.DeleteSnapshot(ctx, "conv-1"))
	got, err = repo.GetSnapshot(ctx, "conv-1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestConversationRepository_ClientIndex(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewConversationRepository(rdb)
	ctx := context.Background()

	require.NoError(t, repo.BindClient(ctx, "client-1", "a", time.Hour))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, repo.BindClient(ctx, "client-1", "b", time.Hour))

	ids, err := repo.ListClientConversations(ctx, "client-1")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, ids)

	ids, err = repo.ListClientConversations(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestConversationRepository_CorruptSnapshot(t *testing.T) {
	mr, rdb := newTestRedis(t)
	require.NoError(t, mr.Set("conversation:bad", "{not json"))

	_, err := NewConversationRepository(rdb).GetSnapshot(context.Background(), "bad")
	require.Error(t, err)
}

func TestPreferenceRepository_SaveAndGet(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := NewPreferenceRepository(rdb, 24*time.Hour)
	ctx := context.Background()

	got, err := repo.Get(ctx, "client-1")
	require.NoError(t, err)
	require.Nil(t, got)

	now := time.UnixMilli(1700000000123)
	require.NoError(t, repo.Save(ctx, "client-1", model.Preference{Language: "hi", DisclaimerAcknowledged: true, UpdatedAt: now}))
	require.Equal(t, 24*time.Hour, mr.TTL("client:client-1:preference"))

	got, err = repo.Get(ctx, "client-1")
	require.NoError(t, err)
	require.Equal(t, "hi", got.Language)
	require.True(t, got.DisclaimerAcknowledged)
	require.True(t, now.Equal(got.UpdatedAt))
}
