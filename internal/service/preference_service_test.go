package service

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"healthguide-go/internal/repository"
)

func newPreferenceService(t *testing.T) PreferenceService {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewPreferenceService(repository.NewPreferenceRepository(rdb, 0), testConversationConfig())
}

func TestPreferenceService_DefaultsWhenMissing(t *testing.T) {
	pref, err := newPreferenceService(t).Get(context.Background(), "client-1")
	require.NoError(t, err)
	require.Equal(t, "en", pref.Language)
	require.False(t, pref.DisclaimerAcknowledged)
}

func TestPreferenceService_PartialUpdate(t *testing.T) {
	svc := newPreferenceService(t)
	ctx := context.Background()

	pref, err := svc.Update(ctx, "client-1", nil, boolPtr(true))
	require.NoError(t, err)
	require.Equal(t, "en", pref.Language)
	require.True(t, pref.DisclaimerAcknowledged)

	lang := " HI "
	pref, err = svc.Update(ctx, "client-1", &lang, nil)
	require.NoError(t, err)
	require.Equal(t, "hi", pref.Language)
	require.True(t, pref.DisclaimerAcknowledged)

	got, err := svc.Get(ctx, "client-1")
	require.NoError(t, err)
	require.Equal(t, pref.Language, got.Language)
	require.True(t, got.DisclaimerAcknowledged)
}

func TestPreferenceService_RejectsUnknownLanguage(t *testing.T) {
	lang := "fr"
	_, err := newPreferenceService(t).Update(context.Background(), "client-1", &lang, nil)
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}
