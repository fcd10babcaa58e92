package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquire_UsesBackendID(t *testing.T) {
	backend := &fakeBackend{}
	m := NewSessionManager(backend, time.Second)

	s := m.Acquire(context.Background())
	require.Equal(t, "sess-1", s.ID)
	require.False(t, s.Fallback)
	require.False(t, s.CreatedAt.IsZero())
	require.EqualValues(t, 1, backend.sessionCalls.Load())
}

func TestAcquire_FallbackIsDistinctAcrossFailures(t *testing.T) {
	backend := &fakeBackend{sessionFn: func(ctx context.Context) (string, error) {
		return "", errors.New("connection refused")
	}}
	m := NewSessionManager(backend, time.Second)
	fixed := time.UnixMilli(1700000000000)
	m.now = func() time.Time { return fixed }

	first := m.Acquire(context.Background())
	second := m.Acquire(context.Background())

	require.True(t, first.Fallback)
	require.True(t, second.Fallback)
	require.NotEmpty(t, first.ID)
	require.NotEqual(t, first.ID, second.ID)
	require.Contains(t, first.ID, "session-1700000000000-")
	// 每次获取只尝试一次
	require.EqualValues(t, 2, backend.sessionCalls.Load())
}

func TestAcquire_EmptyIDFallsBack(t *testing.T) {
	backend := &fakeBackend{sessionFn: func(ctx context.Context) (string, error) {
		return " ", nil
	}}
	s := NewSessionManager(backend, time.Second).Acquire(context.Background())
	require.True(t, s.Fallback)
	require.NotEqual(t, " ", s.ID)
}

func TestAcquire_TimeoutFallsBack(t *testing.T) {
	backend := &fakeBackend{sessionFn: func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	start := time.Now()
	s := NewSessionManager(backend, 20*time.Millisecond).Acquire(context.Background())
	require.True(t, s.Fallback)
	require.Less(t, time.Since(start), time.Second)
}

func TestAcquire_NilBackend(t *testing.T) {
	s := NewSessionManager(nil, 0).Acquire(context.Background())
	require.True(t, s.Fallback)
	require.NotEmpty(t, s.ID)
}
