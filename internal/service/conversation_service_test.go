package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"healthguide-go/internal/config"
	"healthguide-go/internal/model"
	"healthguide-go/internal/repository"
	"healthguide-go/pkg/tasks"
	"healthguide-go/pkg/token"
)

type recordingPublisher struct {
	mu    sync.Mutex
	tasks []tasks.ConversationOutcomeTask
	err   error
}

func (p *recordingPublisher) Publish(ctx context.Context, task tasks.ConversationOutcomeTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task)
	return p.err
}

func testConversationConfig() config.ConversationConfig {
	return config.ConversationConfig{
		DefaultLanguage: "en",
		Welcome:         map[string]string{"en": "Hello", "es": "Hola", "hi": "नमस्ते"},
		FallbackReply:   testFallback,
		LookupErrorText: testLookupError,
		IdleTTL:         time.Hour,
		SweepInterval:   time.Minute,
		SnapshotTTL:     24 * time.Hour,
	}
}

type serviceFixture struct {
	svc       ConversationService
	backend   *fakeBackend
	publisher *recordingPublisher
	prefs     PreferenceService
	repo      repository.ConversationRepository
	redis     *miniredis.Miniredis
}

func newServiceFixture(t *testing.T, backend *fakeBackend) *serviceFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	convCfg := testConversationConfig()
	repo := repository.NewConversationRepository(rdb)
	prefs := NewPreferenceService(repository.NewPreferenceRepository(rdb, 0), convCfg)
	publisher := &recordingPublisher{}
	triageCfg := config.TriageConfig{SessionTimeout: time.Second, ExchangeTimeout: time.Second, LookupTimeout: time.Second, DefaultRadiusKM: 5}

	svc := NewConversationService(triageCfg, convCfg, backend, repo, prefs, publisher, token.NewJWTManager("secret", 1))
	t.Cleanup(svc.Shutdown)
	return &serviceFixture{svc: svc, backend: backend, publisher: publisher, prefs: prefs, repo: repo, redis: mr}
}

func TestConversationService_StartUsesPreferences(t *testing.T) {
	f := newServiceFixture(t, &fakeBackend{})
	ctx := context.Background()
	lang := "es"
	_, err := f.prefs.Update(ctx, "client-1", &lang, boolPtr(true))
	require.NoError(t, err)

	res, err := f.svc.Start(ctx, StartOptions{ClientID: "client-1"})
	require.NoError(t, err)
	require.NotEmpty(t, res.ConversationID)
	require.NotEmpty(t, res.Token)
	require.Equal(t, "es", res.Snapshot.Language)
	require.True(t, res.Snapshot.DisclaimerAcknowledged)
	require.Equal(t, "Hola", res.Snapshot.Messages[0].Content)
	require.Equal(t, "sess-1", res.Snapshot.Session.ID)

	ids, err := f.svc.ListClientConversations(ctx, "client-1")
	require.NoError(t, err)
	require.Equal(t, []string{res.ConversationID}, ids)

	stored, err := f.repo.GetSnapshot(ctx, res.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestConversationService_StartRejectsUnknownLanguage(t *testing.T) {
	f := newServiceFixture(t, &fakeBackend{})
	_, err := f.svc.Start(context.Background(), StartOptions{Language: "fr"})
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestConversationService_StartWithBackendDown(t *testing.T) {
	f := newServiceFixture(t, &fakeBackend{sessionFn: func(ctx context.Context) (string, error) {
		return "", errors.New("connection refused")
	}})

	a, err := f.svc.Start(context.Background(), StartOptions{})
	require.NoError(t, err)
	b, err := f.svc.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	require.True(t, a.Snapshot.Session.Fallback)
	require.NotEqual(t, a.Snapshot.Session.ID, b.Snapshot.Session.ID)
}

func TestConversationService_CompletionPublishesOutcome(t *testing.T) {
	backend := &fakeBackend{exchangeFn: respond("Call emergency services.", redFlagResult(), boolPtr(false))}
	f := newServiceFixture(t, backend)
	ctx := context.Background()

	res, err := f.svc.Start(ctx, StartOptions{})
	require.NoError(t, err)

	turn, err := f.svc.Send(ctx, res.ConversationID, "chest pain and fainting")
	require.NoError(t, err)
	require.True(t, turn.Completed)

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	require.Len(t, f.publisher.tasks, 1)
	task := f.publisher.tasks[0]
	require.Equal(t, res.ConversationID, task.ConversationID)
	require.Equal(t, model.TriageEmergency, task.TriageLevel)
	require.True(t, task.Escalated)
	require.Equal(t, "chest pain", task.RedFlagSymptom)
	require.Equal(t, 1, task.TurnCount)
	require.Len(t, task.Messages, 3)
}

func TestConversationService_PublishFailureDoesNotFailTurn(t *testing.T) {
	backend := &fakeBackend{exchangeFn: respond("done", selfCareResult(), boolPtr(true))}
	f := newServiceFixture(t, backend)
	f.publisher.err = errors.New("kafka down")

	res, err := f.svc.Start(context.Background(), StartOptions{})
	require.NoError(t, err)
	turn, err := f.svc.Send(context.Background(), res.ConversationID, "fever")
	require.NoError(t, err)
	require.Equal(t, model.StateComplete, turn.Snapshot.State)
}

func TestConversationService_EndKeepsSnapshot(t *testing.T) {
	f := newServiceFixture(t, &fakeBackend{})
	ctx := context.Background()
	res, err := f.svc.Start(ctx, StartOptions{})
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, res.ConversationID, "hello")
	require.NoError(t, err)

	ended, err := f.svc.End(ctx, res.ConversationID)
	require.NoError(t, err)
	require.False(t, ended.InputEnabled)

	snap, err := f.svc.Get(ctx, res.ConversationID)
	require.NoError(t, err)
	require.Len(t, snap.Messages, 3)

	_, err = f.svc.Send(ctx, res.ConversationID, "again")
	require.ErrorIs(t, err, ErrConversationClosed)

	_, err = f.svc.End(ctx, res.ConversationID)
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestConversationService_UnknownConversation(t *testing.T) {
	f := newServiceFixture(t, &fakeBackend{})
	_, err := f.svc.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrConversationNotFound)
	_, err = f.svc.Send(context.Background(), "nope", "hi")
	require.ErrorIs(t, err, ErrConversationNotFound)
	_, _, err = f.svc.Subscribe("nope")
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestConversationService_SubscribeReceivesSnapshots(t *testing.T) {
	f := newServiceFixture(t, &fakeBackend{})
	ctx := context.Background()
	res, err := f.svc.Start(ctx, StartOptions{})
	require.NoError(t, err)

	ch, unsubscribe, err := f.svc.Subscribe(res.ConversationID)
	require.NoError(t, err)
	defer unsubscribe()

	_, err = f.svc.Send(ctx, res.ConversationID, "hello")
	require.NoError(t, err)

	first := <-ch
	second := <-ch
	require.Len(t, first.Messages, 2)
	require.True(t, first.Busy)
	require.Len(t, second.Messages, 3)
	require.False(t, second.Busy)

	_, err = f.svc.End(ctx, res.ConversationID)
	require.NoError(t, err)
	_, open := <-ch
	require.False(t, open)
}

func TestConversationService_SweepIdle(t *testing.T) {
	f := newServiceFixture(t, &fakeBackend{})
	ctx := context.Background()
	res, err := f.svc.Start(ctx, StartOptions{})
	require.NoError(t, err)

	require.Zero(t, f.svc.SweepIdle(time.Now()))
	require.Equal(t, 1, f.svc.SweepIdle(time.Now().Add(2*time.Hour)))

	_, err = f.svc.Send(ctx, res.ConversationID, "hello")
	require.ErrorIs(t, err, ErrConversationClosed)
}
