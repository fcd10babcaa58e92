package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"healthguide-go/internal/model"
	"healthguide-go/pkg/tasks"
)

type memOutcomeRepo struct {
	saved []*model.TriageOutcome
	err   error
}

func (r *memOutcomeRepo) Upsert(ctx context.Context, o *model.TriageOutcome) error {
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, o)
	return nil
}

func (r *memOutcomeRepo) List(ctx context.Context, f model.OutcomeFilter) ([]model.TriageOutcome, int64, error) {
	return nil, 0, nil
}

func (r *memOutcomeRepo) FindByConversationID(ctx context.Context, id string) (*model.TriageOutcome, error) {
	return nil, nil
}

type memTranscripts struct {
	data map[string][]byte
	err  error
}

func (s *memTranscripts) PutTranscript(ctx context.Context, id string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.data == nil {
		s.data = map[string][]byte{}
	}
	s.data[id] = data
	return "transcripts/" + id + ".json", nil
}

type memIndexer struct {
	docs []model.OutcomeDocument
}

func (i *memIndexer) IndexOutcome(ctx context.Context, doc model.OutcomeDocument) error {
	i.docs = append(i.docs, doc)
	return nil
}

func sampleTask() tasks.ConversationOutcomeTask {
	return tasks.ConversationOutcomeTask{
		ConversationID: "conv-1",
		SessionID:      "sess-1",
		Language:       "en",
		TriageLevel:    model.TriageEmergency,
		Summary:        "Red flag symptom detected: seizure",
		NextSteps:      []string{"Call emergency services"},
		Escalated:      true,
		RedFlagSymptom: "seizure",
		TurnCount:      1,
		Messages: []model.ChatMessage{
			{Role: model.RoleAssistant, Content: "Hello"},
			{Role: model.RoleUser, Content: "my child had a seizure"},
			{Role: model.RoleAssistant, Content: "Call emergency services now."},
		},
		CompletedAt: time.Now(),
	}
}

func TestProcess_WritesAllStores(t *testing.T) {
	repo := &memOutcomeRepo{}
	store := &memTranscripts{}
	idx := &memIndexer{}
	p := NewProcessorWith(repo, store, idx)

	require.NoError(t, p.Process(context.Background(), sampleTask()))

	require.Len(t, repo.saved, 1)
	saved := repo.saved[0]
	require.Equal(t, "EMERGENCY", saved.TriageLevel)
	require.Equal(t, "transcripts/conv-1.json", saved.TranscriptObject)
	require.True(t, saved.Escalated)

	var archived struct {
		Messages []model.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(store.data["conv-1"], &archived))
	require.Len(t, archived.Messages, 3)

	require.Len(t, idx.docs, 1)
	require.Equal(t, "conv-1", idx.docs[0].ConversationID)
	require.Equal(t, "seizure", idx.docs[0].RedFlagSymptom)
}

func TestProcess_StopsOnArchiveFailure(t *testing.T) {
	repo := &memOutcomeRepo{}
	idx := &memIndexer{}
	p := NewProcessorWith(repo, &memTranscripts{err: errors.New("minio down")}, idx)

	require.Error(t, p.Process(context.Background(), sampleTask()))
	require.Empty(t, repo.saved)
	require.Empty(t, idx.docs)
}

func TestProcess_DatabaseFailureSkipsIndex(t *testing.T) {
	idx := &memIndexer{}
	p := NewProcessorWith(&memOutcomeRepo{err: errors.New("mysql down")}, &memTranscripts{}, idx)

	require.Error(t, p.Process(context.Background(), sampleTask()))
	require.Empty(t, idx.docs)
}
